package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/eternisai/taskbot/internal/bot"
	"github.com/eternisai/taskbot/internal/config"
	"github.com/eternisai/taskbot/internal/conversation"
	"github.com/eternisai/taskbot/internal/events"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/reminder"
	"github.com/eternisai/taskbot/internal/storage/sqldb"
	"github.com/eternisai/taskbot/internal/task"
	"github.com/eternisai/taskbot/internal/telegram"
	"github.com/gin-gonic/gin"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))
	slog.SetDefault(log.Logger)

	log.Info("setting gin mode", slog.String("mode", cfg.GinMode))
	gin.SetMode(cfg.GinMode)

	// Initialize database.
	db, err := sqldb.InitDatabase(cfg, log)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database ready", slog.String("driver", cfg.DatabaseDriver))

	// Events are optional.
	var publisher events.Publisher = events.NopPublisher{}
	var nc *nats.Conn
	if cfg.NatsURL != "" {
		nc, err = events.Connect(cfg.NatsURL, log)
		if err != nil {
			log.Warn("continuing without events", slog.String("error", err.Error()))
		} else {
			publisher = events.NewNATSPublisher(nc, log)
		}
	}

	// Initialize services
	taskService := task.NewService(task.NewSQLStore(db), publisher, log)
	sessions := conversation.NewSessionStore(cfg.SessionTTL)

	sweeper, err := conversation.NewSweeper(sessions, cfg.SessionSweepSpec, log)
	if err != nil {
		log.Error("failed to create session sweeper", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The telegram service needs the bot as its handler and the bot needs a
	// sender; dispatch goes through the variable once both exist.
	var chatBot *bot.Bot
	telegramService := telegram.NewService(telegram.Config{
		Token:       cfg.TelegramToken,
		PollTimeout: time.Duration(cfg.TelegramPollTimeoutSeconds) * time.Second,
	}, telegram.UpdateHandlerFunc(func(ctx context.Context, u telegram.Update) {
		chatBot.HandleUpdate(ctx, u)
	}), log)

	scheduler := reminder.NewScheduler(taskService, reminder.NewSQLStore(db), telegramService, log,
		reminder.WithPublisher(publisher))
	taskService.OnDelete(func(ctx context.Context, deleted task.Task) error {
		_, err := scheduler.CancelForTask(ctx, deleted.ID)
		return err
	})

	username := cfg.TelegramBotUsername
	if username == "" && cfg.TelegramToken != "" {
		meCtx, cancelMe := context.WithTimeout(context.Background(), 10*time.Second)
		me, err := telegramService.GetMe(meCtx)
		cancelMe()
		if err != nil {
			log.Warn("could not resolve bot username, accepting commands for any bot", slog.String("error", err.Error()))
		} else {
			username = me.Username
		}
	}

	chatBot = bot.New(taskService, scheduler, sessions, telegramService, cfg.Location, log, bot.WithUsername(username))

	if _, err := scheduler.Recover(context.Background()); err != nil {
		log.Error("failed to recover reminders", slog.String("error", err.Error()))
		os.Exit(1)
	}
	scheduler.Start()
	sweeper.Start()

	// Initialize handlers
	taskHandler := task.NewHandler(taskService, log)
	telegramHandler := telegram.NewHandler(telegramService, cfg.TelegramWebhookSecret)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(logger.RequestLoggingMiddleware(log))

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{
			"status":          "ok",
			"instance_id":     logger.GetInstanceID(),
			"telegram_mode":   cfg.TelegramMode,
			"armed_reminders": scheduler.Armed(),
		}
		if err := db.DB.PingContext(c.Request.Context()); err != nil {
			status["status"] = "degraded"
			status["database"] = err.Error()
		}
		if nc != nil {
			status["nats"] = nc.Status().String()
		}
		c.JSON(http.StatusOK, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/telegram/status", telegramHandler.Status)
	if cfg.TelegramMode == config.TelegramModeWebhook {
		router.POST("/telegram/webhook", telegramHandler.Webhook)
	}

	taskHandler.RegisterRoutes(router.Group("/api/v1"))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("failed to start server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	pollCtx, stopPolling := context.WithCancel(context.Background())
	pollDone := make(chan struct{})
	if cfg.TelegramMode == config.TelegramModePolling {
		go func() {
			defer close(pollDone)
			if err := telegramService.Start(pollCtx); err != nil {
				log.Error("telegram polling not started", slog.String("error", err.Error()))
			}
		}()
	} else {
		close(pollDone)
	}

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	stopPolling()
	select {
	case <-pollDone:
	case <-ctx.Done():
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	sweeper.Stop(ctx)
	if err := scheduler.Stop(ctx); err != nil {
		log.Error("scheduler forced to stop", slog.String("error", err.Error()))
	}

	if nc != nil {
		if err := nc.Drain(); err != nil {
			log.Warn("failed to drain nats", slog.String("error", err.Error()))
		}
	}

	log.Info("server exited")
}
