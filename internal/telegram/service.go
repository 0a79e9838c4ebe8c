package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternisai/taskbot/internal/logger"
)

// ErrTokenMissing is returned by Start when no bot token is configured.
var ErrTokenMissing = errors.New("telegram token not set")

// UpdateHandler consumes updates one at a time.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update Update)
}

// UpdateHandlerFunc adapts a function to UpdateHandler.
type UpdateHandlerFunc func(ctx context.Context, update Update)

func (f UpdateHandlerFunc) HandleUpdate(ctx context.Context, update Update) { f(ctx, update) }

// Config configures a Service.
type Config struct {
	Token       string
	BaseURL     string        // defaults to APIBase
	PollTimeout time.Duration // long-poll timeout sent to getUpdates
	RetryDelay  time.Duration // wait after a failed poll
}

// Service talks to the Telegram Bot API: it receives updates by long polling
// or webhook and sends replies.
type Service struct {
	token       string
	baseURL     string
	pollTimeout time.Duration
	retryDelay  time.Duration
	client      *http.Client
	logger      *logger.Logger
	handler     UpdateHandler

	// dispatchMu keeps updates from being handled concurrently.
	dispatchMu   sync.Mutex
	lastUpdateID atomic.Int64
	handled      atomic.Int64
}

// NewService creates a new Telegram service instance.
func NewService(cfg Config, handler UpdateHandler, log *logger.Logger) *Service {
	if cfg.BaseURL == "" {
		cfg.BaseURL = APIBase
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}

	return &Service{
		token:       cfg.Token,
		baseURL:     cfg.BaseURL,
		pollTimeout: cfg.PollTimeout,
		retryDelay:  cfg.RetryDelay,
		// Leaves room for the long-poll timeout plus network overhead.
		client:  &http.Client{Timeout: cfg.PollTimeout + 15*time.Second},
		logger:  log.WithComponent("telegram"),
		handler: handler,
	}
}

func (s *Service) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.baseURL, s.token, method)
}

// Start polls getUpdates until ctx is cancelled. Transport and API errors
// are logged and retried after the retry delay.
func (s *Service) Start(ctx context.Context) error {
	if s.token == "" {
		return ErrTokenMissing
	}

	s.logger.Info("starting telegram long polling", slog.Duration("timeout", s.pollTimeout))

	for {
		if ctx.Err() != nil {
			s.logger.Info("telegram polling stopped")
			return nil
		}

		updates, err := s.getUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.logger.Error("failed to get updates", slog.String("error", err.Error()))
			s.sleep(ctx, s.retryDelay)
			continue
		}

		for _, update := range updates {
			s.Dispatch(ctx, update)
		}
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (s *Service) getUpdates(ctx context.Context) ([]Update, error) {
	q := url.Values{}
	q.Set("offset", strconv.FormatInt(s.lastUpdateID.Load()+1, 10))
	q.Set("timeout", strconv.Itoa(int(s.pollTimeout.Seconds())))
	q.Set("allowed_updates", `["message"]`)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.methodURL("getUpdates")+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var result apiResponse[[]Update]
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return nil, fmt.Errorf("telegram API error %d: %s", result.ErrorCode, result.Description)
	}

	return result.Result, nil
}

// Dispatch hands one update to the handler. Updates at or below the last
// dispatched id are dropped, so a redelivered webhook is handled once.
func (s *Service) Dispatch(ctx context.Context, update Update) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	if int64(update.UpdateID) <= s.lastUpdateID.Load() {
		s.logger.Debug("skipping already handled update", slog.Int("update_id", update.UpdateID))
		return
	}
	s.lastUpdateID.Store(int64(update.UpdateID))

	if update.Message == nil {
		return
	}

	ctx = logger.WithRequestID(ctx, logger.GenerateRequestID())
	ctx = logger.WithChatID(ctx, update.Message.Chat.ID)

	s.logger.WithContext(ctx).Debug("received message",
		slog.Int("update_id", update.UpdateID),
		slog.Int("message_id", update.Message.MessageID))

	s.handler.HandleUpdate(ctx, update)
	s.handled.Add(1)
}

// GetMe returns the bot's own account.
func (s *Service) GetMe(ctx context.Context) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.methodURL("getMe"), nil)
	if err != nil {
		return User{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	var result apiResponse[User]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return User{}, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if !result.OK {
		return User{}, fmt.Errorf("telegram API error %d: %s", result.ErrorCode, result.Description)
	}
	return result.Result, nil
}

// SendMessage sends a plain-text message to a Telegram chat.
func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) error {
	jsonBody, err := json.Marshal(SendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendMessage"), bytes.NewReader(jsonBody))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("failed to close response body", slog.String("error", err.Error()))
		}
	}()

	var result apiResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}

	if !result.OK {
		return fmt.Errorf("telegram API error %d: %s", result.ErrorCode, result.Description)
	}

	return nil
}

// Status summarizes the transport for the health endpoint.
func (s *Service) Status() map[string]any {
	return map[string]any{
		"token_configured": s.token != "",
		"last_update_id":   s.lastUpdateID.Load(),
		"handled_updates":  s.handled.Load(),
	}
}
