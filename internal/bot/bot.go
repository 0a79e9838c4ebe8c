package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/eternisai/taskbot/internal/conversation"
	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/metrics"
	"github.com/eternisai/taskbot/internal/reminder"
	"github.com/eternisai/taskbot/internal/task"
	"github.com/eternisai/taskbot/internal/telegram"
)

// Tasks is the task list used by the bot.
type Tasks interface {
	Create(ctx context.Context, chatID int64, text string) (task.Task, error)
	List(ctx context.Context, chatID int64) ([]task.Task, error)
	Delete(ctx context.Context, chatID int64, position int) (task.Task, error)
}

// Reminders schedules reminder notifications.
type Reminders interface {
	Schedule(ctx context.Context, chatID int64, position int, delay time.Duration) (reminder.Reminder, error)
}

// Sender delivers replies to a chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Bot routes chat messages to commands and conversation flows.
type Bot struct {
	tasks     Tasks
	reminders Reminders
	sessions  *conversation.SessionStore
	sender    Sender
	location  *time.Location
	logger    *logger.Logger

	// username is the bot's own @name; commands addressed to other bots are ignored.
	username string
}

// Option configures a Bot.
type Option func(*Bot)

// WithUsername sets the bot's username (without '@').
func WithUsername(username string) Option {
	return func(b *Bot) { b.username = strings.TrimPrefix(username, "@") }
}

// New creates a Bot. Due times are displayed in loc.
func New(tasks Tasks, reminders Reminders, sessions *conversation.SessionStore, sender Sender, loc *time.Location, log *logger.Logger, opts ...Option) *Bot {
	if loc == nil {
		loc = time.UTC
	}
	b := &Bot{
		tasks:     tasks,
		reminders: reminders,
		sessions:  sessions,
		sender:    sender,
		location:  loc,
		logger:    log.WithComponent("bot"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleUpdate processes one update and sends the reply. It never panics:
// unexpected failures are logged and answered with a generic message.
func (b *Bot) HandleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	// Photos, stickers and other non-text messages leave a pending flow untouched.
	if msg == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	ctx = logger.WithChatID(ctx, chatID)

	defer func() {
		if r := recover(); r != nil {
			b.logger.WithContext(ctx).Error("panic while handling update",
				slog.Any("panic", r),
				slog.Int("update_id", update.UpdateID),
				slog.String("stack", string(debug.Stack())))
			b.reply(ctx, chatID, genericErrorText)
		}
	}()

	reply, err := b.Handle(ctx, chatID, msg.Text)
	if err != nil {
		b.logger.WithContext(ctx).Error("failed to handle message",
			slog.String("error", err.Error()),
			slog.Int("update_id", update.UpdateID))
		reply = genericErrorText
	}
	if reply != "" {
		b.reply(ctx, chatID, reply)
	}
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		deliveryErr := &apperrors.DeliveryError{ChatID: chatID, Err: err}
		b.logger.WithContext(ctx).Error("failed to send reply", slog.String("error", deliveryErr.Error()))
	}
}

var knownCommands = map[string]bool{
	"start": true, "help": true, "addtask": true, "listtasks": true,
	"deletetask": true, "setreminder": true, "cancel": true,
}

// commandLabel bounds the metric label set.
func commandLabel(name string) string {
	if knownCommands[name] {
		return name
	}
	return "unknown"
}

// parseCommand splits "/cmd@BotName arg..." into a lower-case command name,
// the addressed bot (empty when none) and the arguments. ok is false for plain text.
func parseCommand(text string) (name, target string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", nil, false
	}

	fields := strings.Fields(text)
	name = strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name, target = name[:at], name[at+1:]
	}
	return strings.ToLower(name), target, fields[1:], true
}

// addressedToOther reports whether a command names a different bot.
func (b *Bot) addressedToOther(target string) bool {
	return target != "" && b.username != "" && !strings.EqualFold(target, b.username)
}

// Handle returns the reply for one message, or "" when the message is ignored.
// A returned error is unexpected; user mistakes are answered in the reply.
func (b *Bot) Handle(ctx context.Context, chatID int64, text string) (string, error) {
	name, target, args, isCommand := parseCommand(text)
	if !isCommand {
		return b.handleInput(ctx, chatID, text)
	}
	if b.addressedToOther(target) {
		b.logger.WithContext(ctx).Debug("command for another bot ignored", slog.String("target", target))
		return "", nil
	}

	ctx = logger.WithOperation(ctx, name)
	log := b.logger.WithContext(ctx)
	metrics.CommandsTotal.WithLabelValues(commandLabel(name)).Inc()

	// Any command ends a flow that was waiting for input.
	pending, hadSession := b.sessions.Take(chatID)
	if hadSession && name != "cancel" {
		log.Info("pending flow cancelled by command", slog.String("flow", string(pending.Flow)))
	}

	switch name {
	case "start":
		return welcomeText, nil
	case "help":
		return helpText, nil
	case "addtask":
		b.sessions.Begin(chatID, conversation.FlowAddTask)
		return addTaskPrompt, nil
	case "setreminder":
		b.sessions.Begin(chatID, conversation.FlowSetReminder)
		return setReminderPrompt, nil
	case "listtasks":
		tasks, err := b.tasks.List(ctx, chatID)
		if err != nil {
			return "", fmt.Errorf("list tasks: %w", err)
		}
		return formatTaskList(tasks, b.location, log), nil
	case "deletetask":
		return b.deleteTask(ctx, chatID, args)
	case "cancel":
		if !hadSession {
			return nothingToCancel, nil
		}
		return cancelledText, nil
	default:
		log.Debug("unknown command ignored", slog.String("command", name))
		return "", nil
	}
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, args []string) (string, error) {
	if len(args) == 0 {
		return deleteUsageText, nil
	}
	position, err := strconv.Atoi(args[0])
	if err != nil {
		return deleteUsageText, nil
	}

	if _, err := b.tasks.Delete(ctx, chatID, position); err != nil {
		if errors.As(err, new(*apperrors.NotFoundError)) {
			return taskNotFoundText, nil
		}
		return "", fmt.Errorf("delete task: %w", err)
	}
	return taskDeletedText(position), nil
}

// handleInput completes the chat's pending flow with text. Text without a
// pending flow is ignored.
func (b *Bot) handleInput(ctx context.Context, chatID int64, text string) (string, error) {
	session, ok := b.sessions.Take(chatID)
	if !ok {
		b.logger.WithContext(ctx).Debug("ignoring text without an active flow")
		return "", nil
	}

	ctx = logger.WithOperation(ctx, string(session.Flow))

	switch session.Flow {
	case conversation.FlowAddTask:
		return b.saveTask(ctx, chatID, text)
	case conversation.FlowSetReminder:
		return b.saveReminder(ctx, chatID, text)
	default:
		return "", fmt.Errorf("unknown flow %q", session.Flow)
	}
}

func (b *Bot) saveTask(ctx context.Context, chatID int64, text string) (string, error) {
	created, err := b.tasks.Create(ctx, chatID, text)
	if err != nil {
		if errors.As(err, new(*apperrors.ValidationError)) {
			return emptyTaskText, nil
		}
		return "", fmt.Errorf("create task: %w", err)
	}
	return taskAddedText(created.Text), nil
}

func (b *Bot) saveReminder(ctx context.Context, chatID int64, text string) (string, error) {
	input, err := conversation.ParseReminderInput(text)
	if err != nil {
		return invalidFormatText(err.Error()), nil
	}

	_, err = b.reminders.Schedule(ctx, chatID, input.Position, input.Delay())
	if err != nil {
		var validationErr *apperrors.ValidationError
		switch {
		case errors.As(err, new(*apperrors.NotFoundError)):
			return taskNotFoundText, nil
		case errors.As(err, &validationErr):
			return invalidFormatText(validationErr.Error()), nil
		}
		return "", fmt.Errorf("schedule reminder: %w", err)
	}
	return reminderSetText(input.Position, input.Minutes), nil
}
