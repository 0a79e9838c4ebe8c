package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/taskbot/internal/conversation"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/reminder"
	"github.com/eternisai/taskbot/internal/task"
	"github.com/eternisai/taskbot/internal/telegram"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ict = time.FixedZone("ICT", 7*3600)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSender) SendMessage(_ context.Context, _ int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, text)
	return s.err
}

func (s *fakeSender) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		return ""
	}
	return s.sent[len(s.sent)-1]
}

type harness struct {
	bot       *Bot
	sender    *fakeSender
	scheduler *reminder.Scheduler
	now       time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		sender: &fakeSender{},
		now:    time.Date(2024, 5, 1, 3, 0, 0, 0, time.UTC),
	}
	tasks := task.NewService(task.NewMemoryStore(), nil, logger.Discard())
	h.scheduler = reminder.NewScheduler(tasks, reminder.NewMemoryStore(), h.sender, logger.Discard(),
		reminder.WithClock(func() time.Time { return h.now }))
	tasks.OnDelete(func(ctx context.Context, deleted task.Task) error {
		_, err := h.scheduler.CancelForTask(ctx, deleted.ID)
		return err
	})

	h.bot = New(tasks, h.scheduler, conversation.NewSessionStore(10*time.Minute), h.sender, ict, logger.Discard(), opts...)
	return h
}

// say sends text from chat 1 and returns the bot's reply ("" when ignored).
func (h *harness) say(t *testing.T, text string) string {
	t.Helper()
	return h.sayIn(t, 1, text)
}

func (h *harness) sayIn(t *testing.T, chatID int64, text string) string {
	t.Helper()
	h.sender.mu.Lock()
	before := len(h.sender.sent)
	h.sender.mu.Unlock()

	h.bot.HandleUpdate(context.Background(), telegram.Update{
		UpdateID: 1,
		Message:  &telegram.Message{Chat: telegram.Chat{ID: chatID}, Text: text},
	})

	h.sender.mu.Lock()
	defer h.sender.mu.Unlock()
	if len(h.sender.sent) == before {
		return ""
	}
	require.Len(t, h.sender.sent, before+1, "one reply per message")
	return h.sender.sent[before]
}

func TestStaticCommands(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, welcomeText, h.say(t, "/start"))
	assert.Equal(t, helpText, h.say(t, "/help"))
	assert.Equal(t, helpText, h.say(t, "/help@TaskBot"), "bot name suffix is stripped")
	assert.Equal(t, "", h.say(t, "/frobnicate"), "unknown commands are ignored")
}

func TestAddAndListTasks(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, noTasksText, h.say(t, "/listtasks"))

	assert.Equal(t, addTaskPrompt, h.say(t, "/addtask"))
	assert.Equal(t, "✅ Task added: Buy milk", h.say(t, "  Buy milk  "))

	assert.Equal(t, addTaskPrompt, h.say(t, "/addtask"))
	assert.Equal(t, "✅ Task added: Walk dog", h.say(t, "Walk dog"))

	assert.Equal(t, "📋 Your tasks:\n📌 1. Buy milk\n📌 2. Walk dog", h.say(t, "/listtasks"))
	assert.Equal(t, noTasksText, h.sayIn(t, 2, "/listtasks"), "tasks are per chat")
}

func TestAddTaskRejectsEmptyText(t *testing.T) {
	h := newHarness(t)

	h.say(t, "/addtask")
	assert.Equal(t, emptyTaskText, h.say(t, "   "))
	assert.Equal(t, "", h.say(t, "Buy milk"), "the flow ended; no retry loop")
	assert.Equal(t, noTasksText, h.say(t, "/listtasks"))
}

func TestPlainTextWithoutFlowIsIgnored(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "", h.say(t, "hello there"))
}

func TestCommandCancelsPendingFlow(t *testing.T) {
	h := newHarness(t)

	h.say(t, "/addtask")
	assert.Equal(t, noTasksText, h.say(t, "/listtasks"), "the command is handled normally")
	assert.Equal(t, "", h.say(t, "Buy milk"), "the abandoned flow does not capture later text")
	assert.Equal(t, noTasksText, h.say(t, "/listtasks"))

	h.say(t, "/setreminder")
	assert.Equal(t, addTaskPrompt, h.say(t, "/addtask"), "a new flow replaces the old one")
	assert.Equal(t, "✅ Task added: 1 30", h.say(t, "1 30"))
}

func TestCancel(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, nothingToCancel, h.say(t, "/cancel"))
	h.say(t, "/addtask")
	assert.Equal(t, cancelledText, h.say(t, "/cancel"))
	assert.Equal(t, "", h.say(t, "Buy milk"))
}

func TestDeleteTask(t *testing.T) {
	h := newHarness(t)
	for _, text := range []string{"Buy milk", "Walk dog"} {
		h.say(t, "/addtask")
		h.say(t, text)
	}

	tests := []struct {
		input string
		want  string
	}{
		{input: "/deletetask", want: deleteUsageText},
		{input: "/deletetask one", want: deleteUsageText},
		{input: "/deletetask 3", want: taskNotFoundText},
		{input: "/deletetask 0", want: taskNotFoundText},
		{input: "/deletetask 1", want: "✅ Task 1 deleted and IDs reorganized."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.say(t, tt.input), tt.input)
	}

	assert.Equal(t, "📋 Your tasks:\n📌 1. Walk dog", h.say(t, "/listtasks"))
}

func TestSetReminderFlow(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/addtask")
	h.say(t, "Buy milk")
	h.say(t, "/addtask")
	h.say(t, "Walk dog")
	h.say(t, "/deletetask 1")

	assert.Equal(t, setReminderPrompt, h.say(t, "/setreminder"))
	assert.Equal(t, "⏰ Reminder set for task 1 in 30 minutes.", h.say(t, "1 30"))

	// 03:30 UTC is 10:30 in UTC+7.
	assert.Equal(t, "📋 Your tasks:\n📌 1. Walk dog (Due: 2024-05-01 10:30:00 ICT)", h.say(t, "/listtasks"))
	assert.Equal(t, 1, h.scheduler.Armed())

	h.say(t, "/deletetask 1")
	assert.Zero(t, h.scheduler.Armed(), "deleting the task disarms its reminder")
}

func TestSetReminderErrors(t *testing.T) {
	h := newHarness(t)
	h.say(t, "/addtask")
	h.say(t, "Walk dog")

	tests := []struct {
		input string
		want  string
	}{
		{input: "1", want: "❌ Invalid format: Insufficient arguments"},
		{input: "x 30", want: "❌ Invalid format: Task ID must be a number"},
		{input: "1 0", want: "❌ Invalid format: Time must be a positive number"},
		{input: "2 30", want: taskNotFoundText},
	}
	for _, tt := range tests {
		h.say(t, "/setreminder")
		assert.Equal(t, tt.want, h.say(t, tt.input), tt.input)
	}
	assert.Zero(t, h.scheduler.Armed())
}

type stubTasks struct {
	Tasks
	list func() ([]task.Task, error)
}

func (s stubTasks) List(context.Context, int64) ([]task.Task, error) {
	return s.list()
}

func newStubBot(tasks Tasks, sender *fakeSender) *Bot {
	return New(tasks, nil, conversation.NewSessionStore(time.Minute), sender, ict, logger.Discard())
}

func TestListFallsBackToRawDueTime(t *testing.T) {
	sender := &fakeSender{}
	b := newStubBot(stubTasks{list: func() ([]task.Task, error) {
		return []task.Task{{ID: 1, Position: 1, Text: "Walk dog", DueTime: "2024-13-45 99:00:00"}}, nil
	}}, sender)

	reply, err := b.Handle(context.Background(), 1, "/listtasks")
	require.NoError(t, err)
	assert.Equal(t, "📋 Your tasks:\n📌 1. Walk dog (Due: 2024-13-45 99:00:00)", reply)
}

func TestUnexpectedErrorsGetGenericReply(t *testing.T) {
	sender := &fakeSender{}
	b := newStubBot(stubTasks{list: func() ([]task.Task, error) {
		return nil, errors.New("database is locked")
	}}, sender)

	b.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: 1}, Text: "/listtasks"}})
	assert.Equal(t, genericErrorText, sender.last())
}

func TestPanicsAreRecovered(t *testing.T) {
	sender := &fakeSender{}
	b := newStubBot(stubTasks{list: func() ([]task.Task, error) {
		panic("boom")
	}}, sender)

	require.NotPanics(t, func() {
		b.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: 1}, Text: "/listtasks"}})
	})
	assert.Equal(t, genericErrorText, sender.last())
}

func TestSendFailureIsLoggedOnly(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	h := newHarness(t)
	h.bot.sender = sender

	require.NotPanics(t, func() {
		h.bot.HandleUpdate(context.Background(), telegram.Update{Message: &telegram.Message{Chat: telegram.Chat{ID: 1}, Text: "/help"}})
	})
	assert.Equal(t, helpText, sender.last())
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text      string
		name      string
		target    string
		args      []string
		isCommand bool
	}{
		{text: "/start", name: "start", args: []string{}, isCommand: true},
		{text: "  /DeleteTask@MyTaskBot 3 extra", name: "deletetask", target: "MyTaskBot", args: []string{"3", "extra"}, isCommand: true},
		{text: "Buy milk", isCommand: false},
		{text: "", isCommand: false},
	}
	for _, tt := range tests {
		name, target, args, ok := parseCommand(tt.text)
		assert.Equal(t, tt.isCommand, ok, tt.text)
		if ok {
			assert.Equal(t, tt.name, name)
			assert.Equal(t, tt.target, target)
			assert.Equal(t, tt.args, args)
		}
	}
}

func TestNonTextMessageKeepsPendingFlow(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, addTaskPrompt, h.say(t, "/addtask"))
	assert.Empty(t, h.say(t, ""), "a photo or sticker gets no reply")
	assert.Equal(t, taskAddedText("Buy milk"), h.say(t, "Buy milk"))
	assert.Equal(t, "📋 Your tasks:\n📌 1. Buy milk", h.say(t, "/listtasks"))
}

func TestCommandsForOtherBotsAreIgnored(t *testing.T) {
	h := newHarness(t, WithUsername("@MyTaskBot"))

	assert.Equal(t, addTaskPrompt, h.say(t, "/addtask@mytaskbot"))
	assert.Empty(t, h.say(t, "/listtasks@OtherBot"))
	assert.Equal(t, taskAddedText("Walk dog"), h.say(t, "Walk dog"), "the pending flow survives")
	assert.Equal(t, helpText, h.say(t, "/help@MyTaskBot"))
}

func TestCommandTargetsAcceptedWithoutUsername(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, helpText, h.say(t, "/help@AnyBot"))
}
