package conversation

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/eternisai/taskbot/internal/errors"
	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(ttl time.Duration) (*SessionStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	s := NewSessionStore(ttl)
	s.now = clock.Now
	return s, clock
}

func TestSessionBeginTake(t *testing.T) {
	s, _ := newTestStore(time.Minute)

	_, ok := s.Get(1)
	assert.False(t, ok)

	s.Begin(1, FlowAddTask)
	session, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, FlowAddTask, session.Flow)
	assert.Equal(t, StepAwaitingInput, session.Step)

	_, ok = s.Get(2)
	assert.False(t, ok, "sessions are per chat")

	s.Begin(1, FlowSetReminder)
	session, ok = s.Take(1)
	require.True(t, ok)
	assert.Equal(t, FlowSetReminder, session.Flow, "a new flow replaces the old one")

	_, ok = s.Take(1)
	assert.False(t, ok, "a session is consumed once")
}

func TestSessionExpiry(t *testing.T) {
	s, clock := newTestStore(10 * time.Minute)

	s.Begin(1, FlowAddTask)
	s.Begin(2, FlowAddTask)

	clock.Advance(9 * time.Minute)
	_, ok := s.Get(1)
	assert.True(t, ok)

	clock.Advance(time.Minute)
	_, ok = s.Take(1)
	assert.False(t, ok, "expired sessions are treated as absent")

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Sweep())
	assert.Zero(t, s.Len())
	assert.Zero(t, testutil.ToFloat64(metrics.ActiveSessions))
}

func TestSweeperRejectsBadSpec(t *testing.T) {
	_, err := NewSweeper(NewSessionStore(time.Minute), "every now and then", logger.Discard())
	assert.Error(t, err)
}

func TestSweeperEvicts(t *testing.T) {
	s := NewSessionStore(time.Millisecond)
	s.Begin(1, FlowAddTask)

	sweeper, err := NewSweeper(s, "@every 1s", logger.Discard())
	require.NoError(t, err)
	sweeper.Start()
	defer sweeper.Stop(context.Background())

	assert.Eventually(t, func() bool { return s.Len() == 0 }, 5*time.Second, 50*time.Millisecond)
}

func TestParseReminderInput(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    ReminderInput
		wantErr string
	}{
		{name: "valid", input: "1 30", want: ReminderInput{Position: 1, Minutes: 30}},
		{name: "surrounding whitespace", input: "  2\t 5 \n", want: ReminderInput{Position: 2, Minutes: 5}},
		{name: "extra fields ignored", input: "3 10 please", want: ReminderInput{Position: 3, Minutes: 10}},
		{name: "empty", input: "", wantErr: "Insufficient arguments"},
		{name: "one field", input: "1", wantErr: "Insufficient arguments"},
		{name: "non numeric id", input: "one 30", wantErr: "Task ID must be a number"},
		{name: "non numeric minutes", input: "1 soon", wantErr: "Time must be a whole number of minutes"},
		{name: "fractional minutes", input: "1 1.5", wantErr: "Time must be a whole number of minutes"},
		{name: "zero minutes", input: "1 0", wantErr: "Time must be a positive number"},
		{name: "negative minutes", input: "1 -5", wantErr: "Time must be a positive number"},
		{name: "too far away", input: "1 99999999", wantErr: "at most"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseReminderInput(tt.input)
			if tt.wantErr != "" {
				var validationErr *apperrors.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReminderInputDelay(t *testing.T) {
	assert.Equal(t, 30*time.Minute, ReminderInput{Minutes: 30}.Delay())
}
