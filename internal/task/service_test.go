package task

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/eternisai/taskbot/internal/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	subject string
	event   any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{subject: subject, event: event})
	return p.err
}

func TestServicePublishesTaskEvents(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc := NewService(NewMemoryStore(), pub, log)

	created, err := svc.Create(ctx, 5, "Buy milk")
	require.NoError(t, err)
	_, err = svc.Delete(ctx, 5, 1)
	require.NoError(t, err)

	require.Len(t, pub.events, 2)
	assert.Equal(t, events.SubjectTaskCreated, pub.events[0].subject)
	assert.Equal(t, events.SubjectTaskDeleted, pub.events[1].subject)

	ev, ok := pub.events[1].event.(events.TaskEvent)
	require.True(t, ok)
	assert.Equal(t, created.ID, ev.TaskID)
	assert.Equal(t, int64(5), ev.ChatID)
}

func TestServiceIgnoresPublishFailures(t *testing.T) {
	svc := NewService(NewMemoryStore(), &recordingPublisher{err: errors.New("nats down")}, log)

	_, err := svc.Create(context.Background(), 1, "Buy milk")
	assert.NoError(t, err)
}

func TestServiceDeleteRunsHooks(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil, log)

	var got []Task
	svc.OnDelete(func(_ context.Context, deleted Task) error {
		got = append(got, deleted)
		return nil
	})
	svc.OnDelete(func(context.Context, Task) error {
		return errors.New("hook failed")
	})

	milk, err := svc.Create(ctx, 1, "Buy milk")
	require.NoError(t, err)
	_, err = svc.Create(ctx, 1, "Walk dog")
	require.NoError(t, err)

	deleted, err := svc.Delete(ctx, 1, 1)
	require.NoError(t, err, "a failing hook does not undo the delete")
	assert.Equal(t, milk.ID, deleted.ID)

	require.Len(t, got, 1)
	assert.Equal(t, milk.ID, got[0].ID)

	_, err = svc.Delete(ctx, 1, 9)
	require.Error(t, err)
	assert.Len(t, got, 1, "hooks do not run when nothing was deleted")
}

func TestServiceSetDueTimeRunsAfterFunc(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil, log)
	_, err := svc.Create(ctx, 1, "Walk dog")
	require.NoError(t, err)

	due := time.Now().Add(30 * time.Minute)
	var seen Task
	updated, err := svc.SetDueTime(ctx, 1, 1, due, func(_ context.Context, t Task) error {
		seen = t
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, updated, seen)
	assert.Equal(t, FormatDueTime(due), updated.DueTime)

	boom := errors.New("arm failed")
	_, err = svc.SetDueTime(ctx, 1, 1, due, func(context.Context, Task) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestServiceSerializesPerChat(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryStore(), nil, log)
	_, err := svc.Create(ctx, 1, "Walk dog")
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_, _ = svc.SetDueTime(ctx, 1, 1, time.Now(), func(context.Context, Task) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	deleted := make(chan struct{})
	go func() {
		_, _ = svc.Delete(ctx, 1, 1)
		close(deleted)
	}()

	select {
	case <-deleted:
		t.Fatal("delete ran while the chat was locked")
	case <-time.After(50 * time.Millisecond):
	}

	// Other chats are not blocked.
	_, err = svc.Create(ctx, 2, "other chat")
	require.NoError(t, err)

	close(release)
	<-done
	select {
	case <-deleted:
	case <-time.After(time.Second):
		t.Fatal("delete did not complete after unlock")
	}
}
