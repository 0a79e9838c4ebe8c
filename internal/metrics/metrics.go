package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CommandsTotal counts handled chat commands by name.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskbot_commands_total",
		Help: "Chat commands handled, by command.",
	}, []string{"command"})

	RemindersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbot_reminders_scheduled_total",
		Help: "Reminders persisted and armed.",
	})

	RemindersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbot_reminders_fired_total",
		Help: "Reminders that reached their fire time and were claimed for delivery.",
	})

	ReminderDeliveryFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbot_reminder_delivery_failures_total",
		Help: "Reminder notifications the chat transport failed to deliver.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "taskbot_active_sessions",
		Help: "Conversation sessions currently awaiting input.",
	})

	TasksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbot_tasks_created_total",
		Help: "Tasks created.",
	})

	TasksDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "taskbot_tasks_deleted_total",
		Help: "Tasks deleted.",
	})
)
