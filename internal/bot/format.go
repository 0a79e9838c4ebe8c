package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/eternisai/taskbot/internal/logger"
	"github.com/eternisai/taskbot/internal/task"
)

// formatDueTime renders a stored UTC due time in loc. On a conversion
// failure it returns the raw stored value together with the error.
func formatDueTime(t task.Task, loc *time.Location) (string, error) {
	due, err := t.DueAt()
	if err != nil {
		return t.DueTime, err
	}
	return due.In(loc).Format(dueTimeDisplayFmt), nil
}

// formatTaskList renders the /listtasks reply.
func formatTaskList(tasks []task.Task, loc *time.Location, log *logger.Logger) string {
	if len(tasks) == 0 {
		return noTasksText
	}

	var b strings.Builder
	b.WriteString(taskListHeader)
	for _, t := range tasks {
		fmt.Fprintf(&b, "\n📌 %d. %s", t.Position, t.Text)
		if !t.HasDueTime() {
			continue
		}
		due, err := formatDueTime(t, loc)
		if err != nil {
			log.Error("failed to convert due time",
				slog.Int64("task_id", t.ID),
				slog.String("error", err.Error()))
		}
		fmt.Fprintf(&b, " (Due: %s)", due)
	}
	return b.String()
}
