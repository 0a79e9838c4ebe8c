package bot

import "fmt"

const (
	welcomeText = "🌟 Welcome to your Personal Assistant Bot! 🌟\n\n" +
		"Here's what I can do:\n" +
		"/addtask - Add a new task to your to-do list\n" +
		"/listtasks - List all your tasks\n" +
		"/deletetask - Delete a task by its ID\n" +
		"/setreminder - Set a reminder for a task\n" +
		"/cancel - Cancel the current operation\n" +
		"/help - Show this help message"

	helpText = "🤖 Here's how to use me:\n\n" +
		"/start - Start the bot\n" +
		"/addtask - Add a new task\n" +
		"/listtasks - List all tasks\n" +
		"/deletetask <task_id> - Delete a task\n" +
		"/setreminder - Set a reminder for a task\n" +
		"/cancel - Cancel the current operation\n" +
		"/help - Show this help message"

	addTaskPrompt     = "Please enter the task you want to add:"
	emptyTaskText     = "❌ Task cannot be empty. Please try again."
	noTasksText       = "🎉 You have no tasks!"
	taskListHeader    = "📋 Your tasks:"
	taskNotFoundText  = "❌ Task not found."
	deleteUsageText   = "❌ Usage: /deletetask <task_id>"
	setReminderPrompt = "Please enter the task ID and the reminder time in the format:\n" +
		"<task_id> <time_in_minutes>\n\n" +
		"Example: 1 30 (reminds you in 30 minutes for task ID 1)"
	cancelledText     = "❎ Operation cancelled."
	nothingToCancel   = "There is nothing to cancel."
	genericErrorText  = "❌ An error occurred. Please try again later."
	dueTimeDisplayFmt = "2006-01-02 15:04:05 MST"
)

func taskAddedText(text string) string {
	return "✅ Task added: " + text
}

func taskDeletedText(position int) string {
	return fmt.Sprintf("✅ Task %d deleted and IDs reorganized.", position)
}

func reminderSetText(position, minutes int) string {
	return fmt.Sprintf("⏰ Reminder set for task %d in %d minutes.", position, minutes)
}

func invalidFormatText(reason string) string {
	return "❌ Invalid format: " + reason
}
