package notify

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/edgard/shamebot/internal/database"
)

const dueLayout = "Mon Jan 2 15:04 MST"

// mention links the task owner by Telegram user id.
func mention(userID int64) string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">there</a>`, userID)
}

func pesterMessage(task *database.Task, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "hey %s! <b>%s</b> still isn't finished yet %s",
		mention(task.UserID), html.EscapeString(task.Title), html.EscapeString(">:c"))

	if due, ok := task.Due(); ok {
		fmt.Fprintf(&b, "\n\nyou have until %s. use your time wisely.", due.In(loc).Format(dueLayout))
	}
	return b.String()
}

func reminderMessage(task *database.Task) string {
	return fmt.Sprintf("hey %s! you have <i>one hour</i> to finish the following task:", mention(task.UserID))
}

func overdueMessage(task *database.Task) string {
	return fmt.Sprintf("your time to complete <b>%s</b> is up, %s. i am very disappointed in you.",
		html.EscapeString(task.Title), mention(task.UserID))
}

// summaryMessage renders the task card that follows reminder and overdue notices.
func summaryMessage(task *database.Task, appURL string) string {
	var b strings.Builder

	title := "<b>" + html.EscapeString(task.Title) + "</b>"
	if appURL != "" {
		link := strings.TrimRight(appURL, "/") + "/tasks/" + task.ID.String()
		title = fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(link), title)
	}
	b.WriteString(title)
	b.WriteString("\n")

	if task.Content.Valid && task.Content.String != "" {
		b.WriteString(html.EscapeString(task.Content.String))
		b.WriteString("\n")
	}

	checkbox := "⬜"
	if task.Checked {
		checkbox = "✅"
	}
	fmt.Fprintf(&b, "Finished: %s\n\nfor %s", checkbox, mention(task.UserID))
	return b.String()
}
