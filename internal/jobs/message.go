package jobs

import (
	"fmt"
	"strings"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
)

// Notification is a rendered reminder ready for a transport.
type Notification struct {
	Title    string
	Body     string
	Reminder *models.Reminder
}

// BuildNotification renders a reminder into a deliverable message using the
// event snapshot taken at creation time, never the live event.
func BuildNotification(reminder *models.Reminder, now time.Time) *Notification {
	details := reminder.EventDetails

	var b strings.Builder
	if reminder.Message != "" {
		b.WriteString(reminder.Message)
	} else {
		fmt.Fprintf(&b, "Your event %q starts %s.", details.Title, timeUntilPhrase(now, details.DateTime))
	}
	if details.Location != "" {
		fmt.Fprintf(&b, " Location: %s.", details.Location)
	}
	if details.CustomNote != "" {
		fmt.Fprintf(&b, " Note: %s", details.CustomNote)
	}

	return &Notification{
		Title:    "Reminder: " + details.Title,
		Body:     b.String(),
		Reminder: reminder,
	}
}

// timeUntilPhrase renders the gap between now and the event start as a short
// human-readable phrase ("in 2 hours", "tomorrow").
func timeUntilPhrase(now, eventAt time.Time) string {
	until := eventAt.Sub(now)

	switch {
	case until <= 0:
		return "now"
	case until < time.Minute:
		return "in less than a minute"
	case until < time.Hour:
		minutes := int(until.Round(time.Minute).Minutes())
		if minutes == 1 {
			return "in 1 minute"
		}
		return fmt.Sprintf("in %d minutes", minutes)
	case until < 24*time.Hour:
		hours := int(until.Round(time.Hour).Hours())
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	case isTomorrow(now, eventAt):
		return "tomorrow"
	case until < 7*24*time.Hour:
		return fmt.Sprintf("in %d days", int(until.Hours()/24))
	default:
		weeks := int(until.Hours() / (24 * 7))
		if weeks == 1 {
			return "in 1 week"
		}
		return fmt.Sprintf("in %d weeks", weeks)
	}
}

func isTomorrow(now, eventAt time.Time) bool {
	next := now.AddDate(0, 0, 1)
	return eventAt.Year() == next.Year() && eventAt.YearDay() == next.YearDay()
}
