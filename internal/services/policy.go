package services

import (
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
)

// Lead-time offsets applied ahead of an event, cumulative by priority.
var (
	offsetTwoHours  = 2 * time.Hour
	offsetOneDay    = 24 * time.Hour
	offsetThreeDays = 72 * time.Hour
	offsetOneWeek   = 7 * 24 * time.Hour
)

// leadTimeOffsets returns the reminder offsets for an event priority (1-5).
// Low-priority events (1-2) get no automatic reminders.
func leadTimeOffsets(priority int) []time.Duration {
	var offsets []time.Duration
	if priority >= 3 {
		offsets = append(offsets, offsetOneDay, offsetTwoHours)
	}
	if priority >= 4 {
		offsets = append(offsets, offsetThreeDays)
	}
	if priority >= 5 {
		offsets = append(offsets, offsetOneWeek)
	}
	return offsets
}

// MaterializeReminders maps an event to its default pre-event reminders.
// Offsets that would land in the past at creation time are discarded, so a
// reminder is never created already due.
func MaterializeReminders(event *models.Event, now time.Time) []*models.Reminder {
	var reminders []*models.Reminder
	for _, offset := range leadTimeOffsets(event.Priority) {
		scheduledFor := event.DateTime.Add(-offset)
		if !scheduledFor.After(now) {
			continue
		}

		reminders = append(reminders, &models.Reminder{
			EventID:      event.ID,
			UserID:       event.UserID,
			ReminderType: models.ReminderTypePreEvent,
			ScheduledFor: scheduledFor,
			EventDetails: event.Snapshot(),
			Channel:      models.ChannelBrowserPush,
			Status:       models.StatusScheduled,
		})
	}
	return reminders
}
