package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Reminder statuses. A reminder moves from "scheduled" to exactly one of the
// terminal states; "snoozed" is re-armed by the scheduler once snoozed_until passes.
const (
	StatusScheduled = "scheduled"
	StatusSent      = "sent"
	StatusFailed    = "failed"
	StatusSnoozed   = "snoozed"
	StatusCancelled = "cancelled"
)

// Reminder types.
const (
	ReminderTypePreEvent = "pre_event"
	ReminderTypeCustom   = "custom"
)

// Delivery channels.
const (
	ChannelBrowserPush = "browser_push"
	ChannelEmail       = "email"
	ChannelBoth        = "both"
)

// MaxDeliveryAttempts caps how many times a failed delivery is retried.
const MaxDeliveryAttempts = 3

// MaxMessageLength bounds a user-supplied reminder message.
const MaxMessageLength = 500

// EventDetails is a snapshot of the event taken when the reminder is created.
// It is never re-derived from the live event, so a pending reminder keeps its
// original wording even if the event is edited afterwards.
type EventDetails struct {
	Title      string    `bson:"title" json:"title"`
	DateTime   time.Time `bson:"date_time" json:"date_time"`
	Location   string    `bson:"location,omitempty" json:"location,omitempty"`
	CustomNote string    `bson:"custom_note,omitempty" json:"custom_note,omitempty"`
}

// Interactions records when the user engaged with a delivered reminder.
// Each action has its own field; the optimizer treats any set field as engagement.
type Interactions struct {
	OpenedAt    *time.Time `bson:"opened_at,omitempty" json:"opened_at,omitempty"`
	ClickedAt   *time.Time `bson:"clicked_at,omitempty" json:"clicked_at,omitempty"`
	DismissedAt *time.Time `bson:"dismissed_at,omitempty" json:"dismissed_at,omitempty"`
	SnoozedAt   *time.Time `bson:"snoozed_at,omitempty" json:"snoozed_at,omitempty"`
}

// Engaged reports whether any interaction was recorded.
func (i Interactions) Engaged() bool {
	return i.OpenedAt != nil || i.ClickedAt != nil || i.DismissedAt != nil || i.SnoozedAt != nil
}

// Reminder is a single timed notification derived from an event.
type Reminder struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventID      primitive.ObjectID `bson:"event_id" json:"event_id"`
	UserID       primitive.ObjectID `bson:"user_id" json:"user_id"`
	ReminderType string             `bson:"reminder_type" json:"reminder_type"`
	ScheduledFor time.Time          `bson:"scheduled_for" json:"scheduled_for"`
	Message      string             `bson:"message,omitempty" json:"message,omitempty"`
	EventDetails EventDetails       `bson:"event_details" json:"event_details"`
	Channel      string             `bson:"channel" json:"channel"`
	Status       string             `bson:"status" json:"status"`
	SentAt       *time.Time         `bson:"sent_at,omitempty" json:"sent_at,omitempty"`
	SnoozedUntil *time.Time         `bson:"snoozed_until,omitempty" json:"snoozed_until,omitempty"`
	Attempts     int                `bson:"attempts" json:"attempts"`
	// NextAttemptAt gates retries so repeated failures back off instead of
	// firing on every tick inside the lookahead window.
	NextAttemptAt          *time.Time   `bson:"next_attempt_at,omitempty" json:"next_attempt_at,omitempty"`
	LastError              string       `bson:"last_error,omitempty" json:"last_error,omitempty"`
	OptimizationReason     string       `bson:"optimization_reason,omitempty" json:"optimization_reason,omitempty"`
	OptimizationConfidence float64      `bson:"optimization_confidence,omitempty" json:"optimization_confidence,omitempty"`
	Interactions           Interactions `bson:"interactions,omitempty" json:"interactions,omitempty"`
	CreatedAt              time.Time    `bson:"created_at" json:"created_at"`
	UpdatedAt              time.Time    `bson:"updated_at" json:"updated_at"`
}
