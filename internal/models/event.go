package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Event represents a tracked event in the EventMinder system. Event CRUD lives
// in its own service; the reminder engine only reads these fields and reacts
// to lifecycle callbacks (created / date changed / deleted).
type Event struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"user_id"`
	Title       string             `bson:"title" json:"title"`
	Description string             `bson:"description,omitempty" json:"description,omitempty"`
	DateTime    time.Time          `bson:"date_time" json:"date_time"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	Priority    int                `bson:"priority" json:"priority"` // 1 (lowest) .. 5 (highest)
	CustomNote  string             `bson:"custom_note,omitempty" json:"custom_note,omitempty"`
	CreatedAt   time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `bson:"updated_at" json:"updated_at"`
}

// Snapshot freezes the event fields a reminder message is built from.
func (e *Event) Snapshot() EventDetails {
	return EventDetails{
		Title:      e.Title,
		DateTime:   e.DateTime,
		Location:   e.Location,
		CustomNote: e.CustomNote,
	}
}
