package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// NotificationPrefs holds the user's delivery preferences. Channel is one of
// the Channel* constants; Timezone is an IANA name used to render event times.
type NotificationPrefs struct {
	Channel  string `bson:"channel" json:"channel"`
	Timezone string `bson:"timezone,omitempty" json:"timezone,omitempty"`
}

// User represents a user account in the EventMinder system. Account management
// (registration, login, profile) lives in its own service; the reminder engine
// only reads the fields needed to address and render notifications.
type User struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username          string             `bson:"username" json:"username"`
	Email             string             `bson:"email" json:"email"`
	Role              string             `bson:"role" json:"role"`
	NotificationPrefs NotificationPrefs  `bson:"notification_prefs,omitempty" json:"notification_prefs,omitempty"`
	CreatedAt         time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updated_at"`
}
