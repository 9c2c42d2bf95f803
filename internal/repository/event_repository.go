package repository

import (
	"context"
	"fmt"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// EventRepository handles read access to events. Event CRUD is owned by the
// event service; the reminder engine resolves due reminders against it and
// reacts to its lifecycle callbacks.
type EventRepository struct {
	collection *mongo.Collection
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *mongo.Database) *EventRepository {
	return &EventRepository{
		collection: db.Collection("events"),
	}
}

// GetEventByID fetches an event by its ID.
func (r *EventRepository) GetEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error) {
	var event models.Event
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&event)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", id.Hex()).Warn("Failed to find event by ID")
		return nil, fmt.Errorf("failed to find event by id: %v", err)
	}

	return &event, nil
}
