package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// API-boundary errors, mapped to HTTP statuses by the handler layer.
var (
	ErrNotFound   = errors.New("not found")
	ErrForbidden  = errors.New("forbidden")
	ErrValidation = errors.New("validation failed")
)

// MaxSnoozeMinutes bounds a snooze request to one week.
const MaxSnoozeMinutes = 7 * 24 * 60

// ReminderStore is the persistence surface the service needs.
// Satisfied by repository.ReminderRepository.
type ReminderStore interface {
	CreateReminder(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error)
	CreateReminders(ctx context.Context, reminders []*models.Reminder) error
	GetReminderByID(ctx context.Context, id primitive.ObjectID) (*models.Reminder, error)
	GetUserReminders(ctx context.Context, userID primitive.ObjectID, status string) ([]models.Reminder, error)
	SnoozeReminder(ctx context.Context, id primitive.ObjectID, until time.Time) error
	DismissReminder(ctx context.Context, id primitive.ObjectID, now time.Time) error
	SetInteraction(ctx context.Context, id primitive.ObjectID, field string, at time.Time) error
	CancelByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error)
}

// EventStore is the read-only view of the event collaborator.
// Satisfied by repository.EventRepository.
type EventStore interface {
	GetEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
}

// ReminderService encapsulates the business logic for reminders: materializing
// them from event lifecycle callbacks and serving the user-facing operations.
type ReminderService struct {
	store  ReminderStore
	events EventStore
}

// NewReminderService creates a new instance of ReminderService.
func NewReminderService(store ReminderStore, events EventStore) *ReminderService {
	return &ReminderService{
		store:  store,
		events: events,
	}
}

// HandleEventCreated materializes the default reminders for a new event.
// Returns how many reminders were created.
func (s *ReminderService) HandleEventCreated(ctx context.Context, event *models.Event) (int, error) {
	reminders := MaterializeReminders(event, time.Now())
	if len(reminders) == 0 {
		logger.Log.WithField("event_id", event.ID.Hex()).
			WithField("priority", event.Priority).
			Info("No reminders materialized for event")
		return 0, nil
	}

	if err := s.store.CreateReminders(ctx, reminders); err != nil {
		return 0, fmt.Errorf("failed to create reminders: %v", err)
	}

	logger.Log.WithField("event_id", event.ID.Hex()).
		WithField("count", len(reminders)).
		Info("Reminders materialized for event")
	return len(reminders), nil
}

// HandleEventDateChanged cancels the event's pending reminders and re-runs the
// default policy against the new date. Existing snapshots are discarded rather
// than patched: the replacement reminders carry a fresh snapshot.
func (s *ReminderService) HandleEventDateChanged(ctx context.Context, eventID primitive.ObjectID, newDateTime time.Time) error {
	event, err := s.events.GetEventByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("failed to load event %s: %w", eventID.Hex(), ErrNotFound)
	}

	if _, err := s.store.CancelByEvent(ctx, eventID); err != nil {
		return fmt.Errorf("failed to cancel reminders for event %s: %v", eventID.Hex(), err)
	}

	rescheduled := *event
	rescheduled.DateTime = newDateTime

	reminders := MaterializeReminders(&rescheduled, time.Now())
	if len(reminders) == 0 {
		return nil
	}
	if err := s.store.CreateReminders(ctx, reminders); err != nil {
		return fmt.Errorf("failed to re-create reminders: %v", err)
	}

	logger.Log.WithField("event_id", eventID.Hex()).
		WithField("count", len(reminders)).
		Info("Reminders re-materialized after date change")
	return nil
}

// HandleEventDeleted cancels all pending reminders of a deleted event.
func (s *ReminderService) HandleEventDeleted(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	cancelled, err := s.store.CancelByEvent(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders for event %s: %v", eventID.Hex(), err)
	}
	return cancelled, nil
}

// CreateCustomReminder creates a user-defined reminder with its own message.
func (s *ReminderService) CreateCustomReminder(ctx context.Context, userID string, eventID string, scheduledFor time.Time, message, channel string) (*models.Reminder, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", ErrValidation)
	}
	eventOID, err := primitive.ObjectIDFromHex(eventID)
	if err != nil {
		return nil, fmt.Errorf("invalid event ID: %w", ErrValidation)
	}

	if message == "" {
		return nil, fmt.Errorf("message is required: %w", ErrValidation)
	}
	if len(message) > models.MaxMessageLength {
		return nil, fmt.Errorf("message exceeds %d characters: %w", models.MaxMessageLength, ErrValidation)
	}
	if !scheduledFor.After(time.Now()) {
		return nil, fmt.Errorf("scheduled time must be in the future: %w", ErrValidation)
	}
	switch channel {
	case "":
		channel = models.ChannelBrowserPush
	case models.ChannelBrowserPush, models.ChannelEmail, models.ChannelBoth:
	default:
		return nil, fmt.Errorf("unknown channel %q: %w", channel, ErrValidation)
	}

	event, err := s.events.GetEventByID(ctx, eventOID)
	if err != nil {
		return nil, fmt.Errorf("event %s: %w", eventID, ErrNotFound)
	}
	if event.UserID != userOID {
		return nil, fmt.Errorf("event %s does not belong to user: %w", eventID, ErrForbidden)
	}

	reminder := &models.Reminder{
		EventID:      eventOID,
		UserID:       userOID,
		ReminderType: models.ReminderTypeCustom,
		ScheduledFor: scheduledFor,
		Message:      message,
		EventDetails: event.Snapshot(),
		Channel:      channel,
		Status:       models.StatusScheduled,
	}

	created, err := s.store.CreateReminder(ctx, reminder)
	if err != nil {
		return nil, fmt.Errorf("failed to create custom reminder: %v", err)
	}
	return created, nil
}

// GetUserReminders lists a user's reminders, optionally filtered by status.
func (s *ReminderService) GetUserReminders(ctx context.Context, userID string, status string) ([]models.Reminder, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", ErrValidation)
	}

	switch status {
	case "", models.StatusScheduled, models.StatusSent, models.StatusFailed, models.StatusSnoozed, models.StatusCancelled:
	default:
		return nil, fmt.Errorf("unknown status %q: %w", status, ErrValidation)
	}

	return s.store.GetUserReminders(ctx, userOID, status)
}

// SnoozeReminder pauses a scheduled reminder for the given number of minutes.
func (s *ReminderService) SnoozeReminder(ctx context.Context, userID, reminderID string, minutes int) (time.Time, error) {
	if minutes <= 0 || minutes > MaxSnoozeMinutes {
		return time.Time{}, fmt.Errorf("snooze minutes must be between 1 and %d: %w", MaxSnoozeMinutes, ErrValidation)
	}

	reminder, err := s.ownedReminder(ctx, userID, reminderID)
	if err != nil {
		return time.Time{}, err
	}

	until := time.Now().Add(time.Duration(minutes) * time.Minute)
	if err := s.store.SnoozeReminder(ctx, reminder.ID, until); err != nil {
		return time.Time{}, fmt.Errorf("failed to snooze reminder: %v", err)
	}
	return until, nil
}

// DismissReminder marks a reminder as acknowledged by the user.
func (s *ReminderService) DismissReminder(ctx context.Context, userID, reminderID string) error {
	reminder, err := s.ownedReminder(ctx, userID, reminderID)
	if err != nil {
		return err
	}

	if err := s.store.DismissReminder(ctx, reminder.ID, time.Now()); err != nil {
		return fmt.Errorf("failed to dismiss reminder: %v", err)
	}
	return nil
}

// RecordInteraction stamps one of the engagement timestamps. The action kind
// is resolved through an explicit switch; there is no dynamic field access.
func (s *ReminderService) RecordInteraction(ctx context.Context, userID, reminderID, action string) error {
	var field string
	switch action {
	case "opened":
		field = "interactions.opened_at"
	case "clicked":
		field = "interactions.clicked_at"
	case "dismissed":
		field = "interactions.dismissed_at"
	case "snoozed":
		field = "interactions.snoozed_at"
	default:
		return fmt.Errorf("unknown interaction %q: %w", action, ErrValidation)
	}

	reminder, err := s.ownedReminder(ctx, userID, reminderID)
	if err != nil {
		return err
	}

	if err := s.store.SetInteraction(ctx, reminder.ID, field, time.Now()); err != nil {
		return fmt.Errorf("failed to record interaction: %v", err)
	}

	logger.Log.WithField("reminder_id", reminderID).
		WithField("action", action).
		Info("Interaction recorded")
	return nil
}

// ownedReminder fetches a reminder and checks it belongs to the caller.
func (s *ReminderService) ownedReminder(ctx context.Context, userID, reminderID string) (*models.Reminder, error) {
	userOID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID: %w", ErrValidation)
	}
	reminderOID, err := primitive.ObjectIDFromHex(reminderID)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder ID: %w", ErrValidation)
	}

	reminder, err := s.store.GetReminderByID(ctx, reminderOID)
	if err != nil {
		return nil, fmt.Errorf("reminder %s: %w", reminderID, ErrNotFound)
	}
	if reminder.UserID != userOID {
		return nil, fmt.Errorf("reminder %s does not belong to user: %w", reminderID, ErrForbidden)
	}
	return reminder, nil
}
