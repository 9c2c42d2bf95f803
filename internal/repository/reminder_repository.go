package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrStaleReminder is returned when a guarded status transition matched no
// document, meaning another actor (user snooze/cancel, a concurrent tick)
// changed the reminder's status first.
var ErrStaleReminder = errors.New("reminder status changed concurrently")

// ReminderRepository struct handles database operations related to reminders
type ReminderRepository struct {
	collection *mongo.Collection
}

// NewReminderRepository creates a new instance of ReminderRepository
func NewReminderRepository(db *mongo.Database) *ReminderRepository {
	return &ReminderRepository{
		collection: db.Collection("reminders"),
	}
}

// CreateReminder inserts a single reminder
func (r *ReminderRepository) CreateReminder(ctx context.Context, reminder *models.Reminder) (*models.Reminder, error) {
	reminder.CreatedAt = time.Now()
	reminder.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, reminder)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to insert reminder")
		return nil, err
	}

	insertedID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		logger.Log.Error("Failed to cast inserted reminder ID")
		return nil, errors.New("failed to cast inserted ID")
	}
	reminder.ID = insertedID

	logger.Log.WithField("reminder_id", reminder.ID.Hex()).Info("Reminder created")
	return reminder, nil
}

// CreateReminders inserts a batch of reminders (event creation materializes several at once)
func (r *ReminderRepository) CreateReminders(ctx context.Context, reminders []*models.Reminder) error {
	if len(reminders) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(reminders))
	now := time.Now()
	for _, reminder := range reminders {
		reminder.CreatedAt = now
		reminder.UpdatedAt = now
		docs = append(docs, reminder)
	}

	if _, err := r.collection.InsertMany(ctx, docs); err != nil {
		logger.Log.WithError(err).Error("Failed to insert reminder batch")
		return err
	}

	logger.Log.WithField("count", len(reminders)).Info("Reminder batch created")
	return nil
}

// GetReminderByID fetches a reminder by its ID
func (r *ReminderRepository) GetReminderByID(ctx context.Context, id primitive.ObjectID) (*models.Reminder, error) {
	var reminder models.Reminder
	err := r.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&reminder)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Warn("Failed to find reminder by ID")
		return nil, err
	}
	return &reminder, nil
}

// GetUserReminders returns a user's reminders, optionally filtered by status
func (r *ReminderRepository) GetUserReminders(ctx context.Context, userID primitive.ObjectID, status string) ([]models.Reminder, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	}
	opts := options.Find().SetSort(bson.D{{Key: "scheduled_for", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch user reminders")
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		logger.Log.WithError(err).Error("Failed to decode user reminders")
		return nil, err
	}
	return reminders, nil
}

// FindDueReminders returns scheduled reminders due within the lookahead window.
// There is no lower bound on scheduled_for: a reminder that failed on an
// earlier tick stays due until it is sent, failed permanently or cancelled.
// next_attempt_at gates retries so failures back off between ticks.
func (r *ReminderRepository) FindDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]models.Reminder, error) {
	filter := bson.M{
		"status":        models.StatusScheduled,
		"scheduled_for": bson.M{"$lte": now.Add(lookahead)},
		"$or": bson.A{
			bson.M{"next_attempt_at": bson.M{"$exists": false}},
			bson.M{"next_attempt_at": nil},
			bson.M{"next_attempt_at": bson.M{"$lte": now}},
		},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query due reminders")
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		logger.Log.WithError(err).Error("Failed to decode due reminders")
		return nil, err
	}
	return reminders, nil
}

// FindSnoozedDue returns snoozed reminders whose snooze window has elapsed
func (r *ReminderRepository) FindSnoozedDue(ctx context.Context, now time.Time) ([]models.Reminder, error) {
	filter := bson.M{
		"status":        models.StatusSnoozed,
		"snoozed_until": bson.M{"$lte": now},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query snoozed reminders")
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		logger.Log.WithError(err).Error("Failed to decode snoozed reminders")
		return nil, err
	}
	return reminders, nil
}

// ReArmReminder moves an elapsed snoozed reminder back into the delivery path.
// Guarded by status == snoozed.
func (r *ReminderRepository) ReArmReminder(ctx context.Context, id primitive.ObjectID, scheduledFor time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusSnoozed},
		bson.M{
			"$set": bson.M{
				"status":        models.StatusScheduled,
				"scheduled_for": scheduledFor,
				"updated_at":    time.Now(),
			},
			"$unset": bson.M{"snoozed_until": "", "next_attempt_at": ""},
		},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to re-arm snoozed reminder")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}

	logger.Log.WithField("reminder_id", id.Hex()).Info("Snoozed reminder re-armed")
	return nil
}

// MarkSent transitions a reminder to sent. Guarded by status == scheduled so a
// concurrent snooze or cancellation cannot be overwritten by a stale delivery.
func (r *ReminderRepository) MarkSent(ctx context.Context, id primitive.ObjectID, sentAt time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusScheduled},
		bson.M{"$set": bson.M{
			"status":     models.StatusSent,
			"sent_at":    sentAt,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to mark reminder sent")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}
	return nil
}

// RecordFailure stores a failed delivery attempt. When final is true the
// reminder is marked failed; otherwise it stays scheduled and becomes eligible
// again once nextAttemptAt passes. Guarded by status == scheduled.
func (r *ReminderRepository) RecordFailure(ctx context.Context, id primitive.ObjectID, attempts int, lastError string, nextAttemptAt time.Time, final bool) error {
	set := bson.M{
		"attempts":   attempts,
		"last_error": lastError,
		"updated_at": time.Now(),
	}
	if final {
		set["status"] = models.StatusFailed
	} else {
		set["next_attempt_at"] = nextAttemptAt
	}

	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusScheduled},
		bson.M{"$set": set},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to record delivery failure")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}
	return nil
}

// SnoozeReminder pauses delivery until the given time. Guarded by status == scheduled.
func (r *ReminderRepository) SnoozeReminder(ctx context.Context, id primitive.ObjectID, until time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusScheduled},
		bson.M{"$set": bson.M{
			"status":                  models.StatusSnoozed,
			"snoozed_until":           until,
			"interactions.snoozed_at": time.Now(),
			"updated_at":              time.Now(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to snooze reminder")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}

	logger.Log.WithField("reminder_id", id.Hex()).Info("Reminder snoozed")
	return nil
}

// DismissReminder marks a reminder as sent on explicit user acknowledgment.
// sent_at is stamped to preserve the sent_at <=> status == sent invariant;
// interactions.dismissed_at records that this was an acknowledgment rather
// than a delivery.
func (r *ReminderRepository) DismissReminder(ctx context.Context, id primitive.ObjectID, now time.Time) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": bson.M{"$in": bson.A{models.StatusScheduled, models.StatusSnoozed}}},
		bson.M{"$set": bson.M{
			"status":                    models.StatusSent,
			"sent_at":                   now,
			"interactions.dismissed_at": now,
			"updated_at":                now,
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to dismiss reminder")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}
	return nil
}

// SetInteraction stamps a single interaction field (e.g. "interactions.opened_at")
func (r *ReminderRepository) SetInteraction(ctx context.Context, id primitive.ObjectID, field string, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: at, "updated_at": time.Now()}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to record interaction")
		return err
	}
	return nil
}

// RescheduleReminder rewrites the delivery time of a pending reminder together
// with the provenance of the decision. Guarded by status == scheduled.
func (r *ReminderRepository) RescheduleReminder(ctx context.Context, id primitive.ObjectID, scheduledFor time.Time, reason string, confidence float64) error {
	result, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": models.StatusScheduled},
		bson.M{"$set": bson.M{
			"scheduled_for":           scheduledFor,
			"optimization_reason":     reason,
			"optimization_confidence": confidence,
			"updated_at":              time.Now(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("reminder_id", id.Hex()).Error("Failed to reschedule reminder")
		return err
	}
	if result.ModifiedCount == 0 {
		return ErrStaleReminder
	}

	logger.Log.WithField("reminder_id", id.Hex()).
		WithField("scheduled_for", scheduledFor).
		Info("Reminder rescheduled")
	return nil
}

// CancelByEvent cancels all pending (scheduled or snoozed) reminders of an event
func (r *ReminderRepository) CancelByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"event_id": eventID,
			"status":   bson.M{"$in": bson.A{models.StatusScheduled, models.StatusSnoozed}},
		},
		bson.M{"$set": bson.M{
			"status":     models.StatusCancelled,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).WithField("event_id", eventID.Hex()).Error("Failed to cancel event reminders")
		return 0, err
	}

	logger.Log.WithField("event_id", eventID.Hex()).
		WithField("cancelled", result.ModifiedCount).
		Info("Event reminders cancelled")
	return result.ModifiedCount, nil
}

// CancelStale cancels scheduled reminders whose delivery time is long past.
// These are orphans the scheduler kept skipping; the sweep stops them from
// accumulating in the due query.
func (r *ReminderRepository) CancelStale(ctx context.Context, olderThan time.Time) (int64, error) {
	result, err := r.collection.UpdateMany(ctx,
		bson.M{
			"status":        models.StatusScheduled,
			"scheduled_for": bson.M{"$lt": olderThan},
		},
		bson.M{"$set": bson.M{
			"status":     models.StatusCancelled,
			"last_error": "cancelled by stale sweep",
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to cancel stale reminders")
		return 0, err
	}
	return result.ModifiedCount, nil
}

// FindRecentDelivered returns the user's most recent sent or snoozed reminders,
// newest first, used as the optimizer's training history.
func (r *ReminderRepository) FindRecentDelivered(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Reminder, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  bson.M{"$in": bson.A{models.StatusSent, models.StatusSnoozed}},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "scheduled_for", Value: -1}}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch delivery history")
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		logger.Log.WithError(err).Error("Failed to decode delivery history")
		return nil, err
	}
	return reminders, nil
}

// FindUpcomingScheduled returns a user's scheduled reminders due within the window
func (r *ReminderRepository) FindUpcomingScheduled(ctx context.Context, userID primitive.ObjectID, now time.Time, within time.Duration) ([]models.Reminder, error) {
	filter := bson.M{
		"user_id":       userID,
		"status":        models.StatusScheduled,
		"scheduled_for": bson.M{"$gte": now, "$lte": now.Add(within)},
	}

	cursor, err := r.collection.Find(ctx, filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch upcoming reminders")
		return nil, err
	}
	defer cursor.Close(ctx)

	var reminders []models.Reminder
	if err := cursor.All(ctx, &reminders); err != nil {
		logger.Log.WithError(err).Error("Failed to decode upcoming reminders")
		return nil, err
	}
	return reminders, nil
}

// FindUsersWithUpcoming returns the distinct users that have scheduled
// reminders inside the window, for the nightly optimization batch.
func (r *ReminderRepository) FindUsersWithUpcoming(ctx context.Context, now time.Time, within time.Duration) ([]primitive.ObjectID, error) {
	filter := bson.M{
		"status":        models.StatusScheduled,
		"scheduled_for": bson.M{"$gte": now, "$lte": now.Add(within)},
	}

	values, err := r.collection.Distinct(ctx, "user_id", filter)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to list users with upcoming reminders")
		return nil, err
	}

	userIDs := make([]primitive.ObjectID, 0, len(values))
	for _, v := range values {
		if id, ok := v.(primitive.ObjectID); ok {
			userIDs = append(userIDs, id)
		}
	}
	return userIDs, nil
}
