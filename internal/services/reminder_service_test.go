package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeReminderStore struct {
	reminders map[primitive.ObjectID]*models.Reminder
}

func newFakeReminderStore() *fakeReminderStore {
	return &fakeReminderStore{reminders: make(map[primitive.ObjectID]*models.Reminder)}
}

func (s *fakeReminderStore) CreateReminder(_ context.Context, r *models.Reminder) (*models.Reminder, error) {
	r.ID = primitive.NewObjectID()
	s.reminders[r.ID] = r
	return r, nil
}

func (s *fakeReminderStore) CreateReminders(_ context.Context, reminders []*models.Reminder) error {
	for _, r := range reminders {
		r.ID = primitive.NewObjectID()
		s.reminders[r.ID] = r
	}
	return nil
}

func (s *fakeReminderStore) GetReminderByID(_ context.Context, id primitive.ObjectID) (*models.Reminder, error) {
	if r, ok := s.reminders[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, fmt.Errorf("reminder not found")
}

func (s *fakeReminderStore) GetUserReminders(_ context.Context, userID primitive.ObjectID, status string) ([]models.Reminder, error) {
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.UserID != userID {
			continue
		}
		if status != "" && r.Status != status {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (s *fakeReminderStore) SnoozeReminder(_ context.Context, id primitive.ObjectID, until time.Time) error {
	r, ok := s.reminders[id]
	if !ok || r.Status != models.StatusScheduled {
		return repository.ErrStaleReminder
	}
	r.Status = models.StatusSnoozed
	r.SnoozedUntil = &until
	return nil
}

func (s *fakeReminderStore) DismissReminder(_ context.Context, id primitive.ObjectID, now time.Time) error {
	r, ok := s.reminders[id]
	if !ok || (r.Status != models.StatusScheduled && r.Status != models.StatusSnoozed) {
		return repository.ErrStaleReminder
	}
	r.Status = models.StatusSent
	r.SentAt = &now
	r.Interactions.DismissedAt = &now
	return nil
}

func (s *fakeReminderStore) SetInteraction(_ context.Context, id primitive.ObjectID, field string, at time.Time) error {
	r, ok := s.reminders[id]
	if !ok {
		return fmt.Errorf("reminder not found")
	}
	switch field {
	case "interactions.opened_at":
		r.Interactions.OpenedAt = &at
	case "interactions.clicked_at":
		r.Interactions.ClickedAt = &at
	case "interactions.dismissed_at":
		r.Interactions.DismissedAt = &at
	case "interactions.snoozed_at":
		r.Interactions.SnoozedAt = &at
	default:
		return fmt.Errorf("unknown field %s", field)
	}
	return nil
}

func (s *fakeReminderStore) CancelByEvent(_ context.Context, eventID primitive.ObjectID) (int64, error) {
	var n int64
	for _, r := range s.reminders {
		if r.EventID != eventID {
			continue
		}
		if r.Status == models.StatusScheduled || r.Status == models.StatusSnoozed {
			r.Status = models.StatusCancelled
			n++
		}
	}
	return n, nil
}

type fakeEventStore struct {
	events map[primitive.ObjectID]*models.Event
}

func (s *fakeEventStore) GetEventByID(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	if e, ok := s.events[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("event not found")
}

func newTestService() (*ReminderService, *fakeReminderStore, *fakeEventStore) {
	store := newFakeReminderStore()
	events := &fakeEventStore{events: make(map[primitive.ObjectID]*models.Event)}
	return NewReminderService(store, events), store, events
}

func futureEvent(priority int) *models.Event {
	return &models.Event{
		ID:       primitive.NewObjectID(),
		UserID:   primitive.NewObjectID(),
		Title:    "Flight to Astana",
		DateTime: time.Now().Add(30 * 24 * time.Hour),
		Priority: priority,
	}
}

func TestHandleEventCreated(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(5)

	count, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, 4, count)
	assert.Len(t, store.reminders, 4)

	low := futureEvent(1)
	count, err = svc.HandleEventCreated(context.Background(), low)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestHandleEventDeleted_LeavesSentAlone(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(4)

	_, err := svc.HandleEventCreated(context.Background(), event) // 3 scheduled
	require.NoError(t, err)

	// Mark one as already sent.
	var sentID primitive.ObjectID
	for id := range store.reminders {
		sentID = id
		break
	}
	now := time.Now()
	store.reminders[sentID].Status = models.StatusSent
	store.reminders[sentID].SentAt = &now

	cancelled, err := svc.HandleEventDeleted(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)

	assert.Equal(t, models.StatusSent, store.reminders[sentID].Status)
	for id, r := range store.reminders {
		if id == sentID {
			continue
		}
		assert.Equal(t, models.StatusCancelled, r.Status)
	}
}

func TestHandleEventDateChanged_ReplacesReminders(t *testing.T) {
	svc, store, events := newTestService()
	event := futureEvent(3)
	events.events[event.ID] = event

	_, err := svc.HandleEventCreated(context.Background(), event) // 2 scheduled
	require.NoError(t, err)

	newDate := event.DateTime.Add(10 * 24 * time.Hour)
	require.NoError(t, svc.HandleEventDateChanged(context.Background(), event.ID, newDate))

	var cancelled, scheduled int
	for _, r := range store.reminders {
		switch r.Status {
		case models.StatusCancelled:
			cancelled++
		case models.StatusScheduled:
			scheduled++
			assert.Equal(t, newDate, r.EventDetails.DateTime, "new reminders must snapshot the new date")
		}
	}
	assert.Equal(t, 2, cancelled)
	assert.Equal(t, 2, scheduled)
}

func TestSnoozeReminder(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(3)
	_, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)

	var reminderID primitive.ObjectID
	for id := range store.reminders {
		reminderID = id
		break
	}

	until, err := svc.SnoozeReminder(context.Background(), event.UserID.Hex(), reminderID.Hex(), 30)
	require.NoError(t, err)

	assert.Equal(t, models.StatusSnoozed, store.reminders[reminderID].Status)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), until, 5*time.Second)
}

func TestSnoozeReminder_Validation(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SnoozeReminder(context.Background(), primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex(), 0)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.SnoozeReminder(context.Background(), primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex(), MaxSnoozeMinutes+1)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSnoozeReminder_WrongOwner(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(3)
	_, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)

	var reminderID primitive.ObjectID
	for id := range store.reminders {
		reminderID = id
		break
	}

	_, err = svc.SnoozeReminder(context.Background(), primitive.NewObjectID().Hex(), reminderID.Hex(), 30)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSnoozeReminder_AfterDeliveryRejected(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(3)
	_, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)

	var reminderID primitive.ObjectID
	for id := range store.reminders {
		reminderID = id
		break
	}

	// Delivery wins the race: the guarded snooze write must be rejected.
	now := time.Now()
	store.reminders[reminderID].Status = models.StatusSent
	store.reminders[reminderID].SentAt = &now

	_, err = svc.SnoozeReminder(context.Background(), event.UserID.Hex(), reminderID.Hex(), 30)
	require.Error(t, err)
	assert.Equal(t, models.StatusSent, store.reminders[reminderID].Status)
}

func TestDismissReminder(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(3)
	_, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)

	var reminderID primitive.ObjectID
	for id := range store.reminders {
		reminderID = id
		break
	}

	require.NoError(t, svc.DismissReminder(context.Background(), event.UserID.Hex(), reminderID.Hex()))

	r := store.reminders[reminderID]
	assert.Equal(t, models.StatusSent, r.Status)
	assert.NotNil(t, r.SentAt)
	assert.NotNil(t, r.Interactions.DismissedAt)
}

func TestRecordInteraction(t *testing.T) {
	svc, store, _ := newTestService()
	event := futureEvent(3)
	_, err := svc.HandleEventCreated(context.Background(), event)
	require.NoError(t, err)

	var reminderID primitive.ObjectID
	for id := range store.reminders {
		reminderID = id
		break
	}

	require.NoError(t, svc.RecordInteraction(context.Background(), event.UserID.Hex(), reminderID.Hex(), "opened"))
	assert.NotNil(t, store.reminders[reminderID].Interactions.OpenedAt)

	err = svc.RecordInteraction(context.Background(), event.UserID.Hex(), reminderID.Hex(), "poked")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateCustomReminder(t *testing.T) {
	svc, _, events := newTestService()
	event := futureEvent(2)
	events.events[event.ID] = event

	scheduledFor := time.Now().Add(48 * time.Hour)
	created, err := svc.CreateCustomReminder(context.Background(), event.UserID.Hex(), event.ID.Hex(), scheduledFor, "Pack the charger", models.ChannelBoth)
	require.NoError(t, err)

	assert.Equal(t, models.ReminderTypeCustom, created.ReminderType)
	assert.Equal(t, models.ChannelBoth, created.Channel)
	assert.Equal(t, models.StatusScheduled, created.Status)
	assert.Equal(t, event.Title, created.EventDetails.Title)
}

func TestCreateCustomReminder_Validation(t *testing.T) {
	svc, _, events := newTestService()
	event := futureEvent(2)
	events.events[event.ID] = event
	userID := event.UserID.Hex()
	eventID := event.ID.Hex()
	future := time.Now().Add(time.Hour)

	_, err := svc.CreateCustomReminder(context.Background(), userID, eventID, future, "", "")
	assert.ErrorIs(t, err, ErrValidation, "empty message")

	long := make([]byte, models.MaxMessageLength+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = svc.CreateCustomReminder(context.Background(), userID, eventID, future, string(long), "")
	assert.ErrorIs(t, err, ErrValidation, "oversized message")

	_, err = svc.CreateCustomReminder(context.Background(), userID, eventID, time.Now().Add(-time.Hour), "hi", "")
	assert.ErrorIs(t, err, ErrValidation, "past time")

	_, err = svc.CreateCustomReminder(context.Background(), userID, eventID, future, "hi", "pigeon")
	assert.ErrorIs(t, err, ErrValidation, "unknown channel")

	_, err = svc.CreateCustomReminder(context.Background(), primitive.NewObjectID().Hex(), eventID, future, "hi", "")
	assert.ErrorIs(t, err, ErrForbidden, "someone else's event")
}
