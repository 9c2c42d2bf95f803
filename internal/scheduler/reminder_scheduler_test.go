package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Dauren2214/EventMinder/internal/jobs"
	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeStore struct {
	mu        sync.Mutex
	reminders map[primitive.ObjectID]*models.Reminder
	sentStale bool // force MarkSent to report a lost race
}

func newFakeStore() *fakeStore {
	return &fakeStore{reminders: make(map[primitive.ObjectID]*models.Reminder)}
}

func (s *fakeStore) add(r *models.Reminder) *models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID.IsZero() {
		r.ID = primitive.NewObjectID()
	}
	s.reminders[r.ID] = r
	return r
}

func (s *fakeStore) get(id primitive.ObjectID) models.Reminder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.reminders[id]
}

func (s *fakeStore) FindDueReminders(_ context.Context, now time.Time, lookahead time.Duration) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Reminder
	for _, r := range s.reminders {
		if r.Status != models.StatusScheduled {
			continue
		}
		if r.ScheduledFor.After(now.Add(lookahead)) {
			continue
		}
		if r.NextAttemptAt != nil && r.NextAttemptAt.After(now) {
			continue
		}
		due = append(due, *r)
	}
	return due, nil
}

func (s *fakeStore) FindSnoozedDue(_ context.Context, now time.Time) ([]models.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Reminder
	for _, r := range s.reminders {
		if r.Status == models.StatusSnoozed && r.SnoozedUntil != nil && !r.SnoozedUntil.After(now) {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) ReArmReminder(_ context.Context, id primitive.ObjectID, scheduledFor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Status != models.StatusSnoozed {
		return repository.ErrStaleReminder
	}
	r.Status = models.StatusScheduled
	r.ScheduledFor = scheduledFor
	r.SnoozedUntil = nil
	r.NextAttemptAt = nil
	return nil
}

func (s *fakeStore) MarkSent(_ context.Context, id primitive.ObjectID, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if s.sentStale || !ok || r.Status != models.StatusScheduled {
		return repository.ErrStaleReminder
	}
	r.Status = models.StatusSent
	r.SentAt = &sentAt
	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, id primitive.ObjectID, attempts int, lastError string, nextAttemptAt time.Time, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok || r.Status != models.StatusScheduled {
		return repository.ErrStaleReminder
	}
	r.Attempts = attempts
	r.LastError = lastError
	if final {
		r.Status = models.StatusFailed
	} else {
		r.NextAttemptAt = &nextAttemptAt
	}
	return nil
}

type fakeEvents struct {
	mu     sync.Mutex
	events map[primitive.ObjectID]*models.Event
}

func (f *fakeEvents) GetEventByID(_ context.Context, id primitive.ObjectID) (*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.events[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("event not found")
}

type fakeUsers struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func (f *fakeUsers) GetUserByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found")
}

type fakeDispatcher struct {
	mu      sync.Mutex
	fail    bool
	calls   int
	lastErr string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, _ *models.Reminder, _ *models.User) jobs.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail {
		return jobs.Result{Success: false, Err: "provider timeout"}
	}
	return jobs.Result{Success: true, Channel: models.ChannelBrowserPush}
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	store      *fakeStore
	events     *fakeEvents
	users      *fakeUsers
	dispatcher *fakeDispatcher
	clock      *fakeClock
	scheduler  *ReminderScheduler
	event      *models.Event
	user       *models.User
}

func newFixture() *fixture {
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	store := newFakeStore()

	event := &models.Event{ID: primitive.NewObjectID(), Title: "Standup", DateTime: clock.now.Add(2 * time.Hour)}
	user := &models.User{ID: primitive.NewObjectID(), Email: "user@example.com"}

	events := &fakeEvents{events: map[primitive.ObjectID]*models.Event{event.ID: event}}
	users := &fakeUsers{users: map[primitive.ObjectID]*models.User{user.ID: user}}
	dispatcher := &fakeDispatcher{}

	return &fixture{
		store:      store,
		events:     events,
		users:      users,
		dispatcher: dispatcher,
		clock:      clock,
		scheduler:  NewReminderScheduler(store, events, users, dispatcher, clock, time.Minute, 5*time.Minute),
		event:      event,
		user:       user,
	}
}

func (f *fixture) addReminder(scheduledFor time.Time) *models.Reminder {
	return f.store.add(&models.Reminder{
		EventID:      f.event.ID,
		UserID:       f.user.ID,
		Status:       models.StatusScheduled,
		Channel:      models.ChannelBrowserPush,
		ScheduledFor: scheduledFor,
		EventDetails: models.EventDetails{Title: f.event.Title, DateTime: f.event.DateTime},
	})
}

func TestTick_DeliversDueReminder(t *testing.T) {
	f := newFixture()
	r := f.addReminder(f.clock.Now().Add(time.Minute))

	f.scheduler.Tick(context.Background())

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusSent, got.Status)
	require.NotNil(t, got.SentAt)
	assert.Equal(t, f.clock.Now(), *got.SentAt)
	assert.Equal(t, 1, f.dispatcher.callCount())

	// A later tick must not reprocess a sent reminder.
	f.clock.Advance(time.Minute)
	f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, f.dispatcher.callCount())
}

func TestTick_NotDueYet(t *testing.T) {
	f := newFixture()
	f.addReminder(f.clock.Now().Add(time.Hour)) // beyond the 5m lookahead

	f.scheduler.Tick(context.Background())

	assert.Equal(t, 0, f.dispatcher.callCount())
}

func TestTick_RetriesThenFails(t *testing.T) {
	f := newFixture()
	f.dispatcher.fail = true
	r := f.addReminder(f.clock.Now())

	for i := 0; i < models.MaxDeliveryAttempts; i++ {
		f.scheduler.Tick(context.Background())
		// Jump past the backoff window before the next tick.
		f.clock.Advance(time.Hour)
	}

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusFailed, got.Status)
	assert.Equal(t, models.MaxDeliveryAttempts, got.Attempts)
	assert.Equal(t, "provider timeout", got.LastError)
	assert.Equal(t, models.MaxDeliveryAttempts, f.dispatcher.callCount())

	// Exhausted reminders must never be retried again.
	f.scheduler.Tick(context.Background())
	assert.Equal(t, models.MaxDeliveryAttempts, f.dispatcher.callCount())
}

func TestTick_BackoffGatesRetry(t *testing.T) {
	f := newFixture()
	f.dispatcher.fail = true
	r := f.addReminder(f.clock.Now())

	f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, f.dispatcher.callCount())

	// Immediately after the failure the backoff window is still open.
	f.scheduler.Tick(context.Background())
	assert.Equal(t, 1, f.dispatcher.callCount())

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusScheduled, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextAttemptAt)
}

func TestTick_SkipsOrphanedReminder(t *testing.T) {
	f := newFixture()
	r := f.addReminder(f.clock.Now())

	// Event vanished without a lifecycle callback.
	f.events.mu.Lock()
	delete(f.events.events, f.event.ID)
	f.events.mu.Unlock()

	f.scheduler.Tick(context.Background())

	got := f.store.get(r.ID)
	assert.Equal(t, 0, f.dispatcher.callCount())
	assert.Equal(t, models.StatusScheduled, got.Status)
	assert.Equal(t, 0, got.Attempts, "orphan skips must not burn attempts")
}

func TestTick_ReArmsElapsedSnooze(t *testing.T) {
	f := newFixture()
	r := f.addReminder(f.clock.Now().Add(-time.Hour))

	until := f.clock.Now().Add(-time.Minute)
	f.store.mu.Lock()
	f.store.reminders[r.ID].Status = models.StatusSnoozed
	f.store.reminders[r.ID].SnoozedUntil = &until
	f.store.mu.Unlock()

	f.scheduler.Tick(context.Background())

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusSent, got.Status, "re-armed snooze should be delivered on the same tick")
	assert.Equal(t, 1, f.dispatcher.callCount())
}

func TestTick_StillSnoozedNotTouched(t *testing.T) {
	f := newFixture()
	r := f.addReminder(f.clock.Now())

	until := f.clock.Now().Add(30 * time.Minute)
	f.store.mu.Lock()
	f.store.reminders[r.ID].Status = models.StatusSnoozed
	f.store.reminders[r.ID].SnoozedUntil = &until
	f.store.mu.Unlock()

	f.scheduler.Tick(context.Background())

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusSnoozed, got.Status)
	assert.Equal(t, 0, f.dispatcher.callCount())
}

func TestTick_LostRaceKeepsUserState(t *testing.T) {
	f := newFixture()
	r := f.addReminder(f.clock.Now())

	// Simulate a user snoozing between the due query and the sent write:
	// the guarded MarkSent reports the race and the delivery outcome is dropped.
	f.store.sentStale = true

	f.scheduler.Tick(context.Background())

	got := f.store.get(r.ID)
	assert.Equal(t, models.StatusScheduled, got.Status)
	assert.Nil(t, got.SentAt)
}

func TestRetryBackoffGrows(t *testing.T) {
	for attempts := 1; attempts < models.MaxDeliveryAttempts; attempts++ {
		lower := retryBackoff(attempts)
		upper := retryBackoff(attempts + 1)
		// Jitter is bounded by 30s, far below the doubling step.
		assert.Greater(t, upper, lower)
	}
}
