package scheduler

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/Dauren2214/EventMinder/internal/jobs"
	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/internal/repository"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxDispatchConcurrency bounds how many deliveries are in flight per tick.
// Dispatch is network I/O; many reminders can share a due window.
const maxDispatchConcurrency = 8

// Clock abstracts time so tests can simulate due conditions deterministically.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ReminderStore is the persistence surface the scheduler needs.
// Satisfied by repository.ReminderRepository.
type ReminderStore interface {
	FindDueReminders(ctx context.Context, now time.Time, lookahead time.Duration) ([]models.Reminder, error)
	FindSnoozedDue(ctx context.Context, now time.Time) ([]models.Reminder, error)
	ReArmReminder(ctx context.Context, id primitive.ObjectID, scheduledFor time.Time) error
	MarkSent(ctx context.Context, id primitive.ObjectID, sentAt time.Time) error
	RecordFailure(ctx context.Context, id primitive.ObjectID, attempts int, lastError string, nextAttemptAt time.Time, final bool) error
}

// EventStore resolves the owning event of a due reminder.
type EventStore interface {
	GetEventByID(ctx context.Context, id primitive.ObjectID) (*models.Event, error)
}

// UserStore resolves the recipient of a due reminder.
type UserStore interface {
	GetUserByID(ctx context.Context, id primitive.ObjectID) (*models.User, error)
}

// Dispatcher sends one reminder and reports a structured outcome.
// Satisfied by jobs.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, reminder *models.Reminder, user *models.User) jobs.Result
}

// ReminderScheduler polls the store on a fixed period, re-arms elapsed snoozes
// and hands due reminders to the dispatcher. It assumes a single instance;
// running several would double-send.
type ReminderScheduler struct {
	store      ReminderStore
	events     EventStore
	users      UserStore
	dispatcher Dispatcher
	clock      Clock
	interval   time.Duration
	lookahead  time.Duration
}

// NewReminderScheduler creates a new instance of ReminderScheduler.
func NewReminderScheduler(store ReminderStore, events EventStore, users UserStore, dispatcher Dispatcher, clock Clock, interval, lookahead time.Duration) *ReminderScheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &ReminderScheduler{
		store:      store,
		events:     events,
		users:      users,
		dispatcher: dispatcher,
		clock:      clock,
		interval:   interval,
		lookahead:  lookahead,
	}
}

// Run polls until the context is cancelled. Blocking; start it in a goroutine.
func (s *ReminderScheduler) Run(ctx context.Context) {
	logger.Log.WithField("interval", s.interval.String()).
		WithField("lookahead", s.lookahead.String()).
		Info("Reminder scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			logger.Log.Info("Reminder scheduler stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one polling pass. Per-record errors are contained so one bad
// reminder cannot block the batch.
func (s *ReminderScheduler) Tick(ctx context.Context) {
	now := s.clock.Now()

	s.reArmSnoozed(ctx, now)

	due, err := s.store.FindDueReminders(ctx, now, s.lookahead)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query due reminders")
		return
	}
	if len(due) == 0 {
		return
	}

	logger.Log.WithField("count", len(due)).Info("Processing due reminders")

	sem := make(chan struct{}, maxDispatchConcurrency)
	var wg sync.WaitGroup
	for i := range due {
		reminder := due[i]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.process(ctx, &reminder)
		}()
	}
	wg.Wait()
}

// reArmSnoozed returns snoozed reminders whose snooze window elapsed to the
// delivery path, due immediately.
func (s *ReminderScheduler) reArmSnoozed(ctx context.Context, now time.Time) {
	snoozed, err := s.store.FindSnoozedDue(ctx, now)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to query elapsed snoozes")
		return
	}

	for i := range snoozed {
		r := &snoozed[i]
		err := s.store.ReArmReminder(ctx, r.ID, now)
		if errors.Is(err, repository.ErrStaleReminder) {
			continue
		}
		if err != nil {
			logger.Log.WithError(err).
				WithField("reminder_id", r.ID.Hex()).
				Error("Failed to re-arm snoozed reminder")
		}
	}
}

// process delivers one due reminder and writes the outcome back.
func (s *ReminderScheduler) process(ctx context.Context, reminder *models.Reminder) {
	log := logger.Log.WithField("reminder_id", reminder.ID.Hex())

	// Orphan checks: the owning event or user may have disappeared without a
	// lifecycle callback. Not retryable; the stale sweep cleans these up.
	if _, err := s.events.GetEventByID(ctx, reminder.EventID); err != nil {
		log.WithError(err).WithField("event_id", reminder.EventID.Hex()).
			Warn("Skipping orphaned reminder: event not found")
		return
	}
	user, err := s.users.GetUserByID(ctx, reminder.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", reminder.UserID.Hex()).
			Warn("Skipping orphaned reminder: user not found")
		return
	}

	result := s.dispatcher.Dispatch(ctx, reminder, user)
	now := s.clock.Now()

	if result.Success {
		err := s.store.MarkSent(ctx, reminder.ID, now)
		if errors.Is(err, repository.ErrStaleReminder) {
			// A concurrent snooze or cancel won the race; its state stands.
			log.Info("Reminder changed concurrently, delivery outcome discarded")
			return
		}
		if err != nil {
			log.WithError(err).Error("Failed to mark reminder sent")
			return
		}
		log.WithField("channel", result.Channel).Info("Reminder delivered")
		return
	}

	attempts := reminder.Attempts + 1
	final := attempts >= models.MaxDeliveryAttempts
	next := now.Add(retryBackoff(attempts))

	err = s.store.RecordFailure(ctx, reminder.ID, attempts, result.Err, next, final)
	if errors.Is(err, repository.ErrStaleReminder) {
		log.Info("Reminder changed concurrently, failure outcome discarded")
		return
	}
	if err != nil {
		log.WithError(err).Error("Failed to record delivery failure")
		return
	}

	if final {
		log.WithField("attempts", attempts).
			WithField("error", result.Err).
			Error("Reminder failed permanently")
	} else {
		log.WithField("attempts", attempts).
			WithField("next_attempt_at", next).
			Warn("Reminder delivery failed, will retry")
	}
}

// retryBackoff grows exponentially with the attempt count and adds jitter so
// a burst of failures does not retry in lockstep.
func retryBackoff(attempts int) time.Duration {
	base := time.Duration(1<<uint(attempts)) * time.Minute
	jitter := time.Duration(rand.Int63n(int64(30 * time.Second)))
	return base + jitter
}
