package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/internal/repository"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	historyLimit = 100

	// Candidate grid: 1 to 14 days before the event, daytime hours only.
	gridMinDaysBefore = 1
	gridMaxDaysBefore = 14
	gridMinHour       = 6
	gridMaxHour       = 22

	hourWeight = 0.7
	dayWeight  = 0.3

	// confidenceSamples is the history size at which confidence saturates at 1.
	confidenceSamples = 50

	// candidateConfidenceFloor filters grid candidates with too little signal.
	candidateConfidenceFloor = 0.3

	// Batch rewrite thresholds: only move a reminder when the optimizer is
	// fairly sure and the shift is worth the churn.
	applyConfidenceFloor = 0.6
	applyMinShift        = time.Hour

	optimizeWindow = 7 * 24 * time.Hour

	defaultReminderHour = 8
)

// Recommendation is the optimizer's output for one reminder slot.
type Recommendation struct {
	ScheduledFor time.Time `json:"scheduled_for"`
	Confidence   float64   `json:"confidence"`
	Reason       string    `json:"reason"`
}

// OptimizerStore is the persistence surface the optimizer needs.
// Satisfied by repository.ReminderRepository.
type OptimizerStore interface {
	FindRecentDelivered(ctx context.Context, userID primitive.ObjectID, limit int64) ([]models.Reminder, error)
	FindUpcomingScheduled(ctx context.Context, userID primitive.ObjectID, now time.Time, within time.Duration) ([]models.Reminder, error)
	RescheduleReminder(ctx context.Context, id primitive.ObjectID, scheduledFor time.Time, reason string, confidence float64) error
	FindUsersWithUpcoming(ctx context.Context, now time.Time, within time.Duration) ([]primitive.ObjectID, error)
}

// OptimizerService mines a user's past reminder engagement to pick better
// delivery times than the static default policy offsets.
type OptimizerService struct {
	store OptimizerStore
	now   func() time.Time
}

// NewOptimizerService creates a new instance of OptimizerService.
func NewOptimizerService(store OptimizerStore) *OptimizerService {
	return &OptimizerService{
		store: store,
		now:   time.Now,
	}
}

// engagementProfile holds per-bucket engagement rates built from history.
type engagementProfile struct {
	hourEngaged [24]int
	hourTotal   [24]int
	dayEngaged  [7]int
	dayTotal    [7]int
	samples     int
}

func buildProfile(history []models.Reminder) *engagementProfile {
	p := &engagementProfile{}
	for i := range history {
		r := &history[i]

		deliveredAt := r.ScheduledFor
		if r.SentAt != nil {
			deliveredAt = *r.SentAt
		}

		engaged := r.Interactions.Engaged() || r.Status == models.StatusSnoozed

		hour := deliveredAt.Hour()
		day := int(deliveredAt.Weekday())
		p.hourTotal[hour]++
		p.dayTotal[day]++
		if engaged {
			p.hourEngaged[hour]++
			p.dayEngaged[day]++
		}
		p.samples++
	}
	return p
}

func (p *engagementProfile) hourRate(hour int) float64 {
	if p.hourTotal[hour] == 0 {
		return 0
	}
	return float64(p.hourEngaged[hour]) / float64(p.hourTotal[hour])
}

func (p *engagementProfile) dayRate(day int) float64 {
	if p.dayTotal[day] == 0 {
		return 0
	}
	return float64(p.dayEngaged[day]) / float64(p.dayTotal[day])
}

// confidence scales with how many history samples back the candidate's hour
// and weekday buckets, saturating at confidenceSamples.
func (p *engagementProfile) confidence(hour, day int) float64 {
	n := p.hourTotal[hour] + p.dayTotal[day]
	if n > confidenceSamples {
		n = confidenceSamples
	}
	return float64(n) / float64(confidenceSamples)
}

// RecommendTime picks a delivery time for a reminder ahead of eventAt, based
// on the user's engagement history. daysBefore is the static lead time used
// when no usable history exists. The result is never in the past.
func (s *OptimizerService) RecommendTime(ctx context.Context, userID primitive.ObjectID, eventAt time.Time, daysBefore int) (*Recommendation, error) {
	history, err := s.store.FindRecentDelivered(ctx, userID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load engagement history: %v", err)
	}

	now := s.now()
	if len(history) == 0 {
		return s.defaultRecommendation(now, eventAt, daysBefore, "no interaction history"), nil
	}

	profile := buildProfile(history)

	var best *Recommendation
	var bestScore float64
	for daysBack := gridMinDaysBefore; daysBack <= gridMaxDaysBefore; daysBack++ {
		day := eventAt.AddDate(0, 0, -daysBack)
		for hour := gridMinHour; hour <= gridMaxHour; hour++ {
			candidate := time.Date(day.Year(), day.Month(), day.Day(), hour, 0, 0, 0, eventAt.Location())
			if !candidate.After(now) || !candidate.Before(eventAt) {
				continue
			}

			weekday := int(candidate.Weekday())
			confidence := profile.confidence(hour, weekday)
			if confidence <= candidateConfidenceFloor {
				continue
			}

			score := hourWeight*profile.hourRate(hour) + dayWeight*profile.dayRate(weekday)
			if best == nil || score > bestScore {
				bestScore = score
				best = &Recommendation{
					ScheduledFor: candidate,
					Confidence:   confidence,
					Reason: fmt.Sprintf("engagement peak at %02d:00 on %s (score %.2f over %d samples)",
						hour, candidate.Weekday(), score, profile.samples),
				}
			}
		}
	}

	if best == nil {
		return s.defaultRecommendation(now, eventAt, daysBefore, "no candidate above confidence floor"), nil
	}
	return best, nil
}

// defaultRecommendation is the static fallback: daysBefore days ahead of the
// event at 08:00, clamped forward if that already passed.
func (s *OptimizerService) defaultRecommendation(now, eventAt time.Time, daysBefore int, cause string) *Recommendation {
	if daysBefore < 1 {
		daysBefore = 1
	}

	day := eventAt.AddDate(0, 0, -daysBefore)
	scheduledFor := time.Date(day.Year(), day.Month(), day.Day(), defaultReminderHour, 0, 0, 0, eventAt.Location())
	if !scheduledFor.After(now) {
		scheduledFor = now.Add(time.Hour)
	}

	return &Recommendation{
		ScheduledFor: scheduledFor,
		Confidence:   0.5,
		Reason:       fmt.Sprintf("%s; using default of %d day(s) before the event at %02d:00", cause, daysBefore, defaultReminderHour),
	}
}

// OptimizeUserReminders re-times a user's scheduled reminders due within the
// next 7 days. A reminder is only moved when the recommendation is confident
// (> 0.6) and shifts the time by more than an hour, so low-confidence noise
// does not churn near-term schedules. Returns how many reminders moved.
func (s *OptimizerService) OptimizeUserReminders(ctx context.Context, userID primitive.ObjectID) (int, error) {
	now := s.now()
	upcoming, err := s.store.FindUpcomingScheduled(ctx, userID, now, optimizeWindow)
	if err != nil {
		return 0, fmt.Errorf("failed to load upcoming reminders: %v", err)
	}

	updated := 0
	for i := range upcoming {
		r := &upcoming[i]
		eventAt := r.EventDetails.DateTime

		daysBefore := int(eventAt.Sub(r.ScheduledFor).Hours() / 24)
		if daysBefore < 1 {
			daysBefore = 1
		}

		rec, err := s.RecommendTime(ctx, userID, eventAt, daysBefore)
		if err != nil {
			logger.Log.WithError(err).
				WithField("reminder_id", r.ID.Hex()).
				Warn("Failed to compute recommendation, leaving reminder as is")
			continue
		}

		if rec.Confidence <= applyConfidenceFloor {
			continue
		}
		shift := rec.ScheduledFor.Sub(r.ScheduledFor)
		if shift < 0 {
			shift = -shift
		}
		if shift <= applyMinShift {
			continue
		}

		err = s.store.RescheduleReminder(ctx, r.ID, rec.ScheduledFor, rec.Reason, rec.Confidence)
		if errors.Is(err, repository.ErrStaleReminder) {
			// Status changed under us (sent, snoozed or cancelled); skip.
			continue
		}
		if err != nil {
			logger.Log.WithError(err).
				WithField("reminder_id", r.ID.Hex()).
				Warn("Failed to apply recommendation")
			continue
		}
		updated++
	}

	logger.Log.WithField("user_id", userID.Hex()).
		WithField("updated", updated).
		Info("Optimization pass completed")
	return updated, nil
}

// OptimizeAllUpcoming runs the optimization pass for every user that has
// reminders due within the window. Used by the nightly batch job.
func (s *OptimizerService) OptimizeAllUpcoming(ctx context.Context) error {
	users, err := s.store.FindUsersWithUpcoming(ctx, s.now(), optimizeWindow)
	if err != nil {
		return fmt.Errorf("failed to list users for optimization: %v", err)
	}

	for _, userID := range users {
		if _, err := s.OptimizeUserReminders(ctx, userID); err != nil {
			logger.Log.WithError(err).
				WithField("user_id", userID.Hex()).
				Error("Optimization pass failed for user")
		}
	}
	return nil
}
