package jobs

import (
	"context"
	"fmt"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/email"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"github.com/Dauren2214/EventMinder/pkg/push"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionStore resolves a user's stored Web Push subscriptions.
// Satisfied by repository.SubscriptionRepository.
type SubscriptionStore interface {
	GetUserSubscriptions(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error)
}

// PushChannel delivers notifications over Web Push to every subscription the
// user has registered. Delivery counts as successful if at least one
// subscription accepts the message.
type PushChannel struct {
	subscriptions SubscriptionStore
	sender        *push.Sender
}

// NewPushChannel creates a new instance of PushChannel.
func NewPushChannel(subscriptions SubscriptionStore, sender *push.Sender) *PushChannel {
	return &PushChannel{
		subscriptions: subscriptions,
		sender:        sender,
	}
}

// Send pushes the notification to all of the user's subscriptions.
func (c *PushChannel) Send(ctx context.Context, user *models.User, notification *Notification) error {
	subs, err := c.subscriptions.GetUserSubscriptions(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("failed to load push subscriptions: %v", err)
	}
	if len(subs) == 0 {
		return fmt.Errorf("no active push subscription for user %s", user.ID.Hex())
	}

	msg := &push.Message{
		Title:      notification.Title,
		Body:       notification.Body,
		ReminderID: notification.Reminder.ID.Hex(),
		EventID:    notification.Reminder.EventID.Hex(),
	}

	delivered := 0
	var lastErr error
	for i := range subs {
		if err := c.sender.Send(&subs[i], msg); err != nil {
			lastErr = err
			logger.Log.WithError(err).
				WithField("user_id", user.ID.Hex()).
				Warn("Push delivery to subscription failed")
			continue
		}
		delivered++
	}

	if delivered == 0 {
		return fmt.Errorf("push delivery failed for all %d subscriptions: %v", len(subs), lastErr)
	}
	return nil
}

// EmailChannel delivers notifications to the user's email address.
type EmailChannel struct {
	sender *email.Sender
}

// NewEmailChannel creates a new instance of EmailChannel.
func NewEmailChannel(sender *email.Sender) *EmailChannel {
	return &EmailChannel{sender: sender}
}

// Send emails the notification to the user.
func (c *EmailChannel) Send(ctx context.Context, user *models.User, notification *Notification) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", user.ID.Hex())
	}
	return c.sender.Send(user.Email, notification.Title, notification.Body)
}
