package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/logger"
)

// ChannelSender delivers a rendered notification over one transport.
type ChannelSender interface {
	Send(ctx context.Context, user *models.User, notification *Notification) error
}

// Result is the structured outcome of a dispatch. The dispatcher never lets an
// error or panic escape its boundary; the scheduler applies its retry policy
// off this value.
type Result struct {
	Success bool
	Channel string
	Err     string
}

// Dispatcher resolves a reminder's channel into transport attempts:
// push first for browser_push/both, email as fallback when the channel allows
// it. The first successful transport wins.
type Dispatcher struct {
	push  ChannelSender
	email ChannelSender
}

// NewDispatcher creates a new instance of Dispatcher.
func NewDispatcher(push, email ChannelSender) *Dispatcher {
	return &Dispatcher{
		push:  push,
		email: email,
	}
}

// Dispatch sends a due reminder to its user and reports the outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, reminder *models.Reminder, user *models.User) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.WithField("reminder_id", reminder.ID.Hex()).
				WithField("panic", r).
				Error("Transport panicked during dispatch")
			result = Result{Success: false, Err: fmt.Sprintf("transport panic: %v", r)}
		}
	}()

	notification := BuildNotification(reminder, time.Now())

	var pushErr error
	if reminder.Channel == models.ChannelBrowserPush || reminder.Channel == models.ChannelBoth {
		pushErr = d.push.Send(ctx, user, notification)
		if pushErr == nil {
			return Result{Success: true, Channel: models.ChannelBrowserPush}
		}
		logger.Log.WithError(pushErr).
			WithField("reminder_id", reminder.ID.Hex()).
			Warn("Push delivery failed")
	}

	if reminder.Channel == models.ChannelEmail || reminder.Channel == models.ChannelBoth {
		if emailErr := d.email.Send(ctx, user, notification); emailErr != nil {
			logger.Log.WithError(emailErr).
				WithField("reminder_id", reminder.ID.Hex()).
				Warn("Email delivery failed")
			return Result{Success: false, Channel: models.ChannelEmail, Err: emailErr.Error()}
		}
		return Result{Success: true, Channel: models.ChannelEmail}
	}

	if pushErr != nil {
		return Result{Success: false, Channel: models.ChannelBrowserPush, Err: pushErr.Error()}
	}
	return Result{Success: false, Err: fmt.Sprintf("unsupported channel %q", reminder.Channel)}
}
