package push

import (
	"encoding/json"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"

	"github.com/Dauren2214/EventMinder/internal/models"
)

// Message is the payload delivered to the browser's service worker.
type Message struct {
	Title      string `json:"title"`
	Body       string `json:"body"`
	ReminderID string `json:"reminder_id"`
	EventID    string `json:"event_id"`
}

// Sender delivers Web Push notifications using VAPID keys.
type Sender struct {
	publicKey  string
	privateKey string
	subscriber string
}

// NewSender creates a Web Push sender.
func NewSender(publicKey, privateKey, subscriber string) *Sender {
	return &Sender{
		publicKey:  publicKey,
		privateKey: privateKey,
		subscriber: subscriber,
	}
}

// Send pushes the message to a single stored subscription.
func (s *Sender) Send(sub *models.PushSubscription, msg *Message) error {
	if s.privateKey == "" {
		return fmt.Errorf("push sender is not configured")
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode push payload: %v", err)
	}

	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             60,
	})
	if err != nil {
		return fmt.Errorf("failed to send push: %v", err)
	}
	defer resp.Body.Close()

	// 404/410 mean the subscription is gone on the push service side.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return fmt.Errorf("push subscription expired (status %d)", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned status %d", resp.StatusCode)
	}
	return nil
}
