package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/internal/services"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"github.com/Dauren2214/EventMinder/pkg/middleware"
	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SubscriptionSaver persists and removes Web Push subscriptions.
// Satisfied by repository.SubscriptionRepository.
type SubscriptionSaver interface {
	SaveSubscription(ctx context.Context, sub *models.PushSubscription) error
	DeleteSubscription(ctx context.Context, userID primitive.ObjectID, endpoint string) error
}

type ReminderHandler struct {
	Service   *services.ReminderService
	Optimizer *services.OptimizerService
	Subs      SubscriptionSaver
}

func NewReminderHandler(service *services.ReminderService, optimizer *services.OptimizerService, subs SubscriptionSaver) *ReminderHandler {
	return &ReminderHandler{
		Service:   service,
		Optimizer: optimizer,
		Subs:      subs,
	}
}

// GET /reminders?status=scheduled
func (h *ReminderHandler) GetRemindersHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	reminders, err := h.Service.GetUserReminders(r.Context(), claims.UserID, r.URL.Query().Get("status"))
	if err != nil {
		writeServiceError(w, err, "Failed to get reminders")
		return
	}
	if reminders == nil {
		reminders = []models.Reminder{}
	}

	json.NewEncoder(w).Encode(reminders)
}

// POST /reminders
func (h *ReminderHandler) CreateCustomReminderHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		EventID      string    `json:"event_id"`
		ScheduledFor time.Time `json:"scheduled_for"`
		Message      string    `json:"message"`
		Channel      string    `json:"channel"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	reminder, err := h.Service.CreateCustomReminder(r.Context(), claims.UserID, req.EventID, req.ScheduledFor, req.Message, req.Channel)
	if err != nil {
		writeServiceError(w, err, "Failed to create reminder")
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(reminder)
}

// POST /reminders/{id}/snooze
func (h *ReminderHandler) SnoozeReminderHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Minutes int `json:"minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	until, err := h.Service.SnoozeReminder(r.Context(), claims.UserID, mux.Vars(r)["id"], req.Minutes)
	if err != nil {
		writeServiceError(w, err, "Failed to snooze reminder")
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message":       "Reminder snoozed",
		"snoozed_until": until,
	})
}

// POST /reminders/{id}/dismiss
func (h *ReminderHandler) DismissReminderHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := h.Service.DismissReminder(r.Context(), claims.UserID, mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err, "Failed to dismiss reminder")
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Reminder dismissed"})
}

// POST /reminders/{id}/interactions
func (h *ReminderHandler) RecordInteractionHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req struct {
		Action string `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.RecordInteraction(r.Context(), claims.UserID, mux.Vars(r)["id"], req.Action); err != nil {
		writeServiceError(w, err, "Failed to record interaction")
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Interaction recorded"})
}

// POST /reminders/optimize
func (h *ReminderHandler) OptimizeRemindersHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	updated, err := h.Optimizer.OptimizeUserReminders(r.Context(), userID)
	if err != nil {
		logger.Log.WithError(err).Error("Manual optimization pass failed")
		http.Error(w, "Failed to optimize reminders", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"message": "Optimization pass completed",
		"updated": updated,
	})
}

// POST /push/subscriptions
func (h *ReminderHandler) SubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
		P256dh   string `json:"p256dh"`
		Auth     string `json:"auth"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" || req.P256dh == "" || req.Auth == "" {
		http.Error(w, "Invalid subscription payload", http.StatusBadRequest)
		return
	}

	sub := &models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.P256dh,
		Auth:     req.Auth,
	}
	if err := h.Subs.SaveSubscription(r.Context(), sub); err != nil {
		logger.Log.WithError(err).Error("Failed to save push subscription")
		http.Error(w, "Failed to save subscription", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"message": "Subscription saved"})
}

// DELETE /push/subscriptions
func (h *ReminderHandler) UnsubscribePushHandler(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetUserFromContext(r.Context())
	if claims == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	userID, err := primitive.ObjectIDFromHex(claims.UserID)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	var req struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Subs.DeleteSubscription(r.Context(), userID, req.Endpoint); err != nil {
		logger.Log.WithError(err).Error("Failed to delete push subscription")
		http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]string{"message": "Subscription removed"})
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, services.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, services.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	case errors.Is(err, services.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	default:
		logger.Log.WithError(err).Error(fallback)
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}
