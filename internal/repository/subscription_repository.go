package repository

import (
	"context"
	"time"

	"github.com/Dauren2214/EventMinder/internal/models"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SubscriptionRepository persists Web Push subscriptions so the push channel
// survives process restarts.
type SubscriptionRepository struct {
	collection *mongo.Collection
}

// NewSubscriptionRepository creates a new instance of SubscriptionRepository.
func NewSubscriptionRepository(db *mongo.Database) *SubscriptionRepository {
	return &SubscriptionRepository{
		collection: db.Collection("push_subscriptions"),
	}
}

// SaveSubscription upserts a subscription keyed by its endpoint, so
// re-registering the same browser does not create duplicates.
func (r *SubscriptionRepository) SaveSubscription(ctx context.Context, sub *models.PushSubscription) error {
	sub.CreatedAt = time.Now()

	opts := options.Update().SetUpsert(true)
	_, err := r.collection.UpdateOne(ctx,
		bson.M{"user_id": sub.UserID, "endpoint": sub.Endpoint},
		bson.M{"$set": sub},
		opts,
	)
	if err != nil {
		logger.Log.WithError(err).Error("Failed to save push subscription")
		return err
	}

	logger.Log.WithField("user_id", sub.UserID.Hex()).Info("Push subscription saved")
	return nil
}

// GetUserSubscriptions returns all push subscriptions of a user.
func (r *SubscriptionRepository) GetUserSubscriptions(ctx context.Context, userID primitive.ObjectID) ([]models.PushSubscription, error) {
	cursor, err := r.collection.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		logger.Log.WithError(err).Error("Failed to fetch push subscriptions")
		return nil, err
	}
	defer cursor.Close(ctx)

	var subs []models.PushSubscription
	if err := cursor.All(ctx, &subs); err != nil {
		logger.Log.WithError(err).Error("Failed to decode push subscriptions")
		return nil, err
	}
	return subs, nil
}

// DeleteSubscription removes a subscription by endpoint, e.g. after the push
// service reports it gone.
func (r *SubscriptionRepository) DeleteSubscription(ctx context.Context, userID primitive.ObjectID, endpoint string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"user_id": userID, "endpoint": endpoint})
	if err != nil {
		logger.Log.WithError(err).Error("Failed to delete push subscription")
		return err
	}
	return nil
}
