package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Dauren2214/EventMinder/internal/config"
	"github.com/Dauren2214/EventMinder/internal/database"
	"github.com/Dauren2214/EventMinder/internal/handlers"
	"github.com/Dauren2214/EventMinder/internal/jobs"
	"github.com/Dauren2214/EventMinder/internal/repository"
	"github.com/Dauren2214/EventMinder/internal/scheduler"
	"github.com/Dauren2214/EventMinder/internal/services"
	"github.com/Dauren2214/EventMinder/pkg/email"
	"github.com/Dauren2214/EventMinder/pkg/logger"
	"github.com/Dauren2214/EventMinder/pkg/middleware"
	"github.com/Dauren2214/EventMinder/pkg/push"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

func main() {
	// Load configuration from .env file
	cfg := config.LoadConfig()

	logger.InitLogger()
	logger.Log.Info("Logger initialized")

	// Connect to MongoDB
	db, err := database.ConnectDB(cfg)
	if err != nil {
		log.Fatalf("Database connection error: %v", err)
	}

	// --- Repositories ---
	reminderRepo := repository.NewReminderRepository(db)
	eventRepo := repository.NewEventRepository(db)
	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	// --- Delivery channels ---
	pushSender := push.NewSender(cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber)
	emailSender := email.NewSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPSender, cfg.SMTPPassword)
	dispatcher := jobs.NewDispatcher(
		jobs.NewPushChannel(subscriptionRepo, pushSender),
		jobs.NewEmailChannel(emailSender),
	)

	// --- Services ---
	reminderService := services.NewReminderService(reminderRepo, eventRepo)
	optimizerService := services.NewOptimizerService(reminderRepo)

	// --- Background work ---
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reminderScheduler := scheduler.NewReminderScheduler(
		reminderRepo, eventRepo, userRepo, dispatcher,
		scheduler.SystemClock{}, cfg.SchedulerInterval, cfg.SchedulerLookahead,
	)
	go reminderScheduler.Run(ctx)

	cronJobs := scheduler.StartReminderCronJobs(optimizerService, reminderRepo)
	defer cronJobs.Stop()

	// --- Handlers ---
	reminderHandler := handlers.NewReminderHandler(reminderService, optimizerService, subscriptionRepo)

	// Initialize Gorilla Mux router
	router := mux.NewRouter()

	protectedRoutes := router.PathPrefix("/reminders").Subrouter()
	protectedRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	protectedRoutes.HandleFunc("", reminderHandler.GetRemindersHandler).Methods("GET")
	protectedRoutes.HandleFunc("", reminderHandler.CreateCustomReminderHandler).Methods("POST")
	protectedRoutes.HandleFunc("/optimize", reminderHandler.OptimizeRemindersHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/snooze", reminderHandler.SnoozeReminderHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/dismiss", reminderHandler.DismissReminderHandler).Methods("POST")
	protectedRoutes.HandleFunc("/{id}/interactions", reminderHandler.RecordInteractionHandler).Methods("POST")

	pushRoutes := router.PathPrefix("/push").Subrouter()
	pushRoutes.Use(middleware.AuthMiddleware(cfg.JWTSecret))
	pushRoutes.HandleFunc("/subscriptions", reminderHandler.SubscribePushHandler).Methods("POST")
	pushRoutes.HandleFunc("/subscriptions", reminderHandler.UnsubscribePushHandler).Methods("DELETE")

	// Apply middleware for logging
	router.Use(middleware.LoggingMiddleware)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"}, // adjust to frontend origin
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: c.Handler(router),
	}

	go func() {
		logger.Log.WithField("port", cfg.Port).Info("Server running")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("Server shutdown failed")
	}
}
