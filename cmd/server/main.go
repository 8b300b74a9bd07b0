package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DavidGamba/go-getoptions"
	"github.com/go-redis/redis/v8"
	"github.com/synergysphere/server/internal/config"
	"github.com/synergysphere/server/internal/credentials"
	"github.com/synergysphere/server/internal/database"
	"github.com/synergysphere/server/internal/events"
	"github.com/synergysphere/server/internal/handlers"
	"github.com/synergysphere/server/internal/integrations/github"
	"github.com/synergysphere/server/internal/jobs"
	"github.com/synergysphere/server/internal/memstore"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/repository"
	"github.com/synergysphere/server/internal/scheduler"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/internal/storage"
	"github.com/synergysphere/server/pkg/email"
	"github.com/synergysphere/server/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

type stores struct {
	notifications services.NotificationStore
	tasks         services.TaskStore
	meetings      services.MeetingStore
	users         services.UserStore
	jobRuns       scheduler.Guard
}

func main() {
	var envFile string
	var memory bool

	opt := getoptions.New()
	opt.Bool("help", false, opt.Alias("h", "?"))
	opt.StringVar(&envFile, "env", ".env",
		opt.Alias("e"),
		opt.Description("path to an optional .env file"))
	opt.BoolVar(&memory, "memory", false,
		opt.Description("keep all data in memory instead of MongoDB"))
	if _, err := opt.Parse(os.Args[1:]); err != nil || opt.Called("help") {
		fmt.Fprint(os.Stderr, opt.Help())
		if err != nil {
			os.Exit(1)
		}
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger.InitLogger(cfg.LogLevel)
	logger.Log.Info("Logger initialized")

	ctx := context.Background()
	checks := map[string]handlers.Pinger{}

	// --- Storage backends ---
	var st stores
	var db *mongo.Database
	if memory {
		mem := memstore.New()
		st = stores{mem.Notifications(), mem.Tasks(), mem.Meetings(), mem.Users(), mem.JobRuns()}
		logger.Log.Warn("Running with in-memory storage, data is lost on exit")
	} else {
		db, err = database.ConnectDB(ctx, cfg)
		if err != nil {
			logger.Log.Fatalf("Database connection error: %v", err)
		}
		if err := database.EnsureIndexes(ctx, db); err != nil {
			logger.Log.Fatalf("Failed to create indexes: %v", err)
		}
		st = stores{
			notifications: repository.NewNotificationRepository(db),
			tasks:         repository.NewTaskRepository(db),
			meetings:      repository.NewMeetingRepository(db),
			users:         repository.NewUserRepository(db),
			jobRuns:       repository.NewJobRunRepository(db),
		}
		checks["mongo"] = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
	}

	var redisClient *redis.Client
	guard := st.jobRuns
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Log.WithError(err).Warn("Redis unreachable, falling back to database job guard")
		} else {
			guard = scheduler.NewRedisGuard(redisClient)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.Kafka.Enabled {
		publisher = events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, "synergysphere-server")
		logger.Log.WithField("topic", cfg.Kafka.Topic).Info("Publishing domain events to Kafka")
	}

	var reportStore storage.Storage
	switch cfg.Storage.Type {
	case "s3":
		s3cfg := cfg.Storage.S3
		reportStore, err = storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:    s3cfg.Bucket,
			Region:    s3cfg.Region,
			AccessKey: s3cfg.AccessKey,
			SecretKey: s3cfg.SecretKey,
			Endpoint:  s3cfg.Endpoint,
		})
	default:
		reportStore, err = storage.NewLocalStorage(cfg.Storage.ReportsDir)
	}
	if err != nil {
		logger.Log.Fatalf("Report storage error: %v", err)
	}

	creds, err := credentials.OpenKeyringStore(cfg.Credentials.Dir, cfg.Credentials.Key)
	if err != nil {
		logger.Log.Fatalf("Credential store error: %v", err)
	}

	hub := realtime.NewHub()
	mailer := email.NewMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Sender, cfg.SMTP.Password)

	// --- Services ---
	notificationService := services.NewNotificationService(st.notifications, hub, publisher)
	userService := services.NewUserService(st.users)
	taskService := services.NewTaskService(st.tasks, st.users, notificationService, hub, publisher)
	meetingService := services.NewMeetingService(st.meetings, notificationService, hub, publisher)
	reportService := services.NewReportService(st.tasks, st.users, reportStore, notificationService, mailer, hub, publisher)
	githubService := services.NewGitHubService(
		github.NewIssueClient(&http.Client{Timeout: 15 * time.Second}),
		creds, st.tasks, notificationService, hub, publisher, cfg.GitHub.MockMode,
	)

	// --- Scheduled jobs ---
	runner := scheduler.NewRunner(guard, cfg.Location())
	err = runner.RegisterDefaults(scheduler.Jobs{
		WeeklyReport:        jobs.NewWeeklyReportJob(reportService),
		MeetingReminders:    jobs.NewMeetingReminderJob(st.meetings, notificationService, hub),
		OverdueTasks:        jobs.NewOverdueTaskJob(st.tasks, notificationService),
		NotificationCleanup: jobs.NewNotificationCleanupJob(notificationService),
	})
	if err != nil {
		logger.Log.Fatalf("Scheduler error: %v", err)
	}
	runner.Start()

	// --- HTTP ---
	router := handlers.NewRouter(handlers.Handlers{
		Users:         handlers.NewUserHandler(userService, cfg),
		Tasks:         handlers.NewTaskHandler(taskService),
		Meetings:      handlers.NewMeetingHandler(meetingService),
		Notifications: handlers.NewNotificationHandler(notificationService),
		Reports:       handlers.NewReportHandler(reportService),
		GitHub:        handlers.NewGitHubHandler(githubService, cfg.GitHub.WebhookSecret),
		WS:            handlers.NewWSHandler(hub, cfg.JWTSecret, cfg.AllowedOrigins),
		Health:        handlers.NewHealthHandler(hub, checks),
	}, handlers.RouterOptions{
		JWTSecret:          cfg.JWTSecret,
		AllowedOrigins:     cfg.AllowedOrigins,
		Redis:              redisClient,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		LastActive:         userService,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Log.WithField("port", cfg.Port).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Log.WithField("signal", sig.String()).Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := runner.Stop(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("Scheduler did not stop in time")
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("HTTP shutdown error")
	}
	hub.Close()
	if err := publisher.Close(); err != nil {
		logger.Log.WithError(err).Warn("Failed to close event publisher")
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if db != nil {
		if err := db.Client().Disconnect(shutdownCtx); err != nil {
			logger.Log.WithError(err).Warn("Failed to disconnect MongoDB")
		}
	}
	logger.Log.Info("Server stopped")
}
