package handlers

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/pkg/middleware"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Users         *UserHandler
	Tasks         *TaskHandler
	Meetings      *MeetingHandler
	Notifications *NotificationHandler
	Reports       *ReportHandler
	GitHub        *GitHubHandler
	WS            *WSHandler
	Health        *HealthHandler
}

type RouterOptions struct {
	JWTSecret          string
	AllowedOrigins     []string
	Redis              *redis.Client
	RateLimitPerMinute int
	LastActive         middleware.LastActiveUpdater
}

// NewRouter mounts the API. Middleware order: recovery, logging, CORS, rate limit,
// auth, last-active update.
func NewRouter(h Handlers, opts RouterOptions) http.Handler {
	router := mux.NewRouter()

	if h.WS != nil {
		router.HandleFunc("/ws", h.WS.ServeWS).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()
	api.Use(middleware.RateLimit(opts.Redis, opts.RateLimitPerMinute))

	// Public routes
	api.HandleFunc("/health", h.Health.HealthHandler).Methods("GET")
	api.HandleFunc("/auth/register", h.Users.RegisterHandler).Methods("POST")
	api.HandleFunc("/auth/login", h.Users.LoginHandler).Methods("POST")
	api.HandleFunc("/github/webhook", h.GitHub.WebhookHandler).Methods("POST")

	protected := api.NewRoute().Subrouter()
	protected.Use(middleware.AuthMiddleware(opts.JWTSecret))
	if opts.LastActive != nil {
		protected.Use(middleware.UpdateLastActiveMiddleware(opts.LastActive))
	}

	protected.HandleFunc("/auth/me", h.Users.MeHandler).Methods("GET")
	protected.HandleFunc("/users", h.Users.ListUsersHandler).Methods("GET")
	protected.HandleFunc("/users/me/preferences", h.Users.UpdatePreferencesHandler).Methods("PUT")

	protected.HandleFunc("/tasks", h.Tasks.ListTasksHandler).Methods("GET")
	protected.HandleFunc("/tasks", h.Tasks.CreateTaskHandler).Methods("POST")
	protected.HandleFunc("/tasks/{id}", h.Tasks.GetTaskHandler).Methods("GET")
	protected.HandleFunc("/tasks/{id}", h.Tasks.UpdateTaskHandler).Methods("PUT")
	protected.HandleFunc("/tasks/{id}", h.Tasks.DeleteTaskHandler).Methods("DELETE")
	protected.HandleFunc("/tasks/{id}/feedback", h.Tasks.AddFeedbackHandler).Methods("POST")

	protected.HandleFunc("/meetings", h.Meetings.ListMeetingsHandler).Methods("GET")
	protected.HandleFunc("/meetings", h.Meetings.CreateMeetingHandler).Methods("POST")
	protected.HandleFunc("/meetings/{id}", h.Meetings.GetMeetingHandler).Methods("GET")
	protected.HandleFunc("/meetings/{id}", h.Meetings.UpdateMeetingHandler).Methods("PUT")
	protected.HandleFunc("/meetings/{id}", h.Meetings.DeleteMeetingHandler).Methods("DELETE")
	protected.HandleFunc("/meetings/{id}/respond", h.Meetings.RespondHandler).Methods("POST")

	// Fixed paths before /{id}
	protected.HandleFunc("/notifications", h.Notifications.ListHandler).Methods("GET")
	protected.HandleFunc("/notifications/unread-count", h.Notifications.UnreadCountHandler).Methods("GET")
	protected.HandleFunc("/notifications/types", h.Notifications.TypesHandler).Methods("GET")
	protected.HandleFunc("/notifications/stats", h.Notifications.StatsHandler).Methods("GET")
	protected.HandleFunc("/notifications/read-all", h.Notifications.MarkAllReadHandler).Methods("PUT")
	protected.HandleFunc("/notifications/clear-read", h.Notifications.ClearReadHandler).Methods("DELETE")
	protected.HandleFunc("/notifications/{id}", h.Notifications.GetHandler).Methods("GET")
	protected.HandleFunc("/notifications/{id}/read", h.Notifications.MarkReadHandler).Methods("PUT")
	protected.HandleFunc("/notifications/{id}/unread", h.Notifications.MarkUnreadHandler).Methods("PUT")
	protected.HandleFunc("/notifications/{id}", h.Notifications.DeleteHandler).Methods("DELETE")

	protected.HandleFunc("/reports", h.Reports.ListHandler).Methods("GET")
	protected.HandleFunc("/reports/generate", h.Reports.GenerateHandler).Methods("POST")
	protected.HandleFunc("/reports/download/{filename}", h.Reports.DownloadHandler).Methods("GET")
	protected.Handle("/reports/{filename}",
		middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(h.Reports.DeleteHandler))).Methods("DELETE")

	protected.HandleFunc("/github/import-issues", h.GitHub.ImportIssuesHandler).Methods("POST")
	protected.HandleFunc("/github/token", h.GitHub.SaveTokenHandler).Methods("PUT")
	protected.HandleFunc("/github/token", h.GitHub.DisconnectHandler).Methods("DELETE")
	protected.HandleFunc("/github/status", h.GitHub.StatusHandler).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return middleware.Recovery(middleware.LoggingMiddleware(c.Handler(router)))
}
