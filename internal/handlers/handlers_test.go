package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synergysphere/server/internal/config"
	"github.com/synergysphere/server/internal/credentials"
	"github.com/synergysphere/server/internal/integrations/github"
	"github.com/synergysphere/server/internal/memstore"
	"github.com/synergysphere/server/internal/models"
	"github.com/synergysphere/server/internal/realtime"
	"github.com/synergysphere/server/internal/services"
	"github.com/synergysphere/server/internal/storage"
	jwtutil "github.com/synergysphere/server/pkg/jwt"
)

const (
	testSecret        = "test-jwt-secret"
	testWebhookSecret = "webhook-secret"
)

type noIssues struct{}

func (noIssues) ListOpenIssues(context.Context, string, string, string) ([]github.Issue, error) {
	return nil, nil
}

type testServer struct {
	*httptest.Server
	hub *realtime.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := &config.Config{JWTSecret: testSecret, TokenExpiry: time.Hour}
	store := memstore.New()
	hub := realtime.NewHub()

	reports, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	creds := credentials.NewKeyringStore(keyring.NewArrayKeyring(nil))

	notifications := services.NewNotificationService(store.Notifications(), hub, nil)
	users := services.NewUserService(store.Users())
	tasks := services.NewTaskService(store.Tasks(), store.Users(), notifications, hub, nil)
	meetings := services.NewMeetingService(store.Meetings(), notifications, hub, nil)
	reportService := services.NewReportService(store.Tasks(), store.Users(), reports, notifications, nil, hub, nil)
	githubService := services.NewGitHubService(noIssues{}, creds, store.Tasks(), notifications, hub, nil, false)

	router := NewRouter(Handlers{
		Users:         NewUserHandler(users, cfg),
		Tasks:         NewTaskHandler(tasks),
		Meetings:      NewMeetingHandler(meetings),
		Notifications: NewNotificationHandler(notifications),
		Reports:       NewReportHandler(reportService),
		GitHub:        NewGitHubHandler(githubService, testWebhookSecret),
		WS:            NewWSHandler(hub, testSecret, []string{"*"}),
		Health:        NewHealthHandler(hub, nil),
	}, RouterOptions{
		JWTSecret:      testSecret,
		AllowedOrigins: []string{"*"},
		LastActive:     users,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, out
}

type session struct {
	Token string            `json:"token"`
	User  models.PublicUser `json:"user"`
}

func (s *testServer) register(t *testing.T, name string) session {
	t.Helper()
	resp, body := s.do(t, "POST", "/api/auth/register", "", map[string]string{
		"username": name,
		"email":    name + "@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out session
	require.NoError(t, json.Unmarshal(body, &out))
	require.NotEmpty(t, out.Token)
	return out
}

func decode(t *testing.T, body []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, v), string(body))
}

func TestAuthFlow(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")

	resp, body := srv.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email":    "ALICE@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = srv.do(t, "POST", "/api/auth/login", "", map[string]string{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var errBody map[string]interface{}
	decode(t, body, &errBody)
	assert.Equal(t, "invalid credentials", errBody["error"])

	resp, body = srv.do(t, "GET", "/api/auth/me", alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.PublicUser
	decode(t, body, &me)
	assert.Equal(t, "alice", me.Username)

	resp, _ = srv.do(t, "GET", "/api/auth/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterValidation(t *testing.T) {
	srv := newTestServer(t)
	resp, body := srv.do(t, "POST", "/api/auth/register", "", map[string]string{
		"username": "al",
		"email":    "not-an-email",
		"password": "123",
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errBody struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decode(t, body, &errBody)
	assert.Contains(t, errBody.Fields, "username")
	assert.Contains(t, errBody.Fields, "password")
}

func TestTaskRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")

	resp, body := srv.do(t, "POST", "/api/tasks", alice.Token, map[string]interface{}{
		"title":    "Write release notes",
		"priority": "high",
		"assignee": bob.User.ID.Hex(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var task models.Task
	decode(t, body, &task)

	resp, _ = srv.do(t, "GET", "/api/tasks/"+task.ID.Hex(), bob.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.do(t, "GET", "/api/tasks/not-an-id", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = srv.do(t, "GET", "/api/tasks/"+strings.Repeat("a", 24), bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = srv.do(t, "DELETE", "/api/tasks/"+task.ID.Hex(), bob.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = srv.do(t, "GET", "/api/tasks?assignee="+bob.User.ID.Hex(), alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page services.TaskPage
	decode(t, body, &page)
	assert.EqualValues(t, 1, page.Total)

	resp, _ = srv.do(t, "DELETE", "/api/tasks/"+task.ID.Hex(), alice.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNotificationRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	bob := srv.register(t, "bob")

	resp, _ := srv.do(t, "POST", "/api/tasks", alice.Token, map[string]interface{}{
		"title":    "Review PR",
		"assignee": bob.User.ID.Hex(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := srv.do(t, "GET", "/api/notifications/unread-count", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var count map[string]int64
	decode(t, body, &count)
	assert.EqualValues(t, 1, count["unreadCount"])

	resp, body = srv.do(t, "GET", "/api/notifications", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page services.NotificationPage
	decode(t, body, &page)
	require.Len(t, page.Notifications, 1)
	id := page.Notifications[0].ID.Hex()
	assert.Equal(t, models.NotificationTaskAssigned, page.Notifications[0].Type)

	// another user cannot touch it
	resp, _ = srv.do(t, "PUT", "/api/notifications/"+id+"/read", alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body = srv.do(t, "PUT", "/api/notifications/"+id+"/read", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var notif models.Notification
	decode(t, body, &notif)
	assert.True(t, notif.Read)

	resp, body = srv.do(t, "GET", "/api/notifications?read=false", bob.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decode(t, body, &page)
	assert.Empty(t, page.Notifications)

	resp, _ = srv.do(t, "GET", "/api/notifications?read=maybe", bob.Token, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = srv.do(t, "DELETE", "/api/notifications/clear-read", bob.Token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = srv.do(t, "GET", "/api/notifications/"+id, bob.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestReportRoutes(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")

	resp, body := srv.do(t, "POST", "/api/reports/generate", alice.Token, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var generated struct {
		Filename    string `json:"filename"`
		DownloadURL string `json:"downloadUrl"`
		Notified    int    `json:"notified"`
	}
	decode(t, body, &generated)
	assert.Equal(t, "/api/reports/download/"+generated.Filename, generated.DownloadURL)
	assert.Equal(t, 1, generated.Notified)

	resp, body = srv.do(t, "GET", generated.DownloadURL, alice.Token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))

	resp, _ = srv.do(t, "GET", "/api/reports/download/missing.pdf", alice.Token, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = srv.do(t, "DELETE", "/api/reports/"+generated.Filename, alice.Token, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	admin, err := jwtutil.GenerateToken(alice.User.ID.Hex(), "alice@example.com", models.RoleAdmin, testSecret, time.Hour)
	require.NoError(t, err)
	resp, _ = srv.do(t, "DELETE", "/api/reports/"+generated.Filename, admin, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func signedWebhook(t *testing.T, url, event, secret string, payload []byte) *http.Response {
	t.Helper()
	req, err := http.NewRequest("POST", url, bytes.NewReader(payload))
	require.NoError(t, err)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestGitHubWebhookRoute(t *testing.T) {
	srv := newTestServer(t)
	url := srv.URL + "/api/github/webhook"

	resp := signedWebhook(t, url, "ping", testWebhookSecret, []byte(`{"zen":"Keep it logically awesome."}`))
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = signedWebhook(t, url, "ping", "wrong-secret", []byte(`{"zen":"nope"}`))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	payload := []byte(`{"action":"closed","issue":{"id":1,"number":1,"title":"Untracked"},"repository":{"full_name":"acme/app"}}`)
	resp = signedWebhook(t, url, "issues", testWebhookSecret, payload)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGitHubImportRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")

	resp, _ := srv.do(t, "POST", "/api/github/import-issues", alice.Token, map[string]string{"owner": "acme", "repo": "app"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := srv.do(t, "PUT", "/api/github/token", alice.Token, map[string]string{"accessToken": "ghp_test", "login": "alice"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = srv.do(t, "POST", "/api/github/import-issues", alice.Token, map[string]string{"owner": "acme", "repo": "app"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var result services.ImportResult
	decode(t, body, &result)
	assert.Equal(t, "acme/app", result.Repository)
	assert.Empty(t, result.Imported)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := srv.do(t, "GET", "/api/health", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var health map[string]interface{}
	decode(t, body, &health)
	assert.Equal(t, "ok", health["status"])
	assert.Contains(t, health, "realtime")
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

// readUntil skips presence broadcasts and returns the first envelope named event.
func readUntil(t *testing.T, conn *websocket.Conn, event string) realtime.Envelope {
	t.Helper()
	for i := 0; i < 10; i++ {
		env := readEnvelope(t, conn)
		if env.Event == event {
			return env
		}
	}
	t.Fatalf("no %q event received", event)
	return realtime.Envelope{}
}

func TestWebSocket(t *testing.T) {
	srv := newTestServer(t)
	alice := srv.register(t, "alice")
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+alice.Token, nil)
	require.NoError(t, err)
	defer conn.Close()

	connected := readUntil(t, conn, "connected")
	data := connected.Data.(map[string]interface{})
	assert.Equal(t, realtime.UserRoom(alice.User.ID.Hex()), data["room"])

	// joining someone else's room is refused
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event": "join-user",
		"data":  map[string]string{"userId": "someone-else"},
	}))
	rejected := readUntil(t, conn, "error")
	assert.Equal(t, "join-user", rejected.Data.(map[string]interface{})["event"])
	assert.Zero(t, srv.hub.RoomSize(realtime.UserRoom("someone-else")))

	srv.hub.EmitToUser(alice.User.ID.Hex(), "notification", map[string]string{"title": "hello"})
	pushed := readUntil(t, conn, "notification")
	assert.Equal(t, "hello", pushed.Data.(map[string]interface{})["title"])
}
