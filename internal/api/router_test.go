package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	routerEventID = "01HZ0000000000000000000000"
	routerUserID  = "01HZ0000000000000000000001"
	validToken    = "valid-token"
)

type fakeEvents struct {
	created bool
}

func (f *fakeEvents) Create(_ context.Context, creatorID string, input events.CreateInput) (*events.EventDetail, error) {
	f.created = true
	return &events.EventDetail{Event: &events.Event{ID: routerEventID, Title: input.Title, TotalCapacity: *input.Capacity, CreatedBy: creatorID}}, nil
}

func (f *fakeEvents) Get(_ context.Context, id string) (*events.EventDetail, error) {
	if id != routerEventID {
		return nil, events.ErrNotFound
	}
	return &events.EventDetail{Event: &events.Event{ID: id, Title: "Go Meetup", TotalCapacity: 5}}, nil
}

func (f *fakeEvents) List(context.Context, events.Filters) (events.ListResult, error) {
	return events.ListResult{Events: []events.Event{{ID: routerEventID, Title: "Go Meetup"}}, Total: 1}, nil
}

func (f *fakeEvents) Update(context.Context, string, string, events.UpdateInput) (*events.Event, error) {
	return nil, events.ErrForbidden
}

func (f *fakeEvents) Delete(context.Context, string, string) error {
	return nil
}

func (f *fakeEvents) Register(_ context.Context, eventID, userID string) (*events.Attendee, error) {
	return &events.Attendee{ID: "a1", EventID: eventID, UserID: userID}, nil
}

func (f *fakeEvents) Cancel(context.Context, string, string) error {
	return events.ErrNotRegistered
}

type fakeAccounts struct{}

func (fakeAccounts) Register(context.Context, users.RegisterInput) (*users.Session, error) {
	return &users.Session{User: &users.User{ID: routerUserID, Username: "alice"}, Token: validToken}, nil
}

func (fakeAccounts) Login(context.Context, users.LoginInput) (*users.Session, error) {
	return nil, users.ErrInvalidCredentials
}

func (fakeAccounts) Logout(context.Context, string) error { return nil }

type fakeAuthenticator struct{}

func (fakeAuthenticator) Authenticate(_ context.Context, token string) (*users.User, error) {
	if token != validToken {
		return nil, auth.ErrInvalidToken
	}
	return &users.User{ID: routerUserID, Username: "alice"}, nil
}

func testConfig() config.Config {
	cfg := config.Defaults()
	cfg.Environment = "test"
	cfg.Auth.JWTSecret = strings.Repeat("s", 32)
	cfg.RateLimit.LoginPerMinute = 2
	return cfg
}

func newTestRouter(t *testing.T) (*Router, *fakeEvents) {
	t.Helper()
	ev := &fakeEvents{}
	router := NewRouter(testConfig(), zerolog.Nop(), Services{
		Events:        ev,
		Accounts:      fakeAccounts{},
		Authenticator: fakeAuthenticator{},
	}, BuildInfo{Version: "1.2.3"})
	t.Cleanup(router.Stop)
	return router, ev
}

func do(router http.Handler, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func bearer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + validToken}
}

func TestRouter_PublicRoutes(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name   string
		target string
		want   int
	}{
		{"liveness", "/healthz", http.StatusOK},
		{"version", "/version", http.StatusOK},
		{"openapi", "/api/v1/openapi.json", http.StatusOK},
		{"metrics", "/metrics", http.StatusOK},
		{"list events", "/api/v1/events", http.StatusOK},
		{"get event", "/api/v1/events/" + routerEventID, http.StatusOK},
		{"unknown event", "/api/v1/events/01HZ0000000000000000000009", http.StatusNotFound},
		{"csrf token", "/api/v1/auth/csrf", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, tt.target, "", nil)
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRouter_CommonHeaders(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/api/v1/events", "", map[string]string{"X-Request-ID": "req-123"})

	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
}

func TestRouter_ProtectedRoutesRequireAuth(t *testing.T) {
	router, ev := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/events", `{"title":"x","date":"2026-06-01","location":"y","capacity":1}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(router, http.MethodPost, "/api/v1/events", `{"title":"x","date":"2026-06-01","location":"y","capacity":1}`,
		map[string]string{"Authorization": "Bearer stale"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, ev.created)
}

func TestRouter_BearerSkipsCSRF(t *testing.T) {
	router, ev := newTestRouter(t)

	w := do(router, http.MethodPost, "/api/v1/events", `{"title":"x","date":"2026-06-01","location":"y","capacity":1}`, bearer())
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, ev.created)

	w = do(router, http.MethodPost, "/api/v1/events/"+routerEventID+"/register", "", bearer())
	assert.Equal(t, http.StatusCreated, w.Code)

	w = do(router, http.MethodDelete, "/api/v1/events/"+routerEventID+"/register", "", bearer())
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(router, http.MethodPut, "/api/v1/events/"+routerEventID, `{"title":"z"}`, bearer())
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_CookieSessionNeedsCSRFToken(t *testing.T) {
	router, ev := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/events", strings.NewReader(`{"title":"x","date":"2026-06-01","location":"y","capacity":1}`))
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: validToken})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.False(t, ev.created)
}

func TestRouter_LoginIsRateLimited(t *testing.T) {
	router, _ := newTestRouter(t)

	body := `{"email":"alice@example.com","password":"wrong"}`
	for i := 0; i < 2; i++ {
		w := do(router, http.MethodPost, "/api/v1/auth/login", body, nil)
		require.Equal(t, http.StatusUnauthorized, w.Code)
	}

	w := do(router, http.MethodPost, "/api/v1/auth/login", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPatch, "/api/v1/events/"+routerEventID, "", nil)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Contains(t, w.Header().Get("Allow"), http.MethodGet)
}

func TestRouter_ReadinessRoutesNeedChecker(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCSRFKey(t *testing.T) {
	fromSecret := csrfKey(config.AuthConfig{JWTSecret: "a"})
	fromKey := csrfKey(config.AuthConfig{JWTSecret: "a", CSRFKey: "b"})

	assert.Len(t, fromSecret, 32)
	assert.NotEqual(t, fromSecret, fromKey)
}

func TestMaxBodyBytes(t *testing.T) {
	assert.EqualValues(t, 1<<20, maxBodyBytes(config.ServerConfig{}))
	assert.EqualValues(t, 512, maxBodyBytes(config.ServerConfig{MaxBodyBytes: 512}))
}

