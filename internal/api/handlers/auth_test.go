package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccountService struct {
	registerFn func(ctx context.Context, input users.RegisterInput) (*users.Session, error)
	loginFn    func(ctx context.Context, input users.LoginInput) (*users.Session, error)
	logoutFn   func(ctx context.Context, userID string) error
}

func (s stubAccountService) Register(ctx context.Context, input users.RegisterInput) (*users.Session, error) {
	return s.registerFn(ctx, input)
}

func (s stubAccountService) Login(ctx context.Context, input users.LoginInput) (*users.Session, error) {
	return s.loginFn(ctx, input)
}

func (s stubAccountService) Logout(ctx context.Context, userID string) error {
	return s.logoutFn(ctx, userID)
}

func sampleSession() *users.Session {
	return &users.Session{
		User: &users.User{
			ID:        testUserID,
			Username:  "alice",
			Email:     "alice@example.com",
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		Token: "signed.jwt.token",
	}
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie set", auth.CookieName)
	return nil
}

func TestAuthRegister(t *testing.T) {
	var got users.RegisterInput
	h := NewAuthHandler(stubAccountService{
		registerFn: func(_ context.Context, input users.RegisterInput) (*users.Session, error) {
			got = input
			return sampleSession(), nil
		},
	}, nil, "production", time.Hour)

	body := `{"username":"alice","email":"alice@example.com","password":"Secret#1","confirmPassword":"Secret#1"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	w := httptest.NewRecorder()
	h.Register(w, req)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "Secret#1", got.ConfirmPassword)

	resp := decodeBody(t, w)
	assert.Equal(t, "alice's registration successful", resp["message"])
	assert.Equal(t, "signed.jwt.token", resp["token"])
	user := resp["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.NotContains(t, user, "password_hash")

	cookie := sessionCookie(t, w)
	assert.Equal(t, "signed.jwt.token", cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, 3600, cookie.MaxAge)
}

func TestAuthRegister_EmailTaken(t *testing.T) {
	h := NewAuthHandler(stubAccountService{
		registerFn: func(context.Context, users.RegisterInput) (*users.Session, error) {
			return nil, users.ErrEmailTaken
		},
	}, nil, "test", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(`{"username":"alice"}`))
	w := httptest.NewRecorder()
	h.Register(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, w.Result().Cookies())
}

func TestAuthLogin(t *testing.T) {
	h := NewAuthHandler(stubAccountService{
		loginFn: func(_ context.Context, input users.LoginInput) (*users.Session, error) {
			if input.Password != "Secret#1" {
				return nil, users.ErrInvalidCredentials
			}
			return sampleSession(), nil
		},
	}, nil, "development", time.Hour)

	t.Run("success", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"Secret#1"}`))
		w := httptest.NewRecorder()
		h.Login(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "User alice's login successful", decodeBody(t, w)["message"])
		cookie := sessionCookie(t, w)
		assert.False(t, cookie.Secure, "development cookies work over plain http")
	})

	t.Run("wrong password", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"email":"alice@example.com","password":"nope"}`))
		w := httptest.NewRecorder()
		h.Login(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestAuthLogout(t *testing.T) {
	var loggedOut string
	h := NewAuthHandler(stubAccountService{
		logoutFn: func(_ context.Context, userID string) error {
			loggedOut = userID
			return nil
		},
	}, nil, "test", time.Hour)

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req = req.WithContext(middleware.ContextWithUser(req.Context(), &users.User{ID: testUserID}, middleware.AuthCookie))
	w := httptest.NewRecorder()
	h.Logout(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, testUserID, loggedOut)
	cookie := sessionCookie(t, w)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0)
}

func TestAuthCSRFToken(t *testing.T) {
	h := NewAuthHandler(stubAccountService{}, nil, "test", time.Hour)
	protected := middleware.CSRFProtection([]byte("0123456789abcdef0123456789abcdef"), false, "test")(http.HandlerFunc(h.CSRFToken))

	w := httptest.NewRecorder()
	protected.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/csrf", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decodeBody(t, w)["csrf_token"])
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
