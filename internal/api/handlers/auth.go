package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
)

// AccountService is the account API the auth handlers use.
type AccountService interface {
	Register(ctx context.Context, input users.RegisterInput) (*users.Session, error)
	Login(ctx context.Context, input users.LoginInput) (*users.Session, error)
	Logout(ctx context.Context, userID string) error
}

type AuthHandler struct {
	Service AccountService
	Audit   *audit.Logger
	Env     string
	// TokenTTL is the session cookie Max-Age.
	TokenTTL time.Duration
}

func NewAuthHandler(service AccountService, auditLogger *audit.Logger, env string, tokenTTL time.Duration) *AuthHandler {
	return &AuthHandler{Service: service, Audit: auditLogger, Env: env, TokenTTL: tokenTTL}
}

type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toUserView(u *users.User) userView {
	return userView{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt.UTC(),
	}
}

type sessionResponse struct {
	Status  string   `json:"status"`
	Message string   `json:"message"`
	User    userView `json:"user"`
	Token   string   `json:"token"`
}

type csrfResponse struct {
	Status    string `json:"status"`
	CSRFToken string `json:"csrf_token"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input users.RegisterInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	session, err := h.Service.Register(r.Context(), input)
	if err != nil {
		h.Audit.LogFromRequest(r, "", audit.ActionUserRegister, "user", "", audit.StatusFailure, map[string]string{"reason": err.Error()})
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.LogFromRequest(r, session.User.ID, audit.ActionUserRegister, "user", session.User.ID, audit.StatusSuccess, nil)

	h.setSessionCookie(w, session.Token)
	writeJSON(w, http.StatusCreated, sessionResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("%s's registration successful", session.User.Username),
		User:    toUserView(session.User),
		Token:   session.Token,
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input users.LoginInput
	if err := decodeJSON(r, &input); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	session, err := h.Service.Login(r.Context(), input)
	if err != nil {
		h.Audit.LogFromRequest(r, "", audit.ActionUserLogin, "user", "", audit.StatusFailure, map[string]string{"reason": err.Error()})
		writeError(w, r, err, h.Env)
		return
	}
	h.Audit.LogFromRequest(r, session.User.ID, audit.ActionUserLogin, "user", session.User.ID, audit.StatusSuccess, nil)

	h.setSessionCookie(w, session.Token)
	writeJSON(w, http.StatusOK, sessionResponse{
		Status:  statusSuccess,
		Message: fmt.Sprintf("User %s's login successful", session.User.Username),
		User:    toUserView(session.User),
		Token:   session.Token,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.Service.Logout(r.Context(), middleware.UserID(r.Context())); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	h.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{
		Status:  statusSuccess,
		Message: "Logged out successfully",
	})
}

// CSRFToken hands cookie-session clients the token they must echo in the
// X-CSRF-Token header on unsafe requests.
func (h *AuthHandler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, csrfResponse{
		Status:    statusSuccess,
		CSRFToken: middleware.CSRFToken(r),
	})
}

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.TokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.secureCookies(),
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) secureCookies() bool {
	return h.Env == "production" || h.Env == "staging"
}
