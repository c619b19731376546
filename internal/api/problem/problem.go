// Package problem writes RFC 7807 problem documents.
package problem

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://rsvp.togather.events/problems/"

// Problem types returned by the API.
const (
	TypeValidation       = typeBase + "validation-error"
	TypeNotFound         = typeBase + "not-found"
	TypeNotRegistered    = typeBase + "not-registered"
	TypeConflict         = typeBase + "conflict"
	TypeCapacity         = typeBase + "capacity"
	TypeUnauthorized     = typeBase + "unauthorized"
	TypeForbidden        = typeBase + "forbidden"
	TypeEmailTaken       = typeBase + "email-taken"
	TypeTooLarge         = typeBase + "payload-too-large"
	TypeRateLimited      = typeBase + "rate-limited"
	TypeCSRF             = typeBase + "csrf-failure"
	TypeServerError      = typeBase + "server-error"
	TypeMethodNotAllowed = typeBase + "method-not-allowed"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("too many requests, try again later")
)

// fallbackBody is sent when a problem cannot be encoded.
const fallbackBody = `{"type":"about:blank","title":"Internal Server Error","status":500}`

type ProblemDetails struct {
	Type     string         `json:"type"`
	Title    string         `json:"title"`
	Status   int            `json:"status"`
	Detail   string         `json:"detail,omitempty"`
	Instance string         `json:"instance,omitempty"`
	Errors   map[string]any `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) { p.Detail = detail }
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) { p.Instance = instance }
}

// WithErrors attaches per-field messages.
func WithErrors(errs map[string]any) Option {
	return func(p *ProblemDetails) { p.Errors = errs }
}

// Write logs err and sends a problem document. Client errors always carry
// err's message as the detail; server errors only do in development and
// test.
func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	p := ProblemDetails{Type: typ, Title: title, Status: status}
	for _, opt := range opts {
		opt(&p)
	}

	if p.Detail == "" && err != nil {
		p.Detail = detailFor(status, err, env)
	}
	if p.Instance == "" && r != nil {
		p.Instance = r.URL.Path
	}
	if err != nil && r != nil {
		logProblem(r, p, err)
	}

	WriteProblem(w, p)
}

func detailFor(status int, err error, env string) string {
	if status < http.StatusInternalServerError || env == "development" || env == "test" {
		return err.Error()
	}
	return http.StatusText(status)
}

func logProblem(r *http.Request, p ProblemDetails, err error) {
	logger := zerolog.Ctx(r.Context())
	event := logger.Warn()
	if p.Status >= http.StatusInternalServerError {
		event = logger.Error()
	}
	event.Err(err).
		Int("status", p.Status).
		Str("type", p.Type).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Msg(p.Title)
}

// WriteProblem encodes p as the response body with p.Status.
func WriteProblem(w http.ResponseWriter, p ProblemDetails) {
	w.Header().Set("Content-Type", contentType)

	payload, err := json.Marshal(p)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallbackBody))
		return
	}
	w.WriteHeader(p.Status)
	_, _ = w.Write(payload)
}
