package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

func newResendTestService(t *testing.T, handler http.HandlerFunc) *Service {
	t.Helper()
	mockServer := httptest.NewServer(handler)
	t.Cleanup(mockServer.Close)

	svc, err := NewService(config.EmailConfig{
		Enabled:      true,
		Provider:     ProviderResend,
		From:         "Togather <events@example.com>",
		ResendAPIKey: "test-api-key",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	baseURL, _ := url.Parse(mockServer.URL)
	svc.resendClient.BaseURL = baseURL
	return svc
}

// TestSendEventNotification_Resend verifies the request sent to the Resend API
func TestSendEventNotification_Resend(t *testing.T) {
	var got resend.SendEmailRequest
	svc := newResendTestService(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("Expected POST /emails, got %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if auth := r.Header.Get("Authorization"); !strings.HasPrefix(auth, "Bearer ") {
			t.Errorf("Expected Bearer token in Authorization header, got %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("Failed to decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "mock-email-id-123"})
	})

	err := svc.SendEventNotification(context.Background(), "ada@example.com", events.NotificationRegistered, NotificationData{
		Username:   "ada",
		EventTitle: "go night",
	})
	if err != nil {
		t.Fatalf("SendEventNotification() error = %v", err)
	}

	if got.From != "Togather <events@example.com>" {
		t.Errorf("From = %q", got.From)
	}
	if len(got.To) != 1 || got.To[0] != "ada@example.com" {
		t.Errorf("To = %v, want [ada@example.com]", got.To)
	}
	if got.Subject != "ada, you are successfully registered for the go night event!" {
		t.Errorf("Subject = %q", got.Subject)
	}
	if !strings.Contains(got.Html, "successfully registered for the <strong>go night</strong> event") {
		t.Errorf("Html missing registration text: %q", got.Html)
	}
}

// TestSendViaResend_RateLimitError verifies rate limit errors are surfaced for retry
func TestSendViaResend_RateLimitError(t *testing.T) {
	svc := newResendTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Rate limit exceeded"})
	})

	err := svc.sendViaResend(context.Background(), "recipient@example.com", "Subject", "<p>Body</p>")
	if err == nil {
		t.Fatal("Expected rate limit error, got nil")
	}
	if !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("Expected error message to contain 'rate limit', got: %v", err)
	}
}

// TestSendViaResend_ServerError verifies API failures are returned
func TestSendViaResend_ServerError(t *testing.T) {
	svc := newResendTestService(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "boom"})
	})

	err := svc.sendViaResend(context.Background(), "recipient@example.com", "Subject", "<p>Body</p>")
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), "resend API error") {
		t.Errorf("Expected resend API error, got: %v", err)
	}
}

// TestSendViaResend_ContextCancellation verifies context cancellation handling
func TestSendViaResend_ContextCancellation(t *testing.T) {
	svc := newResendTestService(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called with cancelled context")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.sendViaResend(ctx, "recipient@example.com", "Subject", "<p>Body</p>")
	if err == nil {
		t.Fatal("Expected context cancellation error, got nil")
	}
	if !errors.Is(err, context.Canceled) && !strings.Contains(err.Error(), "context canceled") {
		t.Errorf("Expected context.Canceled error, got: %v", err)
	}
}

// TestSendViaResend_NilClient verifies error when Resend client is not initialized
func TestSendViaResend_NilClient(t *testing.T) {
	svc := &Service{
		config: config.EmailConfig{Enabled: true, Provider: ProviderResend, From: "test@example.com"},
		logger: zerolog.Nop(),
	}

	err := svc.sendViaResend(context.Background(), "recipient@example.com", "Subject", "<p>Body</p>")
	if err == nil || !strings.Contains(err.Error(), "not initialized") {
		t.Errorf("Expected not initialized error, got: %v", err)
	}
}
