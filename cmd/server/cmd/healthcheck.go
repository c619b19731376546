package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

// HealthResponse matches the /health report.
type HealthResponse struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

type CheckResult struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func newHealthcheckCommand() *cobra.Command {
	var (
		timeout time.Duration
		url     string
		strict  bool
	)
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Check if the server is healthy",
		Long: `Performs a health check by calling the /health endpoint.

This command is used by Docker HEALTHCHECK to monitor container health.
It exits with code 0 if the server is healthy, non-zero otherwise. A
degraded server (for example with background jobs disabled) counts as
healthy unless --strict is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if url == "" {
				port := os.Getenv("SERVER_PORT")
				if port == "" {
					port = "8080"
				}
				url = fmt.Sprintf("http://localhost:%s/health", port)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			resp, err := performHealthCheck(ctx, http.DefaultClient, url)
			if err != nil {
				return err
			}
			if !acceptableStatus(resp.Status, strict) {
				for name, check := range resp.Checks {
					if check.Status != "pass" {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s %s\n", name, check.Status, check.Message)
					}
				}
				return fmt.Errorf("unhealthy: status=%s", resp.Status)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "status: %s\n", resp.Status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	cmd.Flags().StringVar(&url, "url", "", "health check URL (default: http://localhost:{SERVER_PORT}/health)")
	cmd.Flags().BoolVar(&strict, "strict", false, "treat a degraded server as unhealthy")
	return cmd
}

// performHealthCheck fetches and decodes the health report. A 503 still
// carries a report, so only transport and decode failures are errors.
func performHealthCheck(ctx context.Context, client *http.Client, url string) (HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("health check failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var health HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return HealthResponse{}, fmt.Errorf("invalid health response (status %d): %w", resp.StatusCode, err)
	}
	if health.Status == "" {
		return HealthResponse{}, fmt.Errorf("invalid health response (status %d): missing status", resp.StatusCode)
	}
	return health, nil
}

func acceptableStatus(status string, strict bool) bool {
	switch status {
	case "healthy":
		return true
	case "degraded":
		return !strict
	default:
		return false
	}
}
