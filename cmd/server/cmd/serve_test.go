package cmd

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestServeCommandHelp(t *testing.T) {
	cmd := newServeCommand()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("serve command --help failed: %v", err)
	}

	output := buf.String()
	for _, expected := range []string{
		"Start the RSVP HTTP server",
		"--host",
		"--port",
		"--migrate",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected help text to contain %q, got:\n%s", expected, output)
		}
	}
}

func TestServeCommandFlagParsing(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
	}{
		{name: "valid host flag", args: []string{"--host", "127.0.0.1"}},
		{name: "valid port flag", args: []string{"--port", "9090"}},
		{name: "disable migrations", args: []string{"--migrate=false"}},
		{name: "invalid port value", args: []string{"--port", "invalid"}, expectError: true},
		{name: "unknown flag", args: []string{"--unknown"}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newServeCommand()
			err := cmd.ParseFlags(tt.args)
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRunServerConfigError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "")

	err := runServer(context.Background(), serveOptions{})
	if err == nil || !strings.Contains(err.Error(), "config error") {
		t.Fatalf("expected config error, got %v", err)
	}
}
