package api

import (
	"encoding/json"
	"net/http"
	"runtime"
	"time"
)

type versionResponse struct {
	Service   string `json:"service"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Uptime    string `json:"uptime"`
}

// VersionHandler reports build metadata and process uptime. Empty fields of
// build fall back to "dev" and "unknown", as for a binary built without
// ldflags.
func VersionHandler(build BuildInfo) http.Handler {
	if build.Version == "" {
		build.Version = "dev"
	}
	if build.GitCommit == "" {
		build.GitCommit = "unknown"
	}
	if build.BuildDate == "" {
		build.BuildDate = "unknown"
	}
	started := time.Now()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(versionResponse{
			Service:   "rsvp",
			Version:   build.Version,
			GitCommit: build.GitCommit,
			BuildDate: build.BuildDate,
			GoVersion: runtime.Version(),
			Platform:  runtime.GOOS + "/" + runtime.GOARCH,
			Uptime:    time.Since(started).Truncate(time.Second).String(),
		})
	})
}
