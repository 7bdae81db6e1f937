// Package buildinfo holds version and build metadata stamped at compile time via ldflags.
package buildinfo

import (
	"fmt"
	"runtime"
	"time"
)

// Stamped with -ldflags "-X github.com/seedclaw/seedclaw/internal/buildinfo.Version=...".
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// Uptime returns the duration since process start, truncated to seconds.
func Uptime() time.Duration {
	return time.Since(startTime).Truncate(time.Second)
}

// UserAgent is sent on every outbound HTTP request.
func UserAgent() string {
	return "SeedClaw/" + Version + " (+https://github.com/seedclaw/seedclaw)"
}

// Info returns build and runtime details for the status command and
// MQTT device metadata.
func Info() map[string]string {
	return map[string]string{
		"version":    Version,
		"git_commit": GitCommit,
		"build_time": BuildTime,
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		"uptime":     Uptime().String(),
	}
}

// String returns a one-line summary for logging.
func String() string {
	return fmt.Sprintf("SeedClaw %s (%s) built %s", Version, GitCommit, BuildTime)
}
