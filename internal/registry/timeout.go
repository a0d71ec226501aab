package registry

import (
	"os"
	"time"

	"github.com/standardbeagle/mcpm/internal/config"
)

const (
	// DefaultConnectionTimeout bounds a single dial plus handshake.
	DefaultConnectionTimeout = 30 * time.Second

	// TimeoutEnvVar overrides the connection timeout for every server that
	// does not set its own.
	TimeoutEnvVar = "MCPM_TIMEOUT"
)

// GetConnectionTimeout resolves the dial timeout for one server. The
// server's own timeout wins, then the environment override, then the
// default. Unparseable or non-positive values fall through to the next
// level rather than failing the connection.
func GetConnectionTimeout(cfg config.ServerConfig) time.Duration {
	if cfg.Timeout != "" {
		if d, err := time.ParseDuration(cfg.Timeout); err == nil && d > 0 {
			return d
		}
	}
	if env := os.Getenv(TimeoutEnvVar); env != "" {
		if d, err := time.ParseDuration(env); err == nil && d > 0 {
			return d
		}
	}
	return DefaultConnectionTimeout
}
