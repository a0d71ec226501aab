package connector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
)

// FailureKind categorizes why a connection attempt failed. Kinds are assigned
// here, where the transport details are still visible, so downstream code
// never has to pattern-match error strings.
type FailureKind string

const (
	// FailureAuth means the server rejected the request with 401 or 403.
	FailureAuth FailureKind = "auth"
	// FailureNetwork means the server could not be reached at all.
	FailureNetwork FailureKind = "network"
	// FailureTimeout means the connection attempt exceeded its deadline.
	FailureTimeout FailureKind = "timeout"
	// FailureProcess means a stdio server's command could not be started.
	FailureProcess FailureKind = "process"
	// FailureProtocol covers handshake and other MCP-level failures.
	FailureProtocol FailureKind = "protocol"
)

// ConnectError reports a failed connection attempt with enough structure for
// auth classification: the HTTP status and WWW-Authenticate challenge are
// captured when the transport saw them.
type ConnectError struct {
	Server    string
	Endpoint  string
	Kind      FailureKind
	Status    int
	Challenge string
	Err       error
}

func (e *ConnectError) Error() string {
	if e.Endpoint != "" {
		return fmt.Sprintf("failed to connect to MCP %s (%s): %v", e.Server, e.Endpoint, e.Err)
	}
	return fmt.Sprintf("failed to connect to MCP %s: %v", e.Server, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// classifyKind maps a raw connect error to a FailureKind. A recorded 401/403
// takes priority: the handshake error it causes is a symptom, not the cause.
func classifyKind(err error, status int) FailureKind {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return FailureAuth
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, exec.ErrNotFound) {
		return FailureProcess
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return FailureProcess
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureNetwork
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return FailureNetwork
	}
	return FailureProtocol
}
