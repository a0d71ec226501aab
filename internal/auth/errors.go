package auth

import (
	"fmt"
	"strings"
)

// FlowErrorKind categorizes authorization flow failures. Kinds come from
// inspecting the OAuth response, not from matching message text.
type FlowErrorKind string

const (
	// FlowTimeout means the user did not complete authorization in time.
	FlowTimeout FlowErrorKind = "timeout"
	// FlowDenied means the user or server refused the authorization.
	FlowDenied FlowErrorKind = "authorization_denied"
	// FlowInvalidGrant means the code or refresh token was rejected.
	FlowInvalidGrant FlowErrorKind = "invalid_grant"
	// FlowNetworkUnavailable means the token endpoint could not be reached.
	FlowNetworkUnavailable FlowErrorKind = "network_unavailable"
	// FlowUnknown covers everything else.
	FlowUnknown FlowErrorKind = "unknown"
)

// FlowError reports a failed authorization flow.
type FlowError struct {
	Kind   FlowErrorKind
	Detail string
	Err    error
}

func (e *FlowError) Error() string {
	var msg string
	switch e.Kind {
	case FlowTimeout:
		msg = "authorization timed out"
	case FlowDenied:
		msg = "authorization was denied"
	case FlowInvalidGrant:
		msg = "authorization grant was rejected"
	case FlowNetworkUnavailable:
		msg = "could not reach the token endpoint"
	default:
		msg = "authorization failed"
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// MissingCredentialError is returned when a config references auth material
// that is not in the credential store.
type MissingCredentialError struct {
	Server       string
	CredentialID string
}

func (e *MissingCredentialError) Error() string {
	var sb strings.Builder
	if e.CredentialID != "" {
		fmt.Fprintf(&sb, "credential %s for MCP %s is not in the store\n\n", e.CredentialID, e.Server)
	} else {
		fmt.Fprintf(&sb, "no stored credential for MCP %s\n\n", e.Server)
	}
	sb.WriteString("Fix:\n")
	fmt.Fprintf(&sb, "1. Authorize the server: mcpm auth login %s\n", e.Server)
	fmt.Fprintf(&sb, "2. Or remove the auth block: mcpm get %s\n", e.Server)
	return sb.String()
}

// AuthRequiredError records that a server rejected the connection for lack of
// credentials.
type AuthRequiredError struct {
	Server   string
	AuthType string
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("MCP %s requires %s authentication; run: mcpm auth login %s", e.Server, e.AuthType, e.Server)
}

// DiscoveryFailedError means no OAuth endpoints could be located for a
// server. The caller cannot auto-configure auth and must be told so.
type DiscoveryFailedError struct {
	ServerURL string
	Err       error
}

func (e *DiscoveryFailedError) Error() string {
	return fmt.Sprintf("could not discover OAuth endpoints for %s: %v", e.ServerURL, e.Err)
}

func (e *DiscoveryFailedError) Unwrap() error {
	return e.Err
}
