package auth

import (
	"errors"
	"regexp"
	"strings"

	"github.com/standardbeagle/mcpm/internal/config"
	"github.com/standardbeagle/mcpm/internal/connector"
)

// Classification says whether a connection failure is fixable by
// authorization, and how.
type Classification struct {
	// RequiresAuth is true when the failure was an auth rejection.
	RequiresAuth bool
	// AuthType is the credential kind the server expects, one of the
	// config.AuthType values. Only meaningful when RequiresAuth.
	AuthType string
	// ResourceMetadataURL is the protected-resource metadata URL the server
	// advertised in its WWW-Authenticate challenge, if any. Discovery uses
	// it as a shortcut.
	ResourceMetadataURL string
}

var resourceMetadataRe = regexp.MustCompile(`resource_metadata="([^"]+)"`)

// Analyze inspects a connection failure and decides whether authorization
// would fix it. It reads the structured fields of connector.ConnectError;
// anything else is not an auth problem.
func Analyze(err error) Classification {
	var connErr *connector.ConnectError
	if !errors.As(err, &connErr) {
		return Classification{}
	}
	if connErr.Kind != connector.FailureAuth {
		return Classification{}
	}

	c := Classification{RequiresAuth: true, AuthType: config.AuthTypeOAuth}

	switch challengeScheme(connErr.Challenge) {
	case "apikey", "basic":
		c.AuthType = config.AuthTypeAPIKey
	}

	if m := resourceMetadataRe.FindStringSubmatch(connErr.Challenge); m != nil {
		c.ResourceMetadataURL = m[1]
	}
	return c
}

// challengeScheme returns the lowercased auth scheme of a WWW-Authenticate
// value, e.g. "bearer" for `Bearer resource_metadata="..."`.
func challengeScheme(challenge string) string {
	fields := strings.Fields(challenge)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(fields[0])
}
