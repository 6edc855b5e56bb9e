// Package credentials validates and normalizes per-tenant store credentials.
//
// A credential is an opaque URI identifying the caller's Qdrant instance.
// Only the qdrant:// (plaintext gRPC) and qdrants:// (TLS) schemes are
// accepted; anything else is rejected before it can reach the connection
// cache or any downstream component.
package credentials

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Accepted URI schemes for store credentials.
const (
	SchemePlain = "qdrant"
	SchemeTLS   = "qdrants"
)

// DefaultPort is the Qdrant gRPC port used when the URI omits one.
const DefaultPort = 6334

// ErrInvalidCredential indicates a missing or malformed store credential.
var ErrInvalidCredential = errors.New("invalid store credential")

// AcceptedSchemes returns the URI scheme prefixes a credential may use,
// in the form they appear in error messages (e.g. "qdrant://").
func AcceptedSchemes() []string {
	return []string{SchemePlain + "://", SchemeTLS + "://"}
}

// Credential is a validated, normalized store credential.
//
// URI is the canonical form used as the connection-cache key. Host, Port
// and UseTLS are the dial parameters derived from it.
type Credential struct {
	URI    string
	Host   string
	Port   int
	UseTLS bool
}

// String returns the canonical URI without userinfo, safe for logging.
func (c Credential) String() string {
	scheme := SchemePlain
	if c.UseTLS {
		scheme = SchemeTLS
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

// Parse validates a raw credential string and normalizes it.
//
// The value must be non-empty and start with one of the accepted schemes.
// A missing port defaults to the Qdrant gRPC port. Returns
// ErrInvalidCredential (wrapped) on any failure; an invalid credential is
// never returned partially populated.
func Parse(raw string) (Credential, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Credential{}, fmt.Errorf("%w: empty value", ErrInvalidCredential)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrInvalidCredential, err)
	}

	var useTLS bool
	switch u.Scheme {
	case SchemePlain:
		useTLS = false
	case SchemeTLS:
		useTLS = true
	default:
		return Credential{}, fmt.Errorf("%w: unsupported scheme %q (expected %s)",
			ErrInvalidCredential, u.Scheme, strings.Join(AcceptedSchemes(), " or "))
	}

	host := u.Hostname()
	if host == "" {
		return Credential{}, fmt.Errorf("%w: missing host", ErrInvalidCredential)
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Credential{}, fmt.Errorf("%w: invalid port %q", ErrInvalidCredential, p)
		}
	}

	cred := Credential{
		Host:   host,
		Port:   port,
		UseTLS: useTLS,
	}
	cred.URI = cred.String()
	return cred, nil
}
