package entity

import (
	"errors"
	"net/url"
	"strings"
)

var (
	ErrEmptyEndpoint    = errors.New("endpoint is empty")
	ErrRelativeEndpoint = errors.New("endpoint must be an absolute URL with a scheme")
)

// Endpoint is the validated address of the remote node's RPC service.
// The zero value is not valid; build one with ParseEndpoint. Accessors hand
// out copies so an Endpoint stays immutable once created.
type Endpoint struct {
	u url.URL
}

// ParseEndpoint parses raw as an absolute URL. Any scheme is accepted and no
// host is required, so IPC style addresses such as file:///var/run/geth.ipc
// are valid.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, ErrEmptyEndpoint
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, err
	}
	if u.Scheme == "" {
		return Endpoint{}, ErrRelativeEndpoint
	}
	return Endpoint{u: *u}, nil
}

// URL returns a copy of the parsed URL.
func (e Endpoint) URL() *url.URL {
	u := e.u
	if e.u.User != nil {
		user := *e.u.User
		u.User = &user
	}
	return &u
}

func (e Endpoint) String() string { return e.u.String() }

// Redacted is String with any password replaced, for log output.
func (e Endpoint) Redacted() string { return e.u.Redacted() }

func (e Endpoint) Scheme() string { return strings.ToLower(e.u.Scheme) }

func (e Endpoint) IsZero() bool { return e.u.Scheme == "" }

// SupportsSubscriptions reports whether the transport can carry
// server-pushed notifications.
func (e Endpoint) SupportsSubscriptions() bool {
	switch e.Scheme() {
	case "ws", "wss":
		return true
	default:
		return false
	}
}
