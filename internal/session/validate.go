package session

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

var idRegexp = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidateID checks that id is usable both as a URL path segment and as a
// directory name.
func ValidateID(id string) error {
	if !idRegexp.MatchString(id) {
		return fmt.Errorf("invalid session id %q: must match ^[A-Za-z0-9_-]{1,64}$", id)
	}
	return nil
}

// Endpoint returns the chat socket URL for a session: <base>/ws/chat/<id>.
func Endpoint(baseURL, id string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported base url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url %q has no host", baseURL)
	}
	return u.JoinPath("ws", "chat", id).String(), nil
}
