package handoff

import (
	"errors"
	"net/url"
)

// Queue-level failure values.
var (
	// ErrNotInstalled is returned by Submit when the target application
	// cannot be resolved while the host is active.
	ErrNotInstalled = errors.New("handoff target not installed")

	// ErrInvalidURL is returned when a hand-off target URL cannot be built.
	ErrInvalidURL = errors.New("invalid handoff url")
)

// HandoffError wraps an open attempt that the target explicitly rejected.
type HandoffError struct {
	Err error
}

func (e *HandoffError) Error() string { return "handoff failed: " + e.Err.Error() }
func (e *HandoffError) Unwrap() error { return e.Err }

// TargetURL builds the hand-off invocation URL:
// scheme://create?text=<encoded>&tag=<encoded>, with tag omitted when empty.
func TargetURL(scheme, text, tag string) (string, error) {
	if !validScheme(scheme) {
		return "", ErrInvalidURL
	}
	q := url.Values{}
	q.Set("text", text)
	if tag != "" {
		q.Set("tag", tag)
	}
	u := url.URL{Scheme: scheme, Host: "create", RawQuery: q.Encode()}
	return u.String(), nil
}

// ProbeURL is the bare scheme URL used to check target installation.
func ProbeURL(scheme string) string {
	return scheme + "://"
}

func validScheme(scheme string) bool {
	if scheme == "" {
		return false
	}
	for i, r := range scheme {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}
