package speech

import (
	"context"
	"errors"
)

var (
	// ErrUnavailable means no speech engine can be used on this host.
	ErrUnavailable = errors.New("speech recognition unavailable")
	// ErrPermissionDenied means capture is not permitted.
	ErrPermissionDenied = errors.New("speech recognition permission denied")
)

// Recognizer defines the contract for any speech recognition backend.
type Recognizer interface {
	// Name returns adapter name for logging/metrics.
	Name() string
	// Initialize prepares the engine. It returns ErrUnavailable or
	// ErrPermissionDenied (possibly wrapped) when listening is impossible.
	Initialize(ctx context.Context) error
	// SetCallbacks installs the handlers for the next listening session.
	SetCallbacks(onResult func(text string), onError func(err error))
	// StartListening opens a session. Exactly one of the callbacks fires per
	// session unless Cancel preempts it.
	StartListening(ctx context.Context) error
	// StopListening ends capture and lets the engine deliver its result.
	StopListening() error
	// Cancel ends the session without delivering any callback.
	Cancel() error
	// Destroy releases the engine.
	Destroy() error
}

// TextFeeder is implemented by recognizers that accept typed input in place
// of audio.
type TextFeeder interface {
	Feed(text string) bool
}

// IsUnavailable reports whether err means listening cannot happen at all.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, ErrPermissionDenied)
}
