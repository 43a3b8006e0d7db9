// Package textinput is a speech.Recognizer fed with typed text. A line is
// accepted only while a session is open, like speech that nobody listens to.
package textinput

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/redact"
)

var (
	// ErrNoInput is delivered when a session is stopped before any text
	// arrived.
	ErrNoInput = errors.New("no input")
	// ErrDestroyed is returned after Destroy.
	ErrDestroyed = errors.New("text input destroyed")
)

type session struct {
	onResult func(string)
	onError  func(error)
}

type Recognizer struct {
	logger *slog.Logger

	mu        sync.Mutex
	onResult  func(string)
	onError   func(error)
	active    *session
	destroyed bool
}

func New(logger *slog.Logger) *Recognizer {
	return &Recognizer{logger: logging.NewComponentLogger(logger, "text_input")}
}

func (r *Recognizer) Name() string { return "textinput" }

func (r *Recognizer) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	return nil
}

func (r *Recognizer) SetCallbacks(onResult func(string), onError func(error)) {
	r.mu.Lock()
	r.onResult = onResult
	r.onError = onError
	r.mu.Unlock()
}

func (r *Recognizer) StartListening(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return ErrDestroyed
	}
	r.active = &session{onResult: r.onResult, onError: r.onError}
	return nil
}

// StopListening ends the session; with no text typed it fails with
// ErrNoInput.
func (r *Recognizer) StopListening() error {
	s := r.take()
	if s != nil && s.onError != nil {
		s.onError(ErrNoInput)
	}
	return nil
}

func (r *Recognizer) Cancel() error {
	r.take()
	return nil
}

func (r *Recognizer) Destroy() error {
	r.mu.Lock()
	r.active = nil
	r.destroyed = true
	r.mu.Unlock()
	return nil
}

// Feed delivers text to the open session. It reports false when nobody is
// listening or the text is blank.
func (r *Recognizer) Feed(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	s := r.take()
	if s == nil {
		r.logger.Debug("text_dropped_not_listening", "text", redact.Text(text))
		return false
	}
	if s.onResult != nil {
		s.onResult(text)
	}
	return true
}

// Listening reports whether a session is open.
func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recognizer) take() *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.active
	r.active = nil
	return s
}

var (
	_ speech.Recognizer = (*Recognizer)(nil)
	_ speech.TextFeeder = (*Recognizer)(nil)
)
