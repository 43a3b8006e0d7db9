package mock

import (
	"context"
	"sync"
	"time"
)

type RecognizerConfig struct {
	// InitErr is returned by Initialize.
	InitErr error
	// Script holds utterances delivered one per session, in order, after
	// Delay. An empty entry fails the session instead. Once the script is
	// exhausted sessions wait for Recognize or Fail.
	Script []string
	Delay  time.Duration
}

type session struct {
	onResult func(string)
	onError  func(error)
	done     bool
}

// Recognizer is an in-memory speech.Recognizer driven by tests or a
// script.
type Recognizer struct {
	cfg RecognizerConfig

	mu        sync.Mutex
	onResult  func(string)
	onError   func(error)
	sessions  []*session
	active    *session
	startErr  error
	inits     int
	cancels   int
	stops     int
	destroyed bool
	timers    []*time.Timer
}

func NewRecognizer(cfg RecognizerConfig) *Recognizer {
	return &Recognizer{cfg: cfg}
}

func (r *Recognizer) Name() string { return "mock_recognizer" }

func (r *Recognizer) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inits++
	return r.cfg.InitErr
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
	if err := r.startErr; err != nil {
		r.startErr = nil
		return err
	}
	s := &session{onResult: r.onResult, onError: r.onError}
	r.sessions = append(r.sessions, s)
	r.active = s
	idx := len(r.sessions) - 1
	if idx < len(r.cfg.Script) {
		text := r.cfg.Script[idx]
		r.timers = append(r.timers, time.AfterFunc(r.cfg.Delay, func() {
			if text == "" {
				r.deliver(idx, "", errScripted, false)
				return
			}
			r.deliver(idx, text, nil, false)
		}))
	}
	return nil
}

func (r *Recognizer) StopListening() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

func (r *Recognizer) Cancel() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
	if r.active != nil {
		r.active.done = true
		r.active = nil
	}
	return nil
}

func (r *Recognizer) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	for _, t := range r.timers {
		t.Stop()
	}
	r.timers = nil
	if r.active != nil {
		r.active.done = true
		r.active = nil
	}
	return nil
}

// FailNextStart makes the next StartListening return err.
func (r *Recognizer) FailNextStart(err error) {
	r.mu.Lock()
	r.startErr = err
	r.mu.Unlock()
}

// Recognize delivers text to the active session.
func (r *Recognizer) Recognize(text string) bool {
	return r.deliver(r.activeIndex(), text, nil, false)
}

// Fail delivers err to the active session.
func (r *Recognizer) Fail(err error) bool {
	return r.deliver(r.activeIndex(), "", err, false)
}

// ResultFor delivers text through the callbacks of the i-th session, even
// if it was cancelled. It reports whether a callback ran.
func (r *Recognizer) ResultFor(i int, text string) bool {
	return r.deliver(i, text, nil, true)
}

// FailSession delivers err through the i-th session's error callback, even
// if it was cancelled.
func (r *Recognizer) FailSession(i int, err error) bool {
	return r.deliver(i, "", err, true)
}

func (r *Recognizer) deliver(i int, text string, err error, force bool) bool {
	r.mu.Lock()
	if i < 0 || i >= len(r.sessions) {
		r.mu.Unlock()
		return false
	}
	s := r.sessions[i]
	if s.done && !force {
		r.mu.Unlock()
		return false
	}
	s.done = true
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
	if err != nil {
		if s.onError == nil {
			return false
		}
		s.onError(err)
		return true
	}
	if s.onResult == nil {
		return false
	}
	s.onResult(text)
	return true
}

func (r *Recognizer) activeIndex() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sessions {
		if s == r.active {
			return i
		}
	}
	return -1
}

// Listening reports whether a session is open.
func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func (r *Recognizer) Starts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Recognizer) Inits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inits
}

func (r *Recognizer) Cancels() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancels
}

func (r *Recognizer) Destroyed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.destroyed
}
