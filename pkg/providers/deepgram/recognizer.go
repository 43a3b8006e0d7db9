// Package deepgram implements speech.Recognizer on Deepgram's live
// transcription API. Audio comes from a continuous PCM stream; each
// listening session opens its own live connection and the stream is
// forwarded to whichever session is active.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/redact"
	"github.com/harunnryd/avatarchat/pkg/resilience"
)

var (
	errConnect    = errors.New("deepgram connection failed")
	errClosed     = errors.New("deepgram connection closed before a result")
	errAudioEnded = errors.New("audio source ended")
	errNotReady   = errors.New("recognizer not initialized")
	errDestroyed  = errors.New("recognizer destroyed")
)

type Config struct {
	APIKey         string
	Model          string
	Language       string
	Encoding       string
	SampleRate     int
	UtteranceEndMS int
	ChunkSize      int

	MaxRetries       int
	RetryBackoff     time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.Model == "" {
		c.Model = "nova-2"
	}
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.Encoding == "" {
		c.Encoding = "linear16"
	}
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 3200
	}
	return c
}

// liveConn is the part of the SDK's live client the recognizer drives.
type liveConn interface {
	Connect() bool
	Stream(r io.Reader) error
	Stop()
}

type dialFunc func(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error)

// Recognizer is a Deepgram-backed speech.Recognizer.
type Recognizer struct {
	cfg     Config
	audio   io.Reader
	logger  *slog.Logger
	retry   resilience.RetryPolicy
	breaker *resilience.CircuitBreaker
	dial    dialFunc

	mu          sync.Mutex
	onResult    func(string)
	onError     func(error)
	active      *session
	seq         uint64
	initialized bool
	destroyed   bool
	audioEnded  bool
	pumpCancel  context.CancelFunc
}

// New creates a recognizer reading raw audio from audio. A nil audio source
// makes Initialize report speech.ErrUnavailable.
func New(cfg Config, audio io.Reader, logger *slog.Logger) *Recognizer {
	cfg = cfg.withDefaults()
	r := &Recognizer{
		cfg:     cfg,
		audio:   audio,
		logger:  logging.NewComponentLogger(logger, "deepgram_recognizer"),
		retry:   resilience.NewRetryPolicy(cfg.MaxRetries, cfg.RetryBackoff),
		breaker: resilience.NewCircuitBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
	r.dial = r.dialDeepgram
	return r
}

func (r *Recognizer) Name() string { return "deepgram" }

func (r *Recognizer) transcriptOptions() *interfaces.LiveTranscriptionOptions {
	opts := &interfaces.LiveTranscriptionOptions{
		Model:          r.cfg.Model,
		Language:       r.cfg.Language,
		Encoding:       r.cfg.Encoding,
		SampleRate:     r.cfg.SampleRate,
		InterimResults: true,
		VadEvents:      true,
		SmartFormat:    true,
	}
	if r.cfg.UtteranceEndMS > 0 {
		opts.UtteranceEndMs = fmt.Sprintf("%d", r.cfg.UtteranceEndMS)
	}
	return opts
}

func (r *Recognizer) dialDeepgram(ctx context.Context, cb msginterfaces.LiveMessageCallback) (liveConn, error) {
	c, err := client.NewWSUsingCallback(ctx, r.cfg.APIKey, &interfaces.ClientOptions{EnableKeepAlive: true}, r.transcriptOptions(), cb)
	if err != nil {
		return nil, err
	}
	return sdkConn{c: c}, nil
}

type sdkConn struct {
	c *client.WSCallback
}

func (s sdkConn) Connect() bool            { return s.c.Connect() }
func (s sdkConn) Stream(r io.Reader) error { return s.c.Stream(r) }
func (s sdkConn) Stop()                    { s.c.Stop() }

// Initialize checks the configuration and starts reading the audio source.
func (r *Recognizer) Initialize(ctx context.Context) error {
	if r.cfg.APIKey == "" {
		return fmt.Errorf("deepgram: missing api key: %w", speech.ErrUnavailable)
	}
	if r.audio == nil {
		return fmt.Errorf("deepgram: no audio source: %w", speech.ErrUnavailable)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return errDestroyed
	}
	if r.initialized {
		return nil
	}
	pumpCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.pumpCancel = cancel
	r.initialized = true
	go r.pump(pumpCtx)
	r.logger.Info("deepgram_initialized",
		slog.String("model", r.cfg.Model),
		slog.String("language", r.cfg.Language),
		slog.Int("sample_rate", r.cfg.SampleRate))
	return nil
}

func (r *Recognizer) SetCallbacks(onResult func(string), onError func(error)) {
	r.mu.Lock()
	r.onResult = onResult
	r.onError = onError
	r.mu.Unlock()
}

// StartListening opens a session. The connection is made in the
// background; failures to connect arrive through the error callback.
func (r *Recognizer) StartListening(ctx context.Context) error {
	r.mu.Lock()
	switch {
	case r.destroyed:
		r.mu.Unlock()
		return errDestroyed
	case !r.initialized:
		r.mu.Unlock()
		return errNotReady
	case r.audioEnded:
		r.mu.Unlock()
		return errorsx.Wrap(errAudioEnded, errorsx.ReasonRecognizerStream)
	}
	prev := r.active
	r.seq++
	sctx, cancel := context.WithCancel(ctx)
	s := newSession(r.seq, sctx, cancel, r.onResult, r.onError)
	r.active = s
	r.mu.Unlock()

	if prev != nil {
		prev.suppress()
		go prev.shutdown()
	}

	go r.connect(s)
	return nil
}

func (r *Recognizer) connect(s *session) {
	err := r.breaker.Call(func() error {
		return r.retry.Do(s.ctx, func() error {
			if s.ctx.Err() != nil {
				return resilience.Permanent(s.ctx.Err())
			}
			conn, err := r.dial(s.ctx, &callback{r: r, s: s})
			if err != nil {
				return err
			}
			if !conn.Connect() {
				return errConnect
			}
			if !s.attach(conn) {
				conn.Stop()
			}
			return nil
		})
	})
	if err != nil {
		if s.ctx.Err() != nil {
			return
		}
		reason := errorsx.ReasonRecognizerStart
		if errors.Is(err, resilience.ErrCircuitOpen) {
			reason = errorsx.ReasonRecognizerCircuitOpen
		}
		r.logger.Warn("deepgram_connect_failed", slog.Uint64("session", s.id), slog.String("error", err.Error()))
		r.finish(s, "", errorsx.WrapOp(err, reason, "connect"))
		return
	}
	r.logger.Debug("deepgram_connected", slog.Uint64("session", s.id))
	if err := s.stream(); err != nil && s.ctx.Err() == nil {
		r.finish(s, "", errorsx.WrapOp(err, errorsx.ReasonRecognizerStream, "stream"))
	}
}

// finish resolves s with a result or an error and tears it down.
func (r *Recognizer) finish(s *session, text string, err error) {
	delivered := s.resolve(text, err)
	r.mu.Lock()
	if r.active == s {
		r.active = nil
	}
	r.mu.Unlock()
	if delivered {
		if err != nil {
			r.logger.Debug("deepgram_session_failed", slog.Uint64("session", s.id), slog.String("error", err.Error()))
		} else {
			r.logger.Debug("deepgram_session_result", slog.Uint64("session", s.id), slog.String("text", redact.Text(text)))
		}
	}
	go s.shutdown()
}

// StopListening stops sending audio; the pending transcript is still
// delivered.
func (r *Recognizer) StopListening() error {
	r.mu.Lock()
	s := r.active
	r.mu.Unlock()
	if s != nil {
		s.closeAudio()
	}
	return nil
}

// Cancel drops the active session without any callback.
func (r *Recognizer) Cancel() error {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s != nil {
		s.suppress()
		s.shutdown()
	}
	return nil
}

// Destroy cancels the session and stops reading audio. An audio source that
// implements io.Closer is closed.
func (r *Recognizer) Destroy() error {
	_ = r.Cancel()
	r.mu.Lock()
	if r.destroyed {
		r.mu.Unlock()
		return nil
	}
	r.destroyed = true
	cancel := r.pumpCancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if c, ok := r.audio.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// pump reads the audio source for the recognizer's lifetime and forwards
// each chunk to the active session, if any.
func (r *Recognizer) pump(ctx context.Context) {
	buf := make([]byte, r.cfg.ChunkSize)
	for {
		n, err := r.audio.Read(buf)
		if n > 0 {
			r.mu.Lock()
			s := r.active
			r.mu.Unlock()
			if s != nil {
				s.write(buf[:n])
			}
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			r.mu.Lock()
			r.audioEnded = true
			s := r.active
			r.mu.Unlock()
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("deepgram_audio_read_failed", slog.String("error", err.Error()))
			}
			if s != nil {
				r.finish(s, "", errorsx.Wrap(errAudioEnded, errorsx.ReasonRecognizerStream))
			}
			return
		}
	}
}

// session is one listening attempt. At most one of its callbacks runs.
type session struct {
	id       uint64
	ctx      context.Context
	cancel   context.CancelFunc
	onResult func(string)
	onError  func(error)

	pr *io.PipeReader
	pw *io.PipeWriter

	resolveOnce  sync.Once
	shutdownOnce sync.Once

	mu         sync.Mutex
	conn       liveConn
	closed     bool
	transcript strings.Builder
}

func newSession(id uint64, ctx context.Context, cancel context.CancelFunc, onResult func(string), onError func(error)) *session {
	pr, pw := io.Pipe()
	return &session{id: id, ctx: ctx, cancel: cancel, onResult: onResult, onError: onError, pr: pr, pw: pw}
}

func (s *session) attach(conn liveConn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conn = conn
	return true
}

func (s *session) stream() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Stream(s.pr)
}

func (s *session) write(p []byte) {
	s.mu.Lock()
	ready := s.conn != nil && !s.closed
	s.mu.Unlock()
	if !ready {
		return
	}
	_, _ = s.pw.Write(p)
}

func (s *session) closeAudio() {
	_ = s.pw.Close()
}

// resolve delivers the session's outcome. It reports whether a callback
// ran.
func (s *session) resolve(text string, err error) bool {
	ran := false
	s.resolveOnce.Do(func() {
		ran = true
		if err != nil {
			if s.onError != nil {
				s.onError(err)
			}
			return
		}
		if s.onResult != nil {
			s.onResult(text)
		}
	})
	return ran
}

func (s *session) suppress() {
	s.resolveOnce.Do(func() {})
}

func (s *session) shutdown() {
	s.shutdownOnce.Do(func() {
		s.cancel()
		_ = s.pw.Close()
		_ = s.pr.Close()
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()
		if conn != nil {
			conn.Stop()
		}
	})
}

// appendFinal records a finalized segment and returns the text so far.
func (s *session) appendFinal(text string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if text != "" {
		if s.transcript.Len() > 0 {
			s.transcript.WriteByte(' ')
		}
		s.transcript.WriteString(text)
	}
	return s.transcript.String()
}

var _ speech.Recognizer = (*Recognizer)(nil)
