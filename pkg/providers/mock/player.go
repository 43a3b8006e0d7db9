package mock

import (
	"errors"
	"sync"
	"time"
)

// ErrReleased is returned by a Player after Release.
var ErrReleased = errors.New("mock player released")

// Play records one Play call.
type Play struct {
	Clip     string
	Loop     bool
	FollowUp string
}

type PlayerConfig struct {
	// ClipDuration, when positive, completes every non-looping play on its
	// own after that long. Zero leaves completion to the test.
	ClipDuration time.Duration
}

// Player is an in-memory video.Player that records calls.
type Player struct {
	cfg PlayerConfig

	mu        sync.Mutex
	plays     []Play
	callbacks []func()
	fired     []bool
	timers    []*time.Timer
	failNext  error
	paused    bool
	pauses    int
	resumes   int
	released  bool
}

func NewPlayer(cfg PlayerConfig) *Player {
	return &Player{cfg: cfg}
}

func (p *Player) Name() string { return "mock_player" }

func (p *Player) Play(clip string, loop bool, followUp string, onCompleted func()) error {
	p.mu.Lock()
	if p.released {
		p.mu.Unlock()
		return ErrReleased
	}
	if err := p.failNext; err != nil {
		p.failNext = nil
		p.mu.Unlock()
		return err
	}
	p.plays = append(p.plays, Play{Clip: clip, Loop: loop, FollowUp: followUp})
	p.callbacks = append(p.callbacks, onCompleted)
	p.fired = append(p.fired, false)
	p.paused = false
	idx := len(p.plays) - 1
	if p.cfg.ClipDuration > 0 && !loop && onCompleted != nil {
		d := p.cfg.ClipDuration
		if followUp != "" {
			d *= 2
		}
		p.timers = append(p.timers, time.AfterFunc(d, func() { p.CompletePlay(idx) }))
	}
	p.mu.Unlock()
	return nil
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.pauses++
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.resumes++
	return nil
}

func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = true
	for _, t := range p.timers {
		t.Stop()
	}
	p.timers = nil
	return nil
}

// FailNext makes the next Play return err.
func (p *Player) FailNext(err error) {
	p.mu.Lock()
	p.failNext = err
	p.mu.Unlock()
}

// Complete fires the completion of the most recent play. It reports whether
// a callback ran.
func (p *Player) Complete() bool {
	p.mu.Lock()
	idx := len(p.plays) - 1
	p.mu.Unlock()
	return p.CompletePlay(idx)
}

// CompletePlay fires the completion of the i-th play, even if a later play
// replaced it. Each callback runs at most once.
func (p *Player) CompletePlay(i int) bool {
	p.mu.Lock()
	if i < 0 || i >= len(p.callbacks) || p.fired[i] || p.callbacks[i] == nil {
		p.mu.Unlock()
		return false
	}
	p.fired[i] = true
	cb := p.callbacks[i]
	p.mu.Unlock()
	cb()
	return true
}

func (p *Player) Plays() []Play {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Play, len(p.plays))
	copy(out, p.plays)
	return out
}

// Last returns the most recent play.
func (p *Player) Last() Play {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.plays) == 0 {
		return Play{}
	}
	return p.plays[len(p.plays)-1]
}

func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *Player) Pauses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pauses
}

func (p *Player) Resumes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumes
}

func (p *Player) Released() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
