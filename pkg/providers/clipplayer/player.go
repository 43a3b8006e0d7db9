// Package clipplayer is a video.Player that plays named clips of known
// duration. It keeps the playlist semantics of a real player: a clip with an
// optional follow-up, repeat-one for loops and completion at the end of the
// playlist.
package clipplayer

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/avatarchat/pkg/adapters/video"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/logging"
)

var (
	// ErrClipNotFound is returned for clips the player does not know.
	ErrClipNotFound = errors.New("clip not found")
	// ErrReleased is returned after Release.
	ErrReleased = errors.New("player released")
)

// DefaultClips are the clips every avatar ships with.
var DefaultClips = []string{"idle", "greeting", "listening", "weather", "general", "goodbye", "prompt", "fallback"}

const DefaultDuration = 2 * time.Second

type Config struct {
	// Clips overrides the duration of individual clips and may add new ones.
	Clips           map[string]time.Duration
	DefaultDuration time.Duration
}

// State is what the player shows right now.
type State struct {
	Clip     string
	Loop     bool
	FollowUp string
	Paused   bool
}

type Player struct {
	logger    *slog.Logger
	durations map[string]time.Duration

	mu          sync.Mutex
	state       State
	onCompleted func()
	timer       *time.Timer
	deadline    time.Time
	remaining   time.Duration
	suspended   bool
	epoch       uint64
	released    bool
}

func New(cfg Config, logger *slog.Logger) *Player {
	def := cfg.DefaultDuration
	if def <= 0 {
		def = DefaultDuration
	}
	durations := make(map[string]time.Duration, len(DefaultClips)+len(cfg.Clips))
	for _, c := range DefaultClips {
		durations[c] = def
	}
	for c, d := range cfg.Clips {
		if d <= 0 {
			d = def
		}
		durations[c] = d
	}
	return &Player{
		logger:    logging.NewComponentLogger(logger, "clip_player"),
		durations: durations,
	}
}

func (p *Player) Name() string { return "clip" }

// Clips lists the known clip names.
func (p *Player) Clips() []string {
	out := make([]string, 0, len(p.durations))
	for c := range p.durations {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

func (p *Player) Play(clip string, loop bool, followUp string, onCompleted func()) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errorsx.WrapOp(ErrReleased, errorsx.ReasonPlayerPlay, "play")
	}
	d, ok := p.durations[clip]
	if !ok {
		return errorsx.WrapOp(fmt.Errorf("%w: %s", ErrClipNotFound, clip), errorsx.ReasonPlayerClipNotFound, "play")
	}
	if followUp != "" {
		if _, ok := p.durations[followUp]; !ok {
			return errorsx.WrapOp(fmt.Errorf("%w: %s", ErrClipNotFound, followUp), errorsx.ReasonPlayerClipNotFound, "play")
		}
	}

	// The clip on screen switches to repeat-one without a restart.
	if loop && clip == p.state.Clip && !p.state.Paused && p.state.FollowUp == "" {
		p.stopLocked()
		p.epoch++
		p.state.Loop = true
		p.onCompleted = nil
		p.logger.Debug("clip_continued", "clip", clip)
		return nil
	}

	p.stopLocked()
	p.epoch++
	p.state = State{Clip: clip, Loop: loop, FollowUp: followUp}
	p.onCompleted = nil
	if !loop {
		p.onCompleted = onCompleted
		p.scheduleLocked(d)
	}
	p.logger.Debug("clip_started", "clip", clip, "loop", loop, "follow_up", followUp)
	return nil
}

func (p *Player) scheduleLocked(d time.Duration) {
	epoch := p.epoch
	p.deadline = time.Now().Add(d)
	p.timer = time.AfterFunc(d, func() { p.advance(epoch) })
}

func (p *Player) stopLocked() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.remaining = 0
	p.suspended = false
}

// advance moves to the staged follow-up or finishes the playlist.
func (p *Player) advance(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || p.state.Paused || p.released {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	if next := p.state.FollowUp; next != "" {
		p.state.Clip = next
		p.state.FollowUp = ""
		p.scheduleLocked(p.durations[next])
		p.mu.Unlock()
		p.logger.Debug("clip_started", "clip", next, "follow_up_of_playlist", true)
		return
	}
	cb := p.onCompleted
	p.onCompleted = nil
	p.epoch++
	p.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errorsx.WrapOp(ErrReleased, errorsx.ReasonPlayerControl, "pause")
	}
	if p.state.Paused {
		return nil
	}
	p.state.Paused = true
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
		p.suspended = true
		p.remaining = time.Until(p.deadline)
		if p.remaining < 0 {
			p.remaining = 0
		}
	}
	return nil
}

func (p *Player) Resume() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.released {
		return errorsx.WrapOp(ErrReleased, errorsx.ReasonPlayerControl, "resume")
	}
	if !p.state.Paused {
		return nil
	}
	p.state.Paused = false
	if p.suspended {
		p.suspended = false
		p.epoch++
		p.scheduleLocked(p.remaining)
		p.remaining = 0
	}
	return nil
}

func (p *Player) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.epoch++
	p.onCompleted = nil
	p.released = true
	return nil
}

// State returns what is on screen.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

var _ video.Player = (*Player)(nil)
