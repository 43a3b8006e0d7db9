package runner

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrDrainTimeout = errors.New("drain timeout")
)

// LifecycleRunner runs until its context ends or Stop is called, then
// drains with a timeout and fires the stop hook.
type LifecycleRunner struct {
	state     int32
	stopCh    chan struct{}
	closeOnce sync.Once
	onceStop  sync.Once
	hooks     Hooks
	drainer   Drainer
	stopErr   error
	timeout   time.Duration
	bannerOut io.Writer
}

// NewLifecycleRunner creates a runner. bannerOut receives the startup
// banner; nil disables it.
func NewLifecycleRunner(drainer Drainer, hooks Hooks, timeout time.Duration, bannerOut io.Writer) *LifecycleRunner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &LifecycleRunner{
		state:     int32(StateNew),
		stopCh:    make(chan struct{}),
		hooks:     hooks,
		drainer:   drainer,
		timeout:   timeout,
		bannerOut: bannerOut,
	}
}

func (r *LifecycleRunner) Run(ctx context.Context) error {
	if !r.casState(StateNew, StateStarting) {
		return ErrInvalidState
	}
	if ctx == nil {
		ctx = context.Background()
	}
	PrintBanner(r.bannerOut)
	if r.hooks.OnStart != nil {
		r.hooks.OnStart()
	}
	r.setState(StateRunning)
	select {
	case <-ctx.Done():
	case <-r.stopCh:
	}
	return r.stop()
}

func (r *LifecycleRunner) Stop() error {
	r.closeOnce.Do(func() { close(r.stopCh) })
	return r.stop()
}

func (r *LifecycleRunner) State() State {
	return State(atomic.LoadInt32(&r.state))
}

func (r *LifecycleRunner) stop() error {
	r.onceStop.Do(func() {
		r.setState(StateDraining)
		if r.drainer != nil {
			done := make(chan error, 1)
			go func() { done <- r.drainer.Drain() }()
			t := time.NewTimer(r.timeout)
			defer t.Stop()
			select {
			case err := <-done:
				r.stopErr = err
			case <-t.C:
				r.stopErr = ErrDrainTimeout
			}
		}
		if r.hooks.OnStop != nil {
			r.hooks.OnStop()
		}
		r.setState(StateStopped)
	})
	return r.stopErr
}

func (r *LifecycleRunner) casState(from, to State) bool {
	return atomic.CompareAndSwapInt32(&r.state, int32(from), int32(to))
}

func (r *LifecycleRunner) setState(s State) {
	atomic.StoreInt32(&r.state, int32(s))
}
