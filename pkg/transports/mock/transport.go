package mock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/transports"
)

// Transport is an in-memory transport for local testing and integration.
// It implements the transports.Transport interface without any network dependency.
type Transport struct {
	cmdCh  chan transports.Command
	closed atomic.Bool

	mu            sync.Mutex
	notifications []conversation.Notification
	notifyCh      chan conversation.Notification
}

func New() *Transport {
	return &Transport{
		cmdCh:    make(chan transports.Command, 256),
		notifyCh: make(chan conversation.Notification, 256),
	}
}

func (t *Transport) Name() string { return "mock" }

func (t *Transport) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		<-ctx.Done()
		_ = t.Stop()
	}()
	return nil
}

func (t *Transport) Stop() error {
	if t.closed.CompareAndSwap(false, true) {
		t.mu.Lock()
		close(t.cmdCh)
		t.mu.Unlock()
	}
	return nil
}

func (t *Transport) Commands() <-chan transports.Command { return t.cmdCh }

// OnNotification records n and mirrors it on Notifications without blocking.
func (t *Transport) OnNotification(n conversation.Notification) {
	t.mu.Lock()
	t.notifications = append(t.notifications, n)
	t.mu.Unlock()
	select {
	case t.notifyCh <- n:
	default:
	}
}

// Send injects a command as if a UI client sent it.
func (t *Transport) Send(cmd transports.Command) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed.Load() {
		return false
	}
	select {
	case t.cmdCh <- cmd:
		return true
	default:
		return false
	}
}

// Notifications streams observed notifications.
func (t *Transport) Notifications() <-chan conversation.Notification { return t.notifyCh }

// Received returns a copy of every notification seen so far.
func (t *Transport) Received() []conversation.Notification {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]conversation.Notification, len(t.notifications))
	copy(out, t.notifications)
	return out
}

var _ transports.Transport = (*Transport)(nil)
