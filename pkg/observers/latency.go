package observers

import (
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/avatarchat/pkg/metrics"
	"github.com/harunnryd/avatarchat/pkg/phase"
)

// LatencyObserver logs how long each listening window lasted and how it
// ended.
type LatencyObserver struct {
	mu     sync.Mutex
	opened map[string]time.Time
	log    *slog.Logger
}

func NewLatencyObserver(log *slog.Logger) *LatencyObserver {
	if log == nil {
		log = slog.Default()
	}
	return &LatencyObserver{
		opened: make(map[string]time.Time),
		log:    log,
	}
}

func (o *LatencyObserver) RecordEvent(ev metrics.MetricsEvent) {
	id := ev.Tags[metrics.TagConversationID]
	if id == "" {
		return
	}
	outcome := ""
	switch ev.Name {
	case metrics.EventPhaseChanged:
		o.mu.Lock()
		switch ev.Tags[metrics.TagTo] {
		case phase.Listening.String():
			o.opened[id] = ev.Time
		case phase.Idle.String():
			delete(o.opened, id)
		}
		o.mu.Unlock()
		return
	case metrics.EventTextRecognized:
		outcome = "recognized"
	case metrics.EventSilenceTimeout:
		outcome = "silence"
	case metrics.EventSpeechFailed:
		outcome = "failed"
	default:
		return
	}

	o.mu.Lock()
	start, ok := o.opened[id]
	delete(o.opened, id)
	o.mu.Unlock()
	if !ok {
		return
	}
	o.log.Info("listening_latency",
		"conversation_id", id,
		"outcome", outcome,
		"window_ms", durationMs(start, ev.Time),
	)
}

func durationMs(a, b time.Time) int64 {
	if a.IsZero() || b.IsZero() {
		return -1
	}
	return b.Sub(a).Milliseconds()
}
