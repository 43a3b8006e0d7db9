package observers

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/harunnryd/avatarchat/pkg/intent"
	"github.com/harunnryd/avatarchat/pkg/metrics"
	"github.com/harunnryd/avatarchat/pkg/phase"
)

const summarySuffix = ".summary.json"

// ConversationSummary aggregates one conversation.
type ConversationSummary struct {
	ConversationID   string         `json:"conversation_id"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at,omitempty"`
	Turns            int            `json:"turns"`
	Intents          map[string]int `json:"intents,omitempty"`
	SilenceTimeouts  int            `json:"silence_timeouts"`
	SpeechFailures   int            `json:"speech_failures"`
	PlaybackFailures int            `json:"playback_failures"`
	EndReason        string         `json:"end_reason,omitempty"`
	RecordedAtUTC    string         `json:"recorded_at_utc"`
}

// SummaryObserver writes a summary JSON per conversation once it returns
// to idle.
type SummaryObserver struct {
	dir   string
	mu    sync.Mutex
	stats map[string]*ConversationSummary
}

func NewSummaryObserver(dir string) *SummaryObserver {
	return &SummaryObserver{dir: dir, stats: make(map[string]*ConversationSummary)}
}

var farewell = phase.Responding(intent.Goodbye).String()

func (o *SummaryObserver) RecordEvent(ev metrics.MetricsEvent) {
	if strings.TrimSpace(o.dir) == "" {
		return
	}
	id := ev.Tags[metrics.TagConversationID]
	if id == "" {
		return
	}

	o.mu.Lock()
	stat := o.stats[id]
	if stat == nil {
		stat = &ConversationSummary{ConversationID: id, StartedAt: ev.Time.UTC(), Intents: map[string]int{}}
		o.stats[id] = stat
	}
	var done *ConversationSummary
	switch ev.Name {
	case metrics.EventTextRecognized:
		stat.Turns++
		stat.Intents[ev.Tags[metrics.TagKind]]++
	case metrics.EventSilenceTimeout:
		stat.SilenceTimeouts++
	case metrics.EventSpeechFailed:
		stat.SpeechFailures++
	case metrics.EventPlaybackFailed:
		stat.PlaybackFailures++
	case metrics.EventPhaseChanged:
		switch to := ev.Tags[metrics.TagTo]; to {
		case phase.Goodbye.String():
			stat.EndReason = ev.Tags[metrics.TagReason]
		case farewell:
			stat.EndReason = "farewell"
		case phase.Idle.String():
			stat.EndedAt = ev.Time.UTC()
			done = stat
			delete(o.stats, id)
		}
	}
	o.mu.Unlock()

	if done != nil {
		_ = o.write(done)
	}
}

// Close writes summaries of conversations that never finished.
func (o *SummaryObserver) Close() error {
	o.mu.Lock()
	pending := make([]*ConversationSummary, 0, len(o.stats))
	for _, stat := range o.stats {
		pending = append(pending, stat)
	}
	o.stats = make(map[string]*ConversationSummary)
	o.mu.Unlock()

	var errOut error
	for _, stat := range pending {
		errOut = errors.Join(errOut, o.write(stat))
	}
	return errOut
}

func (o *SummaryObserver) write(stat *ConversationSummary) error {
	if strings.TrimSpace(o.dir) == "" {
		return nil
	}
	if err := os.MkdirAll(o.dir, 0o755); err != nil {
		return err
	}
	stat.RecordedAtUTC = time.Now().UTC().Format(time.RFC3339)
	b, err := json.MarshalIndent(stat, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(o.dir, sanitizeID(stat.ConversationID)+summarySuffix), b, 0o644)
}

var _ metrics.Observer = (*SummaryObserver)(nil)
