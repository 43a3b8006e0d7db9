package observers

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/harunnryd/avatarchat/pkg/metrics"
)

// PrometheusObserver exports conversation events as Prometheus metrics.
// Conversation ids never become labels.
type PrometheusObserver struct {
	Transitions      *prometheus.CounterVec
	Recognized       *prometheus.CounterVec
	SilenceTimeouts  prometheus.Counter
	SpeechFailures   *prometheus.CounterVec
	StaleEvents      *prometheus.CounterVec
	PlaybackFailures prometheus.Counter
	RecognizerStarts prometheus.Counter
	Suspensions      *prometheus.CounterVec
	Commands         *prometheus.CounterVec
	Current          *prometheus.GaugeVec
	Dwell            *prometheus.HistogramVec

	mu        sync.Mutex
	lastPhase string
	lastAt    time.Time
}

// NewPrometheusObserver registers the collectors on reg.
func NewPrometheusObserver(reg prometheus.Registerer) *PrometheusObserver {
	f := promauto.With(reg)
	return &PrometheusObserver{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_phase_transitions_total",
			Help: "Conversation phase transitions, by source and target phase.",
		}, []string{"from", "to"}),
		Recognized: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_text_recognized_total",
			Help: "Recognized utterances, by classified intent.",
		}, []string{"kind"}),
		SilenceTimeouts: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarchat_silence_timeouts_total",
			Help: "Listening windows that ended without speech.",
		}),
		SpeechFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_speech_failures_total",
			Help: "Recognizer failures, by reason.",
		}, []string{"reason"}),
		StaleEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_stale_events_total",
			Help: "Events dropped because they no longer applied, by event.",
		}, []string{"event"}),
		PlaybackFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarchat_playback_failures_total",
			Help: "Clips that failed to play.",
		}),
		RecognizerStarts: f.NewCounter(prometheus.CounterOpts{
			Name: "avatarchat_recognizer_sessions_total",
			Help: "Listening sessions opened.",
		}),
		Suspensions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_suspension_changes_total",
			Help: "Hold changes, by reason.",
		}, []string{"reason"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "avatarchat_commands_total",
			Help: "UI commands received, by command and outcome.",
		}, []string{"command", "outcome"}),
		Current: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "avatarchat_phase",
			Help: "1 for the current conversation phase stage, 0 otherwise.",
		}, []string{"phase"}),
		Dwell: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "avatarchat_phase_duration_seconds",
			Help:    "Time spent in a phase stage before leaving it.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"phase"}),
	}
}

func (o *PrometheusObserver) RecordEvent(ev metrics.MetricsEvent) {
	switch ev.Name {
	case metrics.EventPhaseChanged:
		o.onPhaseChanged(ev)
	case metrics.EventTextRecognized:
		o.Recognized.WithLabelValues(ev.Tags[metrics.TagKind]).Inc()
	case metrics.EventSilenceTimeout:
		o.SilenceTimeouts.Inc()
	case metrics.EventSpeechFailed:
		o.SpeechFailures.WithLabelValues(ev.Tags[metrics.TagReason]).Inc()
	case metrics.EventStaleEvent:
		o.StaleEvents.WithLabelValues(ev.Tags[metrics.TagEvent]).Inc()
	case metrics.EventPlaybackFailed:
		o.PlaybackFailures.Inc()
	case metrics.EventRecognizerStarted:
		o.RecognizerStarts.Inc()
	case metrics.EventSuspensionChanged:
		o.Suspensions.WithLabelValues(ev.Tags[metrics.TagReason]).Inc()
	case metrics.EventCommandReceived:
		o.Commands.WithLabelValues(ev.Tags[metrics.TagCommand], ev.Tags[metrics.TagOutcome]).Inc()
	}
}

func (o *PrometheusObserver) onPhaseChanged(ev metrics.MetricsEvent) {
	from, to := stageOf(ev.Tags[metrics.TagFrom]), stageOf(ev.Tags[metrics.TagTo])
	o.Transitions.WithLabelValues(from, to).Inc()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.lastPhase != "" && !o.lastAt.IsZero() && ev.Time.After(o.lastAt) {
		o.Dwell.WithLabelValues(o.lastPhase).Observe(ev.Time.Sub(o.lastAt).Seconds())
	}
	if o.lastPhase != "" {
		o.Current.WithLabelValues(o.lastPhase).Set(0)
	}
	o.Current.WithLabelValues(to).Set(1)
	o.lastPhase = to
	o.lastAt = ev.Time
}

// stageOf drops the response kind: "responding(weather)" counts as
// responding.
func stageOf(name string) string {
	stage, _, _ := strings.Cut(name, "(")
	return stage
}

var _ metrics.Observer = (*PrometheusObserver)(nil)
