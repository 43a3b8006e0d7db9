package avatar

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/adapters/video"
	"github.com/harunnryd/avatarchat/pkg/conversation"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/logging"
	"github.com/harunnryd/avatarchat/pkg/metrics"
	"github.com/harunnryd/avatarchat/pkg/observers"
	"github.com/harunnryd/avatarchat/pkg/redact"
	"github.com/harunnryd/avatarchat/pkg/runner"
	"github.com/harunnryd/avatarchat/pkg/transports"
)

type Engine struct {
	cfg        Config
	log        *slog.Logger
	machine    *conversation.Machine
	player     video.Player
	recognizer speech.Recognizer
	speechName string
	transport  transports.Transport
	runner     *runner.LifecycleRunner
	asyncObs   *metrics.AsyncObserver
	promObs    *observers.PrometheusObserver
	gatherer   prometheus.Gatherer
}

type EngineOptions struct {
	Config    Config
	Providers *ProviderRegistry
	Logger    *slog.Logger
	// Optional overrides; when set the registry is not consulted.
	Player     video.Player
	Recognizer speech.Recognizer
	Transport  transports.Transport
	// Clock drives the machine's timers; nil uses wall time.
	Clock     conversation.Clock
	Listeners []conversation.Listener
	// Observers are added to the fan-out next to the built-in ones.
	Observers []metrics.Observer
	// BannerOut receives the startup banner when lifecycle.banner is set.
	BannerOut io.Writer
}

func NewEngine(opts EngineOptions) (*Engine, error) {
	cfg := opts.Config
	base := opts.Logger
	if base == nil {
		base = slog.Default()
	}
	log := logging.NewComponentLogger(base, "engine")
	redact.SetEnabled(cfg.Privacy.RedactPII)

	providers := opts.Providers
	if providers == nil {
		providers = NewProviderRegistry()
	}

	obsList := []metrics.Observer{
		observers.NewLatencyObserver(base),
		observers.NewLoggerObserver(base),
	}
	var timelineObs *observers.TimelineObserver
	var summaryObs *observers.SummaryObserver
	if dir := strings.TrimSpace(cfg.Observability.ArtifactsDir); dir != "" {
		if cfg.Observability.RetentionDays > 0 {
			n, err := observers.PurgeArtifacts(dir, time.Duration(cfg.Observability.RetentionDays)*24*time.Hour)
			if err != nil {
				log.Warn("artifact_purge_failed", "dir", dir, "error", err.Error())
			} else if n > 0 {
				log.Info("artifacts_purged", "dir", dir, "count", n)
			}
		}
		timelineObs = observers.NewTimelineObserver(dir)
		summaryObs = observers.NewSummaryObserver(dir)
		obsList = append(obsList, timelineObs, summaryObs)
	}
	var promObs *observers.PrometheusObserver
	var gatherer prometheus.Gatherer
	if cfg.Observability.Metrics {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		promObs = observers.NewPrometheusObserver(reg)
		gatherer = reg
		obsList = append(obsList, promObs)
	}
	obsList = append(obsList, opts.Observers...)
	multiObs := observers.NewMultiObserver(obsList...)
	asyncObs := metrics.NewAsyncObserver(multiObs, cfg.Observability.EventBuffer)

	player := opts.Player
	if player == nil {
		p, err := providers.BuildPlayer(cfg, base)
		if err != nil {
			asyncObs.Close()
			return nil, fmt.Errorf("build player: %w", err)
		}
		player = p
	}

	rec := opts.Recognizer
	speechName := ""
	if rec != nil {
		speechName = rec.Name()
	} else {
		r, name, err := providers.BuildRecognizer(cfg, base)
		if err != nil {
			// The machine reports PermissionRequired and keeps running on
			// the silence timer alone.
			log.Error("recognizer_unavailable", "error", err.Error(), "reason_code", string(errorsx.Reason(err)))
		} else {
			rec, speechName = r, name
		}
	}

	transport := opts.Transport
	if transport == nil {
		t, err := providers.BuildTransport(cfg, gatherer, base)
		if err != nil {
			asyncObs.Close()
			return nil, fmt.Errorf("build transport: %w", err)
		}
		transport = t
	}

	machine := conversation.New(player, rec, cfg.Conversation.MachineConfig(opts.Clock), base)
	machine.SetObserver(asyncObs)
	if transport != nil {
		machine.Subscribe(transport)
		if ss, ok := transport.(transports.SnapshotSetter); ok {
			ss.SetSnapshot(func() conversation.PhaseChanged {
				p := machine.Phase()
				return conversation.PhaseChanged{From: p, To: p, ConversationID: machine.ConversationID()}
			})
		}
	}
	for _, l := range opts.Listeners {
		machine.Subscribe(l)
	}

	e := &Engine{
		cfg:        cfg,
		log:        log,
		machine:    machine,
		player:     player,
		recognizer: rec,
		speechName: speechName,
		transport:  transport,
		asyncObs:   asyncObs,
		promObs:    promObs,
		gatherer:   gatherer,
	}

	hooks := runner.Hooks{
		OnStart: func() {
			fields := []any{
				"environment", cfg.Environment,
				"video_provider", player.Name(),
				"speech_provider", speechName,
			}
			if transport != nil {
				fields = append(fields, "transport", transport.Name())
				if rr, ok := transport.(transports.ReadyReporter); ok {
					for k, v := range rr.ReadyFields() {
						fields = append(fields, k, v)
					}
				}
			}
			log.Info("engine_ready", fields...)
		},
		OnStop: func() {
			asyncObs.Close()
			if timelineObs != nil {
				_ = timelineObs.Close()
			}
			if summaryObs != nil {
				if err := summaryObs.Close(); err != nil {
					log.Warn("summary_flush_failed", "error", err.Error())
				}
			}
			log.Info("shutdown", "goroutines", runtime.NumGoroutine(), "dropped_events", asyncObs.Dropped())
		},
	}
	drainer := runner.DrainerFunc(func() error {
		if transport != nil {
			_ = transport.Stop()
		}
		machine.Dispose()
		return nil
	})
	var bannerOut io.Writer
	if cfg.Lifecycle.Banner {
		bannerOut = opts.BannerOut
	}
	e.runner = runner.NewLifecycleRunner(drainer, hooks, cfg.Lifecycle.DrainTimeout(), bannerOut)
	return e, nil
}

// Run starts the transport and runs the machine, the command router and
// the lifecycle runner until ctx ends or Stop is called.
func (e *Engine) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	g, gctx := errgroup.WithContext(ctx)
	if e.transport != nil {
		if err := e.transport.Start(gctx); err != nil {
			_ = e.runner.Stop()
			return fmt.Errorf("start transport: %w", err)
		}
		g.Go(func() error {
			e.routeCommands(gctx)
			return nil
		})
	}
	g.Go(func() error { return e.machine.Run(gctx) })
	g.Go(func() error { return e.runner.Run(gctx) })
	return g.Wait()
}

func (e *Engine) Stop() error {
	return e.runner.Stop()
}

func (e *Engine) routeCommands(ctx context.Context) {
	cmds := e.transport.Commands()
	for {
		select {
		case <-ctx.Done():
			return
		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			e.HandleCommand(cmd)
		}
	}
}

// HandleCommand applies a UI command to the machine and reports whether it
// was accepted.
func (e *Engine) HandleCommand(cmd transports.Command) bool {
	var ok bool
	switch cmd.Type {
	case transports.CommandStart:
		ok = e.machine.Begin()
	case transports.CommandEnd:
		ok = e.machine.End()
	case transports.CommandTogglePause:
		ok = e.machine.TogglePause()
	case transports.CommandPause:
		ok = e.machine.Pause()
	case transports.CommandResume:
		ok = e.machine.Resume()
	case transports.CommandStop:
		ok = e.machine.Stop()
	case transports.CommandSay:
		ok = e.say(cmd.Text)
	default:
		e.log.Warn("command_unknown", "type", string(cmd.Type), "reason_code", string(errorsx.ReasonTransportDecode))
	}
	outcome := "accepted"
	if !ok {
		outcome = "ignored"
	}
	tags := map[string]string{
		metrics.TagCommand:   string(cmd.Type),
		metrics.TagOutcome:   outcome,
		metrics.TagComponent: "engine",
	}
	if id := e.machine.ConversationID(); id != "" {
		tags[metrics.TagConversationID] = id
	}
	e.asyncObs.RecordEvent(metrics.MetricsEvent{
		Name:  metrics.EventCommandReceived,
		Time:  time.Now(),
		Value: 1,
		Tags:  tags,
	})
	e.log.Debug("command_received", "type", string(cmd.Type), "client_id", cmd.ClientID, "outcome", outcome)
	return ok
}

func (e *Engine) say(text string) bool {
	feeder, ok := e.recognizer.(speech.TextFeeder)
	if !ok {
		e.log.Warn("say_unsupported", "speech_provider", e.speechName)
		return false
	}
	if !feeder.Feed(text) {
		e.log.Debug("say_ignored", "reason", "not_listening")
		return false
	}
	return true
}

func (e *Engine) Machine() *conversation.Machine { return e.machine }

func (e *Engine) Transport() transports.Transport { return e.transport }

func (e *Engine) Recognizer() speech.Recognizer { return e.recognizer }

func (e *Engine) Player() video.Player { return e.player }

// SpeechProvider is the name of the recognizer provider in use, empty when
// none could be built.
func (e *Engine) SpeechProvider() string { return e.speechName }

// Metrics is nil when observability.metrics is off.
func (e *Engine) Metrics() *observers.PrometheusObserver { return e.promObs }

// Gatherer is nil when observability.metrics is off.
func (e *Engine) Gatherer() prometheus.Gatherer { return e.gatherer }

func (e *Engine) Config() Config { return e.cfg }

// State reports the lifecycle state.
func (e *Engine) State() runner.State { return e.runner.State() }
