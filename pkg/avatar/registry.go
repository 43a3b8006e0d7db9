package avatar

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harunnryd/avatarchat/pkg/adapters/speech"
	"github.com/harunnryd/avatarchat/pkg/adapters/video"
	"github.com/harunnryd/avatarchat/pkg/errorsx"
	"github.com/harunnryd/avatarchat/pkg/transports"
)

// TransportNone disables the UI transport.
const TransportNone = "none"

type PlayerFactory func(cfg Config, logger *slog.Logger) (video.Player, error)
type RecognizerFactory func(cfg Config, settings map[string]any, logger *slog.Logger) (speech.Recognizer, error)

// TransportFactory builds a transport. gatherer is nil when metrics are
// disabled.
type TransportFactory func(cfg Config, gatherer prometheus.Gatherer, logger *slog.Logger) (transports.Transport, error)

type ProviderRegistry struct {
	players     map[string]PlayerFactory
	recognizers map[string]RecognizerFactory
	transports  map[string]TransportFactory
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		players:     make(map[string]PlayerFactory),
		recognizers: make(map[string]RecognizerFactory),
		transports:  make(map[string]TransportFactory),
	}
}

func (r *ProviderRegistry) RegisterPlayer(name string, factory PlayerFactory) {
	r.players[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterRecognizer(name string, factory RecognizerFactory) {
	r.recognizers[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterTransport(name string, factory TransportFactory) {
	r.transports[normalizeName(name)] = factory
}

func (r *ProviderRegistry) BuildPlayer(cfg Config, logger *slog.Logger) (video.Player, error) {
	fn := r.players[normalizeName(cfg.Video.Provider)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("video provider not registered: %s", cfg.Video.Provider), errorsx.ReasonConfig)
	}
	return fn(cfg, logger)
}

// BuildRecognizer tries speech.provider and then each fallback in order.
// It returns the first recognizer that builds and the provider name used.
func (r *ProviderRegistry) BuildRecognizer(cfg Config, logger *slog.Logger) (speech.Recognizer, string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	candidates := append([]string{cfg.Speech.Provider}, cfg.Speech.Fallbacks...)
	var errs []error
	for _, name := range candidates {
		key := normalizeName(name)
		fn := r.recognizers[key]
		if fn == nil {
			errs = append(errs, fmt.Errorf("speech provider not registered: %s", name))
			logger.Warn("recognizer_candidate_skipped", "provider", name, "reason", "not_registered")
			continue
		}
		rec, err := fn(cfg, cfg.Speech.SettingsFor(name), logger)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			logger.Warn("recognizer_candidate_failed", "provider", name, "error", err.Error())
			continue
		}
		if rec == nil {
			errs = append(errs, fmt.Errorf("%s: factory returned no recognizer", name))
			continue
		}
		if key != normalizeName(cfg.Speech.Provider) {
			logger.Info("recognizer_fallback_selected", "provider", name, "primary", cfg.Speech.Provider)
		}
		return rec, key, nil
	}
	return nil, "", errorsx.Wrap(errors.Join(errs...), errorsx.ReasonRecognizerInit)
}

// BuildTransport returns nil without error for the "none" provider.
func (r *ProviderRegistry) BuildTransport(cfg Config, gatherer prometheus.Gatherer, logger *slog.Logger) (transports.Transport, error) {
	name := normalizeName(cfg.Transport.Provider)
	if name == TransportNone {
		return nil, nil
	}
	fn := r.transports[name]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("transport provider not registered: %s", cfg.Transport.Provider), errorsx.ReasonConfig)
	}
	return fn(cfg, gatherer, logger)
}

// Providers lists registered names per kind, sorted.
func (r *ProviderRegistry) Providers() map[string][]string {
	return map[string][]string{
		"video":     sortedKeys(r.players),
		"speech":    sortedKeys(r.recognizers),
		"transport": sortedKeys(r.transports),
	}
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
