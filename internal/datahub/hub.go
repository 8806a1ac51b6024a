// Package datahub serves daily bar series from the local cache, the external
// provider, or the synthetic generator, in that order of preference.
package datahub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"DataHub/internal/collector"
	"DataHub/internal/model"
	"DataHub/internal/notifier"
	"DataHub/internal/recorder"
	"DataHub/internal/store"
	"DataHub/internal/synthetic"
)

// SourceCache marks results served from the store.
const SourceCache = "cache"

var (
	// ErrEmptySymbol is returned when GetRange is called without a symbol.
	ErrEmptySymbol = errors.New("symbol is required")
	// ErrInvalidSymbol is returned for symbols containing a path separator or "..".
	ErrInvalidSymbol = store.ErrInvalidSymbol
)

const (
	defaultFetchTimeout = 30 * time.Second
	defaultAlertTimeout = 10 * time.Second
)

// Hub orchestrates cache lookups, provider fetches and synthetic fallback.
type Hub struct {
	store          store.Store
	fetcher        collector.Fetcher
	gen            *synthetic.Generator
	recorder       recorder.Recorder
	notifier       notifier.Notifier
	locks          *store.Locker
	logger         *zap.Logger
	fetchTimeout   time.Duration
	strictCoverage bool
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger; the default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.logger = l }
}

// WithRecorder journals every GetRange call.
func WithRecorder(r recorder.Recorder) Option {
	return func(h *Hub) { h.recorder = r }
}

// WithNotifier sends an alert whenever synthetic data replaces a provider result.
func WithNotifier(n notifier.Notifier) Option {
	return func(h *Hub) { h.notifier = n }
}

// WithFetchTimeout bounds each provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.fetchTimeout = d
		}
	}
}

// WithStrictCoverage makes a cached slice count as a hit only when it reaches
// both ends of the requested range. By default any non-empty slice is a hit,
// so a cached series covering part of a wider range is returned as-is.
func WithStrictCoverage(strict bool) Option {
	return func(h *Hub) { h.strictCoverage = strict }
}

// New creates a Hub over the given store, provider and generator.
func New(st store.Store, f collector.Fetcher, gen *synthetic.Generator, opts ...Option) *Hub {
	h := &Hub{
		store:        st,
		fetcher:      f,
		gen:          gen,
		recorder:     recorder.NewNoopRecorder(),
		notifier:     notifier.NoopNotifier{},
		locks:        store.NewLocker(),
		logger:       zap.NewNop(),
		fetchTimeout: defaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// NormalizeSymbol trims and upper-cases a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// GetRange returns the bars of symbol dated within [start, end]. Provider
// failures are absorbed by generating synthetic data; an empty series is a
// valid result. Only storage failures and empty or invalid symbols are
// returned as errors.
func (h *Hub) GetRange(ctx context.Context, symbol string, start, end time.Time) (model.Series, error) {
	symbol = NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, ErrEmptySymbol
	}
	if err := store.CheckSymbol(symbol); err != nil {
		return nil, err
	}
	rng := model.NewDateRange(start, end)

	unlock := h.locks.Lock(symbol)
	defer unlock()

	began := time.Now()
	evt := &recorder.FetchEvent{
		RequestID: uuid.NewString(),
		Timestamp: began,
		Symbol:    symbol,
		Start:     rng.Start,
		End:       rng.End,
	}
	log := h.logger.With(
		zap.String("request_id", evt.RequestID),
		zap.String("symbol", symbol),
		zap.Stringer("range", rng),
	)

	out, err := h.resolve(ctx, symbol, rng, evt, log)
	evt.Duration = time.Since(began)
	if err != nil {
		evt.Outcome = recorder.OutcomeError
		evt.Err = err.Error()
		h.record(evt, log)
		log.Error("get range failed", zap.Error(err))
		return nil, fmt.Errorf("get range %s: %w", symbol, err)
	}

	evt.Rows = len(out)
	h.record(evt, log)
	log.Debug("range served",
		zap.String("outcome", string(evt.Outcome)),
		zap.String("source", evt.Source),
		zap.Int("rows", evt.Rows),
		zap.Duration("took", evt.Duration))
	return out, nil
}

func (h *Hub) record(evt *recorder.FetchEvent, log *zap.Logger) {
	if err := h.recorder.RecordFetch(evt); err != nil {
		log.Warn("record fetch event", zap.Error(err))
	}
}

func (h *Hub) resolve(ctx context.Context, symbol string, rng model.DateRange, evt *recorder.FetchEvent, log *zap.Logger) (model.Series, error) {
	exists, err := h.store.Exists(ctx, symbol)
	if err != nil {
		return nil, err
	}

	if !exists {
		series := h.obtain(ctx, symbol, rng, evt, log)
		if err := h.store.Save(ctx, symbol, series); err != nil {
			return nil, err
		}
		evt.Outcome = recorder.OutcomeFresh
		return store.FilterRange(series, rng), nil
	}

	cached, err := h.store.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	filtered := store.FilterRange(cached, rng)
	if h.covers(filtered, rng) {
		evt.Outcome = recorder.OutcomeHit
		evt.Source = SourceCache
		return filtered, nil
	}

	log.Info("cached series does not cover range, refetching",
		zap.Int("cached_rows", len(cached)),
		zap.Int("rows_in_range", len(filtered)))

	// The old series is discarded, never merged with the new one.
	series := h.obtain(ctx, symbol, rng, evt, log)
	if len(series) == 0 {
		log.Warn("refetch returned nothing, keeping cached series")
		evt.Outcome = recorder.OutcomeStale
		evt.Source = SourceCache
		return filtered, nil
	}
	if err := h.store.Save(ctx, symbol, series); err != nil {
		return nil, err
	}
	evt.Outcome = recorder.OutcomeRefetch
	return store.FilterRange(series, rng), nil
}

func (h *Hub) covers(filtered model.Series, rng model.DateRange) bool {
	if len(filtered) == 0 {
		return false
	}
	if !h.strictCoverage {
		return true
	}
	return !filtered.First().Date.After(rng.Start) && !filtered.Last().Date.Before(rng.End)
}

// obtain returns the provider's series for rng, or a synthetic one when the
// provider fails or has no rows.
func (h *Hub) obtain(ctx context.Context, symbol string, rng model.DateRange, evt *recorder.FetchEvent, log *zap.Logger) model.Series {
	provider := h.fetcher.Name()

	fctx, cancel := context.WithTimeout(ctx, h.fetchTimeout)
	series, err := h.fetcher.FetchRange(fctx, symbol, rng)
	cancel()

	var reason string
	switch {
	case err != nil:
		reason = err.Error()
		log.Warn("provider fetch failed, generating synthetic data",
			zap.String("provider", provider), zap.Error(err))
	default:
		series = model.Normalize(series)
		if len(series) > 0 {
			evt.Source = provider
			log.Info("fetched from provider", zap.String("provider", provider), zap.Int("rows", len(series)))
			return series
		}
		reason = "provider returned no rows"
		log.Warn("provider returned no data, generating synthetic data", zap.String("provider", provider))
	}

	evt.Source = recorder.SourceSynthetic
	evt.ProviderErr = reason
	h.alert(ctx, symbol, provider, rng, reason, log)
	return h.gen.Generate(rng)
}

func (h *Hub) alert(ctx context.Context, symbol, provider string, rng model.DateRange, reason string, log *zap.Logger) {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultAlertTimeout)
	defer cancel()
	if err := h.notifier.Notify(actx, notifier.FormatFallbackAlert(symbol, provider, rng.String(), reason)); err != nil {
		log.Warn("send fallback alert", zap.Error(err))
	}
}
