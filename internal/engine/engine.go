// Package engine keeps the price of in-progress estimates current as the
// wizard is filled in. Immediate calculations are synchronous; live updates
// are debounced per estimate and fanned out to subscribers.
package engine

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Simplici0/liveprice/internal/depgraph"
	"github.com/Simplici0/liveprice/internal/flow"
	"github.com/Simplici0/liveprice/internal/pricing"
)

// DefaultDebounce is the coalescing window used when none is configured.
const DefaultDebounce = time.Second

// ErrNotInitialized is the panic value for methods called on an Engine that
// was not built with New.
var ErrNotInitialized = errors.New("pricing engine not initialized")

// Config controls the engine. Start from DefaultConfig.
type Config struct {
	EnableLiveUpdates bool
	Debounce          time.Duration
	// SkipUnrelatedSteps lets UpdatePricing skip recomputation when the
	// changed step is registered and cannot affect pricing.
	SkipUnrelatedSteps bool
	Confidence         pricing.ConfidencePolicy
	HeightRisk         pricing.HeightRiskPolicy
}

// DefaultConfig returns live updates on, a one second window, and the
// default pricing policies.
func DefaultConfig() Config {
	return Config{
		EnableLiveUpdates: true,
		Debounce:          DefaultDebounce,
		Confidence:        pricing.DefaultConfidencePolicy(),
		HeightRisk:        pricing.DefaultHeightRiskPolicy(),
	}
}

// Normalize replaces invalid values with defaults and describes each
// replacement. Zero values are treated as unset and replaced silently.
func (c Config) Normalize() (Config, []string) {
	var warnings []string

	if c.Debounce < 0 {
		warnings = append(warnings, fmt.Sprintf("debounce %s is negative, using %s", c.Debounce, DefaultDebounce))
	}
	if c.Debounce <= 0 {
		c.Debounce = DefaultDebounce
	}

	if m := c.Confidence.MinPopulatedSteps; m <= 0 || m > 4 {
		if m != 0 {
			warnings = append(warnings, fmt.Sprintf("min populated steps %d out of range 1-4, using default", m))
		}
		c.Confidence = pricing.DefaultConfidencePolicy()
	}

	if !c.HeightRisk.Valid() {
		if c.HeightRisk != (pricing.HeightRiskPolicy{}) {
			warnings = append(warnings, "height risk policy invalid, using default")
		}
		c.HeightRisk = pricing.DefaultHeightRiskPolicy()
	}

	return c, warnings
}

// Sink receives every result the engine stores, after it is cached.
type Sink func(estimateID string, r pricing.Result)

type options struct {
	namer pricing.ServiceNamer
	clock Clock
	log   zerolog.Logger
	graph *depgraph.Graph
	sink  Sink
	rules []pricing.AdjustmentRule
}

// Option customises New.
type Option func(*options)

// WithNamer sets the service display-name lookup. By default the calculator
// is used when it implements pricing.ServiceNamer.
func WithNamer(n pricing.ServiceNamer) Option { return func(o *options) { o.namer = n } }

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option { return func(o *options) { o.clock = c } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.log = l } }

// WithGraph replaces the step dependency graph.
func WithGraph(g *depgraph.Graph) Option { return func(o *options) { o.graph = g } }

// WithSink registers a persistence hook.
func WithSink(s Sink) Option { return func(o *options) { o.sink = s } }

// WithAdjustmentRules appends rules after the built-in ones.
func WithAdjustmentRules(rules ...pricing.AdjustmentRule) Option {
	return func(o *options) { o.rules = append(o.rules, rules...) }
}

// Engine is the live pricing service for in-progress estimates.
type Engine struct {
	cfg      Config
	agg      *pricing.Aggregator
	graph    *depgraph.Graph
	cache    *Cache
	subs     *Registry
	debounce *Debouncer[update]
	log      zerolog.Logger
	sink     Sink

	// fireMu serialises debounced publishes so delivery per estimate is FIFO.
	fireMu sync.Mutex
	closed atomic.Bool
	// epoch changes on Reset; updates scheduled before it are dropped.
	epoch atomic.Uint64
}

type update struct {
	data  flow.Data
	epoch uint64
}

// New builds an engine around calc.
func New(cfg Config, calc pricing.ServiceCalculator, opts ...Option) *Engine {
	o := options{clock: SystemClock, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = SystemClock
	}
	if o.graph == nil {
		o.graph = depgraph.Default()
	}

	cfg, warnings := cfg.Normalize()
	for _, w := range warnings {
		o.log.Warn().Msg(w)
	}
	if calc == nil {
		o.log.Warn().Msg("no service calculator configured; every service will be reported missing")
	}

	agg := pricing.NewAggregator(calc)
	agg.Confidence = cfg.Confidence
	agg.Height = cfg.HeightRisk
	agg.Rules = append(pricing.DefaultAdjustmentRules(cfg.HeightRisk), o.rules...)
	agg.Now = o.clock.Now
	agg.Log = o.log
	if o.namer != nil {
		agg.Namer = o.namer
	}

	e := &Engine{
		cfg:   cfg,
		agg:   agg,
		graph: o.graph,
		cache: NewCache(),
		subs:  NewRegistry(),
		log:   o.log,
		sink:  o.sink,
	}
	e.debounce = NewDebouncer(o.clock, cfg.Debounce, e.publish)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	e.ready()
	return e.cfg
}

// CalculateRealTimePricing prices data immediately. When an estimate id is
// given, or carried by data, the result is cached under it.
func (e *Engine) CalculateRealTimePricing(data flow.Data, estimateID string) pricing.Result {
	e.ready()

	r := e.agg.Aggregate(data.Clone())
	if id := resolveID(estimateID, data); id != "" {
		e.store(id, r)
	}
	return r
}

// UpdatePricing schedules a debounced recomputation for the estimate. It
// returns immediately. A later call for the same estimate within the window
// replaces this one. changedStep may be empty; unknown steps always
// recompute.
func (e *Engine) UpdatePricing(data flow.Data, estimateID string, changedStep flow.StepID) {
	e.ready()

	if !e.cfg.EnableLiveUpdates || e.closed.Load() {
		return
	}

	id := resolveID(estimateID, data)
	if id == "" {
		e.log.Warn().Str("step", string(changedStep)).Msg("live update without estimate id ignored")
		return
	}

	snapshot := update{data: data.Clone(), epoch: e.epoch.Load()}
	if e.cfg.SkipUnrelatedSteps && changedStep != "" && e.graph.Known(changedStep) &&
		!e.graph.Affects(changedStep, flow.StepPricing) {
		if e.debounce.Replace(id, snapshot) {
			e.log.Debug().Str("estimate", id).Str("step", string(changedStep)).Msg("refreshed pending snapshot")
		}
		return
	}

	e.debounce.Schedule(id, snapshot)
}

// Subscribe registers fn for results published by UpdatePricing for
// estimateID and returns the function that removes it.
func (e *Engine) Subscribe(estimateID string, fn Listener) func() {
	e.ready()
	if fn == nil {
		return func() {}
	}
	return e.subs.Subscribe(estimateID, fn)
}

// Cached returns the latest result stored for estimateID.
func (e *Engine) Cached(estimateID string) (pricing.Result, bool) {
	e.ready()
	return e.cache.Get(estimateID)
}

// Subscribers returns the number of listeners for estimateID.
func (e *Engine) Subscribers(estimateID string) int {
	e.ready()
	return e.subs.Count(estimateID)
}

// Pending reports whether a debounced update is waiting for estimateID.
func (e *Engine) Pending(estimateID string) bool {
	e.ready()
	return e.debounce.Pending(estimateID)
}

// Reset drops all cached results, subscriptions and pending updates. An
// update already firing finishes before Reset returns or is discarded.
// Listeners must not call Reset.
func (e *Engine) Reset() {
	e.ready()
	e.fireMu.Lock()
	defer e.fireMu.Unlock()

	e.epoch.Add(1)
	e.debounce.Clear()
	e.subs.Clear()
	e.cache.Clear()
}

// Close stops pending updates and drops subscriptions. Later UpdatePricing
// calls are ignored; CalculateRealTimePricing keeps working.
func (e *Engine) Close() {
	e.ready()
	e.closed.Store(true)
	e.debounce.Stop()
	e.subs.Clear()
}

func (e *Engine) publish(estimateID string, u update) {
	e.fireMu.Lock()
	defer e.fireMu.Unlock()

	if e.closed.Load() || u.epoch != e.epoch.Load() {
		return
	}

	r := e.agg.Aggregate(u.data)
	e.store(estimateID, r)

	listeners := e.subs.Listeners(estimateID)
	e.log.Debug().
		Str("estimate", estimateID).
		Float64("total", r.TotalCost).
		Str("confidence", string(r.Confidence)).
		Int("listeners", len(listeners)).
		Msg("pricing updated")

	for _, fn := range listeners {
		e.notify(estimateID, fn, r.Clone())
	}
}

func (e *Engine) notify(estimateID string, fn Listener, r pricing.Result) {
	defer func() {
		if rec := recover(); rec != nil {
			e.log.Error().Str("estimate", estimateID).Interface("panic", rec).Msg("pricing listener panicked")
		}
	}()
	fn(r)
}

func (e *Engine) store(estimateID string, r pricing.Result) {
	e.cache.Put(estimateID, r)
	if e.sink != nil {
		e.sink(estimateID, r.Clone())
	}
}

func (e *Engine) ready() {
	if e == nil || e.agg == nil {
		panic(ErrNotInitialized)
	}
}

func resolveID(estimateID string, data flow.Data) string {
	if estimateID != "" {
		return estimateID
	}
	return data.EstimateID
}
