package lifecycle

import (
	"log/slog"
	"time"

	"github.com/dshills/lifecycle-go/lifecycle/emit"
	"github.com/dshills/lifecycle-go/lifecycle/store"
)

// Options configures a Lifecycle.
//
// The zero value is a valid configuration: a single cooperative driver, an
// unbounded pending queue, strict and trace modes off, the first phase error
// aborting the pass, and no observability, metrics or journal.
type Options struct {
	// Workers is the number of goroutines draining the pending queue.
	// Zero or one selects a single cooperative driver on the calling goroutine.
	Workers int

	// MaxQueueDepth bounds the number of pending phases. Zero is unbounded.
	// A phase whose successors would exceed it fails with ErrBackpressure.
	MaxQueueDepth int

	// Strict enables path and identity verification in Phase.Run.
	Strict bool

	// Trace logs every phase processing step at debug level.
	Trace bool

	// ContinueOnError keeps sibling subtrees running after a phase fails.
	// Perform then returns every phase error joined. When false, the first
	// phase error cancels the pass.
	ContinueOnError bool

	// PassTimeout bounds a whole call to Perform. Zero disables it.
	// Running tasks are never interrupted; the deadline is observed between
	// phases.
	PassTimeout time.Duration

	// Metrics receives Prometheus metrics. Nil disables metrics.
	Metrics *PrometheusMetrics

	// Emitter receives observability events. Nil discards them.
	Emitter emit.Emitter

	// Journal records phase completions and pass summaries. Nil disables
	// the journal.
	Journal store.Store

	// Logger receives structured logs. Nil discards them.
	Logger *slog.Logger

	// PassID identifies the pass. Empty generates a random UUID.
	PassID string

	hooks [numStages]StageHooks
}

// Option is a functional option for configuring a Lifecycle.
//
// Example:
//
//	lc, err := lifecycle.New(pool, view, model,
//	    lifecycle.WithWorkers(8),
//	    lifecycle.WithStrict(true),
//	    lifecycle.WithLogger(slog.Default()),
//	)
type Option func(*lifecycleConfig) error

// lifecycleConfig collects options before they are applied to a Lifecycle.
type lifecycleConfig struct {
	opts Options
}

// WithOptions replaces the configuration collected so far with opts, except
// for stage hooks. Options after it still apply on top.
func WithOptions(opts Options) Option {
	return func(cfg *lifecycleConfig) error {
		hooks := cfg.opts.hooks
		cfg.opts = opts
		cfg.opts.hooks = hooks
		return nil
	}
}

// WithWorkers sets the number of goroutines draining the pending queue.
//
// Default: 1. Phases on disjoint subtrees then run concurrently; tasks of one
// phase still run sequentially.
func WithWorkers(n int) Option {
	return func(cfg *lifecycleConfig) error {
		if n < 0 {
			return &ConfigError{Message: "workers must not be negative", Code: "INVALID_WORKERS"}
		}
		cfg.opts.Workers = n
		return nil
	}
}

// WithMaxQueueDepth bounds the number of pending phases. Zero is unbounded.
func WithMaxQueueDepth(n int) Option {
	return func(cfg *lifecycleConfig) error {
		if n < 0 {
			return &ConfigError{Message: "max queue depth must not be negative", Code: "INVALID_QUEUE_DEPTH"}
		}
		cfg.opts.MaxQueueDepth = n
		return nil
	}
}

// WithStrict enables strict mode: every phase verifies that its path still
// resolves to the element it processes.
func WithStrict(enabled bool) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Strict = enabled
		return nil
	}
}

// WithTrace enables the per-step debug trace of phase processing.
func WithTrace(enabled bool) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Trace = enabled
		return nil
	}
}

// WithContinueOnError keeps sibling subtrees running after a phase fails.
func WithContinueOnError(enabled bool) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.ContinueOnError = enabled
		return nil
	}
}

// WithPassTimeout bounds each call to Perform.
func WithPassTimeout(d time.Duration) Option {
	return func(cfg *lifecycleConfig) error {
		if d < 0 {
			return &ConfigError{Message: "pass timeout must not be negative", Code: "INVALID_PASS_TIMEOUT"}
		}
		cfg.opts.PassTimeout = d
		return nil
	}
}

// WithMetrics enables Prometheus metrics collection.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	metrics := lifecycle.NewPrometheusMetrics(registry)
//	lc, _ := lifecycle.New(pool, view, model, lifecycle.WithMetrics(metrics))
//
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
func WithMetrics(metrics *PrometheusMetrics) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Metrics = metrics
		return nil
	}
}

// WithEmitter sets the observability event emitter.
func WithEmitter(emitter emit.Emitter) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Emitter = emitter
		return nil
	}
}

// WithJournal records phase completions and the pass summary in journal.
func WithJournal(journal store.Store) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Journal = journal
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.Logger = logger
		return nil
	}
}

// WithPassID sets the pass identifier used in events, metrics and the journal.
func WithPassID(id string) Option {
	return func(cfg *lifecycleConfig) error {
		cfg.opts.PassID = id
		return nil
	}
}

// WithStageHooks overrides how phases of stage build their tasks and
// successors.
func WithStageHooks(stage Stage, hooks StageHooks) Option {
	return func(cfg *lifecycleConfig) error {
		if !stage.Valid() {
			return &ConfigError{Message: "unknown stage " + stage.String(), Code: "INVALID_STAGE"}
		}
		cfg.opts.hooks[stage] = hooks
		return nil
	}
}
