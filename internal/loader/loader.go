// Package loader serves fixed-size batches of scenario files drawn from a
// bounded catalog, reproducibly for a given seed.
//
// In replacement mode every batch is an independent uniform draw and the
// stream never ends. Otherwise the catalog (optionally shuffled) is split into
// consecutive non-overlapping groups; when an epoch runs out the loader either
// starts a new one, reshuffling from the advancing generator, or reports
// [ErrExhausted].
package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SakodaShintaro/gpudrive/internal/catalog"
	"github.com/SakodaShintaro/gpudrive/internal/tracing"
)

var (
	// ErrInvalidConfig classifies construction failures caused by parameters.
	ErrInvalidConfig = errors.New("invalid loader configuration")
	// ErrInfeasible is returned when a batch cannot be filled from the catalog
	// without replacement.
	ErrInfeasible = fmt.Errorf("%w: batch size exceeds catalog size without replacement", ErrInvalidConfig)
	// ErrUnevenPartition is returned under RemainderReject when the catalog
	// does not divide into whole batches.
	ErrUnevenPartition = fmt.Errorf("%w: catalog size is not a multiple of batch size", ErrInvalidConfig)
	// ErrExhausted is returned once every group of the epoch has been served
	// and the exhaustion policy is ExhaustStop.
	ErrExhausted = errors.New("loader exhausted: epoch complete")
	// ErrClosed is returned by Next after Close.
	ErrClosed = errors.New("loader closed")
)

// Remainder selects what happens to a final group shorter than the batch size.
type Remainder string

const (
	// RemainderPad fills the short group with uniform draws from the catalog.
	RemainderPad Remainder = "pad"
	// RemainderDrop skips the short group.
	RemainderDrop Remainder = "drop"
	// RemainderReject refuses catalogs that do not divide evenly.
	RemainderReject Remainder = "reject"
)

// Exhaustion selects what happens at the end of an epoch.
type Exhaustion string

const (
	ExhaustRestart Exhaustion = "restart"
	ExhaustStop    Exhaustion = "stop"
)

// State is the loader lifecycle position.
type State int

const (
	StateReady State = iota
	StateExhausted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Batch is an ordered group of scenario paths, one per simulated world.
type Batch []string

// Config holds the immutable loader parameters.
type Config struct {
	Root                  string
	Filter                catalog.Filter
	Manifest              string
	ValidateScenes        bool
	BatchSize             int
	DatasetSize           int
	SampleWithReplacement bool
	Seed                  int64
	Shuffle               bool
	Remainder             Remainder
	OnExhausted           Exhaustion
}

func (c Config) validate() error {
	if c.Root == "" && c.Manifest == "" {
		return fmt.Errorf("%w: root is required", ErrInvalidConfig)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}
	if c.DatasetSize < 1 {
		return fmt.Errorf("%w: dataset size must be positive, got %d", ErrInvalidConfig, c.DatasetSize)
	}
	switch c.Remainder {
	case RemainderPad, RemainderDrop, RemainderReject:
	default:
		return fmt.Errorf("%w: unknown remainder policy %q", ErrInvalidConfig, c.Remainder)
	}
	switch c.OnExhausted {
	case ExhaustRestart, ExhaustStop:
	default:
		return fmt.Errorf("%w: unknown exhaustion policy %q", ErrInvalidConfig, c.OnExhausted)
	}
	if !c.SampleWithReplacement {
		if c.BatchSize > c.DatasetSize {
			return fmt.Errorf("%w (batch %d, dataset %d)", ErrInfeasible, c.BatchSize, c.DatasetSize)
		}
	}
	return nil
}

// Option customizes a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithTracer sets the tracer used for catalog and fetch spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(l *Loader) {
		l.tracer = tracer
	}
}

// Loader produces batches of scenario paths. It is safe for concurrent use,
// but batch sequences are only reproducible with a single consumer.
type Loader struct {
	cfg     Config
	catalog *catalog.Catalog
	info    catalog.Info
	logger  *zap.Logger
	tracer  trace.Tracer

	mu     sync.Mutex
	rng    *rand.Rand
	order  []int // catalog indices in the current epoch's order
	cursor int
	epoch  int
	state  State
}

// New enumerates the catalog and prepares the first epoch. All filesystem
// access happens here.
func New(ctx context.Context, cfg Config, opts ...Option) (*Loader, error) {
	if cfg.Remainder == "" {
		cfg.Remainder = RemainderPad
	}
	if cfg.OnExhausted == "" {
		cfg.OnExhausted = ExhaustRestart
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	l := &Loader{
		cfg:    cfg,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	spanCtx, span := tracing.StartSpan(ctx, l.tracer, "loader.build_catalog",
		attribute.String("loader.root", cfg.Root),
		attribute.Int("loader.dataset_size", cfg.DatasetSize),
	)
	cat, info, err := catalog.Build(spanCtx, catalog.Options{
		Root:     cfg.Root,
		Filter:   cfg.Filter,
		Size:     cfg.DatasetSize,
		Manifest: cfg.Manifest,
		Validate: cfg.ValidateScenes,
	})
	tracing.EndSpan(span, err, attribute.Int("loader.catalog_size", cat.Len()))
	if err != nil {
		return nil, err
	}
	l.catalog = cat
	l.info = info

	if info.Clamped {
		l.logger.Warn("dataset size exceeds available scenes, clamping",
			zap.Int("dataset_size", cfg.DatasetSize),
			zap.Int("available", info.Available),
		)
	}

	n := cat.Len()
	if !cfg.SampleWithReplacement {
		if cfg.BatchSize > n {
			return nil, fmt.Errorf("%w (batch %d, catalog %d)", ErrInfeasible, cfg.BatchSize, n)
		}
		if cfg.Remainder == RemainderReject && n%cfg.BatchSize != 0 {
			return nil, fmt.Errorf("%w (batch %d, catalog %d)", ErrUnevenPartition, cfg.BatchSize, n)
		}
		if rem := n % cfg.BatchSize; rem != 0 {
			l.logger.Debug("final group is short",
				zap.Int("remainder", rem),
				zap.String("policy", string(cfg.Remainder)),
			)
		}
	}

	l.rng = rand.New(rand.NewSource(cfg.Seed))
	l.order = make([]int, n)
	for i := range l.order {
		l.order[i] = i
	}
	if cfg.Shuffle {
		l.shuffleLocked()
	}

	l.logger.Info("scene loader ready",
		zap.String("source", string(info.Source)),
		zap.Int("catalog_size", n),
		zap.Int("batch_size", cfg.BatchSize),
		zap.Bool("sample_with_replacement", cfg.SampleWithReplacement),
		zap.Bool("shuffle", cfg.Shuffle),
		zap.Int64("seed", cfg.Seed),
	)
	return l, nil
}

// Next returns the next batch. The returned slice is owned by the caller.
func (l *Loader) Next(ctx context.Context) (Batch, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	_, span := tracing.StartSpan(ctx, l.tracer, "loader.next")

	l.mu.Lock()
	batch, err := l.nextLocked()
	epoch := l.epoch
	l.mu.Unlock()

	tracing.EndSpan(span, err,
		attribute.Int("loader.epoch", epoch),
		attribute.Int("loader.batch_size", len(batch)),
	)
	return batch, err
}

func (l *Loader) nextLocked() (Batch, error) {
	switch l.state {
	case StateClosed:
		return nil, ErrClosed
	case StateExhausted:
		return nil, ErrExhausted
	}

	if l.cfg.SampleWithReplacement {
		return l.drawLocked(l.cfg.BatchSize, nil), nil
	}

	if l.epochDoneLocked() {
		if l.cfg.OnExhausted == ExhaustStop {
			l.state = StateExhausted
			l.logger.Debug("epoch complete, loader exhausted", zap.Int("epoch", l.epoch))
			return nil, ErrExhausted
		}
		l.advanceEpochLocked()
	}

	end := min(l.cursor+l.cfg.BatchSize, len(l.order))
	batch := make(Batch, 0, l.cfg.BatchSize)
	for _, idx := range l.order[l.cursor:end] {
		batch = append(batch, l.catalog.At(idx))
	}
	l.cursor = end

	if short := l.cfg.BatchSize - len(batch); short > 0 {
		// Only RemainderPad reaches here; drop and reject never start a short group.
		batch = l.drawLocked(short, batch)
	}
	return batch, nil
}

// epochDoneLocked reports whether no further group can be served this epoch.
func (l *Loader) epochDoneLocked() bool {
	remaining := len(l.order) - l.cursor
	if remaining <= 0 {
		return true
	}
	return l.cfg.Remainder == RemainderDrop && remaining < l.cfg.BatchSize
}

func (l *Loader) advanceEpochLocked() {
	l.epoch++
	l.cursor = 0
	if l.cfg.Shuffle {
		l.shuffleLocked()
	}
	l.logger.Debug("starting epoch", zap.Int("epoch", l.epoch))
}

func (l *Loader) shuffleLocked() {
	l.rng.Shuffle(len(l.order), func(i, j int) {
		l.order[i], l.order[j] = l.order[j], l.order[i]
	})
}

// drawLocked appends k uniform draws from the catalog to dst.
func (l *Loader) drawLocked(k int, dst Batch) Batch {
	if dst == nil {
		dst = make(Batch, 0, k)
	}
	n := l.catalog.Len()
	for i := 0; i < k; i++ {
		dst = append(dst, l.catalog.At(l.rng.Intn(n)))
	}
	return dst
}

// Batches adapts Next to a range-over-func stream. The sequence ends on
// ErrExhausted or after yielding any other error.
func (l *Loader) Batches(ctx context.Context) iter.Seq2[Batch, error] {
	return func(yield func(Batch, error) bool) {
		for {
			batch, err := l.Next(ctx)
			if errors.Is(err, ErrExhausted) {
				return
			}
			if !yield(batch, err) || err != nil {
				return
			}
		}
	}
}

// Reset starts a new epoch, reshuffling when Shuffle is set, and clears the
// exhausted state. The generator is not re-seeded.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateClosed {
		return
	}
	l.state = StateReady
	if !l.cfg.SampleWithReplacement {
		l.advanceEpochLocked()
	}
}

// Close marks the loader closed. It is idempotent.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = StateClosed
	return nil
}

// Catalog returns the realized catalog in enumeration order.
func (l *Loader) Catalog() *catalog.Catalog {
	return l.catalog
}

// Info describes where the catalog came from.
func (l *Loader) Info() catalog.Info {
	return l.info
}

// Dataset returns the catalog in the current epoch's iteration order.
func (l *Loader) Dataset() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, len(l.order))
	for i, idx := range l.order {
		out[i] = l.catalog.At(idx)
	}
	return out
}

// Len returns the catalog size.
func (l *Loader) Len() int {
	return l.catalog.Len()
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int {
	return l.cfg.BatchSize
}

// BatchesPerEpoch returns how many batches one epoch yields, or 0 when
// sampling with replacement.
func (l *Loader) BatchesPerEpoch() int {
	if l.cfg.SampleWithReplacement {
		return 0
	}
	n := l.catalog.Len()
	if l.cfg.Remainder == RemainderDrop {
		return n / l.cfg.BatchSize
	}
	return (n + l.cfg.BatchSize - 1) / l.cfg.BatchSize
}

// Epoch returns the zero-based index of the current epoch.
func (l *Loader) Epoch() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.epoch
}

// State returns the lifecycle state.
func (l *Loader) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
