// Package summarize decides when a replica's state is serialized to durable
// storage. It watches a sequence for mutations and writes a snapshot after
// an operation-count threshold or an idle period, whichever comes first.
// The snapshot bytes are opaque; no at-rest format beyond the sequence's
// own serialization is defined here.
package summarize

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/phroun/weft"
)

// Source is the summarized sequence. *weft.Weft satisfies it.
type Source interface {
	Snapshot() ([]byte, error)
	PendingOps() int
	RegisterDeltaListener(l weft.DeltaListener)
}

// Config configures a Trigger.
type Config struct {
	// Fs is the snapshot sink filesystem.
	Fs afero.Fs

	// Path is the snapshot file path within Fs. Each summary overwrites
	// the previous one.
	Path string

	// OpThreshold forces a summary once this many operations accumulate.
	// Zero disables the threshold.
	OpThreshold int

	// IdleInterval summarizes once no operation has arrived for this long
	// while unsummarized operations exist.
	IdleInterval time.Duration

	// Clock defaults to the real clock; tests substitute a fake.
	Clock clockwork.Clock

	// Logger defaults to a no-op logger.
	Logger *zap.Logger
}

// Trigger drives snapshots of one sequence into the configured sink.
type Trigger struct {
	source Source
	cfg    Config
	ops    atomic.Int64
	nudge  chan struct{}
}

// New creates a trigger and registers it as an observer of the source.
func New(source Source, cfg Config) *Trigger {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	t := &Trigger{source: source, cfg: cfg, nudge: make(chan struct{}, 1)}
	source.RegisterDeltaListener(func(weft.DeltaEvent) {
		t.ops.Add(1)
		select {
		case t.nudge <- struct{}{}:
		default:
		}
	})
	return t
}

// Run summarizes until the context is cancelled.
func (t *Trigger) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.nudge:
			if t.cfg.OpThreshold > 0 && t.ops.Load() >= int64(t.cfg.OpThreshold) {
				t.summarize()
			}
		case <-t.cfg.Clock.After(t.cfg.IdleInterval):
			if t.ops.Load() > 0 {
				t.summarize()
			}
		}
	}
}

// Pending returns the count of operations not yet covered by a summary.
func (t *Trigger) Pending() int64 { return t.ops.Load() }

func (t *Trigger) summarize() {
	if t.source.PendingOps() > 0 {
		// Summaries cover acknowledged state only; wait for the pipeline
		// to drain and try again on the next nudge or idle tick.
		t.cfg.Logger.Debug("summary deferred, local ops pending")
		return
	}
	count := t.ops.Load()
	data, err := t.source.Snapshot()
	if err != nil {
		t.cfg.Logger.Warn("snapshot failed", zap.Error(err))
		return
	}
	if err := afero.WriteFile(t.cfg.Fs, t.cfg.Path, data, 0o644); err != nil {
		t.cfg.Logger.Warn("snapshot write failed", zap.Error(err), zap.String("path", t.cfg.Path))
		return
	}
	t.ops.Add(-count)
	t.cfg.Logger.Debug("summary written",
		zap.String("path", t.cfg.Path),
		zap.Int64("ops", count),
		zap.Int("bytes", len(data)))
}
