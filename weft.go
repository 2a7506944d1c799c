package weft

import (
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// defaultPerspectiveCacheSize bounds the per-perspective block length cache.
const defaultPerspectiveCacheSize = 1024

// Options configures a Weft replica.
type Options struct {
	// ClientID identifies this replica's author id. Required.
	ClientID string

	// Transport submits local operations to the ordering service. Optional;
	// without one the replica starts disconnected and operations queue for
	// resubmission.
	Transport TransportInterface

	// Logger receives debug logging. Defaults to a no-op logger.
	Logger *zap.Logger

	// PerspectiveCacheSize bounds the per-perspective measurement cache.
	// Zero selects the default.
	PerspectiveCacheSize int
}

// Weft is one peer's replica of a shared collaborative sequence: a merge
// tree of causally stamped segments, the anchors and interval collections
// attached to it, and the pending-operation pipeline.
//
// A Weft has a single logical writer: local edits and remote envelopes are
// applied one at a time. Read queries may be issued from other goroutines
// and from within notification callbacks.
type Weft struct {
	mu       sync.RWMutex
	clientID string
	logger   *zap.Logger

	// Tree structure
	root       *block
	gen        uint64 // bumped on every mutation; invalidates perspCache
	perspCache *lru.Cache[perspKey, int]

	// Sequencing state
	seq          int64 // highest sequence number incorporated
	minSeq       int64 // lowest refSeq any connected peer may still send
	nextLocalSeq int64 // pending-timeline counter
	pending      []*pendingOp
	connected    bool
	transport    TransportInterface

	// Interval collections by name
	collections map[string]*IntervalCollection

	// Observers
	deltaListeners    []DeltaListener
	intervalListeners []IntervalListener

	// Counters
	stats SequencerStats
}

// New creates an empty replica.
func New(opts Options) (*Weft, error) {
	if opts.ClientID == "" {
		return nil, ErrNoClientID
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cacheSize := opts.PerspectiveCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultPerspectiveCacheSize
	}
	w := &Weft{
		clientID:    opts.ClientID,
		logger:      logger,
		root:        newLeafBlock(nil),
		perspCache:  newPerspCache(cacheSize),
		transport:   opts.Transport,
		connected:   opts.Transport != nil,
		collections: make(map[string]*IntervalCollection),
	}
	return w, nil
}

// ClientID returns this replica's client id.
func (w *Weft) ClientID() string { return w.clientID }

// Seq returns the highest sequence number this replica has incorporated.
func (w *Weft) Seq() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.seq
}

// MinSeq returns the tombstone retention floor last announced by the
// ordering service.
func (w *Weft) MinSeq() int64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.minSeq
}

// Text returns the visible text of the local view. Markers contribute
// nothing to the text.
func (w *Weft) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.textLocked()
}

func (w *Weft) textLocked() string {
	var sb strings.Builder
	local := w.localView()
	w.root.walkSegments(func(s Segment) bool {
		if local.segLength(s) > 0 {
			sb.WriteString(s.Text())
		}
		return true
	})
	return sb.String()
}

// TextRange returns the visible text within [start, end) of the local view.
func (w *Weft) TextRange(start, end int) (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if start < 0 || end > w.root.liveLen {
		return "", ErrInvalidPosition
	}
	if end < start {
		return "", ErrInvalidRange
	}
	var sb strings.Builder
	local := w.localView()
	pos := 0
	w.root.walkSegments(func(s Segment) bool {
		l := local.segLength(s)
		if l == 0 {
			return true
		}
		segStart, segEnd := pos, pos+l
		pos = segEnd
		if segEnd <= start {
			return true
		}
		if segStart >= end {
			return false
		}
		if !IsMarker(s) {
			text := []rune(s.Text())
			from, to := 0, len(text)
			if segStart < start {
				from = start - segStart
			}
			if segEnd > end {
				to = len(text) - (segEnd - end)
			}
			sb.WriteString(string(text[from:to]))
		}
		return true
	})
	return sb.String(), nil
}

// PendingOps returns the number of local operations awaiting acknowledgment.
func (w *Weft) PendingOps() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.pending)
}

// SequencerStats are counters maintained by the operation pipeline.
type SequencerStats struct {
	LocalOps       int64 // local operations issued
	RemoteOps      int64 // remote operations applied
	Acked          int64 // local operations acknowledged
	Resubmitted    int64 // operations regenerated after reconnection
	ResubmitNoOps  int64 // pending operations that degraded to no-ops
	PacksPerformed int64 // compaction passes run
}

// Stats returns a copy of the replica's pipeline counters.
func (w *Weft) Stats() SequencerStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}
