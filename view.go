package weft

import (
	"math"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Perspective identifies an observer's view of the sequence: everything the
// observer had incorporated at RefSeq, plus the observer's own operations.
// Positions are only meaningful relative to a perspective.
type Perspective struct {
	// RefSeq is the highest sequence number the observer has incorporated.
	RefSeq int64

	// Client is the observing client id.
	Client string

	// localSeq reconstructs the local client's own view at a point in its
	// pending-operation timeline: acknowledged state plus local pending
	// operations up to and including localSeq. Zero for remote perspectives.
	localSeq int64
}

// sees reports whether the observer sees the segment as inserted.
func (p Perspective) sees(sb *segmentBase) bool {
	if p.localSeq > 0 {
		if sb.seq != SeqUnacked {
			return true
		}
		return sb.localSeq > 0 && sb.localSeq <= p.localSeq
	}
	if sb.seq == SeqBase {
		return true
	}
	if sb.seq != SeqUnacked && sb.seq <= p.RefSeq {
		return true
	}
	return sb.clientID == p.Client
}

// removedFor reports whether the observer sees the segment as removed.
func (p Perspective) removedFor(sb *segmentBase) bool {
	if !sb.removed() {
		return false
	}
	if p.localSeq > 0 {
		if sb.removedSeq != SeqUnacked {
			return true
		}
		return sb.localRemovedSeq > 0 && sb.localRemovedSeq <= p.localSeq
	}
	if sb.removedSeq != SeqUnacked && sb.removedSeq <= p.RefSeq {
		return true
	}
	return sb.removedBy(p.Client)
}

// segLength returns the length the observer measures for the segment:
// the full length if inserted-and-not-removed for this observer, else 0.
func (p Perspective) segLength(s Segment) int {
	sb := s.base()
	if p.sees(sb) && !p.removedFor(sb) {
		return s.Length()
	}
	return 0
}

// localView is the perspective of this replica's own current state:
// all acknowledged operations plus every pending local one.
func (w *Weft) localView() Perspective {
	return Perspective{RefSeq: math.MaxInt64, Client: w.clientID, localSeq: math.MaxInt64}
}

// perspKey keys the per-perspective block length cache. The generation
// counter invalidates entries wholesale on any tree mutation.
type perspKey struct {
	b      *block
	gen    uint64
	refSeq int64
	client string
	local  int64
}

func newPerspCache(size int) *lru.Cache[perspKey, int] {
	c, err := lru.New[perspKey, int](size)
	if err != nil {
		// Only possible with a non-positive size; callers pass a constant
		// or a validated option.
		panic(err)
	}
	return c
}

// blockLength measures the subtree under b as seen by p.
//
// A subtree with no unacknowledged stamps whose highest stamp is at or below
// p.RefSeq is measured identically by p and by the local view, so the cached
// live length is used directly. Reconstruction perspectives additionally
// prune any fully acknowledged subtree.
func (w *Weft) blockLength(b *block, p Perspective) int {
	if b.unacked == 0 && (p.localSeq > 0 || b.maxSeq <= p.RefSeq) {
		return b.liveLen
	}
	key := perspKey{b: b, gen: w.gen, refSeq: p.RefSeq, client: p.Client, local: p.localSeq}
	if v, ok := w.perspCache.Get(key); ok {
		return v
	}
	total := 0
	if b.leaf {
		for _, s := range b.segs {
			total += p.segLength(s)
		}
	} else {
		for _, c := range b.blocks {
			total += w.blockLength(c, p)
		}
	}
	w.perspCache.Add(key, total)
	return total
}

// VisibleLength returns the sequence length as measured by the given
// observer. Used for divergence-free concurrent reads during merge.
func (w *Weft) VisibleLength(p Perspective) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.blockLength(w.root, p)
}

// Len returns the visible sequence length in the local view.
func (w *Weft) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.root.liveLen
}
