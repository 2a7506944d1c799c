package weft

// PackStats contains statistics from one compaction pass.
type PackStats struct {
	SegmentsMerged    int // adjacent segments merged
	TombstonesEvicted int // removed segments dropped for good
	SegmentsRemaining int // segments in the tree after the pass
}

// Pack compacts the tree: adjacent live segments with identical stamps and
// properties are merged, adjacent tombstones likewise, and tombstones whose
// removal is acknowledged at or below the retention floor and which no
// anchor or pending operation references are evicted. The tree is rebuilt
// balanced over the surviving segments.
//
// Packing is safe to invoke at any time, any number of times: it changes
// physical granularity only, never the visible text or any anchor's
// logical position.
func (w *Weft) Pack() PackStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	var stats PackStats
	var out []Segment
	w.root.walkSegments(func(s Segment) bool {
		if w.evictableLocked(s) {
			stats.TombstonesEvicted++
			return true
		}
		if len(out) > 0 && out[len(out)-1].canAppend(s) {
			out[len(out)-1].appendSegment(s)
			stats.SegmentsMerged++
			return true
		}
		out = append(out, s)
		return true
	})
	w.root = buildBalanced(out)
	w.gen++
	w.stats.PacksPerformed++
	stats.SegmentsRemaining = len(out)
	return stats
}

// evictableLocked reports whether a tombstone can be dropped: its removal
// is acknowledged at or below minSeq, so no connected peer can still send
// an operation that addresses it, and no anchor or pending local operation
// references it.
func (w *Weft) evictableLocked(s Segment) bool {
	sb := s.base()
	if !sb.removed() {
		return false
	}
	if sb.seq == SeqUnacked || sb.removedSeq == SeqUnacked || sb.removedSeq > w.minSeq {
		return false
	}
	return len(sb.refs) == 0 && len(sb.groups) == 0 && sb.localRemovedSeq == 0
}
