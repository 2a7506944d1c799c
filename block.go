package weft

// maxBlockChildren bounds the fan-out of a merge tree block. A block that
// overflows is split in two and the new sibling pushed into the parent.
const maxBlockChildren = 8

// block is an internal node of the merge tree. Leaf blocks own an ordered
// list of segments; interior blocks own an ordered list of child blocks.
// Each block caches aggregates of its subtree so positional lookups can
// prune without visiting every segment.
type block struct {
	parent *block
	leaf   bool

	blocks []*block  // interior blocks only
	segs   []Segment // leaf blocks only

	// Cached aggregates, recomputed bottom-up after every structural
	// mutation on the path to the root.
	liveLen int   // visible length in the local view
	maxSeq  int64 // highest assigned stamp (insert or removal) in the subtree
	unacked int   // count of unacknowledged stamps in the subtree
}

func newLeafBlock(parent *block) *block {
	return &block{parent: parent, leaf: true}
}

func newInteriorBlock(parent *block) *block {
	return &block{parent: parent}
}

// childCount returns the number of children, segments or blocks.
func (b *block) childCount() int {
	if b.leaf {
		return len(b.segs)
	}
	return len(b.blocks)
}

// recompute refreshes this block's cached aggregates from its children.
// Children are assumed current.
func (b *block) recompute() {
	b.liveLen = 0
	b.maxSeq = SeqBase
	b.unacked = 0
	if b.leaf {
		for _, s := range b.segs {
			sb := s.base()
			if !sb.removed() {
				b.liveLen += s.Length()
			}
			if sb.seq == SeqUnacked {
				b.unacked++
			} else if sb.seq > b.maxSeq {
				b.maxSeq = sb.seq
			}
			if sb.removed() {
				if sb.removedSeq == SeqUnacked {
					b.unacked++
				} else if sb.removedSeq > b.maxSeq {
					b.maxSeq = sb.removedSeq
				}
				// A removal acknowledged while our own is still pending
				// leaves both stamps on the segment.
				if sb.localRemovedSeq > 0 && sb.removedSeq != SeqUnacked {
					b.unacked++
				}
			}
		}
		return
	}
	for _, c := range b.blocks {
		b.liveLen += c.liveLen
		if c.maxSeq > b.maxSeq {
			b.maxSeq = c.maxSeq
		}
		b.unacked += c.unacked
	}
}

// recomputeUp refreshes aggregates from this block to the root.
func (b *block) recomputeUp() {
	for n := b; n != nil; n = n.parent {
		n.recompute()
	}
}

// indexOfSegment returns the position of seg within a leaf block, or -1.
func (b *block) indexOfSegment(seg Segment) int {
	for i, s := range b.segs {
		if s.base() == seg.base() {
			return i
		}
	}
	return -1
}

// indexOfBlock returns the position of child within an interior block, or -1.
func (b *block) indexOfBlock(child *block) int {
	for i, c := range b.blocks {
		if c == child {
			return i
		}
	}
	return -1
}

// firstSegment returns the leftmost segment of the subtree, or nil.
func (b *block) firstSegment() Segment {
	n := b
	for !n.leaf {
		if len(n.blocks) == 0 {
			return nil
		}
		n = n.blocks[0]
	}
	if len(n.segs) == 0 {
		return nil
	}
	return n.segs[0]
}

// lastSegment returns the rightmost segment of the subtree, or nil.
func (b *block) lastSegment() Segment {
	n := b
	for !n.leaf {
		if len(n.blocks) == 0 {
			return nil
		}
		n = n.blocks[len(n.blocks)-1]
	}
	if len(n.segs) == 0 {
		return nil
	}
	return n.segs[len(n.segs)-1]
}

// walkSegments visits every segment of the subtree in document order until
// fn returns false. Returns false if the walk was cut short.
func (b *block) walkSegments(fn func(Segment) bool) bool {
	if b.leaf {
		for _, s := range b.segs {
			if !fn(s) {
				return false
			}
		}
		return true
	}
	for _, c := range b.blocks {
		if !c.walkSegments(fn) {
			return false
		}
	}
	return true
}

// nextSegment returns the segment following seg in document order, or nil.
func nextSegment(seg Segment) Segment {
	leaf := seg.base().parent
	i := leaf.indexOfSegment(seg)
	if i < 0 {
		return nil
	}
	if i+1 < len(leaf.segs) {
		return leaf.segs[i+1]
	}
	// Climb until a right sibling exists, then descend to its first segment.
	child := leaf
	for p := child.parent; p != nil; child, p = p, p.parent {
		j := p.indexOfBlock(child)
		if j >= 0 && j+1 < len(p.blocks) {
			return p.blocks[j+1].firstSegment()
		}
	}
	return nil
}

// prevSegment returns the segment preceding seg in document order, or nil.
func prevSegment(seg Segment) Segment {
	leaf := seg.base().parent
	i := leaf.indexOfSegment(seg)
	if i < 0 {
		return nil
	}
	if i > 0 {
		return leaf.segs[i-1]
	}
	child := leaf
	for p := child.parent; p != nil; child, p = p, p.parent {
		j := p.indexOfBlock(child)
		if j > 0 {
			return p.blocks[j-1].lastSegment()
		}
	}
	return nil
}

// buildBalanced constructs a balanced tree over the given segments and
// returns its root. Used for bulk load and for the compaction rebuild.
func buildBalanced(segs []Segment) *block {
	leaves := make([]*block, 0, len(segs)/maxBlockChildren+1)
	for start := 0; start < len(segs); start += maxBlockChildren {
		end := start + maxBlockChildren
		if end > len(segs) {
			end = len(segs)
		}
		leaf := newLeafBlock(nil)
		leaf.segs = append(leaf.segs, segs[start:end]...)
		for _, s := range leaf.segs {
			s.base().parent = leaf
		}
		leaf.recompute()
		leaves = append(leaves, leaf)
	}
	if len(leaves) == 0 {
		return newLeafBlock(nil)
	}
	level := leaves
	for len(level) > 1 {
		next := make([]*block, 0, len(level)/maxBlockChildren+1)
		for start := 0; start < len(level); start += maxBlockChildren {
			end := start + maxBlockChildren
			if end > len(level) {
				end = len(level)
			}
			parent := newInteriorBlock(nil)
			parent.blocks = append(parent.blocks, level[start:end]...)
			for _, c := range parent.blocks {
				c.parent = parent
			}
			parent.recompute()
			next = append(next, parent)
		}
		level = next
	}
	return level[0]
}
