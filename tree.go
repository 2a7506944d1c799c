package weft

import "go.uber.org/zap"

// location identifies a point in the tree: offset runes into leaf.segs[idx].
// idx may equal len(leaf.segs) with offset 0, denoting the end of the leaf.
type location struct {
	leaf   *block
	idx    int
	offset int
}

// locate finds the earliest physical point denoting pos as measured by p.
// Several points can denote one logical position when segments invisible to
// p sit at the boundary; returning the first keeps the placement rules in
// insertionTarget and anchorTarget in control of which boundary segment the
// operation lands against. The caller must have validated pos against the
// perspective's visible length.
func (w *Weft) locate(pos int, p Perspective) location {
	b := w.root
	for !b.leaf {
		last := len(b.blocks) - 1
		for i, c := range b.blocks {
			l := w.blockLength(c, p)
			if pos < l || pos == 0 || i == last {
				b = c
				break
			}
			pos -= l
		}
	}
	for i, s := range b.segs {
		if pos == 0 {
			return location{leaf: b, idx: i}
		}
		l := p.segLength(s)
		if pos < l {
			return location{leaf: b, idx: i, offset: pos}
		}
		pos -= l
	}
	return location{leaf: b, idx: len(b.segs)}
}

// nextLeaf returns the leaf block following b in document order, or nil.
func nextLeaf(b *block) *block {
	child := b
	for p := child.parent; p != nil; child, p = p, p.parent {
		j := p.indexOfBlock(child)
		if j >= 0 && j+1 < len(p.blocks) {
			n := p.blocks[j+1]
			for !n.leaf {
				if len(n.blocks) == 0 {
					return nil
				}
				n = n.blocks[0]
			}
			return n
		}
	}
	return nil
}

// normalizeForward advances a past-the-end location into the next leaf,
// so loc.idx addresses a real segment whenever one remains.
func normalizeForward(loc location) location {
	for loc.idx >= len(loc.leaf.segs) {
		n := nextLeaf(loc.leaf)
		if n == nil {
			return loc
		}
		loc = location{leaf: n}
	}
	return loc
}

// splitSegment divides leaf.segs[idx] at offset, keeping both halves
// adjacent in the tree. Observable content and every anchor's logical
// position are unchanged; only granularity differs.
func (w *Weft) splitSegment(leaf *block, idx, offset int) error {
	rest, err := leaf.segs[idx].splitAt(offset)
	if err != nil {
		return err
	}
	w.spliceSegment(leaf, idx+1, rest)
	return nil
}

// spliceSegment inserts seg at position idx within leaf, splitting the
// block upward if it overflows.
func (w *Weft) spliceSegment(leaf *block, idx int, seg Segment) {
	leaf.segs = append(leaf.segs, nil)
	copy(leaf.segs[idx+1:], leaf.segs[idx:])
	leaf.segs[idx] = seg
	seg.base().parent = leaf
	if len(leaf.segs) > maxBlockChildren {
		w.splitBlock(leaf)
	} else {
		leaf.recomputeUp()
	}
	w.gen++
}

// splitBlock halves an overflowing block, pushing the new sibling into the
// parent and growing a new root when the old root itself splits.
func (w *Weft) splitBlock(b *block) {
	half := b.childCount() / 2
	sib := &block{parent: b.parent, leaf: b.leaf}
	if b.leaf {
		sib.segs = append(sib.segs, b.segs[half:]...)
		b.segs = b.segs[:half]
		for _, s := range sib.segs {
			s.base().parent = sib
		}
	} else {
		sib.blocks = append(sib.blocks, b.blocks[half:]...)
		b.blocks = b.blocks[:half]
		for _, c := range sib.blocks {
			c.parent = sib
		}
	}
	b.recompute()
	sib.recompute()

	parent := b.parent
	if parent == nil {
		root := newInteriorBlock(nil)
		root.blocks = []*block{b, sib}
		b.parent, sib.parent = root, root
		root.recompute()
		w.root = root
		return
	}
	j := parent.indexOfBlock(b)
	parent.blocks = append(parent.blocks, nil)
	copy(parent.blocks[j+2:], parent.blocks[j+1:])
	parent.blocks[j+1] = sib
	if len(parent.blocks) > maxBlockChildren {
		w.splitBlock(parent)
	} else {
		parent.recomputeUp()
	}
}

// insertionTarget resolves the point where a new segment lands for an
// insert at pos as seen by p.
//
// Several physical points can denote the same logical position when
// segments invisible to p sit at the boundary. The new segment is placed
// after every invisible segment that already carries an assigned sequence
// number (those were sequenced earlier, so the ascending (seq, clientID)
// order puts them first) and before any unacknowledged local segment
// (which will be sequenced later). Every peer reaches the same placement.
func (w *Weft) insertionTarget(pos int, p Perspective) (location, error) {
	loc := w.locate(pos, p)
	if loc.offset > 0 {
		if err := w.splitSegment(loc.leaf, loc.idx, loc.offset); err != nil {
			return location{}, err
		}
		loc = w.locate(pos, p)
	}
	for {
		loc = normalizeForward(loc)
		if loc.idx >= len(loc.leaf.segs) {
			return loc, nil
		}
		cur := loc.leaf.segs[loc.idx]
		if p.segLength(cur) == 0 && cur.base().seq != SeqUnacked {
			loc.idx++
			continue
		}
		return loc, nil
	}
}

// insertSegment places seg at pos as seen by p.
func (w *Weft) insertSegment(pos int, seg Segment, p Perspective) error {
	if pos < 0 || pos > w.blockLength(w.root, p) {
		return ErrInvalidPosition
	}
	loc, err := w.insertionTarget(pos, p)
	if err != nil {
		return err
	}
	w.spliceSegment(loc.leaf, loc.idx, seg)
	return nil
}

// splitBoundary ensures a segment boundary exists exactly at pos under p.
func (w *Weft) splitBoundary(pos int, p Perspective) error {
	loc := w.locate(pos, p)
	if loc.offset == 0 {
		return nil
	}
	return w.splitSegment(loc.leaf, loc.idx, loc.offset)
}

// removeRange tombstones every segment visible to p within [start, end),
// stamping the removal with (seq, clientID). Anchors hosted by removed
// segments slide immediately. Segments the remover could not see are
// untouched. group, when non-nil, correlates the affected segments with a
// pending local operation ordered at localRemovedSeq.
func (w *Weft) removeRange(start, end int, p Perspective, seq int64, clientID string, group *segmentGroup, localRemovedSeq int64) ([]Segment, error) {
	total := w.blockLength(w.root, p)
	if start < 0 || end > total {
		return nil, ErrInvalidPosition
	}
	if end < start {
		return nil, ErrInvalidRange
	}
	if start == end {
		return nil, nil
	}
	if err := w.splitBoundary(end, p); err != nil {
		return nil, err
	}
	if err := w.splitBoundary(start, p); err != nil {
		return nil, err
	}
	loc := w.locate(start, p)
	remaining := end - start
	var removed []Segment
	touched := make(map[*block]struct{})
	for remaining > 0 {
		loc = normalizeForward(loc)
		if loc.idx >= len(loc.leaf.segs) {
			return removed, ErrInternal
		}
		cur := loc.leaf.segs[loc.idx]
		if l := p.segLength(cur); l > 0 {
			markRemoved(cur, seq, clientID)
			if localRemovedSeq > 0 {
				cur.base().localRemovedSeq = localRemovedSeq
			}
			if group != nil {
				group.add(cur)
			}
			removed = append(removed, cur)
			touched[loc.leaf] = struct{}{}
			w.slideRefs(cur)
			remaining -= l
		}
		loc.idx++
	}
	for leaf := range touched {
		leaf.recomputeUp()
	}
	w.gen++
	return removed, nil
}

// segmentPosition returns the offset of seg's first element as measured by
// p. The walk is O(segment-to-root) and deterministic for a given tree
// state regardless of traversal order.
func (w *Weft) segmentPosition(seg Segment, p Perspective) int {
	pos := 0
	leaf := seg.base().parent
	for _, s := range leaf.segs {
		if s.base() == seg.base() {
			break
		}
		pos += p.segLength(s)
	}
	child := leaf
	for parent := child.parent; parent != nil; child, parent = parent, parent.parent {
		for _, c := range parent.blocks {
			if c == child {
				break
			}
			pos += w.blockLength(c, p)
		}
	}
	return pos
}

// nextLiveSegment returns the first segment after seg that is visible in
// the local view, or nil.
func nextLiveSegment(seg Segment) Segment {
	for s := nextSegment(seg); s != nil; s = nextSegment(s) {
		if !s.base().removed() {
			return s
		}
	}
	return nil
}

// prevLiveSegment returns the last segment before seg that is visible in
// the local view, or nil.
func prevLiveSegment(seg Segment) Segment {
	for s := prevSegment(seg); s != nil; s = prevSegment(s) {
		if !s.base().removed() {
			return s
		}
	}
	return nil
}

// slideRefs relocates every anchor hosted by a newly removed segment to a
// neighboring live segment in the anchor's slide direction. With no live
// neighbor on either side the anchor detaches and resolves to 0.
func (w *Weft) slideRefs(seg Segment) {
	sb := seg.base()
	if len(sb.refs) == 0 {
		return
	}
	refs := sb.refs
	sb.refs = nil
	fwd := nextLiveSegment(seg)
	bwd := prevLiveSegment(seg)
	for _, r := range refs {
		switch {
		case r.slide == SlideBackward && bwd != nil:
			r.attach(bwd, bwd.Length())
		case r.slide == SlideBackward && fwd != nil:
			r.attach(fwd, 0)
		case r.slide != SlideBackward && fwd != nil:
			r.attach(fwd, 0)
		case r.slide != SlideBackward && bwd != nil:
			r.attach(bwd, bwd.Length())
		default:
			r.detach()
			w.logger.Debug("reference detached, no live neighbor remains")
		}
	}
}

// anchorTarget resolves pos under p to a host (segment, offset) for a new
// anchor. A position at the very end of the sequence anchors to the end of
// the last live segment; an empty sequence yields a detached anchor.
func (w *Weft) anchorTarget(pos int, p Perspective) (Segment, int) {
	loc := w.locate(pos, p)
	loc = normalizeForward(loc)
	if loc.idx < len(loc.leaf.segs) && loc.offset == 0 {
		// Prefer hosting at offset 0 of the segment starting here, but only
		// if that segment is visible to the observer.
		if p.segLength(loc.leaf.segs[loc.idx]) > 0 {
			return loc.leaf.segs[loc.idx], 0
		}
		// Skip invisible segments to the next visible one.
		for i := loc; ; {
			i.idx++
			i = normalizeForward(i)
			if i.idx >= len(i.leaf.segs) {
				break
			}
			if p.segLength(i.leaf.segs[i.idx]) > 0 {
				return i.leaf.segs[i.idx], 0
			}
		}
	}
	if loc.idx < len(loc.leaf.segs) && loc.offset > 0 {
		return loc.leaf.segs[loc.idx], loc.offset
	}
	// End of sequence: anchor to the end of the last visible segment.
	var last Segment
	w.root.walkSegments(func(s Segment) bool {
		if p.segLength(s) > 0 {
			last = s
		}
		return true
	})
	if last == nil {
		return nil, 0
	}
	return last, last.Length()
}

func (w *Weft) debugLogOp(msg string, env Envelope) {
	if ce := w.logger.Check(zap.DebugLevel, msg); ce != nil {
		ce.Write(
			zap.Int64("seq", env.Seq),
			zap.String("client", env.ClientID),
			zap.String("type", string(env.Op.Type)),
			zap.Int64("refSeq", env.Op.RefSeq),
		)
	}
}
