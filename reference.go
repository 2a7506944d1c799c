package weft

// SlidePolicy selects the direction an anchor relocates when its host
// segment is removed.
type SlidePolicy int

const (
	// SlideForward relocates to the start of the nearest following live
	// segment, falling back to the end of the nearest preceding one.
	SlideForward SlidePolicy = iota

	// SlideBackward relocates to the end of the nearest preceding live
	// segment, falling back to the start of the nearest following one.
	SlideBackward
)

// LocalReference is a lightweight position handle attached to a segment.
// It survives concurrent edits: when its host segment is removed it is
// relocated immediately to a neighboring live segment instead of dangling.
//
// References are owned by whichever higher-level construct created them;
// the tree keeps only a weak back-link for relocation.
type LocalReference struct {
	seg    Segment
	offset int
	slide  SlidePolicy
}

// CreateReference attaches a new reference at pos in the local view.
func (w *Weft) CreateReference(pos int, slide SlidePolicy) (*LocalReference, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if pos < 0 || pos > w.root.liveLen {
		return nil, ErrInvalidPosition
	}
	return w.createReferenceLocked(pos, w.localView(), slide), nil
}

// createReferenceLocked attaches a reference at pos as seen by p.
func (w *Weft) createReferenceLocked(pos int, p Perspective, slide SlidePolicy) *LocalReference {
	r := &LocalReference{slide: slide}
	seg, off := w.anchorTarget(pos, p)
	if seg != nil {
		r.attach(seg, off)
	}
	return r
}

// attach hosts the reference at (seg, offset) and registers the weak
// back-link used for relocation.
func (r *LocalReference) attach(seg Segment, offset int) {
	r.seg = seg
	r.offset = offset
	sb := seg.base()
	sb.refs = append(sb.refs, r)
}

// detach unhosts the reference; it resolves to position 0 until reattached.
func (r *LocalReference) detach() {
	r.seg = nil
	r.offset = 0
}

// unhook removes the reference from its host's back-link list, used when
// the owning construct is deleted so compaction is not pinned.
func (r *LocalReference) unhook() {
	if r.seg == nil {
		return
	}
	sb := r.seg.base()
	for i, ref := range sb.refs {
		if ref == r {
			sb.refs = append(sb.refs[:i], sb.refs[i+1:]...)
			break
		}
	}
	r.seg = nil
	r.offset = 0
}

// IsDetached reports whether the reference has no live host segment.
func (r *LocalReference) IsDetached() bool { return r.seg == nil }

// Resolve returns the reference's position in the local view.
func (w *Weft) Resolve(r *LocalReference) int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.resolveLocked(r, w.localView())
}

func (w *Weft) resolveLocked(r *LocalReference, p Perspective) int {
	if r.seg == nil {
		return 0
	}
	pos := w.segmentPosition(r.seg, p)
	if p.segLength(r.seg) > 0 {
		off := r.offset
		if off > r.seg.Length() {
			off = r.seg.Length()
		}
		return pos + off
	}
	return pos
}

// RemoveReference unhooks a reference created with CreateReference.
func (w *Weft) RemoveReference(r *LocalReference) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r.unhook()
}
