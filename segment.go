package weft

// Sequence number sentinels.
const (
	// SeqUnacked marks a stamp belonging to a local operation that has not
	// yet been acknowledged by the ordering service.
	SeqUnacked int64 = -1

	// SeqBase marks content visible to every observer, such as segments
	// reconstructed from a snapshot. It precedes every assigned sequence
	// number.
	SeqBase int64 = 0
)

// PropertySet is a bag of formatting or application metadata attached to a
// segment, marker, or interval. Values must be JSON-encodable.
type PropertySet map[string]any

// clone returns a shallow copy of the property set.
func (p PropertySet) clone() PropertySet {
	if p == nil {
		return nil
	}
	out := make(PropertySet, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// equal reports whether two property sets hold the same keys and values.
// Values are compared by their string-keyed identity; nested structures are
// not supported in segment properties.
func (p PropertySet) equal(other PropertySet) bool {
	if len(p) != len(other) {
		return false
	}
	for k, v := range p {
		ov, ok := other[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// merge applies a patch to the property set. A nil value deletes the key;
// any other value overwrites it. Untouched keys are preserved.
func (p PropertySet) merge(patch PropertySet) PropertySet {
	if p == nil {
		p = make(PropertySet, len(patch))
	}
	for k, v := range patch {
		if v == nil {
			delete(p, k)
		} else {
			p[k] = v
		}
	}
	return p
}

// stamp is a (sequence number, client id) pair. Stamps are totally ordered,
// ascending by sequence number with client id as the tie-break; every peer
// applies the same order.
type stamp struct {
	seq    int64
	client string
}

// before reports whether s precedes other in the causal total order.
// An unacknowledged stamp follows every assigned stamp.
func (s stamp) before(other stamp) bool {
	if s.seq == SeqUnacked && other.seq == SeqUnacked {
		return s.client < other.client
	}
	if s.seq == SeqUnacked {
		return false
	}
	if other.seq == SeqUnacked {
		return true
	}
	if s.seq != other.seq {
		return s.seq < other.seq
	}
	return s.client < other.client
}

// segmentBase carries the causal metadata shared by every segment variant.
// A segment is owned exclusively by the tree; once acknowledged its content
// is immutable and only its removal state and physical granularity change.
type segmentBase struct {
	parent *block

	seq      int64  // assigned sequence number, SeqUnacked while pending
	clientID string // author

	// Removal state. A segment is removed iff removedClients is non-empty.
	// removedSeq holds the earliest acknowledged removal, or SeqUnacked
	// while only a pending local removal exists. removedClients[0] is the
	// causally-first remover.
	removedSeq     int64
	removedClients []string

	// Pending-timeline ordering for reconnection. localSeq is the position
	// of the inserting local operation in the pending queue; localRemovedSeq
	// likewise for a pending local removal. Zero when not pending.
	localSeq        int64
	localRemovedSeq int64

	props PropertySet

	// groups link the segment to not-yet-acknowledged local operations;
	// a segment may be correlated with both a pending insert and a pending
	// removal at once.
	groups []*segmentGroup

	// refs are weak back-links to anchors hosted by this segment, kept so
	// they can be relocated when the segment is removed.
	refs []*LocalReference
}

func (b *segmentBase) base() *segmentBase { return b }

// removed reports whether any peer has removed the segment (acknowledged
// or pending local).
func (b *segmentBase) removed() bool { return len(b.removedClients) > 0 }

// removedBy reports whether the given client is among the removers.
func (b *segmentBase) removedBy(client string) bool {
	for _, c := range b.removedClients {
		if c == client {
			return true
		}
	}
	return false
}

// Segment is the fundamental unit of content: an ordered run of sequence
// elements carrying causal stamps. It is a closed variant type; the only
// implementations are TextSegment and MarkerSegment.
type Segment interface {
	// Length returns the number of sequence positions the segment occupies.
	Length() int

	// Text returns the segment's textual content. Markers return "".
	Text() string

	// Properties returns the segment's property bag. May be nil.
	Properties() PropertySet

	// splitAt divides the segment at offset, truncating the receiver to the
	// leading part and returning a new segment holding the trailing part.
	// Both parts share causal stamps; combined content equals the original.
	splitAt(offset int) (Segment, error)

	// canAppend reports whether other may be merged into the receiver during
	// compaction without changing observable content or causal behavior.
	canAppend(other Segment) bool

	// appendSegment merges other's content into the receiver. Callers must
	// have checked canAppend first.
	appendSegment(other Segment)

	base() *segmentBase
}

// TextSegment is a run of text characters. Positions count runes.
type TextSegment struct {
	segmentBase
	text []rune
}

// newTextSegment creates a text segment with the given stamps.
func newTextSegment(text string, seq int64, clientID string, props PropertySet) *TextSegment {
	return &TextSegment{
		segmentBase: segmentBase{seq: seq, clientID: clientID, props: props},
		text:        []rune(text),
	}
}

// Length returns the rune count of the segment.
func (t *TextSegment) Length() int { return len(t.text) }

// Text returns the segment content as a string.
func (t *TextSegment) Text() string { return string(t.text) }

// Properties returns the segment's property bag.
func (t *TextSegment) Properties() PropertySet { return t.props }

func (t *TextSegment) splitAt(offset int) (Segment, error) {
	if offset <= 0 || offset >= len(t.text) {
		return nil, ErrSplitOutOfRange
	}
	rest := &TextSegment{
		segmentBase: segmentBase{
			seq:             t.seq,
			clientID:        t.clientID,
			removedSeq:      t.removedSeq,
			localSeq:        t.localSeq,
			localRemovedSeq: t.localRemovedSeq,
			props:           t.props.clone(),
		},
		text: append([]rune(nil), t.text[offset:]...),
	}
	if t.removedClients != nil {
		rest.removedClients = append([]string(nil), t.removedClients...)
	}
	t.text = t.text[:offset]

	// Anchors at or beyond the split point move to the trailing half.
	var keep []*LocalReference
	for _, r := range t.refs {
		if r.offset >= offset {
			r.seg = rest
			r.offset -= offset
			rest.refs = append(rest.refs, r)
		} else {
			keep = append(keep, r)
		}
	}
	t.refs = keep

	// Both halves stay correlated with any pending operations.
	for _, g := range t.groups {
		g.addAfter(t, rest)
		rest.segmentBase.groups = append(rest.segmentBase.groups, g)
	}
	return rest, nil
}

func (t *TextSegment) canAppend(other Segment) bool {
	o, ok := other.(*TextSegment)
	if !ok {
		return false
	}
	if t.seq != o.seq || t.clientID != o.clientID {
		return false
	}
	if t.removedSeq != o.removedSeq || len(t.removedClients) != len(o.removedClients) {
		return false
	}
	for i, c := range t.removedClients {
		if o.removedClients[i] != c {
			return false
		}
	}
	if len(t.groups) > 0 || len(o.groups) > 0 {
		return false
	}
	return t.props.equal(o.props)
}

func (t *TextSegment) appendSegment(other Segment) {
	o := other.(*TextSegment)
	shift := len(t.text)
	t.text = append(t.text, o.text...)
	for _, r := range o.refs {
		r.seg = t
		r.offset += shift
		t.refs = append(t.refs, r)
	}
	o.refs = nil
}

// MarkerSegment is an atomic out-of-band element occupying exactly one
// sequence position. It contributes nothing to the text but carries a
// property bag and hosts anchors like any segment.
type MarkerSegment struct {
	segmentBase
}

// newMarkerSegment creates a marker with the given stamps and properties.
func newMarkerSegment(seq int64, clientID string, props PropertySet) *MarkerSegment {
	return &MarkerSegment{
		segmentBase: segmentBase{seq: seq, clientID: clientID, props: props},
	}
}

// Length returns 1: a marker is atomic.
func (m *MarkerSegment) Length() int { return 1 }

// Text returns "": markers are excluded from the text.
func (m *MarkerSegment) Text() string { return "" }

// Properties returns the marker's property bag.
func (m *MarkerSegment) Properties() PropertySet { return m.props }

func (m *MarkerSegment) splitAt(offset int) (Segment, error) {
	return nil, ErrSplitOutOfRange
}

func (m *MarkerSegment) canAppend(other Segment) bool { return false }

func (m *MarkerSegment) appendSegment(other Segment) {}

// IsMarker reports whether a segment is an atomic marker.
func IsMarker(s Segment) bool {
	_, ok := s.(*MarkerSegment)
	return ok
}

// segmentGroup links the segments created or affected by one pending local
// operation, so an acknowledgment or a resubmission can find them after any
// number of splits.
type segmentGroup struct {
	segs []Segment
}

func (g *segmentGroup) add(s Segment) {
	g.segs = append(g.segs, s)
	s.base().groups = append(s.base().groups, g)
}

// release unlinks the group from every segment it correlates.
func (g *segmentGroup) release() {
	for _, s := range g.segs {
		sb := s.base()
		for i, og := range sb.groups {
			if og == g {
				sb.groups = append(sb.groups[:i], sb.groups[i+1:]...)
				break
			}
		}
	}
}

// addAfter inserts rest immediately after seg, preserving document order
// within the group across splits.
func (g *segmentGroup) addAfter(seg, rest Segment) {
	for i, s := range g.segs {
		if s.base() == seg.base() {
			g.segs = append(g.segs, nil)
			copy(g.segs[i+2:], g.segs[i+1:])
			g.segs[i+1] = rest
			return
		}
	}
	g.segs = append(g.segs, rest)
}

// markRemoved records a removal stamp on the segment. Concurrent removals
// are idempotent: the earliest causally-ordered stamp wins, later removers
// are only appended to the remover list.
func markRemoved(s Segment, seq int64, clientID string) {
	b := s.base()
	if !b.removed() {
		b.removedSeq = seq
		b.removedClients = []string{clientID}
		return
	}
	if b.removedSeq == SeqUnacked && seq != SeqUnacked {
		// An acknowledged removal precedes our still-pending one.
		b.removedSeq = seq
		b.removedClients = append([]string{clientID}, b.removedClients...)
		return
	}
	if !b.removedBy(clientID) {
		b.removedClients = append(b.removedClients, clientID)
	}
}
