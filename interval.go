package weft

import (
	"sort"

	"github.com/google/uuid"
)

// Interval is a tracked range: a pair of anchors plus metadata, identified
// by a stable id. The id survives any number of changes; downstream
// references to it remain valid until the interval is deleted.
type Interval struct {
	id           string
	intervalType string
	start        *LocalReference
	end          *LocalReference
	props        PropertySet

	// Last-writer-wins state. A bound or property key with pending local
	// writes ignores remote writes: the local write is causally later.
	startStamp   stamp
	endStamp     stamp
	pendingStart int
	pendingEnd   int
	propStamps   map[string]stamp
	pendingProps map[string]int
}

// IntervalInfo is a read-only snapshot of an interval, with bounds resolved
// against the local view at call time.
type IntervalInfo struct {
	ID    string
	Type  string
	Start int
	End   int
	Props PropertySet
}

// IntervalCollection is a named mapping from interval id to interval,
// attached to exactly one sequence. Interval mutations converge across
// peers under the same (sequence number, client id) total order as text
// edits.
type IntervalCollection struct {
	w         *Weft
	name      string
	intervals map[string]*Interval
}

// Intervals returns the named interval collection, creating it on first use.
func (w *Weft) Intervals(name string) *IntervalCollection {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.collectionLocked(name)
}

func (w *Weft) collectionLocked(name string) *IntervalCollection {
	c, ok := w.collections[name]
	if !ok {
		c = &IntervalCollection{w: w, name: name, intervals: make(map[string]*Interval)}
		w.collections[name] = c
	}
	return c
}

// CollectionNames returns the names of all interval collections, sorted.
func (w *Weft) CollectionNames() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	names := make([]string, 0, len(w.collections))
	for name := range w.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Name returns the collection's name.
func (c *IntervalCollection) Name() string { return c.name }

// Add creates an interval over [start, end) with a generated id and emits
// the operation. The creation notification carries Local=true here and
// Local=false on every other peer once the op round-trips.
func (c *IntervalCollection) Add(start, end int, intervalType string, props PropertySet) (string, error) {
	return c.AddWithID(uuid.NewString(), start, end, intervalType, props)
}

// AddWithID creates an interval with a caller-supplied id.
func (c *IntervalCollection) AddWithID(id string, start, end int, intervalType string, props PropertySet) (string, error) {
	w := c.w
	w.mu.Lock()
	if _, ok := c.intervals[id]; ok {
		w.mu.Unlock()
		return "", ErrIntervalExists
	}
	if start < 0 || end > w.root.liveLen {
		w.mu.Unlock()
		return "", ErrInvalidPosition
	}
	if end < start {
		w.mu.Unlock()
		return "", ErrInvalidRange
	}
	local := w.localView()
	pendingStamp := stamp{seq: SeqUnacked, client: w.clientID}
	iv := &Interval{
		id:           id,
		intervalType: intervalType,
		start:        w.createReferenceLocked(start, local, SlideForward),
		end:          w.createReferenceLocked(end, local, SlideForward),
		props:        props.clone(),
		startStamp:   pendingStamp,
		endStamp:     pendingStamp,
		pendingStart: 1,
		pendingEnd:   1,
		propStamps:   make(map[string]stamp),
		pendingProps: make(map[string]int),
	}
	var keys []string
	for k := range props {
		iv.propStamps[k] = pendingStamp
		iv.pendingProps[k] = 1
		keys = append(keys, k)
	}
	c.intervals[id] = iv

	w.nextLocalSeq++
	po := &pendingOp{
		op: Op{
			Type:         OpIntervalAdd,
			RefSeq:       w.seq,
			Pos1:         start,
			Pos2:         end,
			Props:        props,
			Collection:   c.name,
			IntervalID:   id,
			IntervalType: intervalType,
		},
		localSeq: w.nextLocalSeq,
		bounds:   [2]bool{true, true},
		propKeys: keys,
	}
	submit, t := w.enqueueLocked(po)
	ev := IntervalEvent{Kind: IntervalAdded, Collection: c.name, ID: id, Start: start, End: end, Local: true}
	w.mu.Unlock()

	w.emitInterval(ev)
	if submit {
		return id, t.Submit(po.op)
	}
	return id, nil
}

// Change moves an interval's bounds. Pass PosUnchanged to leave a bound
// untouched; the partial update preserves the other bound and the id.
func (c *IntervalCollection) Change(id string, start, end int) error {
	w := c.w
	w.mu.Lock()
	iv, ok := c.intervals[id]
	if !ok {
		w.mu.Unlock()
		return ErrIntervalNotFound
	}
	for _, pos := range []int{start, end} {
		if pos != PosUnchanged && (pos < 0 || pos > w.root.liveLen) {
			w.mu.Unlock()
			return ErrInvalidPosition
		}
	}
	if start == PosUnchanged && end == PosUnchanged {
		w.mu.Unlock()
		return nil
	}
	local := w.localView()
	pendingStamp := stamp{seq: SeqUnacked, client: w.clientID}
	var bounds [2]bool
	if start != PosUnchanged {
		iv.start.unhook()
		iv.start = w.createReferenceLocked(start, local, SlideForward)
		iv.startStamp = pendingStamp
		iv.pendingStart++
		bounds[0] = true
	}
	if end != PosUnchanged {
		iv.end.unhook()
		iv.end = w.createReferenceLocked(end, local, SlideForward)
		iv.endStamp = pendingStamp
		iv.pendingEnd++
		bounds[1] = true
	}

	w.nextLocalSeq++
	po := &pendingOp{
		op: Op{
			Type:       OpIntervalChange,
			RefSeq:     w.seq,
			Pos1:       start,
			Pos2:       end,
			Collection: c.name,
			IntervalID: id,
		},
		localSeq: w.nextLocalSeq,
		bounds:   bounds,
	}
	submit, t := w.enqueueLocked(po)
	ev := c.eventLocked(IntervalChanged, iv, true)
	w.mu.Unlock()

	w.emitInterval(ev)
	if submit {
		return t.Submit(po.op)
	}
	return nil
}

// ChangeProperties merges a patch into the interval's property bag: patched
// keys are overwritten, a nil value deletes the key, other keys are
// preserved.
func (c *IntervalCollection) ChangeProperties(id string, patch PropertySet) error {
	w := c.w
	w.mu.Lock()
	iv, ok := c.intervals[id]
	if !ok {
		w.mu.Unlock()
		return ErrIntervalNotFound
	}
	if len(patch) == 0 {
		w.mu.Unlock()
		return nil
	}
	pendingStamp := stamp{seq: SeqUnacked, client: w.clientID}
	iv.props = iv.props.merge(patch)
	var keys []string
	for k := range patch {
		iv.propStamps[k] = pendingStamp
		iv.pendingProps[k]++
		keys = append(keys, k)
	}

	w.nextLocalSeq++
	po := &pendingOp{
		op: Op{
			Type:       OpIntervalChange,
			RefSeq:     w.seq,
			Pos1:       PosUnchanged,
			Pos2:       PosUnchanged,
			Props:      patch,
			Collection: c.name,
			IntervalID: id,
		},
		localSeq: w.nextLocalSeq,
		propKeys: keys,
	}
	submit, t := w.enqueueLocked(po)
	ev := c.eventLocked(IntervalChanged, iv, true)
	w.mu.Unlock()

	w.emitInterval(ev)
	if submit {
		return t.Submit(po.op)
	}
	return nil
}

// RemoveByID deletes an interval. Subsequent lookups by the id fail with
// ErrIntervalNotFound. The underlying anchors are unhooked so compaction is
// not pinned by the deleted interval.
func (c *IntervalCollection) RemoveByID(id string) error {
	w := c.w
	w.mu.Lock()
	iv, ok := c.intervals[id]
	if !ok {
		w.mu.Unlock()
		return ErrIntervalNotFound
	}
	ev := c.eventLocked(IntervalDeleted, iv, true)
	iv.start.unhook()
	iv.end.unhook()
	delete(c.intervals, id)

	w.nextLocalSeq++
	po := &pendingOp{
		op: Op{
			Type:       OpIntervalDelete,
			RefSeq:     w.seq,
			Pos1:       PosUnchanged,
			Pos2:       PosUnchanged,
			Collection: c.name,
			IntervalID: id,
		},
		localSeq: w.nextLocalSeq,
	}
	submit, t := w.enqueueLocked(po)
	w.mu.Unlock()

	w.emitInterval(ev)
	if submit {
		return t.Submit(po.op)
	}
	return nil
}

// ByID returns a snapshot of the interval with the given id.
func (c *IntervalCollection) ByID(id string) (IntervalInfo, error) {
	w := c.w
	w.mu.RLock()
	defer w.mu.RUnlock()
	iv, ok := c.intervals[id]
	if !ok {
		return IntervalInfo{}, ErrIntervalNotFound
	}
	return c.infoLocked(iv), nil
}

// All returns every interval ordered by start position, tie-broken by id,
// for reproducible enumeration and summarization.
func (c *IntervalCollection) All() []IntervalInfo {
	w := c.w
	w.mu.RLock()
	defer w.mu.RUnlock()
	return c.allLocked()
}

func (c *IntervalCollection) allLocked() []IntervalInfo {
	out := make([]IntervalInfo, 0, len(c.intervals))
	for _, iv := range c.intervals {
		out = append(out, c.infoLocked(iv))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindOverlapping returns every interval whose resolved [start, end)
// intersects the query range on the current local view, in enumeration
// order. A zero-width interval intersects when its point lies within the
// query range.
func (c *IntervalCollection) FindOverlapping(start, end int) []IntervalInfo {
	var out []IntervalInfo
	for _, info := range c.All() {
		if info.Start < end && info.End > start {
			out = append(out, info)
			continue
		}
		if info.Start == info.End && info.Start >= start && info.Start < end {
			out = append(out, info)
		}
	}
	return out
}

// infoLocked snapshots an interval against the local view.
func (c *IntervalCollection) infoLocked(iv *Interval) IntervalInfo {
	local := c.w.localView()
	s := c.w.resolveLocked(iv.start, local)
	e := c.w.resolveLocked(iv.end, local)
	if e < s {
		s, e = e, s
	}
	return IntervalInfo{ID: iv.id, Type: iv.intervalType, Start: s, End: e, Props: iv.props.clone()}
}

func (c *IntervalCollection) eventLocked(kind IntervalEventKind, iv *Interval, local bool) IntervalEvent {
	info := c.infoLocked(iv)
	return IntervalEvent{Kind: kind, Collection: c.name, ID: iv.id, Start: info.Start, End: info.End, Local: local}
}

// applyRemoteAdd creates an interval from a remote peer's operation, with
// bounds interpreted in the sender's perspective.
func (c *IntervalCollection) applyRemoteAdd(env Envelope) ([]IntervalEvent, error) {
	op := env.Op
	if _, ok := c.intervals[op.IntervalID]; ok {
		// Duplicate creation is benign: first writer wins, the id is stable.
		return nil, nil
	}
	p := Perspective{RefSeq: op.RefSeq, Client: env.ClientID}
	if op.Pos1 < 0 || op.Pos2 > c.w.blockLength(c.w.root, p) || op.Pos2 < op.Pos1 {
		return nil, ErrInvalidPosition
	}
	in := stamp{seq: env.Seq, client: env.ClientID}
	iv := &Interval{
		id:           op.IntervalID,
		intervalType: op.IntervalType,
		start:        c.w.createReferenceLocked(op.Pos1, p, SlideForward),
		end:          c.w.createReferenceLocked(op.Pos2, p, SlideForward),
		props:        op.Props.clone(),
		startStamp:   in,
		endStamp:     in,
		propStamps:   make(map[string]stamp),
		pendingProps: make(map[string]int),
	}
	for k := range op.Props {
		iv.propStamps[k] = in
	}
	c.intervals[op.IntervalID] = iv
	return []IntervalEvent{c.eventLocked(IntervalAdded, iv, false)}, nil
}

// applyRemoteChange applies a remote bounds move or property patch under
// last-writer-wins: the causally-last write wins per bound and per property
// key, and a bound with a pending local write ignores remote writes
// entirely because the local write is causally later.
func (c *IntervalCollection) applyRemoteChange(env Envelope) ([]IntervalEvent, error) {
	op := env.Op
	iv, ok := c.intervals[op.IntervalID]
	if !ok {
		// Deleted concurrently; the change degrades to a no-op.
		return nil, nil
	}
	p := Perspective{RefSeq: op.RefSeq, Client: env.ClientID}
	in := stamp{seq: env.Seq, client: env.ClientID}
	changed := false
	if op.Pos1 != PosUnchanged && iv.pendingStart == 0 && iv.startStamp.before(in) {
		iv.start.unhook()
		iv.start = c.w.createReferenceLocked(op.Pos1, p, SlideForward)
		iv.startStamp = in
		changed = true
	}
	if op.Pos2 != PosUnchanged && iv.pendingEnd == 0 && iv.endStamp.before(in) {
		iv.end.unhook()
		iv.end = c.w.createReferenceLocked(op.Pos2, p, SlideForward)
		iv.endStamp = in
		changed = true
	}
	for k, v := range op.Props {
		if iv.pendingProps[k] > 0 {
			continue
		}
		if st, ok := iv.propStamps[k]; ok && !st.before(in) {
			continue
		}
		if v == nil {
			delete(iv.props, k)
		} else {
			if iv.props == nil {
				iv.props = make(PropertySet)
			}
			iv.props[k] = v
		}
		iv.propStamps[k] = in
		changed = true
	}
	if !changed {
		return nil, nil
	}
	return []IntervalEvent{c.eventLocked(IntervalChanged, iv, false)}, nil
}

// applyRemoteDelete deletes an interval on a remote peer's behalf. An
// unknown id is a benign no-op.
func (c *IntervalCollection) applyRemoteDelete(env Envelope) ([]IntervalEvent, error) {
	iv, ok := c.intervals[env.Op.IntervalID]
	if !ok {
		return nil, nil
	}
	ev := c.eventLocked(IntervalDeleted, iv, false)
	iv.start.unhook()
	iv.end.unhook()
	delete(c.intervals, env.Op.IntervalID)
	return []IntervalEvent{ev}, nil
}

// ackLocked rewrites the provisional stamps of an acknowledged local
// interval operation to the assigned sequence number.
func (c *IntervalCollection) ackLocked(po *pendingOp, seq int64) {
	iv, ok := c.intervals[po.op.IntervalID]
	if !ok {
		return
	}
	st := stamp{seq: seq, client: c.w.clientID}
	if po.bounds[0] {
		if iv.pendingStart > 0 {
			iv.pendingStart--
		}
		iv.startStamp = st
	}
	if po.bounds[1] {
		if iv.pendingEnd > 0 {
			iv.pendingEnd--
		}
		iv.endStamp = st
	}
	for _, k := range po.propKeys {
		if iv.pendingProps[k] > 0 {
			iv.pendingProps[k]--
			if iv.pendingProps[k] == 0 {
				delete(iv.pendingProps, k)
			}
		}
		iv.propStamps[k] = st
	}
}
