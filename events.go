package weft

// DeltaKind identifies the kind of a sequence mutation event.
type DeltaKind int

const (
	// DeltaInsert reports inserted text or a marker.
	DeltaInsert DeltaKind = iota

	// DeltaRemove reports a removed range.
	DeltaRemove
)

// DeltaEvent describes one applied sequence mutation. Events are delivered
// synchronously after the mutation commits and before the mutating call
// returns; listeners may reenter read queries and observe the fully
// post-mutation state.
type DeltaEvent struct {
	Kind     DeltaKind
	Pos      int    // position in the local view at apply time
	Length   int    // inserted or removed length
	Text     string // inserted text, "" for markers and removals
	Marker   bool   // true when the insert was an atomic marker
	ClientID string // author
	Seq      int64  // assigned sequence number, SeqUnacked for local pending
	Local    bool   // true on the originating peer
}

// DeltaListener observes sequence mutations.
type DeltaListener func(DeltaEvent)

// IntervalEventKind identifies the kind of an interval mutation event.
type IntervalEventKind int

const (
	// IntervalAdded reports interval creation.
	IntervalAdded IntervalEventKind = iota

	// IntervalChanged reports a bounds or property change.
	IntervalChanged

	// IntervalDeleted reports interval deletion.
	IntervalDeleted
)

// IntervalEvent describes one interval collection mutation.
type IntervalEvent struct {
	Kind       IntervalEventKind
	Collection string
	ID         string
	Start      int // resolved start at event time
	End        int // resolved end at event time
	Local      bool
}

// IntervalListener observes interval collection mutations.
type IntervalListener func(IntervalEvent)

// RegisterDeltaListener registers an observer for sequence mutations.
func (w *Weft) RegisterDeltaListener(l DeltaListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.deltaListeners = append(w.deltaListeners, l)
}

// RegisterIntervalListener registers an observer for interval mutations.
func (w *Weft) RegisterIntervalListener(l IntervalListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.intervalListeners = append(w.intervalListeners, l)
}

// emitDelta dispatches an event to every delta listener. Called without
// holding the tree lock so listeners can reenter read queries.
func (w *Weft) emitDelta(ev DeltaEvent) {
	w.mu.RLock()
	listeners := append([]DeltaListener(nil), w.deltaListeners...)
	w.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// emitInterval dispatches an event to every interval listener.
func (w *Weft) emitInterval(ev IntervalEvent) {
	w.mu.RLock()
	listeners := append([]IntervalListener(nil), w.intervalListeners...)
	w.mu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}
