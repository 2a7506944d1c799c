package weft

import "go.uber.org/zap"

// pendingOp is a local operation awaiting acknowledgment, keyed by the
// segment group or interval it affects so an echo or a reconnection can
// correlate it.
type pendingOp struct {
	op       Op
	localSeq int64
	group    *segmentGroup // insert/remove correlation
	bounds   [2]bool       // interval bounds written by this op
	propKeys []string      // interval property keys written by this op
}

// enqueueLocked appends a pending operation and reports whether it should
// be submitted to the transport once the lock is released.
func (w *Weft) enqueueLocked(po *pendingOp) (bool, TransportInterface) {
	w.pending = append(w.pending, po)
	w.stats.LocalOps++
	return w.connected && w.transport != nil, w.transport
}

// Insert inserts text at pos in the local view. The edit is applied
// optimistically and queued for acknowledgment.
func (w *Weft) Insert(pos int, text string) error {
	return w.InsertText(pos, text, nil)
}

// InsertText inserts text carrying a property bag at pos in the local view.
func (w *Weft) InsertText(pos int, text string, props PropertySet) error {
	if text == "" {
		return nil
	}
	w.mu.Lock()
	seg := newTextSegment(text, SeqUnacked, w.clientID, props.clone())
	if err := w.applyLocalInsert(pos, seg); err != nil {
		w.mu.Unlock()
		return err
	}
	op := Op{Type: OpInsert, RefSeq: w.seq, Pos1: pos, Text: text, Props: props}
	po := &pendingOp{op: op, localSeq: seg.base().localSeq, group: seg.base().groups[0]}
	submit, t := w.enqueueLocked(po)
	ev := DeltaEvent{Kind: DeltaInsert, Pos: pos, Length: seg.Length(), Text: text,
		ClientID: w.clientID, Seq: SeqUnacked, Local: true}
	w.mu.Unlock()

	w.emitDelta(ev)
	if submit {
		return t.Submit(op)
	}
	return nil
}

// InsertMarker inserts an atomic marker at pos in the local view. The
// marker occupies one position, is excluded from the text, and hosts
// anchors like any segment.
func (w *Weft) InsertMarker(pos int, props PropertySet) error {
	w.mu.Lock()
	seg := newMarkerSegment(SeqUnacked, w.clientID, props.clone())
	if err := w.applyLocalInsert(pos, seg); err != nil {
		w.mu.Unlock()
		return err
	}
	op := Op{Type: OpInsert, RefSeq: w.seq, Pos1: pos, Marker: true, Props: props}
	po := &pendingOp{op: op, localSeq: seg.base().localSeq, group: seg.base().groups[0]}
	submit, t := w.enqueueLocked(po)
	ev := DeltaEvent{Kind: DeltaInsert, Pos: pos, Length: 1, Marker: true,
		ClientID: w.clientID, Seq: SeqUnacked, Local: true}
	w.mu.Unlock()

	w.emitDelta(ev)
	if submit {
		return t.Submit(op)
	}
	return nil
}

func (w *Weft) applyLocalInsert(pos int, seg Segment) error {
	w.nextLocalSeq++
	seg.base().localSeq = w.nextLocalSeq
	group := &segmentGroup{}
	group.add(seg)
	return w.insertSegment(pos, seg, w.localView())
}

// Remove tombstones the range [start, end) of the local view. Removing an
// empty range is a no-op.
func (w *Weft) Remove(start, end int) error {
	if start == end {
		return nil
	}
	w.mu.Lock()
	w.nextLocalSeq++
	group := &segmentGroup{}
	if _, err := w.removeRange(start, end, w.localView(), SeqUnacked, w.clientID, group, w.nextLocalSeq); err != nil {
		w.mu.Unlock()
		return err
	}
	op := Op{Type: OpRemove, RefSeq: w.seq, Pos1: start, Pos2: end}
	po := &pendingOp{op: op, localSeq: w.nextLocalSeq, group: group}
	submit, t := w.enqueueLocked(po)
	ev := DeltaEvent{Kind: DeltaRemove, Pos: start, Length: end - start,
		ClientID: w.clientID, Seq: SeqUnacked, Local: true}
	w.mu.Unlock()

	w.emitDelta(ev)
	if submit {
		return t.Submit(op)
	}
	return nil
}

// Receive incorporates one envelope from the ordering service. Envelopes
// must arrive in strict sequence order. An echo of this replica's own
// operation acknowledges the pending operation at the head of the queue;
// any other envelope is applied as a remote operation re-derived in the
// sender's perspective.
func (w *Weft) Receive(env Envelope) error {
	w.mu.Lock()
	if env.Seq <= w.seq {
		w.mu.Unlock()
		return ErrOutOfOrderDelivery
	}
	var deltas []DeltaEvent
	var intervals []IntervalEvent
	var err error
	if env.ClientID == w.clientID {
		err = w.ackLocked(env)
	} else {
		deltas, intervals, err = w.applyRemoteLocked(env)
	}
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.seq = env.Seq
	if env.MinSeq > w.minSeq {
		w.minSeq = env.MinSeq
	}
	w.mu.Unlock()

	for _, ev := range deltas {
		w.emitDelta(ev)
	}
	for _, ev := range intervals {
		w.emitInterval(ev)
	}
	return nil
}

// ackLocked rewrites the provisional stamps of the acknowledged operation
// to the assigned sequence number. The rewrite happens under the tree lock,
// so no remote operation can observe a half-updated stamp.
func (w *Weft) ackLocked(env Envelope) error {
	if len(w.pending) == 0 || w.pending[0].op.Type != env.Op.Type {
		return ErrUnknownAck
	}
	po := w.pending[0]
	w.pending = w.pending[1:]

	switch po.op.Type {
	case OpInsert:
		for _, seg := range po.group.segs {
			sb := seg.base()
			sb.seq = env.Seq
			sb.localSeq = 0
			sb.parent.recomputeUp()
		}
		po.group.release()
	case OpRemove:
		for _, seg := range po.group.segs {
			sb := seg.base()
			if sb.removedSeq == SeqUnacked {
				sb.removedSeq = env.Seq
			}
			sb.localRemovedSeq = 0
			sb.parent.recomputeUp()
		}
		po.group.release()
	case OpIntervalAdd, OpIntervalChange, OpIntervalDelete:
		w.collectionLocked(po.op.Collection).ackLocked(po, env.Seq)
	default:
		return ErrUnknownOpType
	}
	w.gen++
	w.stats.Acked++
	w.debugLogOp("acknowledged local op", env)
	return nil
}

// applyRemoteLocked re-derives the tree positions a remote operation's
// original positions denote, accounting for every operation between the
// sender's refSeq and the assigned sequence number, then applies the
// equivalent mutation. Two peers that have each applied a different prefix
// of intervening operations reach an identical resulting state.
func (w *Weft) applyRemoteLocked(env Envelope) ([]DeltaEvent, []IntervalEvent, error) {
	op := env.Op
	p := Perspective{RefSeq: op.RefSeq, Client: env.ClientID}
	w.stats.RemoteOps++
	w.debugLogOp("applying remote op", env)

	switch op.Type {
	case OpInsert:
		var seg Segment
		if op.Marker {
			seg = newMarkerSegment(env.Seq, env.ClientID, op.Props.clone())
		} else {
			if op.Text == "" {
				return nil, nil, nil
			}
			seg = newTextSegment(op.Text, env.Seq, env.ClientID, op.Props.clone())
		}
		if err := w.insertSegment(op.Pos1, seg, p); err != nil {
			return nil, nil, err
		}
		ev := DeltaEvent{
			Kind:     DeltaInsert,
			Pos:      w.segmentPosition(seg, w.localView()),
			Length:   seg.Length(),
			Text:     op.Text,
			Marker:   op.Marker,
			ClientID: env.ClientID,
			Seq:      env.Seq,
		}
		return []DeltaEvent{ev}, nil, nil

	case OpRemove:
		before := w.root.liveLen
		removed, err := w.removeRange(op.Pos1, op.Pos2, p, env.Seq, env.ClientID, nil, 0)
		if err != nil {
			return nil, nil, err
		}
		if len(removed) == 0 {
			return nil, nil, nil
		}
		ev := DeltaEvent{
			Kind:     DeltaRemove,
			Pos:      w.segmentPosition(removed[0], w.localView()),
			Length:   before - w.root.liveLen,
			ClientID: env.ClientID,
			Seq:      env.Seq,
		}
		return []DeltaEvent{ev}, nil, nil

	case OpIntervalAdd:
		evs, err := w.collectionLocked(op.Collection).applyRemoteAdd(env)
		return nil, evs, err
	case OpIntervalChange:
		evs, err := w.collectionLocked(op.Collection).applyRemoteChange(env)
		return nil, evs, err
	case OpIntervalDelete:
		evs, err := w.collectionLocked(op.Collection).applyRemoteDelete(env)
		return nil, evs, err
	}
	return nil, nil, ErrUnknownOpType
}

// Disconnect stops submitting operations. Pending operations are neither
// discarded nor cancelled; they remain queued for resubmission.
func (w *Weft) Disconnect() {
	w.mu.Lock()
	w.connected = false
	pending := len(w.pending)
	w.mu.Unlock()
	w.logger.Debug("disconnected", zap.Int("pending", pending))
}

// Connect attaches a transport and resubmits any pending operations.
func (w *Weft) Connect(t TransportInterface) error {
	w.mu.Lock()
	w.transport = t
	w.mu.Unlock()
	return w.Reconnect()
}

// Reconnect resubmits every still-pending local operation against the
// latest acknowledged state. Each operation's original intent is recomputed
// rather than replayed verbatim: its target position may have shifted or
// may no longer exist. An operation whose semantic target was removed by
// another peer in the interim degrades to a no-op.
func (w *Weft) Reconnect() error {
	w.mu.Lock()
	if w.transport == nil {
		w.mu.Unlock()
		return ErrNotConnected
	}
	old := w.pending
	w.pending = nil
	var ops []Op
	for _, po := range old {
		for _, npo := range w.regenerateLocked(po) {
			w.pending = append(w.pending, npo)
			ops = append(ops, npo.op)
			w.stats.Resubmitted++
		}
	}
	w.connected = true
	t := w.transport
	w.mu.Unlock()

	w.logger.Debug("reconnected, resubmitting", zap.Int("ops", len(ops)))
	for _, op := range ops {
		if err := t.Submit(op); err != nil {
			return err
		}
	}
	return nil
}

// regenerateLocked recomputes a pending operation's intent against the
// latest acknowledged state plus the local operations that preceded it.
func (w *Weft) regenerateLocked(po *pendingOp) []*pendingOp {
	p := Perspective{RefSeq: w.seq, Client: w.clientID, localSeq: po.localSeq}

	switch po.op.Type {
	case OpInsert:
		if len(po.group.segs) == 0 {
			w.stats.ResubmitNoOps++
			return nil
		}
		pos := w.segmentPosition(po.group.segs[0], p)
		if !po.op.Marker {
			text := ""
			for _, seg := range po.group.segs {
				text += seg.Text()
			}
			po.op.Text = text
		}
		po.op.RefSeq = w.seq
		po.op.Pos1 = pos
		return []*pendingOp{po}

	case OpRemove:
		po.group.release()
		var out []*pendingOp
		for _, seg := range po.group.segs {
			sb := seg.base()
			if sb.removedSeq != SeqUnacked {
				// Another peer's removal was sequenced first; ours is
				// subsumed and degrades to a no-op.
				sb.localRemovedSeq = 0
				w.stats.ResubmitNoOps++
				continue
			}
			g := &segmentGroup{}
			g.add(seg)
			pos := w.segmentPosition(seg, p)
			out = append(out, &pendingOp{
				op:       Op{Type: OpRemove, RefSeq: w.seq, Pos1: pos, Pos2: pos + seg.Length()},
				localSeq: po.localSeq,
				group:    g,
			})
		}
		return out

	case OpIntervalAdd, OpIntervalChange:
		c := w.collectionLocked(po.op.Collection)
		iv, ok := c.intervals[po.op.IntervalID]
		if !ok {
			// Deleted locally before acknowledgment; nothing to converge.
			w.stats.ResubmitNoOps++
			return nil
		}
		po.op.RefSeq = w.seq
		if po.op.Type == OpIntervalAdd || po.bounds[0] {
			po.op.Pos1 = w.resolveLocked(iv.start, p)
		}
		if po.op.Type == OpIntervalAdd || po.bounds[1] {
			po.op.Pos2 = w.resolveLocked(iv.end, p)
		}
		if po.op.Pos1 != PosUnchanged && po.op.Pos2 != PosUnchanged && po.op.Pos2 < po.op.Pos1 {
			po.op.Pos2 = po.op.Pos1
		}
		return []*pendingOp{po}

	case OpIntervalDelete:
		po.op.RefSeq = w.seq
		return []*pendingOp{po}
	}
	return nil
}
