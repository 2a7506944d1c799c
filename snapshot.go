package weft

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// snapshotVersion is the current serialization format version.
const snapshotVersion = 1

// segmentRecord is one segment in a serialized snapshot.
type segmentRecord struct {
	Text           string      `json:"text,omitempty"`
	Marker         bool        `json:"marker,omitempty"`
	Props          PropertySet `json:"props,omitempty"`
	Seq            int64       `json:"seq"`
	ClientID       string      `json:"clientId,omitempty"`
	RemovedSeq     int64       `json:"removedSeq,omitempty"`
	RemovedClients []string    `json:"removedClients,omitempty"`
}

// intervalRecord is one interval in a serialized snapshot, with bounds
// resolved against the snapshotting replica's view.
type intervalRecord struct {
	ID    string      `json:"id"`
	Type  string      `json:"type,omitempty"`
	Start int         `json:"start"`
	End   int         `json:"end"`
	Props PropertySet `json:"props,omitempty"`
}

// collectionRecord is one interval collection in a serialized snapshot.
type collectionRecord struct {
	Name      string           `json:"name"`
	Intervals []intervalRecord `json:"intervals"`
}

// snapshotBody is the serialized replica state: a flat ordered segment
// list plus every interval collection, sufficient to reconstruct the tree
// without replaying individual operations.
type snapshotBody struct {
	Version     int                `json:"version"`
	Seq         int64              `json:"seq"`
	MinSeq      int64              `json:"minSeq"`
	Segments    []segmentRecord    `json:"segments"`
	Collections []collectionRecord `json:"collections,omitempty"`
}

// snapshotEnvelope wraps the body with an integrity digest.
type snapshotEnvelope struct {
	Body   json.RawMessage `json:"body"`
	Digest string          `json:"digest"`
}

// Snapshot serializes the replica for the summarization collaborator.
// Snapshotting is refused while local operations are pending: summaries
// are taken on acknowledged state only.
func (w *Weft) Snapshot() ([]byte, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.pending) > 0 {
		return nil, ErrPendingOps
	}
	body := snapshotBody{Version: snapshotVersion, Seq: w.seq, MinSeq: w.minSeq}
	w.root.walkSegments(func(s Segment) bool {
		sb := s.base()
		rec := segmentRecord{
			Text:     s.Text(),
			Marker:   IsMarker(s),
			Props:    s.Properties(),
			Seq:      sb.seq,
			ClientID: sb.clientID,
		}
		if sb.removed() {
			rec.RemovedSeq = sb.removedSeq
			rec.RemovedClients = sb.removedClients
		}
		body.Segments = append(body.Segments, rec)
		return true
	})
	for _, name := range w.collectionNamesLocked() {
		c := w.collections[name]
		col := collectionRecord{Name: name}
		for _, info := range c.allLocked() {
			col.Intervals = append(col.Intervals, intervalRecord{
				ID: info.ID, Type: info.Type, Start: info.Start, End: info.End, Props: info.Props,
			})
		}
		body.Collections = append(body.Collections, col)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot body: %w", err)
	}
	digest := sha256.Sum256(raw)
	return json.Marshal(snapshotEnvelope{Body: raw, Digest: hex.EncodeToString(digest[:])})
}

func (w *Weft) collectionNamesLocked() []string {
	names := make([]string, 0, len(w.collections))
	for name := range w.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load reconstructs a replica from a snapshot produced by Snapshot.
// The loaded replica reproduces the source's visible text, lengths, and
// every interval collection's ids, bounds, and properties exactly.
func Load(data []byte, opts Options) (*Weft, error) {
	var env snapshotEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}
	digest := sha256.Sum256(env.Body)
	if hex.EncodeToString(digest[:]) != env.Digest {
		return nil, ErrSnapshotCorrupt
	}
	var body snapshotBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return nil, fmt.Errorf("decoding snapshot body: %w", err)
	}
	if body.Version != snapshotVersion {
		return nil, ErrSnapshotVersion
	}
	w, err := New(opts)
	if err != nil {
		return nil, err
	}

	segs := make([]Segment, 0, len(body.Segments))
	for _, rec := range body.Segments {
		var seg Segment
		if rec.Marker {
			seg = newMarkerSegment(rec.Seq, rec.ClientID, rec.Props)
		} else {
			if rec.Text == "" {
				continue
			}
			seg = newTextSegment(rec.Text, rec.Seq, rec.ClientID, rec.Props)
		}
		if len(rec.RemovedClients) > 0 {
			sb := seg.base()
			sb.removedSeq = rec.RemovedSeq
			sb.removedClients = rec.RemovedClients
		}
		segs = append(segs, seg)
	}
	w.root = buildBalanced(segs)
	w.seq = body.Seq
	w.minSeq = body.MinSeq

	for _, col := range body.Collections {
		c := w.collectionLocked(col.Name)
		local := w.localView()
		for _, rec := range col.Intervals {
			base := stamp{seq: SeqBase}
			iv := &Interval{
				id:           rec.ID,
				intervalType: rec.Type,
				start:        w.createReferenceLocked(rec.Start, local, SlideForward),
				end:          w.createReferenceLocked(rec.End, local, SlideForward),
				props:        rec.Props.clone(),
				startStamp:   base,
				endStamp:     base,
				propStamps:   make(map[string]stamp),
				pendingProps: make(map[string]int),
			}
			for k := range rec.Props {
				iv.propStamps[k] = base
			}
			c.intervals[rec.ID] = iv
		}
	}
	return w, nil
}
