package weft

// OpType identifies the kind of a serialized operation.
type OpType string

const (
	// OpInsert inserts text or a marker at a position.
	OpInsert OpType = "insert"

	// OpRemove removes the range [Pos1, Pos2).
	OpRemove OpType = "remove"

	// OpIntervalAdd creates an interval in a named collection.
	OpIntervalAdd OpType = "intervalAdd"

	// OpIntervalChange moves an interval's bounds or patches its properties.
	OpIntervalChange OpType = "intervalChange"

	// OpIntervalDelete deletes an interval by id.
	OpIntervalDelete OpType = "intervalDelete"
)

// PosUnchanged marks an interval bound left untouched by an intervalChange.
const PosUnchanged = -1

// Op is one serialized operation as emitted to the ordering service. All
// positions are relative to the issuing client's view at RefSeq; receivers
// re-derive current positions from that perspective.
type Op struct {
	Type   OpType `json:"type"`
	RefSeq int64  `json:"refSeq"`

	// Pos1 is the insert position, the removal start, or an interval start
	// bound. Pos2 is the removal end or an interval end bound.
	Pos1 int `json:"pos1"`
	Pos2 int `json:"pos2"`

	Text   string      `json:"text,omitempty"`
	Marker bool        `json:"marker,omitempty"`
	Props  PropertySet `json:"props,omitempty"`

	Collection   string `json:"collection,omitempty"`
	IntervalID   string `json:"intervalId,omitempty"`
	IntervalType string `json:"intervalType,omitempty"`
}

// Envelope is an operation as delivered back by the ordering service, with
// its assigned global sequence number. Envelopes must be delivered to every
// peer in strict Seq order; that guarantee is the transport's contract.
type Envelope struct {
	Seq      int64  `json:"seq"`
	MinSeq   int64  `json:"minSeq"`
	ClientID string `json:"clientId"`
	Op       Op     `json:"op"`
}
