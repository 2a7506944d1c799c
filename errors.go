// Package weft provides a sequence CRDT ("merge tree") for real-time
// collaborative editing, with anchored range annotations (interval
// collections), optimistic local operations, and reconnection resubmission.
package weft

import "errors"

// Position errors
var (
	// ErrInvalidPosition indicates that a position is out of bounds.
	ErrInvalidPosition = errors.New("position out of bounds")

	// ErrInvalidRange indicates that a range's end precedes its start.
	ErrInvalidRange = errors.New("range end precedes start")

	// ErrSplitOutOfRange indicates a split offset outside the segment.
	// Splitting at an out-of-range offset is a programming error.
	ErrSplitOutOfRange = errors.New("split offset out of range")
)

// Interval errors
var (
	// ErrIntervalNotFound indicates that an interval id does not exist
	// in the collection. This is a benign condition, not a defect.
	ErrIntervalNotFound = errors.New("interval not found")

	// ErrIntervalExists indicates that an interval id is already in use.
	ErrIntervalExists = errors.New("interval id already exists")
)

// Sequencing errors
var (
	// ErrOutOfOrderDelivery indicates an envelope arrived with a sequence
	// number at or below one already incorporated. In-order delivery is
	// the transport's contract; this signals a defect in the caller.
	ErrOutOfOrderDelivery = errors.New("envelope delivered out of order")

	// ErrUnknownAck indicates an acknowledgment arrived for an operation
	// that is not at the head of the pending queue.
	ErrUnknownAck = errors.New("acknowledgment does not match pending operation")

	// ErrNotConnected indicates that an operation requires a connected
	// transport.
	ErrNotConnected = errors.New("transport not connected")

	// ErrUnknownOpType indicates an operation with an unrecognized type.
	ErrUnknownOpType = errors.New("unknown operation type")
)

// Snapshot errors
var (
	// ErrPendingOps indicates that a snapshot was requested while local
	// operations are still awaiting acknowledgment.
	ErrPendingOps = errors.New("pending operations not yet acknowledged")

	// ErrSnapshotCorrupt indicates that a snapshot failed its integrity check.
	ErrSnapshotCorrupt = errors.New("snapshot integrity check failed")

	// ErrSnapshotVersion indicates an unsupported snapshot format version.
	ErrSnapshotVersion = errors.New("unsupported snapshot version")
)

// Configuration errors
var (
	// ErrNoClientID indicates that Options did not carry a client id.
	ErrNoClientID = errors.New("no client id provided")
)

// Tree structure errors
var (
	// ErrInternal indicates an internal consistency error (should not happen).
	ErrInternal = errors.New("internal error")
)
