// Package wire defines the frames exchanged between the reference relay
// and its clients. The relay owns ordering: it assigns each submitted
// operation a global sequence number and fans envelopes out to every
// client, origin included, in strict sequence order.
package wire

import "github.com/phroun/weft"

// FrameType identifies the kind of a relay frame.
type FrameType string

const (
	// FrameHello is the first frame sent to a connecting client, carrying
	// its assigned client id and the relay's current sequence number.
	FrameHello FrameType = "hello"

	// FrameOp carries one sequenced operation envelope.
	FrameOp FrameType = "op"
)

// Frame is one message from relay to client. Clients send bare weft.Op
// values in the other direction.
type Frame struct {
	Type     FrameType      `json:"type"`
	ClientID string         `json:"clientId,omitempty"`
	Seq      int64          `json:"seq,omitempty"`
	Envelope *weft.Envelope `json:"envelope,omitempty"`
}
