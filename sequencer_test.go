package weft

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestLocalOpsSubmitToTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := NewMockTransportInterface(ctrl)
	w, err := New(Options{ClientID: "alice", Transport: transport})
	require.NoError(t, err)

	var got []Op
	transport.EXPECT().Submit(gomock.Any()).DoAndReturn(func(op Op) error {
		got = append(got, op)
		return nil
	}).Times(2)

	require.NoError(t, w.Insert(0, "hello"))
	require.NoError(t, w.Remove(1, 3))

	require.Len(t, got, 2)
	require.Equal(t, OpInsert, got[0].Type)
	require.Equal(t, 0, got[0].Pos1)
	require.Equal(t, "hello", got[0].Text)
	require.EqualValues(t, 0, got[0].RefSeq)
	require.Equal(t, OpRemove, got[1].Type)
	require.Equal(t, 1, got[1].Pos1)
	require.Equal(t, 3, got[1].Pos2)
	require.Equal(t, 2, w.PendingOps())
}

func TestDisconnectedReplicaQueuesWithoutSubmitting(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := NewMockTransportInterface(ctrl)
	w, err := New(Options{ClientID: "alice", Transport: transport})
	require.NoError(t, err)

	w.Disconnect()
	require.NoError(t, w.Insert(0, "offline"))
	require.Equal(t, 1, w.PendingOps())
	require.Equal(t, "offline", w.Text())
}

func TestReceiveRejectsOutOfOrder(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)

	env := Envelope{Seq: 1, ClientID: "bob", Op: Op{Type: OpInsert, Pos1: 0, Text: "x"}}
	require.NoError(t, w.Receive(env))
	require.ErrorIs(t, w.Receive(env), ErrOutOfOrderDelivery)
	require.ErrorIs(t, w.Receive(Envelope{Seq: 0, ClientID: "bob", Op: env.Op}), ErrOutOfOrderDelivery)
}

func TestReceiveRejectsUnknownAck(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)

	err = w.Receive(Envelope{Seq: 1, ClientID: "alice", Op: Op{Type: OpInsert, Pos1: 0, Text: "x"}})
	require.ErrorIs(t, err, ErrUnknownAck)
}

func TestReceiveRejectsUnknownOpType(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)

	err = w.Receive(Envelope{Seq: 1, ClientID: "bob", Op: Op{Type: "compact"}})
	require.ErrorIs(t, err, ErrUnknownOpType)
}

func TestAckClearsPendingState(t *testing.T) {
	n := newTestNet(t, "alice")
	w := n.byID["alice"]

	require.NoError(t, w.Insert(0, "hello"))
	require.Zero(t, w.PendingOps())
	require.EqualValues(t, 1, w.Seq())
	require.EqualValues(t, 1, w.Stats().Acked)

	// Acknowledged state snapshots cleanly.
	_, err := w.Snapshot()
	require.NoError(t, err)
}

func TestConnectSubmitsQueuedOps(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "ab"))
	require.NoError(t, w.Insert(2, "cd"))

	require.ErrorIs(t, w.Reconnect(), ErrNotConnected)

	ctrl := gomock.NewController(t)
	transport := NewMockTransportInterface(ctrl)
	var got []Op
	transport.EXPECT().Submit(gomock.Any()).DoAndReturn(func(op Op) error {
		got = append(got, op)
		return nil
	}).Times(2)

	require.NoError(t, w.Connect(transport))
	require.Len(t, got, 2)
	require.Equal(t, 0, got[0].Pos1)
	require.Equal(t, "ab", got[0].Text)
	require.Equal(t, 2, got[1].Pos1)
	require.Equal(t, "cd", got[1].Text)
	require.EqualValues(t, 2, w.Stats().Resubmitted)
}

func TestReconnectCoalescesSplitInsert(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)

	// A later local edit splits the pending insert's segment; the
	// resubmission still carries the whole original text as one op.
	require.NoError(t, w.Insert(0, "abcdef"))
	require.NoError(t, w.InsertMarker(3, nil))

	ctrl := gomock.NewController(t)
	transport := NewMockTransportInterface(ctrl)
	var got []Op
	transport.EXPECT().Submit(gomock.Any()).DoAndReturn(func(op Op) error {
		got = append(got, op)
		return nil
	}).Times(2)

	require.NoError(t, w.Connect(transport))
	require.Len(t, got, 2)
	require.Equal(t, OpInsert, got[0].Type)
	require.Equal(t, "abcdef", got[0].Text)
	require.False(t, got[0].Marker)
	require.True(t, got[1].Marker)
}

func TestReconnectDropsSubsumedRemove(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "abcdef"))

	n.partition("bob")
	require.NoError(t, alice.Remove(0, 6))
	require.NoError(t, bob.Remove(0, 6))
	n.heal("bob")

	require.Empty(t, alice.Text())
	require.Empty(t, bob.Text())
	require.EqualValues(t, 1, bob.Stats().ResubmitNoOps)
	require.Zero(t, bob.Stats().Resubmitted)
	n.requireConverged()
}

func TestReconnectSplitsPartiallySubsumedRemove(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "abcdef"))

	n.partition("bob")
	require.NoError(t, alice.Remove(2, 4))
	require.NoError(t, bob.Remove(1, 5))
	n.heal("bob")

	require.Equal(t, "af", alice.Text())
	require.Equal(t, "af", bob.Text())

	// The middle of Bob's removal was already gone; the surviving flanks
	// were resubmitted as independent removals.
	require.EqualValues(t, 1, bob.Stats().ResubmitNoOps)
	require.EqualValues(t, 2, bob.Stats().Resubmitted)
	n.requireConverged()
}

func TestSubmitErrorSurfaces(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := NewMockTransportInterface(ctrl)
	w, err := New(Options{ClientID: "alice", Transport: transport})
	require.NoError(t, err)

	transport.EXPECT().Submit(gomock.Any()).Return(ErrNotConnected)
	require.ErrorIs(t, w.Insert(0, "x"), ErrNotConnected)

	// The optimistic local edit stays applied and queued.
	require.Equal(t, "x", w.Text())
	require.Equal(t, 1, w.PendingOps())
}
