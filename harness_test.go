package weft

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// testNet wires replicas to an in-process ordering service that assigns
// sequence numbers and fans each envelope back out synchronously, the
// origin included.
type testNet struct {
	t           *testing.T
	seq         int64
	minSeq      int64
	replicas    []*Weft
	byID        map[string]*Weft
	partitioned map[string]bool
	queued      map[string][]Envelope
}

func newTestNet(t *testing.T, ids ...string) *testNet {
	t.Helper()
	n := &testNet{
		t:           t,
		byID:        make(map[string]*Weft),
		partitioned: make(map[string]bool),
		queued:      make(map[string][]Envelope),
	}
	for _, id := range ids {
		id := id
		w, err := New(Options{
			ClientID: id,
			Logger:   zaptest.NewLogger(t),
			Transport: TransportFunc(func(op Op) error {
				n.sequence(id, op)
				return nil
			}),
		})
		require.NoError(t, err)
		n.replicas = append(n.replicas, w)
		n.byID[id] = w
	}
	return n
}

func (n *testNet) sequence(from string, op Op) {
	n.t.Helper()
	n.seq++
	env := Envelope{Seq: n.seq, MinSeq: n.minSeq, ClientID: from, Op: op}
	for _, r := range n.replicas {
		if n.partitioned[r.ClientID()] {
			n.queued[r.ClientID()] = append(n.queued[r.ClientID()], env)
			continue
		}
		require.NoError(n.t, r.Receive(env))
	}
}

// partition cuts a replica off: it stops submitting, and envelopes destined
// for it queue until heal.
func (n *testNet) partition(id string) {
	n.partitioned[id] = true
	n.byID[id].Disconnect()
}

// heal reconnects a partitioned replica: queued envelopes drain first, then
// its pending operations are regenerated and resubmitted.
func (n *testNet) heal(id string) {
	n.t.Helper()
	n.partitioned[id] = false
	w := n.byID[id]
	for _, env := range n.queued[id] {
		require.NoError(n.t, w.Receive(env))
	}
	n.queued[id] = nil
	require.NoError(n.t, w.Reconnect())
}

// requireConverged asserts every replica sees identical text and carries no
// pending operations.
func (n *testNet) requireConverged() {
	n.t.Helper()
	want := n.replicas[0].Text()
	for _, r := range n.replicas[1:] {
		require.Equal(n.t, want, r.Text(), "replica %s diverged", r.ClientID())
	}
	for _, r := range n.replicas {
		require.Zero(n.t, r.PendingOps(), "replica %s has pending ops", r.ClientID())
	}
}
