package weft

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoteInsertApplies(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "hello"))
	require.Equal(t, "hello", bob.Text())

	require.NoError(t, bob.Insert(5, " world"))
	require.Equal(t, "hello world", alice.Text())
	n.requireConverged()
}

func TestRemoteRemoveApplies(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "hello brave world"))
	require.NoError(t, bob.Remove(5, 11))
	require.Equal(t, "hello world", alice.Text())
	require.Equal(t, "hello world", bob.Text())
	n.requireConverged()
}

func TestConcurrentInsertsAtSamePosition(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	n.partition("bob")
	require.NoError(t, alice.Insert(0, "abc"))
	require.NoError(t, bob.Insert(0, "xyz"))
	n.heal("bob")

	// Alice's insert was sequenced first, so it lands first even though
	// both targeted position 0.
	require.Equal(t, "abcxyz", alice.Text())
	require.Equal(t, "abcxyz", bob.Text())
	n.requireConverged()
}

func TestConcurrentInsertsInterleavedPositions(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "hello world"))

	n.partition("bob")
	require.NoError(t, alice.Insert(6, "brave "))
	require.NoError(t, bob.Insert(6, "new "))
	n.heal("bob")

	require.Equal(t, "hello brave new world", alice.Text())
	require.Equal(t, "hello brave new world", bob.Text())
	n.requireConverged()
}

func TestConcurrentOverlappingRemoves(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "abcdef"))

	n.partition("bob")
	require.NoError(t, alice.Remove(1, 4))
	require.NoError(t, bob.Remove(1, 4))
	n.heal("bob")

	require.Equal(t, "aef", alice.Text())
	require.Equal(t, "aef", bob.Text())
	n.requireConverged()

	// Bob's removal was subsumed by Alice's and degraded to a no-op.
	require.Positive(t, bob.Stats().ResubmitNoOps)
}

func TestConcurrentRemoveAndInsertInside(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "abcdef"))

	n.partition("bob")
	require.NoError(t, alice.Remove(1, 5))
	require.NoError(t, bob.Insert(3, "XY"))
	n.heal("bob")

	// Bob's text survives inside the removed region.
	require.Equal(t, "aXYf", alice.Text())
	require.Equal(t, "aXYf", bob.Text())
	n.requireConverged()
}

func TestHistoricalPerspectives(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "abc"))
	require.NoError(t, bob.Insert(3, "def"))
	require.NoError(t, alice.Remove(0, 1))

	// An observer that has incorporated nothing sees an empty sequence;
	// each sequenced operation extends what it can see.
	for _, tc := range []struct {
		refSeq int64
		want   int
	}{
		{0, 0}, {1, 3}, {2, 6}, {3, 5},
	} {
		got := alice.VisibleLength(Perspective{RefSeq: tc.refSeq, Client: "observer"})
		require.Equal(t, tc.want, got, "refSeq %d", tc.refSeq)
		require.Equal(t, got, bob.VisibleLength(Perspective{RefSeq: tc.refSeq, Client: "observer"}))
	}

	// A client's own unsequenced work is part of its perspective.
	n.partition("bob")
	require.NoError(t, bob.Insert(0, "zz"))
	require.Equal(t, 7, bob.VisibleLength(Perspective{RefSeq: 3, Client: "bob"}))
	require.Equal(t, 5, bob.VisibleLength(Perspective{RefSeq: 3, Client: "observer"}))
	n.heal("bob")
	n.requireConverged()
}

func TestLocalViewMatchesLen(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "hello"))
	require.NoError(t, w.Remove(1, 3))
	require.Equal(t, w.Len(), w.VisibleLength(Perspective{
		RefSeq: math.MaxInt64, Client: "alice", localSeq: math.MaxInt64,
	}))
}

func TestPerspectiveCacheSurvivesMutations(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice := n.byID["alice"]
	p := Perspective{RefSeq: 1, Client: "observer"}

	require.NoError(t, alice.Insert(0, "abcdef"))
	require.Equal(t, 6, alice.VisibleLength(p))
	require.NoError(t, alice.Remove(0, 2))
	require.Equal(t, 6, alice.VisibleLength(p))
	require.NoError(t, alice.Insert(0, "zz"))
	require.Equal(t, 6, alice.VisibleLength(p))
	require.Equal(t, "zzcdef", alice.Text())
}
