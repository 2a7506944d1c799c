package weft

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func makeSegs(n int) []Segment {
	segs := make([]Segment, n)
	for i := range segs {
		segs[i] = newTextSegment(fmt.Sprintf("s%d-", i), int64(i+1), "alice", nil)
	}
	return segs
}

func TestBuildBalanced(t *testing.T) {
	segs := makeSegs(100)
	root := buildBalanced(segs)

	wantLen := 0
	for _, s := range segs {
		wantLen += s.Length()
	}
	require.Equal(t, wantLen, root.liveLen)
	require.EqualValues(t, 100, root.maxSeq)
	require.Zero(t, root.unacked)

	var got []Segment
	root.walkSegments(func(s Segment) bool {
		got = append(got, s)
		return true
	})
	require.Len(t, got, 100)
	for i, s := range got {
		require.Same(t, segs[i], s)
		require.NotNil(t, s.base().parent)
		require.True(t, s.base().parent.leaf)
	}
}

func TestBuildBalancedEmpty(t *testing.T) {
	root := buildBalanced(nil)
	require.True(t, root.leaf)
	require.Zero(t, root.liveLen)
}

func TestNextPrevSegmentCrossLeaves(t *testing.T) {
	segs := makeSegs(30)
	buildBalanced(segs)

	for i := 0; i < len(segs)-1; i++ {
		require.Same(t, segs[i+1], nextSegment(segs[i]), "next of %d", i)
	}
	require.Nil(t, nextSegment(segs[len(segs)-1]))

	for i := len(segs) - 1; i > 0; i-- {
		require.Same(t, segs[i-1], prevSegment(segs[i]), "prev of %d", i)
	}
	require.Nil(t, prevSegment(segs[0]))
}

func TestRecomputeCountsStamps(t *testing.T) {
	b := newLeafBlock(nil)
	acked := newTextSegment("abc", 5, "alice", nil)
	pending := newTextSegment("de", SeqUnacked, "alice", nil)
	tomb := newTextSegment("f", 2, "bob", nil)
	markRemoved(tomb, 7, "alice")
	b.segs = []Segment{acked, pending, tomb}
	for _, s := range b.segs {
		s.base().parent = b
	}
	b.recompute()

	require.Equal(t, 5, b.liveLen)
	require.EqualValues(t, 7, b.maxSeq)
	require.Equal(t, 1, b.unacked)

	// A pending local removal is an unacknowledged stamp too.
	markRemoved(acked, SeqUnacked, "alice")
	b.recompute()
	require.Equal(t, 2, b.liveLen)
	require.Equal(t, 2, b.unacked)
}

func TestBlockSplitGrowsRoot(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)

	// Alternate insert positions so segments cannot coalesce and the root
	// is forced to split and grow.
	var want string
	for i := 0; i < 50; i++ {
		s := fmt.Sprintf("<%d>", i)
		require.NoError(t, w.Insert(0, s))
		want = s + want
	}
	require.Equal(t, want, w.Text())
	require.False(t, w.root.leaf)

	// Every leaf respects the fan-out bound.
	var check func(b *block)
	check = func(b *block) {
		require.LessOrEqual(t, b.childCount(), maxBlockChildren)
		for _, c := range b.blocks {
			require.Same(t, b, c.parent)
			check(c)
		}
	}
	check(w.root)
}
