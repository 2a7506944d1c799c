package weft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReferenceTracksSurroundingEdits(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "hello world"))

	r, err := w.CreateReference(6, SlideForward)
	require.NoError(t, err)
	require.Equal(t, 6, w.Resolve(r))

	require.NoError(t, w.Insert(0, ">> "))
	require.Equal(t, 9, w.Resolve(r))

	require.NoError(t, w.Remove(0, 3))
	require.Equal(t, 6, w.Resolve(r))

	// Edits after the anchor leave it alone.
	require.NoError(t, w.Insert(11, "!"))
	require.Equal(t, 6, w.Resolve(r))
}

func TestReferenceSlidesForwardOnInsertAtPosition(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "hello world"))

	r, err := w.CreateReference(6, SlideForward)
	require.NoError(t, err)

	// Inserting exactly at the anchor pushes it right: it stays glued to
	// the content it was attached to.
	require.NoError(t, w.Insert(6, "brave "))
	require.Equal(t, 12, w.Resolve(r))
}

func TestReferenceSlidesOnRemoval(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "abcdef"))

	fwd, err := w.CreateReference(2, SlideForward)
	require.NoError(t, err)
	bwd, err := w.CreateReference(4, SlideBackward)
	require.NoError(t, err)

	require.NoError(t, w.Remove(1, 5))
	require.Equal(t, "af", w.Text())
	require.Equal(t, 1, w.Resolve(fwd))
	require.Equal(t, 1, w.Resolve(bwd))

	// Same resolved position, different hosts: an insert between them
	// separates the two slide policies.
	require.NoError(t, w.Insert(1, "X"))
	require.Equal(t, "aXf", w.Text())
	require.Equal(t, 2, w.Resolve(fwd))
	require.Equal(t, 1, w.Resolve(bwd))
}

func TestReferenceDetachesWhenNothingLiveRemains(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "abc"))

	r, err := w.CreateReference(1, SlideForward)
	require.NoError(t, err)
	require.False(t, r.IsDetached())

	require.NoError(t, w.Remove(0, 3))
	require.True(t, r.IsDetached())
	require.Zero(t, w.Resolve(r))
}

func TestCreateReferenceValidatesPosition(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "abc"))

	_, err = w.CreateReference(4, SlideForward)
	require.ErrorIs(t, err, ErrInvalidPosition)
	_, err = w.CreateReference(-1, SlideForward)
	require.ErrorIs(t, err, ErrInvalidPosition)

	end, err := w.CreateReference(3, SlideForward)
	require.NoError(t, err)
	require.Equal(t, 3, w.Resolve(end))
}

func TestRemoveReference(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "abc"))

	r, err := w.CreateReference(1, SlideForward)
	require.NoError(t, err)
	w.RemoveReference(r)
	require.True(t, r.IsDetached())

	// The host no longer carries a back-link, so later removals are
	// unaffected by the dead reference.
	require.NoError(t, w.Remove(0, 3))
	require.Zero(t, w.Resolve(r))
}

func TestReferenceStableAcrossRemoteEdits(t *testing.T) {
	n := newTestNet(t, "alice", "bob")
	alice, bob := n.byID["alice"], n.byID["bob"]

	require.NoError(t, alice.Insert(0, "hello world"))
	r, err := alice.CreateReference(6, SlideForward)
	require.NoError(t, err)

	require.NoError(t, bob.Insert(0, "| "))
	require.Equal(t, 8, alice.Resolve(r))

	require.NoError(t, bob.Remove(2, 8))
	require.Equal(t, "| world", alice.Text())
	require.Equal(t, 2, alice.Resolve(r))
}
