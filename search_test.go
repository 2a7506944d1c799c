package weft

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSearchBasic(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "the quick brown fox"))

	res, err := w.SearchFromPos(0, "quick", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 4, res.Start)
	require.Equal(t, 9, res.End)
	require.Equal(t, "quick", res.Match)

	res, err = w.SearchFromPos(0, "missing", SearchOptions{})
	require.NoError(t, err)
	require.Nil(t, res)

	res, err = w.SearchFromPos(0, "", SearchOptions{})
	require.NoError(t, err)
	require.Nil(t, res)

	_, err = w.SearchFromPos(20, "x", SearchOptions{})
	require.ErrorIs(t, err, ErrInvalidPosition)
}

func TestSearchIsRestartable(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "ababab"))

	var starts []int
	pos := 0
	for {
		res, err := w.SearchFromPos(pos, "ab", SearchOptions{})
		require.NoError(t, err)
		if res == nil {
			break
		}
		starts = append(starts, res.Start)
		pos = res.End
	}
	require.Equal(t, []int{0, 2, 4}, starts)
}

func TestSearchCaseSensitivity(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "Hello World"))

	res, err := w.SearchFromPos(0, "world", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 6, res.Start)
	require.Equal(t, "World", res.Match)

	res, err = w.SearchFromPos(0, "world", SearchOptions{CaseSensitive: true})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestSearchSpansSegmentsButNotMarkers(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "hello"))
	require.NoError(t, w.Insert(5, " world"))

	// The match crosses a physical segment boundary.
	res, err := w.SearchFromPos(0, "lo wo", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 3, res.Start)

	// A marker interrupts the run; matches never cross it.
	require.NoError(t, w.InsertMarker(5, nil))
	res, err = w.SearchFromPos(0, "lo wo", SearchOptions{})
	require.NoError(t, err)
	require.Nil(t, res)

	// Positions on the far side of the marker account for it.
	res, err = w.SearchFromPos(0, "world", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 7, res.Start)
	require.Equal(t, 12, res.End)
}

func TestSearchSkipsRemovedText(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "abXXcd"))
	require.NoError(t, w.Remove(2, 4))

	res, err := w.SearchFromPos(0, "abcd", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 0, res.Start)
	require.Equal(t, 4, res.End)

	res, err = w.SearchFromPos(0, "XX", SearchOptions{})
	require.NoError(t, err)
	require.Nil(t, res)
}

func TestSearchFromPosSkipsEarlierMatches(t *testing.T) {
	w, err := New(Options{ClientID: "alice"})
	require.NoError(t, err)
	require.NoError(t, w.Insert(0, "one two one"))

	res, err := w.SearchFromPos(1, "one", SearchOptions{})
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, 8, res.Start)
}
