package weft

import "unicode"

// SearchResult contains information about a search match.
type SearchResult struct {
	Start int    // start position in the local view
	End   int    // end position (exclusive)
	Match string // the matched text
}

// SearchOptions configures search behavior.
type SearchOptions struct {
	CaseSensitive bool // if false, the scan is case-insensitive
}

// SearchFromPos scans forward from pos for the first occurrence of needle
// in the visible text. The scan is finite and restartable: it retains no
// state across calls, and a subsequent call from a returned match's End
// continues where the previous one stopped. Matches never span markers.
// Returns nil when no match exists at or after pos.
func (w *Weft) SearchFromPos(pos int, needle string, opts SearchOptions) (*SearchResult, error) {
	if needle == "" {
		return nil, nil
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	if pos < 0 || pos > w.root.liveLen {
		return nil, ErrInvalidPosition
	}

	target := []rune(needle)
	local := w.localView()

	// Collect maximal runs of visible text uninterrupted by markers, then
	// scan each run lazily. A run carries its starting position so match
	// offsets translate back to sequence positions.
	runStart := -1
	var run []rune
	at := 0

	scanRun := func() *SearchResult {
		if runStart < 0 || runStart+len(run) <= pos {
			return nil
		}
		from := 0
		if pos > runStart {
			from = pos - runStart
		}
		for i := from; i+len(target) <= len(run); i++ {
			if runesMatch(run[i:i+len(target)], target, opts.CaseSensitive) {
				return &SearchResult{
					Start: runStart + i,
					End:   runStart + i + len(target),
					Match: string(run[i : i+len(target)]),
				}
			}
		}
		return nil
	}

	var found *SearchResult
	w.root.walkSegments(func(s Segment) bool {
		l := local.segLength(s)
		if l == 0 {
			return true
		}
		if IsMarker(s) {
			if found = scanRun(); found != nil {
				return false
			}
			runStart, run = -1, nil
			at += l
			return true
		}
		if runStart < 0 {
			runStart = at
			run = run[:0]
		}
		run = append(run, []rune(s.Text())...)
		at += l
		return true
	})
	if found == nil {
		found = scanRun()
	}
	return found, nil
}

func runesMatch(a, b []rune, caseSensitive bool) bool {
	for i := range b {
		x, y := a[i], b[i]
		if !caseSensitive {
			x, y = unicode.ToLower(x), unicode.ToLower(y)
		}
		if x != y {
			return false
		}
	}
	return true
}
