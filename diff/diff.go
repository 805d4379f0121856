// Package diff computes line-level diffs between before/after text for
// rendering file edits.
//
// The algorithm is a longest-common-subsequence diff over lines: unchanged
// lines are emitted as context with both line numbers, deletions carry only
// the old line number, insertions only the new one. Output is deterministic
// for a given input pair, with removed lines emitted before the added lines
// that replace them.
package diff

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ErrDiffUnavailable is returned when either input is binary or not valid
// UTF-8. Callers should store the activity without diff lines rather than
// attempting to render garbage.
var ErrDiffUnavailable = errors.New("content is not valid text")

// Kind classifies a diff line.
type Kind int

const (
	// KindContext is a line present in both before and after.
	KindContext Kind = iota

	// KindAdded is a line present only in after.
	KindAdded

	// KindRemoved is a line present only in before.
	KindRemoved
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindContext:
		return "context"
	case KindAdded:
		return "added"
	case KindRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Line is a single line of diff output.
// OldLine and NewLine are 1-based; 0 means unset. Context lines carry both
// numbers, removed lines only OldLine, added lines only NewLine.
type Line struct {
	Kind    Kind
	OldLine int
	NewLine int
	Text    string
}

// Compute returns the line diff between before and after.
//
// Identical inputs yield only context lines; an empty before yields only
// added lines. Binary or non-UTF8 input is rejected with ErrDiffUnavailable.
// The result is a pure function of the inputs.
func Compute(before, after string) ([]Line, error) {
	if !isText(before) || !isText(after) {
		return nil, ErrDiffUnavailable
	}

	oldLines := splitLines(before)
	newLines := splitLines(after)

	// LCS length table: lcs[i][j] is the LCS length of oldLines[i:] and newLines[j:].
	m, n := len(oldLines), len(newLines)
	lcs := make([][]int, m+1)
	for i := range lcs {
		lcs[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if oldLines[i] == newLines[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	// Walk forward, preferring removals over additions at each divergence so
	// a replacement renders as removed-then-added.
	var out []Line
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && oldLines[i] == newLines[j]:
			out = append(out, Line{Kind: KindContext, OldLine: i + 1, NewLine: j + 1, Text: oldLines[i]})
			i++
			j++
		case i < m && (j >= n || lcs[i+1][j] >= lcs[i][j+1]):
			out = append(out, Line{Kind: KindRemoved, OldLine: i + 1, Text: oldLines[i]})
			i++
		default:
			out = append(out, Line{Kind: KindAdded, NewLine: j + 1, Text: newLines[j]})
			j++
		}
	}

	return out, nil
}

// isText reports whether s is valid UTF-8 with no NUL bytes.
func isText(s string) bool {
	if !utf8.ValidString(s) {
		return false
	}
	return !strings.ContainsRune(s, '\x00')
}

// splitLines splits on newlines without producing a phantom empty line for
// a trailing newline. An empty string has zero lines.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
