package activity

import (
	"fmt"
	"strings"
)

// truncateLines splits s into lines and keeps at most max of them. The
// returned total is the full line count before truncation, so callers can
// always reconstruct how much was dropped. Empty input yields nil, 0.
func truncateLines(s string, max int) ([]string, int) {
	if s == "" {
		return nil, 0
	}
	lines := strings.Split(s, "\n")
	// A trailing newline produces a phantom empty element; drop it.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	total := len(lines)
	if total == 0 {
		return nil, 0
	}
	if max > 0 && total > max {
		lines = lines[:max]
	}
	return lines, total
}

// truncateChars caps s at max bytes on a rune boundary.
func truncateChars(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}

// truncateList keeps at most max entries and reports the original count.
func truncateList(items []string, max int) ([]string, int) {
	total := len(items)
	if max > 0 && total > max {
		items = items[:max]
	}
	return items, total
}

// Marker returns the "+N more" suffix for a truncated preview, or "" when
// nothing was dropped. The count always equals total minus what is shown.
func Marker(shown, total int) string {
	if total <= shown {
		return ""
	}
	return fmt.Sprintf("+%d more", total-shown)
}

func countSummary(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// StdoutDisplay returns the stdout preview with a trailing truncation marker
// when lines were dropped.
func (r *Result) StdoutDisplay() []string {
	return withMarker(r.Stdout, r.StdoutTotal)
}

// FileDisplay returns the file content preview with a trailing truncation
// marker when lines were dropped.
func (r *Result) FileDisplay() []string {
	return withMarker(r.FileContent, r.FileTotal)
}

// FilenamesDisplay returns the filename list with a trailing truncation
// marker when entries were dropped.
func (r *Result) FilenamesDisplay() []string {
	return withMarker(r.Filenames, r.FilesTotal)
}

func withMarker(stored []string, total int) []string {
	m := Marker(len(stored), total)
	if m == "" {
		return stored
	}
	out := make([]string, 0, len(stored)+1)
	out = append(out, stored...)
	return append(out, m)
}
