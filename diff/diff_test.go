package diff

import (
	"errors"
	"strings"
	"testing"
)

// reconstruct rebuilds one side of the diff from its line kinds.
func reconstruct(lines []Line, keep ...Kind) []string {
	var out []string
	for _, l := range lines {
		for _, k := range keep {
			if l.Kind == k {
				out = append(out, l.Text)
			}
		}
	}
	return out
}

func TestCompute_Identical(t *testing.T) {
	input := "alpha\nbeta\ngamma"
	lines, err := Compute(input, input)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.Kind != KindContext {
			t.Errorf("line %d: kind = %v, want context", i, l.Kind)
		}
		if l.OldLine != i+1 || l.NewLine != i+1 {
			t.Errorf("line %d: numbers = (%d, %d), want (%d, %d)", i, l.OldLine, l.NewLine, i+1, i+1)
		}
	}
}

func TestCompute_SingleLineReplacement(t *testing.T) {
	lines, err := Compute("a\nb\nc", "a\nx\nc")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	want := []Line{
		{Kind: KindContext, OldLine: 1, NewLine: 1, Text: "a"},
		{Kind: KindRemoved, OldLine: 2, Text: "b"},
		{Kind: KindAdded, NewLine: 2, Text: "x"},
		{Kind: KindContext, OldLine: 3, NewLine: 3, Text: "c"},
	}
	if len(lines) != len(want) {
		t.Fatalf("got %d lines, want %d: %+v", len(lines), len(want), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %+v, want %+v", i, lines[i], want[i])
		}
	}
}

func TestCompute_PureInsertion(t *testing.T) {
	lines, err := Compute("", "one\ntwo")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.Kind != KindAdded {
			t.Errorf("line %d: kind = %v, want added", i, l.Kind)
		}
		if l.OldLine != 0 {
			t.Errorf("line %d: OldLine = %d, want 0 (unset)", i, l.OldLine)
		}
		if l.NewLine != i+1 {
			t.Errorf("line %d: NewLine = %d, want %d", i, l.NewLine, i+1)
		}
	}
}

func TestCompute_PureDeletion(t *testing.T) {
	lines, err := Compute("one\ntwo", "")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for i, l := range lines {
		if l.Kind != KindRemoved {
			t.Errorf("line %d: kind = %v, want removed", i, l.Kind)
		}
		if l.NewLine != 0 {
			t.Errorf("line %d: NewLine = %d, want 0 (unset)", i, l.NewLine)
		}
	}
}

func TestCompute_RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		before string
		after  string
	}{
		{"replacement", "a\nb\nc", "a\nx\nc"},
		{"insertion middle", "a\nc", "a\nb\nc"},
		{"deletion middle", "a\nb\nc", "a\nc"},
		{"rewrite everything", "old one\nold two", "new one\nnew two\nnew three"},
		{"append", "a\nb", "a\nb\nc\nd"},
		{"prepend", "b\nc", "a\nb\nc"},
		{"moved block", "a\nb\nc\nd", "c\nd\na\nb"},
		{"empty both", "", ""},
		{"blank lines", "a\n\nb", "a\n\n\nb"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lines, err := Compute(tc.before, tc.after)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}

			gotAfter := reconstruct(lines, KindContext, KindAdded)
			if want := splitLines(tc.after); strings.Join(gotAfter, "\n") != strings.Join(want, "\n") {
				t.Errorf("after reconstruction = %q, want %q", gotAfter, want)
			}

			gotBefore := reconstruct(lines, KindContext, KindRemoved)
			if want := splitLines(tc.before); strings.Join(gotBefore, "\n") != strings.Join(want, "\n") {
				t.Errorf("before reconstruction = %q, want %q", gotBefore, want)
			}

			if max := len(splitLines(tc.before)) + len(splitLines(tc.after)); len(lines) > max {
				t.Errorf("output length %d exceeds before+after line count %d", len(lines), max)
			}
		})
	}
}

func TestCompute_LineNumbersMonotonic(t *testing.T) {
	lines, err := Compute("a\nb\nc\nd\ne", "a\nx\nc\ny\nz\ne")
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	lastOld, lastNew := 0, 0
	for i, l := range lines {
		if l.OldLine != 0 {
			if l.OldLine <= lastOld {
				t.Errorf("line %d: OldLine %d not increasing past %d", i, l.OldLine, lastOld)
			}
			lastOld = l.OldLine
		}
		if l.NewLine != 0 {
			if l.NewLine <= lastNew {
				t.Errorf("line %d: NewLine %d not increasing past %d", i, l.NewLine, lastNew)
			}
			lastNew = l.NewLine
		}
	}
}

func TestCompute_Deterministic(t *testing.T) {
	before, after := "a\nb\nc\nd", "a\nq\nc\nr"
	first, err := Compute(before, after)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	second, err := Compute(before, after)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("line %d differs between runs: %+v vs %+v", i, first[i], second[i])
		}
	}
}

func TestCompute_RejectsBinary(t *testing.T) {
	if _, err := Compute("a\x00b", "a"); !errors.Is(err, ErrDiffUnavailable) {
		t.Errorf("NUL bytes: err = %v, want ErrDiffUnavailable", err)
	}
	if _, err := Compute("ok", string([]byte{0xff, 0xfe})); !errors.Is(err, ErrDiffUnavailable) {
		t.Errorf("invalid UTF-8: err = %v, want ErrDiffUnavailable", err)
	}
}

func TestSplitLines(t *testing.T) {
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"a\n", 1},
		{"a\nb", 2},
		{"a\nb\n", 2},
		{"a\n\n", 2},
	}
	for _, tc := range cases {
		if got := len(splitLines(tc.input)); got != tc.want {
			t.Errorf("splitLines(%q) = %d lines, want %d", tc.input, got, tc.want)
		}
	}
}
