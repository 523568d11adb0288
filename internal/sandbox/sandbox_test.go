package sandbox_test

import (
	"strings"
	"testing"

	"github.com/pcastell/mend/internal/sandbox"
)

func TestExtractTrace(t *testing.T) {
	trace := "Traceback (most recent call last):\n" +
		"  File \"main.py\", line 2, in <module>\n" +
		"ZeroDivisionError: division by zero"

	cases := []struct {
		name   string
		stderr string
		want   string
	}{
		{"no trace", "some warning\n", ""},
		{"empty", "", ""},
		{"bare trace", trace, trace},
		{"trace after noise", "DeprecationWarning: thing\n" + trace + "\n", trace},
		{
			"last trace wins",
			"Traceback (most recent call last):\nKeyError: 'old'\n\n" + trace,
			trace,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := sandbox.ExtractTrace(tc.stderr)
			if got != tc.want {
				t.Errorf("ExtractTrace mismatch:\n got %q\nwant %q", got, tc.want)
			}
		})
	}
}

func TestExtractTraceTrimsTrailingWhitespace(t *testing.T) {
	got := sandbox.ExtractTrace("Traceback (most recent call last):\nValueError: x\n\n")
	if strings.HasSuffix(got, "\n") {
		t.Errorf("trace should be trimmed, got %q", got)
	}
}
