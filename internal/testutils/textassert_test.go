package testutils

import (
	"fmt"
	"strings"
	"testing"
)

type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter_DefaultOptions(t *testing.T) {
	ta := NewTextAsserter(t)

	if !ta.options.IgnoreTrailingWhitespace {
		t.Error("Expected IgnoreTrailingWhitespace to be true by default")
	}
	if !ta.options.TrimSpace {
		t.Error("Expected TrimSpace to be true by default")
	}
	if ta.options.IgnoreEmptyLines || ta.options.EnableColors {
		t.Error("Expected IgnoreEmptyLines and EnableColors to be false by default")
	}
}

func TestTextAsserter_Normalization(t *testing.T) {
	ta := NewTextAsserter(t)
	ta.Assert("\nID   NAME  \nA    HC-08\t\n\n", "ID   NAME\nA    HC-08")

	t.Run("empty lines", func(t *testing.T) {
		NewTextAsserter(t, WithIgnoreEmptyLines(true)).Assert("a\n\nb", "a\nb")
	})
}

func TestTextAsserter_ReportsUnifiedDiff(t *testing.T) {
	rec := &recordingT{}
	ok := NewTextAsserter(rec).Assert("line1\nchanged\nline3", "line1\nline2\nline3")

	if ok {
		t.Fatal("Expected assertion to fail")
	}
	if len(rec.failures) != 1 {
		t.Fatalf("Expected one failure, got %d", len(rec.failures))
	}
	for _, want := range []string{"--- expected", "+++ actual", "-line2", "+changed"} {
		if !strings.Contains(rec.failures[0], want) {
			t.Errorf("Expected diff to contain %q, got:\n%s", want, rec.failures[0])
		}
	}
}

func TestTextAsserter_Colors(t *testing.T) {
	ta := NewTextAsserter(t, WithEnableColors(true))

	diff := ta.Diff("b", "a")
	if !strings.Contains(diff, "\x1b[") {
		t.Errorf("Expected ANSI color codes in diff, got:\n%s", diff)
	}
}
