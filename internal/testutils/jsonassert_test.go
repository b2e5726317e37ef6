package testutils

import (
	"strings"
	"testing"
)

func TestJSONAsserter_Equivalent(t *testing.T) {
	ja := NewJSONAsserter(t)

	ja.Assert(`{"id":"A","rssi":-40}`, `{ "rssi": -40, "id": "A" }`)
	ja.Assert(`[{"id":"A"},{"id":"B"}]`, `[{"id":"A"},{"id":"B"}]`)
}

func TestJSONAsserter_Options(t *testing.T) {
	t.Run("ignore array order", func(t *testing.T) {
		NewJSONAsserter(t, WithIgnoreArrayOrder(true)).
			Assert(`[{"id":"B"},{"id":"A"}]`, `[{"id":"A"},{"id":"B"}]`)
	})

	t.Run("ignored fields", func(t *testing.T) {
		NewJSONAsserter(t, WithIgnoredFields("rssi")).
			Assert(`[{"id":"A","rssi":-40}]`, `[{"id":"A","rssi":-70}]`)
	})
}

func TestJSONAsserter_ReportsDiff(t *testing.T) {
	rec := &recordingT{}
	ok := NewJSONAsserter(rec).Assert(`[{"id":"A"},{"id":"C"}]`, `[{"id":"A"},{"id":"B"}]`)

	if ok {
		t.Fatal("Expected assertion to fail")
	}
	if len(rec.failures) != 1 || !strings.Contains(rec.failures[0], `"B"`) {
		t.Errorf("Expected diff mentioning the expected value, got: %v", rec.failures)
	}
}

func TestJSONAsserter_InvalidInput(t *testing.T) {
	diff := NewJSONAsserter(t).Diff(`{`, `{}`)
	if !strings.HasPrefix(diff, "invalid actual JSON") {
		t.Errorf("Expected invalid actual JSON report, got %q", diff)
	}
}
