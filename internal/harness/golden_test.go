package harness

import "testing"

// TestAssertGolden exercises the goldie wrapper itself against a small,
// fully hand-computed Result so the comparison's exact bytes are known in
// advance, independent of any scenario's actual runtime trace.
func TestAssertGolden(t *testing.T) {
	result := &Result{
		Pass: true,
		Trace: []TraceEvent{
			{Step: 0, Action: "mutate", Detail: map[string]any{"client": "a", "lsn": 1, "tag": "InitSchema"}},
		},
	}
	AssertGolden(t, "sample_trace", result)
}
