package llm

import "testing"

func TestStripReasoning(t *testing.T) {
	tests := map[string]struct{ in, want string }{
		"plain":        {"  گندم نومبر میں بوئیں۔ \n", "گندم نومبر میں بوئیں۔"},
		"leading":      {"<think>the user asks about wheat\nsowing</think>\nSow in November.", "Sow in November."},
		"two blocks":   {"<think>a</think>Sow<think>b</think> early.", "Sow early."},
		"unterminated": {"Sow in November.<think>I should also mention", "Sow in November."},
		"only thought": {"<think>hmm</think>", ""},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := StripReasoning(tt.in); got != tt.want {
				t.Errorf("StripReasoning(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
