package similarity

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		min  float64
		max  float64
	}{
		{"Naruto", "naruto", 1, 1},
		{"Steins;Gate", "Steins Gate", 1, 1},
		{"Naruto", "Naruto Shippuden", 0.3, 0.5},
		{"Bleach", "Monster", 0, 0.3},
		{"", "", 1, 1},
	}
	for _, tc := range tests {
		got := Similarity(tc.a, tc.b)
		if got < tc.min || got > tc.max {
			t.Errorf("Similarity(%q, %q) = %.2f, expected between %.2f and %.2f", tc.a, tc.b, got, tc.min, tc.max)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  Re:Zero -- Starting   Life "); got != "re zero starting life" {
		t.Fatalf("unexpected normalization %q", got)
	}
}
