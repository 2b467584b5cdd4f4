package utils

import (
	"testing"
)

func TestGeneratePIN(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pin, err := GeneratePIN()
		if err != nil {
			t.Fatalf("GeneratePIN() failed: %v", err)
		}
		if !ValidatePIN(pin) {
			t.Fatalf("generated code %q is not a valid verification code", pin)
		}
		if pin < "100000" {
			t.Fatalf("generated code %q has a leading zero", pin)
		}
		seen[pin] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected distinct verification codes, got %d unique", len(seen))
	}
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"123456", true},
		{"000000", true},
		{"12345", false},
		{"1234567", false},
		{"12345a", false},
		{"", false},
		{" 12345", false},
		{"١٢٣٤٥٦", false},
	}

	for _, tc := range tests {
		if got := ValidatePIN(tc.code); got != tc.want {
			t.Errorf("ValidatePIN(%q) = %v, want %v", tc.code, got, tc.want)
		}
	}
}
