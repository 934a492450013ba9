package validation

import "testing"

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		phone string
		want  bool
	}{
		{"08030000000", true},
		{"07061234567", true},
		{"2348030000000", true},
		{"8030000000", false},     // missing leading zero
		{"0803000000", false},     // too short
		{"080300000001", false},   // too long
		{"0803000000a", false},    // non-digit
		{"+2348030000000", false}, // plus sign not accepted
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidPhone(tt.phone); got != tt.want {
			t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.want)
		}
	}
}

func TestIsValidSmartcard(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"1234567890", true},
		{"123456789012", true},
		{"123456789", false},
		{"1234567890123", false},
		{"12345abcde", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidSmartcard(tt.number); got != tt.want {
			t.Fatalf("IsValidSmartcard(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}

func TestIsValidMeterNumber(t *testing.T) {
	tests := []struct {
		number string
		want   bool
	}{
		{"123456", true},
		{"1234567890123", true},
		{"12345", false},
		{"12345678901234", false},
		{"12 3456", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := IsValidMeterNumber(tt.number); got != tt.want {
			t.Fatalf("IsValidMeterNumber(%q) = %v, want %v", tt.number, got, tt.want)
		}
	}
}
