package money

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

// =============================================================================
// ROUNDING TESTS - Half away from zero at both scales
// =============================================================================

func TestQ7Rounding(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"Exact passthrough", "1.2345678", "1.2345678"},
		{"Round half up", "0.00000005", "0.0000001"},
		{"Round half away negative", "-0.00000005", "-0.0000001"},
		{"Truncation below half", "0.00000004", "0.0000000"},
		{"Carries above half", "0.00000006", "0.0000001"},
		{"Integer unchanged", "100", "100.0000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringQ7(Q7(dec(t, tt.in)))
			if got != tt.expected {
				t.Errorf("Q7(%s) = %s, want %s", tt.in, got, tt.expected)
			}
		})
	}
}

func TestQ2Rounding(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"Half rounds up", "2.005", "2.01"},
		{"Half rounds away below zero", "-2.005", "-2.01"},
		{"Plain truncation", "2.004", "2.00"},
		{"Trailing zeros kept", "220", "220.00"},
		{"Sub-cent up", "0.995", "1.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringQ2(dec(t, tt.in))
			if got != tt.expected {
				t.Errorf("Q2(%s) = %s, want %s", tt.in, got, tt.expected)
			}
		})
	}
}

func TestMulQ7RoundsOnce(t *testing.T) {
	// 0.1 * 0.0000003 = 0.00000003, which rounds to one ulp at Q7.
	got := MulQ7(dec(t, "0.1"), dec(t, "0.0000003"))
	if got.String() != "0" {
		t.Errorf("MulQ7 = %s, want 0", got)
	}

	got = MulQ7(dec(t, "0.1"), dec(t, "0.0000005"))
	if !got.Equal(Ulp7()) {
		t.Errorf("MulQ7 half case = %s, want %s", got, Ulp7())
	}
}

func TestPercent(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		value    string
		expected string
	}{
		{"Ten percent discount", "250.0000000", "-10", "-25.0000000"},
		{"Fifteen percent", "200", "-15", "-30.0000000"},
		{"Fraction of a percent", "100", "0.5", "0.5000000"},
		{"Zero base", "0", "50", "0.0000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StringQ7(Percent(dec(t, tt.base), dec(t, tt.value)))
			if got != tt.expected {
				t.Errorf("Percent(%s, %s) = %s, want %s", tt.base, tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseDecimal(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
		wantErr  bool
	}{
		{"Plain", "12.34", "12.34", false},
		{"Negative zero collapses", "-0", "0", false},
		{"Exponent zero collapses", "0e-3", "0", false},
		{"Exponent expands", "1.5e2", "150", false},
		{"Garbage", "12,34", "", true},
		{"Empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDecimal(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseDecimal(%q) expected error, got %s", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDecimal(%q) failed: %v", tt.in, err)
			}
			if got.String() != tt.expected {
				t.Errorf("ParseDecimal(%q) = %s, want %s", tt.in, got, tt.expected)
			}
		})
	}
}
