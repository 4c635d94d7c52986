package validation

import (
	"math"
	"testing"
)

func TestExtractNumeric(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  float64
		ok    bool
	}{
		{"plain integer", "1234", 1234, true},
		{"plain decimal", "12.5", 12.5, true},
		{"negative", "-42.5", -42.5, true},
		{"thousands separators", "1,234,567", 1234567, true},
		{"dollar amount", "$1,234.56", 1234.56, true},
		{"euro amount", "€500", 500, true},
		{"percentage", "15%", 0.15, true},
		{"decimal percentage", "3.5%", 0.035, true},
		{"currency percentage", "$15%", 0.15, true},
		{"thousands suffix", "100K", 100000, true},
		{"currency thousands", "¥100K", 100000, true},
		{"millions suffix", "$5.2M", 5200000, true},
		{"lowercase millions", "5.2m", 5200000, true},
		{"billions suffix", "1.5B", 1500000000, true},
		{"trillions suffix", "2T", 2000000000000, true},
		{"embedded number", "Revenue: 450", 450, true},
		{"not a number", "not a number", 0, false},
		{"empty", "", 0, false},
		{"whitespace only", "   ", 0, false},
		{"bare currency", "$", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractNumeric(tt.input)
			if ok != tt.ok {
				t.Fatalf("ExtractNumeric(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			}
			if ok && math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ExtractNumeric(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestDiscrepancy(t *testing.T) {
	tests := []struct {
		name string
		a, b float64
		want float64
	}{
		{"identical", 100, 100, 0},
		{"both zero", 0, 0, 0},
		{"half apart", 100, 200, 0.5},
		{"order independent", 200, 100, 0.5},
		{"one zero", 0, 50, 1.0},
		{"negative values", -100, 100, 2.0},
		{"quarter apart", 100, 125, 0.2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Discrepancy(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Discrepancy(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}
