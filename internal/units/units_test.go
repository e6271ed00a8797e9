package units

import (
	"math"
	"testing"
)

func TestSpeed_Convert(t *testing.T) {
	tests := []struct {
		name     string
		mps      float64
		unit     Speed
		expected float64
	}{
		{"10 m/s to mph", 10.0, MPH, 22.3694},
		{"10 m/s to kmph", 10.0, KMPH, 36.0},
		{"10 m/s to mps", 10.0, MPS, 10.0},
		{"unknown units default to mps", 10.0, Speed("furlongs"), 10.0},
		{"receding 1.2 m/s to kmph", -1.2, KMPH, -4.32},
		{"highway speed 31.29 m/s to mph", 31.29, MPH, 70.0},
		{"walking speed 1.4 m/s to mph", 1.4, MPH, 3.13172},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.unit.Convert(tt.mps)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("%s.Convert(%f) = %f, want %f", tt.unit, tt.mps, result, tt.expected)
			}
		})
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		input   string
		want    Speed
		wantErr bool
	}{
		{"", MPS, false},
		{"mps", MPS, false},
		{"M/S", MPS, false},
		{"mph", MPH, false},
		{" MPH ", MPH, false},
		{"kmph", KMPH, false},
		{"kph", KMPH, false},
		{"km/h", KMPH, false},
		{"knots", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseSpeed(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSpeed(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseSpeed(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSpeed_Symbol(t *testing.T) {
	for unit, want := range map[Speed]string{MPS: "m/s", MPH: "mph", KMPH: "km/h", "": "m/s"} {
		if got := unit.Symbol(); got != want {
			t.Errorf("%q.Symbol() = %q, want %q", unit, got, want)
		}
	}
}
