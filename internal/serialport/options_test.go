package serialport

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalise_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	want := PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalise() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalise_ExplicitValues(t *testing.T) {
	opts := PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "E"}
	got, err := opts.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	if got != opts {
		t.Errorf("Normalise() = %+v, want unchanged %+v", got, opts)
	}
}

func TestPortOptions_Normalise_NegativeBaudRate(t *testing.T) {
	got, err := PortOptions{BaudRate: -5}.Normalise()
	if err != nil {
		t.Fatalf("Normalise() error = %v", err)
	}
	if got.BaudRate != DefaultBaudRate {
		t.Errorf("negative baud rate should default to %d, got %d", DefaultBaudRate, got.BaudRate)
	}
}

func TestPortOptions_Normalise_InvalidBaudRate(t *testing.T) {
	if _, err := (PortOptions{BaudRate: 12345}).Normalise(); err == nil {
		t.Error("expected error for invalid baud rate, got nil")
	}
}

func TestPortOptions_Normalise_InvalidFields(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits too low", PortOptions{DataBits: 4}},
		{"data bits too high", PortOptions{DataBits: 9}},
		{"stop bits 3", PortOptions{StopBits: 3}},
		{"parity X", PortOptions{Parity: "X"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.opts.Normalise(); err == nil {
				t.Errorf("expected error for %+v, got nil", tc.opts)
			}
		})
	}
}

func TestPortOptions_Normalise_ParityVariations(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "N"},
		{"n", "N"},
		{"NONE", "N"},
		{"e", "E"},
		{"even", "E"},
		{"O", "O"},
		{"odd", "O"},
		{"  N  ", "N"},
	}
	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := PortOptions{Parity: tc.input}.Normalise()
			if err != nil {
				t.Fatalf("Normalise() with parity %q: unexpected error %v", tc.input, err)
			}
			if got.Parity != tc.want {
				t.Errorf("Normalise() with parity %q: got %q, want %q", tc.input, got.Parity, tc.want)
			}
		})
	}
}

func TestToSerialMode(t *testing.T) {
	mode := toSerialMode(DefaultSerialPortMode())
	if mode.BaudRate != 115200 || mode.DataBits != 8 {
		t.Errorf("toSerialMode() = %+v, want 115200 8 data bits", mode)
	}
	if mode.StopBits != serial.OneStopBit {
		t.Errorf("StopBits = %v, want OneStopBit", mode.StopBits)
	}
	if mode.Parity != serial.NoParity {
		t.Errorf("Parity = %v, want NoParity", mode.Parity)
	}

	odd, err := PortOptions{StopBits: 2, Parity: "O"}.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	mode = toSerialMode(odd)
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.OddParity {
		t.Errorf("Parity = %v, want OddParity", mode.Parity)
	}

	if toSerialMode(&SerialPortMode{Parity: EvenParity}).Parity != serial.EvenParity {
		t.Error("EvenParity not mapped")
	}
}

func TestPortOptions_Mode(t *testing.T) {
	mode, err := PortOptions{Parity: "E", StopBits: 2, BaudRate: 57600}.Mode()
	if err != nil {
		t.Fatalf("Mode() error = %v", err)
	}
	want := SerialPortMode{BaudRate: 57600, DataBits: 8, Parity: EvenParity, StopBits: TwoStopBits}
	if *mode != want {
		t.Errorf("Mode() = %+v, want %+v", *mode, want)
	}
}
