package serialport

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/urad"
)

func init() {
	monitoring.SetLogger(nil)
}

func TestTransport_ReadN_Full(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{1, 2, 3, 4, 5})
	tr := NewTransport(port)

	got, err := tr.ReadN(3, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadN() error = %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("ReadN() = %v, want [1 2 3]", got)
	}
	if port.ReadTimeout <= 0 || port.ReadTimeout > 50*time.Millisecond {
		t.Errorf("ReadTimeout = %v, want within (0, 50ms]", port.ReadTimeout)
	}

	// the remainder stays queued for the next read
	got, _ = tr.ReadN(2, 50*time.Millisecond)
	if !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("second ReadN() = %v, want [4 5]", got)
	}
}

func TestTransport_ReadN_Chunked(t *testing.T) {
	port := NewTestableSerialPort()
	port.MaxReadChunk = 4
	data := make([]byte, urad.ResultPacketLen)
	for i := range data {
		data[i] = byte(i)
	}
	port.AddReadData(data)
	tr := NewTransport(port)

	got, err := tr.ReadN(len(data), time.Second)
	if err != nil {
		t.Fatalf("ReadN() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("ReadN() returned %d bytes, want %d", len(got), len(data))
	}
	if port.ReadCalls < len(data)/4 {
		t.Errorf("ReadCalls = %d, want at least %d", port.ReadCalls, len(data)/4)
	}
}

func TestTransport_ReadN_ShortOnTimeout(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{0xaa})
	tr := NewTransport(port)

	got, err := tr.ReadN(4, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("short read should not be an error, got %v", err)
	}
	if !bytes.Equal(got, []byte{0xaa}) {
		t.Errorf("ReadN() = %v, want [0xaa]", got)
	}

	got, err = tr.ReadN(1, 20*time.Millisecond)
	if err != nil || len(got) != 0 {
		t.Errorf("ReadN() on empty port = %v, %v; want empty, nil", got, err)
	}
}

func TestTransport_ReadN_PortError(t *testing.T) {
	port := NewTestableSerialPort()
	port.ReadError = errors.New("device disconnected")
	tr := NewTransport(port)

	if _, err := tr.ReadN(1, 20*time.Millisecond); err == nil {
		t.Error("expected port error to be returned")
	}
}

func TestTransport_WriteAndClose(t *testing.T) {
	port := NewTestableSerialPort()
	tr := NewTransport(port)

	n, err := tr.Write([]byte{16})
	if err != nil || n != 1 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	if !bytes.Equal(port.GetWrittenData(), []byte{16}) {
		t.Errorf("written = %v, want [16]", port.GetWrittenData())
	}

	port.CloseError = errors.New("close failed")
	if err := tr.Close(); err == nil {
		t.Error("expected close error")
	}
	if !port.Closed {
		t.Error("port should be closed")
	}
	if _, err := tr.Write([]byte{17}); err == nil {
		t.Error("expected write on closed port to fail")
	}
}

// ackingDevice answers every complete command with an ACK and every detect
// with an empty result block.
func ackingDevice() func([]byte) []byte {
	awaitingFrame := false
	return func(p []byte) []byte {
		if awaitingFrame {
			awaitingFrame = false
			return []byte{urad.Ack}
		}
		switch urad.Opcode(p[0]) {
		case urad.OpLoadConfig:
			awaitingFrame = true
			return nil
		case urad.OpDetect:
			return urad.AppendResultPacket(nil, urad.DetectionResult{
				SNR:      [urad.NtarMax]float32{9.5},
				Distance: [urad.NtarMax]float32{3.25},
			})
		default:
			return []byte{urad.Ack}
		}
	}
}

func TestTransport_DrivesRadarSession(t *testing.T) {
	port := NewTestableSerialPort()
	port.MaxReadChunk = 16
	port.Respond = ackingDevice()
	tr := NewTransport(port)

	s, err := urad.Open(tr, urad.WithSettleDelay(0))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	cfg, err := urad.BuildConfig(urad.Params{
		Mode: 2, F0: 5, Bandwidth: 240, SampleCount: 200, TargetCount: 1,
		RangeOrVelocityMax: 100, MovementThreshold: 1, AlphaDB: 10,
		Report: urad.Report{Distance: true, SNR: true},
	})
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	if err := s.Configure(cfg); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	det, err := s.Detect()
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if det.Result.TargetsDetected != 1 || det.Result.Distance[0] != 3.25 {
		t.Errorf("Detect() = %+v, want one target at 3.25 m", det.Result)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	frame := cfg.Encode()
	want := append([]byte{16, 14}, frame[:]...)
	want = append(want, 15, 17)
	if !bytes.Equal(port.GetWrittenData(), want) {
		t.Errorf("written = % x, want % x", port.GetWrittenData(), want)
	}
}

func TestTransport_DiscardInput(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte{1, 2, 3})
	tr := NewTransport(port)

	if err := tr.DiscardInput(); err != nil {
		t.Fatalf("DiscardInput() error = %v", err)
	}
	if port.ResetCalls != 1 {
		t.Errorf("ResetCalls = %d, want 1", port.ResetCalls)
	}
	got, err := tr.ReadN(3, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("ReadN() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ReadN() after discard = %v, want nothing", got)
	}
}

func TestTransport_PartialPacketThenFullPacket(t *testing.T) {
	first := urad.AppendResultPacket(nil, urad.DetectionResult{
		Distance: [urad.NtarMax]float32{1, 2, 3},
		Velocity: [urad.NtarMax]float32{-1, 0.5, 2},
		SNR:      [urad.NtarMax]float32{6, 7, 8},
	})
	second := urad.AppendResultPacket(nil, urad.DetectionResult{
		Distance: [urad.NtarMax]float32{4, 5, 6},
		Velocity: [urad.NtarMax]float32{1.5, -2, 0.25},
		SNR:      [urad.NtarMax]float32{12, 11, 10},
	})

	port := NewTestableSerialPort()
	acking := ackingDevice()
	detects := 0
	port.Respond = func(p []byte) []byte {
		if len(p) == 1 && urad.Opcode(p[0]) == urad.OpDetect {
			detects++
			if detects == 1 {
				return first[:30]
			}
			return second
		}
		return acking(p)
	}
	tr := NewTransport(port)

	s, err := urad.Open(tr, urad.WithSettleDelay(0), urad.WithReadTimeout(20*time.Millisecond))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cfg, err := urad.BuildConfig(urad.Params{
		Mode: 3, F0: 5, Bandwidth: 240, SampleCount: 200, TargetCount: 3,
		RangeOrVelocityMax: 100, MovementThreshold: 1, AlphaDB: 10,
		Report: urad.Report{Distance: true, Velocity: true, SNR: true},
	})
	if err != nil {
		t.Fatalf("BuildConfig() error = %v", err)
	}
	if err := s.Configure(cfg); err != nil {
		t.Fatalf("Configure() error = %v", err)
	}

	if _, err := s.Detect(); !errors.Is(err, urad.ErrIncompletePacket) {
		t.Fatalf("first Detect() error = %v, want incomplete packet", err)
	}

	// the rest of the first packet arrives after the read gave up
	port.AddReadData(first[30:])

	det, err := s.Detect()
	if err != nil {
		t.Fatalf("second Detect() error = %v", err)
	}
	wantDistance := [urad.NtarMax]float32{4, 5, 6}
	wantVelocity := [urad.NtarMax]float32{1.5, -2, 0.25}
	if det.Result.Distance != wantDistance || det.Result.Velocity != wantVelocity {
		t.Errorf("second Detect() = %+v, want the second packet", det.Result)
	}
	if det.Result.TargetsDetected != 3 {
		t.Errorf("TargetsDetected = %d, want 3", det.Result.TargetsDetected)
	}
	if port.ReadBuffer.Len() != 0 {
		t.Errorf("%d stray bytes left in the read buffer", port.ReadBuffer.Len())
	}
}
