// Package uradsim simulates a uRAD module on the far side of a serial link.
// A Device answers the same byte protocol as the radar firmware, so the
// session, transport and poller can be exercised without hardware.
package uradsim

import (
	"bytes"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/urad"
)

// ErrClosed is returned by reads and writes after Close.
var ErrClosed = errors.New("uradsim: device closed")

// Target is one reflector in the simulated scene.
type Target struct {
	Distance float64 // metres
	Velocity float64 // metres per second, positive is receding
	SNR      float64 // dB
}

// Device is an in-memory uRAD module. It implements the serial port
// interfaces, answering commands as soon as they are written.
type Device struct {
	mu sync.Mutex

	// Targets is the scene. Targets move by Velocity*Step on every detection
	// and wrap inside the configured range.
	Targets []Target
	// Step is the simulated time between detections.
	Step time.Duration
	// Noise is the standard deviation of the jitter added to SNR and raw
	// samples.
	Noise float64

	// NakConfig rejects the next NakConfig configuration frames.
	NakConfig int
	// NakPower rejects the next NakPower turn on or turn off commands.
	NakPower int
	// Truncate drops this many bytes from the end of the next detection
	// response.
	Truncate int

	rng         *rand.Rand
	out         bytes.Buffer
	frame       []byte
	loading     bool
	on          bool
	cfg         urad.RadarConfig
	configured  bool
	closed      bool
	detections  int
	readTimeout time.Duration
}

// NewDevice returns a powered-off device with two targets in view.
func NewDevice(seed int64) *Device {
	return &Device{
		Targets: []Target{
			{Distance: 4.5, Velocity: -1.2, SNR: 18},
			{Distance: 11, Velocity: 0.6, SNR: 9},
		},
		Step:  100 * time.Millisecond,
		Noise: 0.5,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

// Write consumes command bytes. A configuration frame may arrive in the same
// write as its opcode or in a later one.
func (d *Device) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	for _, b := range p {
		d.consume(b)
	}
	return len(p), nil
}

func (d *Device) consume(b byte) {
	if d.loading {
		d.frame = append(d.frame, b)
		if len(d.frame) == urad.FrameLen {
			d.loading = false
			d.loadConfig(urad.ConfigFrame(d.frame))
			d.frame = d.frame[:0]
		}
		return
	}

	switch urad.Opcode(b) {
	case urad.OpTurnOn:
		if d.nakPower() {
			return
		}
		d.on = true
		d.out.WriteByte(urad.Ack)
	case urad.OpTurnOff:
		if d.nakPower() {
			return
		}
		d.on = false
		d.configured = false
		d.out.WriteByte(urad.Ack)
	case urad.OpLoadConfig:
		d.loading = true
	case urad.OpDetect:
		d.detect()
	default:
		monitoring.Debugf("uradsim: ignoring byte 0x%02x", b)
	}
}

func (d *Device) nakPower() bool {
	if d.NakPower > 0 {
		d.NakPower--
		d.out.WriteByte(0x00)
		return true
	}
	return false
}

func (d *Device) loadConfig(f urad.ConfigFrame) {
	cfg, err := urad.DecodeFrame(f)
	if err != nil || !d.on || d.NakConfig > 0 {
		if d.NakConfig > 0 {
			d.NakConfig--
		}
		monitoring.Debugf("uradsim: rejecting frame % x: on=%v err=%v", f[:], d.on, err)
		d.out.WriteByte(0x00)
		return
	}
	d.cfg = cfg
	d.configured = true
	d.out.WriteByte(urad.Ack)
}

// detect queues the blocks selected by the loaded configuration. An
// unconfigured or powered-off device stays silent.
func (d *Device) detect() {
	if !d.on || !d.configured {
		return
	}
	d.detections++
	d.advance()

	var resp []byte
	r := d.cfg.Report
	if r.Distance || r.Velocity || r.SNR || r.Movement {
		resp = urad.AppendResultPacket(resp, d.result())
	}
	if r.I || r.Q {
		layout := urad.NewSampleLayout(d.cfg.Mode, d.cfg.SampleCount)
		if r.I {
			resp = append(resp, layout.Pack(d.samples(layout, math.Cos))...)
		}
		if r.Q {
			resp = append(resp, layout.Pack(d.samples(layout, math.Sin))...)
		}
	}

	if d.Truncate > 0 {
		resp = resp[:max(len(resp)-d.Truncate, 0)]
		d.Truncate = 0
	}
	d.out.Write(resp)
}

func (d *Device) advance() {
	span := float64(d.cfg.RangeOrVelocityMax)
	if span <= 1 {
		span = 1
	}
	dt := d.Step.Seconds()
	for i := range d.Targets {
		t := &d.Targets[i]
		t.Distance += t.Velocity * dt
		if t.Distance > span {
			t.Distance = 1
		} else if t.Distance < 1 {
			t.Distance = span
		}
	}
}

// result builds the result block for the current scene. CW mode measures
// velocity only.
func (d *Device) result() urad.DetectionResult {
	var r urad.DetectionResult
	for i, t := range d.Targets {
		if i >= urad.NtarMax {
			break
		}
		if d.cfg.Mode != urad.ModeCW {
			r.Distance[i] = float32(t.Distance)
		}
		r.Velocity[i] = float32(t.Velocity)
		r.SNR[i] = float32(max(t.SNR+d.rng.NormFloat64()*d.Noise, 0.1))
		if math.Abs(t.Velocity) > 0.2 {
			r.Movement = true
		}
	}
	return r
}

// samples synthesises one 12-bit channel: a tone per target centred on
// mid-scale, plus noise.
func (d *Device) samples(layout urad.SampleLayout, phase func(float64) float64) []uint16 {
	out := make([]uint16, 0, layout.Samples())
	for _, n := range layout.Segments {
		for k := 0; k < n; k++ {
			v := 2048.0
			for i, t := range d.Targets {
				freq := float64(i+1) * t.Distance / float64(max(d.cfg.RangeOrVelocityMax, 1))
				v += 400 * phase(2*math.Pi*freq*float64(k))
			}
			v += d.rng.NormFloat64() * d.Noise * 10
			out = append(out, uint16(min(max(v, 0), 4095)))
		}
	}
	return out
}

// Read returns queued response bytes. Like a serial port whose read timeout
// expired, it returns 0, nil when nothing is queued.
func (d *Device) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrClosed
	}
	if d.out.Len() == 0 {
		return 0, nil
	}
	return d.out.Read(p)
}

// SetReadTimeout records the timeout. Reads never block.
func (d *Device) SetReadTimeout(timeout time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readTimeout = timeout
	return nil
}

// ResetInputBuffer drops queued response bytes.
func (d *Device) ResetInputBuffer() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out.Reset()
	return nil
}

// Close closes the device. Further reads and writes fail.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Config returns the configuration loaded by the last accepted frame.
func (d *Device) Config() (urad.RadarConfig, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg, d.configured
}

// On reports whether the device is powered on.
func (d *Device) On() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.on
}

// Detections counts detection requests answered since NewDevice.
func (d *Device) Detections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detections
}

// Pending returns the number of response bytes not yet read.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.out.Len()
}
