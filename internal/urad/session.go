package urad

import (
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/timeutil"
)

const (
	// DefaultSettleDelay is the pause the firmware needs between a command
	// and its response.
	DefaultSettleDelay = 5 * time.Millisecond
	// DefaultReadTimeout bounds every response read.
	DefaultReadTimeout = 100 * time.Millisecond
)

// Session owns a Transport for the lifetime of one radar power cycle. It is
// not safe for concurrent use: the protocol allows one command in flight.
type Session struct {
	t           Transport
	clock       timeutil.Clock
	readTimeout time.Duration
	settle      time.Duration
	id          uuid.UUID

	cfg        RadarConfig
	lastFrame  ConfigFrame
	configured bool
	closed     bool
}

// Option customises a Session.
type Option func(*Session)

// WithClock sets the clock used for settle delays.
func WithClock(c timeutil.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithReadTimeout sets how long each response read may block.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithSettleDelay overrides the settle delay after turn on, configure and
// detect. Values below DefaultSettleDelay are only useful against simulated
// devices.
func WithSettleDelay(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.settle = d
		}
	}
}

// Open turns the radar on and returns a session once the module has
// acknowledged. An *AckError is returned if the acknowledgement is missing
// or wrong; the caller may retry Open.
func Open(t Transport, opts ...Option) (*Session, error) {
	s := &Session{
		t:           t,
		clock:       timeutil.RealClock{},
		readTimeout: DefaultReadTimeout,
		settle:      DefaultSettleDelay,
		id:          uuid.New(),
	}
	for _, opt := range opts {
		opt(s)
	}

	got, err := s.command(OpTurnOn, nil, true)
	if err != nil {
		return nil, err
	}
	if !isAck(got) {
		return nil, &AckError{Op: OpTurnOn, Got: got}
	}
	monitoring.Debugf("urad session %s: radar on", s.id)
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() uuid.UUID { return s.id }

// Config returns the configuration most recently acknowledged by the radar.
func (s *Session) Config() (RadarConfig, bool) { return s.cfg, s.configured }

// LastFrame returns the last acknowledged frame with the send marker bit
// cleared. The checksum byte still reflects the frame as transmitted.
func (s *Session) LastFrame() ConfigFrame { return s.lastFrame }

// Configure sends cfg to the radar. A *ConfigError is returned when the radar
// does not acknowledge the frame; the previously accepted configuration, if
// any, stays in effect for Detect.
func (s *Session) Configure(cfg RadarConfig) error {
	if s.closed {
		return ErrSessionClosed
	}

	frame := cfg.Encode()
	got, err := s.command(OpLoadConfig, frame[:], true)
	if err != nil {
		return err
	}
	if !isAck(got) {
		return &ConfigError{Frame: frame, Got: got}
	}

	frame[5] &^= sendMarker
	s.cfg = cfg
	s.lastFrame = frame
	s.configured = true
	monitoring.Debugf("urad session %s: configured %s", s.id, cfg)
	return nil
}

// Close turns the radar off. The session stays usable if the radar does not
// acknowledge, so Close may be retried.
func (s *Session) Close() error {
	if s.closed {
		return ErrSessionClosed
	}

	got, err := s.command(OpTurnOff, nil, false)
	if err != nil {
		return err
	}
	if !isAck(got) {
		return &AckError{Op: OpTurnOff, Got: got}
	}
	s.closed = true
	monitoring.Debugf("urad session %s: radar off", s.id)
	return nil
}

// command writes op, then payload if any, optionally waits for the settle
// delay, and reads the single acknowledgement byte.
func (s *Session) command(op Opcode, payload []byte, settle bool) ([]byte, error) {
	if err := s.send(op); err != nil {
		return nil, err
	}
	if len(payload) > 0 {
		if err := s.write(op.String(), payload); err != nil {
			return nil, err
		}
	}
	if settle {
		s.clock.Sleep(s.settle)
	}
	return s.read(op.String(), 1)
}

// send discards stale input, when the transport supports it, and writes the
// opcode byte.
func (s *Session) send(op Opcode) error {
	if d, ok := s.t.(InputDiscarder); ok {
		if err := d.DiscardInput(); err != nil {
			return &TransportError{Op: "discard input before " + op.String(), Err: err}
		}
	}
	return s.write(op.String(), []byte{byte(op)})
}

func (s *Session) write(op string, p []byte) error {
	monitoring.Debugf("urad session %s: tx % x", s.id, p)
	n, err := s.t.Write(p)
	if err != nil {
		return &TransportError{Op: "write " + op, Err: err}
	}
	if n != len(p) {
		return &TransportError{Op: "write " + op, Err: io.ErrShortWrite}
	}
	return nil
}

func (s *Session) read(op string, n int) ([]byte, error) {
	buf, err := s.t.ReadN(n, s.readTimeout)
	if err != nil {
		return nil, &TransportError{Op: "read " + op, Err: err}
	}
	monitoring.Debugf("urad session %s: rx %d/%d bytes", s.id, len(buf), n)
	return buf, nil
}

func isAck(got []byte) bool {
	return len(got) == 1 && got[0] == Ack
}
