package urad

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/urad/internal/monitoring"
	"github.com/banshee-data/urad/internal/timeutil"
)

// fakeTransport serves queued response bytes as a stream and records every
// write.
type fakeTransport struct {
	writes   [][]byte
	pending  []byte
	readErr  error
	writeErr error
	shortBy  int
	timeouts []time.Duration
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.writes = append(f.writes, append([]byte(nil), p...))
	return len(p) - f.shortBy, nil
}

func (f *fakeTransport) ReadN(n int, timeout time.Duration) ([]byte, error) {
	f.timeouts = append(f.timeouts, timeout)
	if f.readErr != nil {
		return nil, f.readErr
	}
	n = min(n, len(f.pending))
	out := f.pending[:n:n]
	f.pending = f.pending[n:]
	return out, nil
}

func (f *fakeTransport) queue(b ...byte) { f.pending = append(f.pending, b...) }

func (f *fakeTransport) reset() {
	f.writes = nil
	f.timeouts = nil
}

func init() {
	monitoring.SetLogger(nil)
}

var testEpoch = time.Date(2025, time.June, 23, 12, 0, 0, 0, time.UTC)

func openSession(t *testing.T, ft *fakeTransport, clock *timeutil.MockClock) *Session {
	t.Helper()
	ft.queue(Ack)
	s, err := Open(ft, WithClock(clock))
	require.NoError(t, err)
	ft.reset()
	return s
}

func TestOpen_Ack(t *testing.T) {
	ft := &fakeTransport{}
	clock := timeutil.NewMockClock(testEpoch)
	ft.queue(Ack)

	s, err := Open(ft, WithClock(clock), WithReadTimeout(250*time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, s)

	assert.Equal(t, [][]byte{{16}}, ft.writes)
	assert.Equal(t, []time.Duration{DefaultSettleDelay}, clock.Sleeps())
	assert.Equal(t, []time.Duration{250 * time.Millisecond}, ft.timeouts)
	assert.NotEqual(t, [16]byte{}, [16]byte(s.ID()))
	_, configured := s.Config()
	assert.False(t, configured)
}

func TestOpen_AckFailures(t *testing.T) {
	tests := []struct {
		name     string
		response []byte
	}{
		{"wrong byte", []byte{0x55}},
		{"no response", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ft := &fakeTransport{}
			ft.queue(tc.response...)
			s, err := Open(ft, WithClock(timeutil.NewMockClock(testEpoch)))
			assert.Nil(t, s)
			require.ErrorIs(t, err, ErrAck)
			assert.True(t, Retryable(err))

			var ackErr *AckError
			require.True(t, errors.As(err, &ackErr))
			assert.Equal(t, OpTurnOn, ackErr.Op)
			assert.Equal(t, len(tc.response), len(ackErr.Got))
		})
	}
}

func TestOpen_TransportFailure(t *testing.T) {
	cause := errors.New("port gone")
	ft := &fakeTransport{readErr: cause}
	_, err := Open(ft, WithClock(timeutil.NewMockClock(testEpoch)))
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	assert.False(t, Retryable(err))

	ft = &fakeTransport{writeErr: cause}
	_, err = Open(ft, WithClock(timeutil.NewMockClock(testEpoch)))
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
}

func TestOpen_ShortWrite(t *testing.T) {
	ft := &fakeTransport{shortBy: 1}
	_, err := Open(ft, WithClock(timeutil.NewMockClock(testEpoch)))
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, io.ErrShortWrite)
}

func TestConfigure_Ack(t *testing.T) {
	ft := &fakeTransport{}
	clock := timeutil.NewMockClock(testEpoch)
	s := openSession(t, ft, clock)
	cfg := mustBuild(t, velocityMeterParams)
	frame := cfg.Encode()

	ft.queue(Ack)
	require.NoError(t, s.Configure(cfg))

	require.Len(t, ft.writes, 2)
	assert.Equal(t, []byte{14}, ft.writes[0])
	assert.Equal(t, frame[:], ft.writes[1])
	assert.Equal(t, []time.Duration{DefaultSettleDelay, DefaultSettleDelay}, clock.Sleeps())

	got, ok := s.Config()
	assert.True(t, ok)
	assert.Equal(t, cfg, got)

	last := s.LastFrame()
	assert.Equal(t, frame[5]&^sendMarker, last[5], "send marker cleared in retained frame")
	assert.Equal(t, frame[7], last[7], "checksum kept as transmitted")
}

func TestConfigure_Nak(t *testing.T) {
	ft := &fakeTransport{}
	s := openSession(t, ft, timeutil.NewMockClock(testEpoch))
	cfg := mustBuild(t, velocityMeterParams)

	ft.queue(0x00)
	err := s.Configure(cfg)
	require.ErrorIs(t, err, ErrConfig)
	assert.True(t, Retryable(err))
	var cfgErr *ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, cfg.Encode(), cfgErr.Frame)

	_, ok := s.Config()
	assert.False(t, ok, "rejected configuration must not be retained")

	// timeout with no bytes is also a config failure
	err = s.Configure(cfg)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestConfigure_NakKeepsPreviousConfig(t *testing.T) {
	ft := &fakeTransport{}
	s := openSession(t, ft, timeutil.NewMockClock(testEpoch))
	first := mustBuild(t, velocityMeterParams)
	ft.queue(Ack)
	require.NoError(t, s.Configure(first))

	p := velocityMeterParams
	p.TargetCount = 5
	ft.queue(0x01)
	require.Error(t, s.Configure(mustBuild(t, p)))

	got, ok := s.Config()
	assert.True(t, ok)
	assert.Equal(t, first, got)
}

func TestClose(t *testing.T) {
	ft := &fakeTransport{}
	clock := timeutil.NewMockClock(testEpoch)
	s := openSession(t, ft, clock)

	ft.queue(0x12)
	err := s.Close()
	require.ErrorIs(t, err, ErrAck)
	var ackErr *AckError
	require.True(t, errors.As(err, &ackErr))
	assert.Equal(t, OpTurnOff, ackErr.Op)

	ft.queue(Ack)
	require.NoError(t, s.Close())
	assert.Equal(t, [][]byte{{17}, {17}}, ft.writes)
	assert.Len(t, clock.Sleeps(), 1, "turn off has no settle delay")

	assert.ErrorIs(t, s.Close(), ErrSessionClosed)
	assert.ErrorIs(t, s.Configure(mustBuild(t, velocityMeterParams)), ErrSessionClosed)
	_, err = s.Detect()
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestWithSettleDelay(t *testing.T) {
	ft := &fakeTransport{}
	clock := timeutil.NewMockClock(testEpoch)
	ft.queue(Ack)
	_, err := Open(ft, WithClock(clock), WithSettleDelay(0))
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{0}, clock.Sleeps())
}

func TestOpcodeString(t *testing.T) {
	assert.Equal(t, "turn on", OpTurnOn.String())
	assert.Equal(t, "opcode 99", Opcode(99).String())
}
