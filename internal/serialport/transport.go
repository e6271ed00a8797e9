package serialport

import (
	"errors"
	"io"
	"time"

	"github.com/banshee-data/urad/internal/monitoring"
)

// Transport adapts a serial port to the radar protocol's byte-stream
// contract: plain writes, and reads of up to n bytes bounded by a timeout.
type Transport struct {
	port TimeoutSerialPorter
}

// NewTransport wraps port. The transport owns the port from then on.
func NewTransport(port TimeoutSerialPorter) *Transport {
	return &Transport{port: port}
}

// Write writes p to the port.
func (t *Transport) Write(p []byte) (int, error) {
	return t.port.Write(p)
}

// ReadN reads until n bytes have arrived, the port times out with nothing
// new, or timeout elapses. Whatever arrived is returned; only port failures
// are reported as errors.
func (t *Transport) ReadN(n int, timeout time.Duration) ([]byte, error) {
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(timeout)

	for got < n {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		if err := t.port.SetReadTimeout(remaining); err != nil {
			return buf[:got], err
		}

		m, err := t.port.Read(buf[got:])
		got += m
		if err != nil {
			// mock ports report an exhausted buffer as EOF
			if errors.Is(err, io.EOF) {
				break
			}
			return buf[:got], err
		}
		if m == 0 {
			break
		}
	}

	if got < n {
		monitoring.Debugf("serial read: %d of %d bytes before timeout", got, n)
	}
	return buf[:got], nil
}

// DiscardInput drops any bytes the port has received but not yet delivered,
// such as the tail of a response that arrived after its read timed out.
func (t *Transport) DiscardInput() error {
	return t.port.ResetInputBuffer()
}

// Close closes the underlying port.
func (t *Transport) Close() error {
	return t.port.Close()
}
