package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// RealSerialPortFactory opens hardware ports with go.bug.st/serial.
type RealSerialPortFactory struct{}

// NewRealSerialPortFactory returns a factory for hardware serial ports.
func NewRealSerialPortFactory() *RealSerialPortFactory {
	return &RealSerialPortFactory{}
}

// Open opens the port at path. A nil mode uses DefaultSerialPortMode.
func (f *RealSerialPortFactory) Open(path string, mode *SerialPortMode) (TimeoutSerialPorter, error) {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	port, err := serial.Open(path, toSerialMode(mode))
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	return port, nil
}

// OpenTransport opens path with opts through factory and wraps the port as a
// radar transport.
func OpenTransport(factory SerialPortFactory, path string, opts PortOptions) (*Transport, error) {
	normalised, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := normalised.Mode()
	if err != nil {
		return nil, err
	}
	port, err := factory.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return NewTransport(port), nil
}
