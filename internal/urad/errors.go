package urad

import (
	"errors"
	"fmt"
)

var (
	ErrValidation       = errors.New("invalid radar configuration")
	ErrAck              = errors.New("radar did not acknowledge command")
	ErrConfig           = errors.New("radar rejected configuration")
	ErrIncompletePacket = errors.New("incomplete packet from radar")
	ErrTransport        = errors.New("radar transport failure")
	ErrChecksum         = errors.New("configuration frame checksum mismatch")
	ErrNotConfigured    = errors.New("radar session not configured")
	ErrSessionClosed    = errors.New("radar session closed")
)

// ValidationError reports a parameter that cannot be clamped into range.
// Only a target count below one is rejected; everything else is clamped.
type ValidationError struct {
	Field  string
	Value  int
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s %d: %s", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// AckError is returned when the acknowledgement byte for turn on or turn off
// is missing or is not 0xAA.
type AckError struct {
	Op  Opcode
	Got []byte
}

func (e *AckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, describeAck(e.Got))
}

func (e *AckError) Is(target error) bool { return target == ErrAck }

// ConfigError is returned when the radar does not acknowledge a
// configuration frame.
type ConfigError struct {
	Frame ConfigFrame
	Got   []byte
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: frame % x: %s", OpLoadConfig, e.Frame[:], describeAck(e.Got))
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// PacketError is returned when a response block has the wrong length.
// Block is "results", "I" or "Q".
type PacketError struct {
	Block string
	Want  int
	Got   int
}

func (e *PacketError) Error() string {
	return fmt.Sprintf("incomplete %s packet: got %d bytes, want %d", e.Block, e.Got, e.Want)
}

func (e *PacketError) Is(target error) bool { return target == ErrIncompletePacket }

// TransportError wraps an I/O failure reported by the Transport.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }

// Retryable reports whether err is a failure the poll loop should log and
// retry on its next cycle rather than treat as fatal.
func Retryable(err error) bool {
	return errors.Is(err, ErrAck) ||
		errors.Is(err, ErrConfig) ||
		errors.Is(err, ErrIncompletePacket)
}

func describeAck(got []byte) string {
	if len(got) == 0 {
		return "no acknowledgement received"
	}
	return fmt.Sprintf("expected ack 0x%02x, got 0x%02x", Ack, got[0])
}
