package urad

import (
	"fmt"
	"time"
)

// Transport is the byte-stream link to the radar. Delivery must be ordered
// and reliable; the protocol adds no integrity checks beyond the frame
// checksum and the ACK byte.
type Transport interface {
	// Write sends p and returns the number of bytes written.
	Write(p []byte) (int, error)
	// ReadN reads up to n bytes, waiting at most timeout for them to
	// arrive. A timeout is not an error: the bytes received so far are
	// returned. A non-nil error means the link itself failed.
	ReadN(n int, timeout time.Duration) ([]byte, error)
}

// InputDiscarder is implemented by transports that can drop received bytes
// nobody has read yet. A Session discards pending input before every opcode
// so the tail of a short response is never decoded as the next one.
type InputDiscarder interface {
	DiscardInput() error
}

// Opcode is a single-byte radar command.
type Opcode byte

const (
	OpLoadConfig Opcode = 14
	OpDetect     Opcode = 15
	OpTurnOn     Opcode = 16
	OpTurnOff    Opcode = 17
)

// Ack is the acknowledgement byte for OpLoadConfig, OpTurnOn and OpTurnOff.
const Ack byte = 0xAA

func (o Opcode) String() string {
	switch o {
	case OpLoadConfig:
		return "load configuration"
	case OpDetect:
		return "detection"
	case OpTurnOn:
		return "turn on"
	case OpTurnOff:
		return "turn off"
	default:
		return fmt.Sprintf("opcode %d", byte(o))
	}
}
