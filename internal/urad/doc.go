// Package urad implements the command/response protocol of the uRAD 24 GHz
// radar module as spoken over its UART/USB-serial link.
//
// The package has three cooperating parts:
//
//   - the configuration encoder (BuildConfig, RadarConfig.Encode) which clamps
//     operator parameters into their legal ranges and packs them into the
//     8-byte configuration frame;
//   - the transport session (Open, Session.Configure, Session.Close) which
//     sends opcodes over a Transport and validates the single 0xAA
//     acknowledgement byte;
//   - the detection decoder (Session.Detect) which reads the 62-byte result
//     block and, when requested, the 12-bit packed I/Q sample streams whose
//     size depends on the acquisition mode.
//
// A Session is strictly request/response and must be driven by a single
// goroutine. ACK and packet-length failures are recoverable: the caller
// should log them and retry on the next poll.
package urad
