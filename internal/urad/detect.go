package urad

import (
	"encoding/binary"
	"math"
)

// ResultPacketLen is the size of the detection result block: NtarMax
// distances, velocities and SNRs as float32, a movement byte and one
// reserved byte.
const ResultPacketLen = NtarMax*3*4 + 2

const (
	distanceOffset = 0
	velocityOffset = NtarMax * 4
	snrOffset      = 2 * NtarMax * 4
	movementOffset = NtarMax * 12
)

// DetectionResult is the decoded result block of one poll. Slots beyond the
// configured target count, and blocks that were not requested, are zero.
type DetectionResult struct {
	TargetsDetected int              `json:"targets_detected"`
	Distance        [NtarMax]float32 `json:"distance"`
	Velocity        [NtarMax]float32 `json:"velocity"`
	SNR             [NtarMax]float32 `json:"snr"`
	Movement        bool             `json:"movement"`
}

// Target is one populated slot of a DetectionResult.
type Target struct {
	Index    int     `json:"index"`
	Distance float32 `json:"distance"`
	Velocity float32 `json:"velocity"`
	SNR      float32 `json:"snr"`
}

// Targets returns the first TargetsDetected slots.
func (r DetectionResult) Targets() []Target {
	targets := make([]Target, 0, r.TargetsDetected)
	for i := 0; i < r.TargetsDetected && i < NtarMax; i++ {
		targets = append(targets, Target{
			Index:    i + 1,
			Distance: r.Distance[i],
			Velocity: r.Velocity[i],
			SNR:      r.SNR[i],
		})
	}
	return targets
}

// Detection is everything returned by one poll. Raw is nil unless I or Q
// samples were requested.
type Detection struct {
	Result DetectionResult `json:"result"`
	Raw    *RawSamples     `json:"raw,omitempty"`
}

// Detect triggers one detection and decodes the blocks selected by the
// configured Report. A *PacketError is returned when a block arrives with the
// wrong length; the session is left unchanged and the caller may poll again.
// Late bytes of a short block are discarded before the next opcode when the
// transport implements InputDiscarder.
func (s *Session) Detect() (Detection, error) {
	if s.closed {
		return Detection{}, ErrSessionClosed
	}
	if !s.configured {
		return Detection{}, ErrNotConfigured
	}
	cfg := s.cfg

	if err := s.send(OpDetect); err != nil {
		return Detection{}, err
	}
	s.clock.Sleep(s.settle)

	var det Detection
	if cfg.Report.wantsResults() {
		buf, err := s.read("results", ResultPacketLen)
		if err != nil {
			return Detection{}, err
		}
		if len(buf) != ResultPacketLen {
			return Detection{}, &PacketError{Block: "results", Want: ResultPacketLen, Got: len(buf)}
		}
		det.Result = decodeResults(buf, cfg)
	}

	if cfg.Report.wantsRaw() {
		layout := NewSampleLayout(cfg.Mode, cfg.SampleCount)
		raw := &RawSamples{Segments: layout.Segments}
		if cfg.Report.I {
			buf, err := s.readRaw("I", layout.TotalBytes)
			if err != nil {
				return Detection{}, err
			}
			raw.InPhase = layout.Unpack(buf)
		}
		if cfg.Report.Q {
			buf, err := s.readRaw("Q", layout.TotalBytes)
			if err != nil {
				return Detection{}, err
			}
			raw.Quadrature = layout.Unpack(buf)
		}
		det.Raw = raw
	}

	return det, nil
}

func (s *Session) readRaw(block string, n int) ([]byte, error) {
	buf, err := s.read(block+" samples", n)
	if err != nil {
		return nil, err
	}
	if len(buf) != n {
		return nil, &PacketError{Block: block, Want: n, Got: len(buf)}
	}
	return buf, nil
}

// decodeResults decodes the first TargetCount slots of a result block. SNR is
// always decoded because it determines TargetsDetected.
func decodeResults(buf []byte, cfg RadarConfig) DetectionResult {
	var r DetectionResult
	var snr [NtarMax]float32
	for i := 0; i < cfg.TargetCount && i < NtarMax; i++ {
		if cfg.Report.Distance {
			r.Distance[i] = float32At(buf, distanceOffset+4*i)
		}
		if cfg.Report.Velocity {
			r.Velocity[i] = float32At(buf, velocityOffset+4*i)
		}
		snr[i] = float32At(buf, snrOffset+4*i)
		if snr[i] > 0 {
			r.TargetsDetected++
		}
	}
	if cfg.Report.SNR {
		r.SNR = snr
	}
	if cfg.Report.Movement {
		r.Movement = buf[movementOffset] == 0xff
	}
	return r
}

func float32At(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off : off+4]))
}

// AppendResultPacket encodes r as a result block and appends it to dst. It
// is the inverse of the decoder, used to fake radar responses.
func AppendResultPacket(dst []byte, r DetectionResult) []byte {
	var buf [ResultPacketLen]byte
	for i := 0; i < NtarMax; i++ {
		binary.LittleEndian.PutUint32(buf[distanceOffset+4*i:], math.Float32bits(r.Distance[i]))
		binary.LittleEndian.PutUint32(buf[velocityOffset+4*i:], math.Float32bits(r.Velocity[i]))
		binary.LittleEndian.PutUint32(buf[snrOffset+4*i:], math.Float32bits(r.SNR[i]))
	}
	if r.Movement {
		buf[movementOffset] = 0xff
	}
	return append(dst, buf[:]...)
}
