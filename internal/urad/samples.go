package urad

// RawSamples holds the 12-bit I/Q streams of one detection. Each stream is
// the concatenation of Segments; a stream is nil when it was not requested.
type RawSamples struct {
	InPhase    []uint16 `json:"i,omitempty"`
	Quadrature []uint16 `json:"q,omitempty"`
	Segments   []int    `json:"segments"`
}

// SampleLayout describes how a raw I or Q block is split into independently
// packed segments for a given mode and sample count.
type SampleLayout struct {
	// Segments lists the sample count of each segment in wire order.
	Segments []int
	// TotalBytes is the size of one raw block (I or Q) on the wire.
	TotalBytes int
}

// NewSampleLayout returns the raw block layout. CW and sawtooth send one
// ramp of ns samples, triangle sends up and down ramps, dual rate adds two
// more ramps of ceil(0.75*ns) samples.
func NewSampleLayout(mode Mode, ns int) SampleLayout {
	segments := []int{ns}
	switch mode {
	case ModeTriangle:
		segments = append(segments, ns)
	case ModeDualRate:
		ns3 := (3*ns + 3) / 4
		segments = append(segments, ns, ns3, ns3)
	}

	total := 0
	for _, n := range segments {
		total += PackedLen(n)
	}
	return SampleLayout{Segments: segments, TotalBytes: total}
}

// Samples returns the number of samples across all segments.
func (l SampleLayout) Samples() int {
	total := 0
	for _, n := range l.Segments {
		total += n
	}
	return total
}

// Unpack decodes a raw block into one sample stream. buf should be
// TotalBytes long; a shorter buffer leaves trailing samples zero.
func (l SampleLayout) Unpack(buf []byte) []uint16 {
	out := make([]uint16, 0, l.Samples())
	for _, n := range l.Segments {
		size := min(PackedLen(n), len(buf))
		out = append(out, UnpackSamples12(buf[:size], n)...)
		buf = buf[size:]
	}
	return out
}

// Pack encodes one sample stream into a raw block. samples must hold
// Samples() values.
func (l SampleLayout) Pack(samples []uint16) []byte {
	out := make([]byte, 0, l.TotalBytes)
	for _, n := range l.Segments {
		n = min(n, len(samples))
		out = append(out, PackSamples12(samples[:n])...)
		samples = samples[n:]
	}
	return out
}

// PackedLen is the number of bytes that carry n 12-bit samples. An odd count
// is padded to the next even one.
func PackedLen(n int) int {
	if n%2 == 1 {
		n++
	}
	return n * 3 / 2
}

// UnpackSamples12 decodes n samples packed two per three bytes:
//
//	s[2k]   = b[3k]<<4 | b[3k+1]>>4
//	s[2k+1] = (b[3k+1]&0x0f)<<8 | b[3k+2]
//
// The second sample of the last group is dropped when n is odd.
func UnpackSamples12(buf []byte, n int) []uint16 {
	out := make([]uint16, n)
	groups := min(PackedLen(n), len(buf)) / 3
	for k := 0; k < groups; k++ {
		b0, b1, b2 := uint16(buf[3*k]), uint16(buf[3*k+1]), uint16(buf[3*k+2])
		out[2*k] = b0<<4 | b1>>4
		if 2*k+1 <= n-1 {
			out[2*k+1] = (b1&0x0f)<<8 | b2
		}
	}
	return out
}

// PackSamples12 is the inverse of UnpackSamples12. Only the low 12 bits of
// each sample are kept.
func PackSamples12(samples []uint16) []byte {
	out := make([]byte, 0, PackedLen(len(samples)))
	for k := 0; k < len(samples); k += 2 {
		s0 := samples[k] & 0x0fff
		var s1 uint16
		if k+1 < len(samples) {
			s1 = samples[k+1] & 0x0fff
		}
		out = append(out, byte(s0>>4), byte(s0&0x0f)<<4|byte(s1>>8), byte(s1))
	}
	return out
}
