package urad

// FrameLen is the size of an encoded configuration frame.
const FrameLen = 8

// Report bits carried in byte 6 of the configuration frame.
const (
	reportDistance byte = 0x80
	reportVelocity byte = 0x40
	reportSNR      byte = 0x20
	reportI        byte = 0x10
	reportQ        byte = 0x08
	reportMovement byte = 0x04
)

// sendMarker is bit 0 of byte 5, set on every transmitted frame.
const sendMarker byte = 0x01

// ConfigFrame is the 8-byte configuration payload sent after OpLoadConfig.
// Byte 7 is the sum of bytes 0-6 modulo 256.
type ConfigFrame [FrameLen]byte

// Checksum computes the checksum of the first seven bytes.
func (f ConfigFrame) Checksum() byte {
	var sum byte
	for _, b := range f[:FrameLen-1] {
		sum += b
	}
	return sum
}

// Valid reports whether the trailing checksum byte matches.
func (f ConfigFrame) Valid() bool {
	return f[FrameLen-1] == f.Checksum()
}

// Encode packs the configuration into its wire frame. Fields straddle byte
// boundaries: f0, bandwidth and sample count are split 5/3 bits, the
// range/velocity maximum 2/6 bits.
func (c RadarConfig) Encode() ConfigFrame {
	var (
		mode  = int(c.Mode)
		f0    = c.F0
		bw    = c.Bandwidth
		ns    = c.SampleCount
		ntar  = c.TargetCount
		rmax  = c.RangeOrVelocityMax
		mth   = c.MovementThreshold
		alpha = c.AlphaDB
		mti   = 0
	)
	if c.MTI {
		mti = 1
	}

	var f ConfigFrame
	f[0] = byte((mode << 5) + (f0 >> 3))
	f[1] = byte((f0 << 5) + (bw >> 3))
	f[2] = byte((bw << 5) + (ns >> 3))
	f[3] = byte((ns << 5) + (ntar << 2) + (rmax >> 6))
	f[4] = byte((rmax << 2) + mti)
	f[5] = byte((mth << 6) + (alpha << 1) + int(sendMarker))

	if c.Report.Distance {
		f[6] |= reportDistance
	}
	if c.Report.Velocity {
		f[6] |= reportVelocity
	}
	if c.Report.SNR {
		f[6] |= reportSNR
	}
	if c.Report.I {
		f[6] |= reportI
	}
	if c.Report.Q {
		f[6] |= reportQ
	}
	if c.Report.Movement {
		f[6] |= reportMovement
	}

	f[7] = f.Checksum()
	return f
}

// DecodeFrame extracts the configuration packed into f. It fails with
// ErrChecksum if the trailing checksum byte does not match.
func DecodeFrame(f ConfigFrame) (RadarConfig, error) {
	if !f.Valid() {
		return RadarConfig{}, ErrChecksum
	}

	c := RadarConfig{
		Mode:               Mode(f[0] >> 5),
		F0:                 int(f[0]&0x1f)<<3 | int(f[1]>>5),
		Bandwidth:          int(f[1]&0x1f)<<3 | int(f[2]>>5),
		SampleCount:        int(f[2]&0x1f)<<3 | int(f[3]>>5),
		TargetCount:        int(f[3]>>2) & 0x07,
		RangeOrVelocityMax: int(f[3]&0x03)<<6 | int(f[4]>>2),
		MTI:                f[4]&0x01 == 1,
		MovementThreshold:  int(f[5] >> 6),
		AlphaDB:            int(f[5]>>1) & 0x1f,
		Report: Report{
			Distance: f[6]&reportDistance != 0,
			Velocity: f[6]&reportVelocity != 0,
			SNR:      f[6]&reportSNR != 0,
			I:        f[6]&reportI != 0,
			Q:        f[6]&reportQ != 0,
			Movement: f[6]&reportMovement != 0,
		},
	}
	return c, nil
}
