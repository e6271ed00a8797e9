package urad

import "fmt"

// Mode selects the radar acquisition mode.
type Mode uint8

const (
	// ModeCW is continuous wave (Doppler): velocity only.
	ModeCW Mode = 1
	// ModeSawtooth is the sawtooth ramp mode.
	ModeSawtooth Mode = 2
	// ModeTriangle is the triangular ramp (FCW) mode and the fallback for
	// any out-of-range mode value.
	ModeTriangle Mode = 3
	// ModeDualRate is the dual-rate ramp mode.
	ModeDualRate Mode = 4
)

func (m Mode) String() string {
	switch m {
	case ModeCW:
		return "cw"
	case ModeSawtooth:
		return "sawtooth"
	case ModeTriangle:
		return "triangle"
	case ModeDualRate:
		return "dual-rate"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// NtarMax is the number of target slots in every result packet.
const NtarMax = 5

// Legal parameter ranges enforced by BuildConfig.
const (
	F0Min    = 5
	F0Max    = 195
	F0MaxCW  = 245
	BWMin    = 50
	BWMax    = 240
	NsMin    = 50
	NsMax    = 200
	RMaxMax  = 100
	VMaxMax  = 75
	AlphaMin = 3
	AlphaMax = 25
)

// Report selects which blocks the radar returns on each detection.
type Report struct {
	Distance bool `json:"distance" yaml:"distance"`
	Velocity bool `json:"velocity" yaml:"velocity"`
	SNR      bool `json:"snr" yaml:"snr"`
	I        bool `json:"i" yaml:"i"`
	Q        bool `json:"q" yaml:"q"`
	Movement bool `json:"movement" yaml:"movement"`
}

// wantsResults reports whether the fixed-size result block is requested.
func (r Report) wantsResults() bool {
	return r.Distance || r.Velocity || r.SNR || r.Movement
}

func (r Report) wantsRaw() bool {
	return r.I || r.Q
}

// Params holds raw operator-supplied radar parameters before clamping.
type Params struct {
	Mode               int
	F0                 int
	Bandwidth          int
	SampleCount        int
	TargetCount        int
	RangeOrVelocityMax int
	MTI                int
	MovementThreshold  int
	AlphaDB            int
	Report             Report
}

// RadarConfig is a validated radar configuration. Values are produced by
// BuildConfig and are already clamped into the ranges the firmware accepts.
type RadarConfig struct {
	Mode               Mode
	F0                 int
	Bandwidth          int
	SampleCount        int
	TargetCount        int
	RangeOrVelocityMax int
	MTI                bool
	// MovementThreshold is stored zero-based (0-3).
	MovementThreshold int
	AlphaDB           int
	Report            Report
}

// BuildConfig clamps p into the legal parameter ranges. The bandwidth upper
// bound depends on the already clamped F0 and the range/velocity bound on the
// mode, so the order below matters. The only rejected input is a target count
// below one.
func BuildConfig(p Params) (RadarConfig, error) {
	if p.TargetCount < 1 {
		return RadarConfig{}, &ValidationError{Field: "target count", Value: p.TargetCount, Reason: "at least one target is required"}
	}

	mode := ModeTriangle
	if p.Mode >= int(ModeCW) && p.Mode <= int(ModeDualRate) {
		mode = Mode(p.Mode)
	}

	f0Max, rMax := F0Max, RMaxMax
	if mode == ModeCW {
		f0Max, rMax = F0MaxCW, VMaxMax
	}

	cfg := RadarConfig{Mode: mode, Report: p.Report}
	cfg.F0 = clamp(p.F0, F0Min, f0Max)
	cfg.Bandwidth = clamp(p.Bandwidth, BWMin, BWMax-cfg.F0+F0Min)
	cfg.SampleCount = clamp(p.SampleCount, NsMin, NsMax)
	cfg.TargetCount = min(p.TargetCount, NtarMax)
	cfg.RangeOrVelocityMax = clamp(p.RangeOrVelocityMax, 1, rMax)
	cfg.MTI = clamp(p.MTI, 0, 1) == 1
	cfg.MovementThreshold = clamp(p.MovementThreshold, 1, 4) - 1
	cfg.AlphaDB = clamp(p.AlphaDB, AlphaMin, AlphaMax)
	return cfg, nil
}

// clamp applies the lower bound first, then the upper one. When hi < lo the
// result is hi, which is what the firmware expects for a saturated bandwidth.
func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func (c RadarConfig) String() string {
	return fmt.Sprintf("mode=%s f0=%d bw=%d ns=%d ntar=%d rmax=%d mti=%t mth=%d alpha=%d report=%+v",
		c.Mode, c.F0, c.Bandwidth, c.SampleCount, c.TargetCount, c.RangeOrVelocityMax,
		c.MTI, c.MovementThreshold+1, c.AlphaDB, c.Report)
}
