// Package mode implements the deterministic threshold rules that pick a
// conversational mode from detection composites (C5, spec section 4.5).
package mode

// Mode is one of the three operating modes.
type Mode string

const (
	Normal Mode = "normal_mode"
	Cold   Mode = "cold_mode"
	Mute   Mode = "mute_mode"
)

// Composites are the aggregate detection signals the mode rules threshold
// against.
type Composites struct {
	ConflictEff   float64
	Provocation   float64
	Pressure      float64
	Goodwill      float64
	Sarcasm       float64
	Contempt      float64
	LowEffort     float64
	Toxicity      float64
	Confusion     float64
	StageViolation float64
	Busyness      float64
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// Decide applies the fixed threshold table in the documented precedence:
// mute first, then cold, else normal.
func Decide(c Composites) Mode {
	if c.ConflictEff >= 0.75 || c.Provocation >= 0.85 || c.Pressure >= 0.80 {
		return Mute
	}
	if max3(c.Sarcasm, c.Contempt, c.LowEffort) >= 0.60 && c.Goodwill < 0.45 {
		return Cold
	}
	if c.Toxicity >= 0.55 && c.Goodwill < 0.50 {
		return Cold
	}
	if c.StageViolation >= 0.70 && c.Goodwill < 0.60 {
		return Cold
	}
	if c.Busyness >= 0.80 && c.Goodwill < 0.50 {
		return Cold
	}
	if c.Confusion >= 0.70 {
		return Cold
	}
	return Normal
}

// Policy bundles the generation constraints a mode fixes (section 4.5:
// "Mode determines max_messages, min_first_len, must_have_policy, and
// allow_{short,empty}_reply").
type Policy struct {
	MaxMessages     int
	MinFirstLen     int
	MustHavePolicy  string // "none" | "soft"
	AllowShortReply bool
	AllowEmptyReply bool
}

// PolicyFor returns the fixed per-mode generation policy.
func PolicyFor(m Mode) Policy {
	switch m {
	case Mute:
		return Policy{MaxMessages: 1, MinFirstLen: 0, MustHavePolicy: "none", AllowShortReply: true, AllowEmptyReply: true}
	case Cold:
		return Policy{MaxMessages: 1, MinFirstLen: 2, MustHavePolicy: "none", AllowShortReply: true, AllowEmptyReply: false}
	default:
		return Policy{MaxMessages: 4, MinFirstLen: 8, MustHavePolicy: "soft", AllowShortReply: false, AllowEmptyReply: false}
	}
}
