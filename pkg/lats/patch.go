package lats

import "github.com/kadirpekel/persona-core/pkg/model"

// PlanPatch adjusts the requirements compiler's must-cover points.
type PlanPatch struct {
	AddMustCoverPoints    []string `json:"add_must_cover_points,omitempty"`
	RemoveMustCoverPoints []string `json:"remove_must_cover_points,omitempty"`
}

// StylePatch nudges style dimensions by an absolute or relative delta in
// [-1,1] (spec section 4.14).
type StylePatch struct {
	Relative bool               `json:"relative"`
	Deltas   map[string]float64 `json:"deltas,omitempty"`
}

// StagePatch adjusts stage pacing notes and violation sensitivity.
type StagePatch struct {
	AddPacingNotes         []string `json:"add_pacing_notes,omitempty"`
	AdjustViolationSensitivity float64 `json:"adjust_violation_sensitivity,omitempty"`
}

// SearchPatch adjusts the memory retriever's query seeds (section 4.8's
// only sanctioned exception to "no automatic query expansion").
type SearchPatch struct {
	AddQuerySeeds      []string `json:"add_query_seeds,omitempty"`
	RemoveQuerySeeds   []string `json:"remove_query_seeds,omitempty"`
	StrengthenEntities []string `json:"strengthen_entities,omitempty"`
}

// Patch is the cross-rollout reflection patch emitted when a failed-check
// id recurs (section 4.14).
type Patch struct {
	Plan   PlanPatch   `json:"plan_patch"`
	Style  StylePatch  `json:"style_patch"`
	Stage  StagePatch  `json:"stage_patch"`
	Search SearchPatch `json:"search_patch"`

	TTLTurns     int `json:"ttl_turns"`
	TTLRemaining int `json:"ttl_remaining"`
}

// DefaultPatchTTLTurns is the section-4.14 default reflection-patch
// lifetime.
const DefaultPatchTTLTurns = 3

// NewPatch seeds a freshly emitted patch's TTL bookkeeping.
func NewPatch(ttlTurns int) *Patch {
	if ttlTurns <= 0 {
		ttlTurns = DefaultPatchTTLTurns
	}
	return &Patch{TTLTurns: ttlTurns, TTLRemaining: ttlTurns}
}

// Tick decrements the remaining TTL by one turn, returning false once the
// patch has expired (caller should then drop it).
func (p *Patch) Tick() bool {
	if p == nil {
		return false
	}
	p.TTLRemaining--
	return p.TTLRemaining > 0
}

// Alive reports whether the patch still has turns left to apply.
func (p *Patch) Alive() bool {
	return p != nil && p.TTLRemaining > 0
}

// ApplyStyle applies the patch's style deltas to a style-vector map,
// clamping each result to [0,1]. Relative deltas are added to the current
// value; absolute deltas replace it outright (still clamped to [-1,1]
// before being folded into the [0,1] target per spec section 4.14).
func (p *Patch) ApplyStyle(style map[string]float64) map[string]float64 {
	if p == nil || len(p.Style.Deltas) == 0 {
		return style
	}
	out := make(map[string]float64, len(style))
	for k, v := range style {
		out[k] = v
	}
	for dim, delta := range p.Style.Deltas {
		if delta > 1 {
			delta = 1
		}
		if delta < -1 {
			delta = -1
		}
		var next float64
		if p.Style.Relative {
			next = out[dim] + delta
		} else {
			next = delta
		}
		if next < 0 {
			next = 0
		}
		if next > 1 {
			next = 1
		}
		out[dim] = next
	}
	return out
}

// ToModel converts the patch into its store-serializable form (nil stays
// nil, so a turn with no active patch persists nothing).
func (p *Patch) ToModel() *model.ReflectionPatch {
	if p == nil {
		return nil
	}
	return &model.ReflectionPatch{
		PlanAddMustCoverPoints:          p.Plan.AddMustCoverPoints,
		PlanRemoveMustCoverPoints:       p.Plan.RemoveMustCoverPoints,
		StyleRelative:                   p.Style.Relative,
		StyleDeltas:                     p.Style.Deltas,
		StageAddPacingNotes:             p.Stage.AddPacingNotes,
		StageAdjustViolationSensitivity: p.Stage.AdjustViolationSensitivity,
		SearchAddQuerySeeds:             p.Search.AddQuerySeeds,
		SearchRemoveQuerySeeds:          p.Search.RemoveQuerySeeds,
		SearchStrengthenEntities:        p.Search.StrengthenEntities,
		TTLTurns:                        p.TTLTurns,
		TTLRemaining:                    p.TTLRemaining,
	}
}

// FromModel rebuilds a Patch from its store-serializable form.
func FromModel(m *model.ReflectionPatch) *Patch {
	if m == nil {
		return nil
	}
	return &Patch{
		Plan: PlanPatch{
			AddMustCoverPoints:    m.PlanAddMustCoverPoints,
			RemoveMustCoverPoints: m.PlanRemoveMustCoverPoints,
		},
		Style: StylePatch{
			Relative: m.StyleRelative,
			Deltas:   m.StyleDeltas,
		},
		Stage: StagePatch{
			AddPacingNotes:             m.StageAddPacingNotes,
			AdjustViolationSensitivity: m.StageAdjustViolationSensitivity,
		},
		Search: SearchPatch{
			AddQuerySeeds:      m.SearchAddQuerySeeds,
			RemoveQuerySeeds:   m.SearchRemoveQuerySeeds,
			StrengthenEntities: m.SearchStrengthenEntities,
		},
		TTLTurns:     m.TTLTurns,
		TTLRemaining: m.TTLRemaining,
	}
}

// FailureTally counts failed-check ids across recent rollouts, to decide
// when a new reflection patch should be generated (section 4.14: "when any
// id appears ≥ 2 times").
type FailureTally struct {
	counts map[string]int
}

// NewFailureTally creates an empty tally.
func NewFailureTally() *FailureTally {
	return &FailureTally{counts: map[string]int{}}
}

// Record adds one occurrence of each failed-check id.
func (f *FailureTally) Record(ids []string) {
	for _, id := range ids {
		f.counts[id]++
	}
}

// RecurringThreshold is the section-4.14 repeat count that triggers a
// reflection patch.
const RecurringThreshold = 2

// Recurring returns the failed-check ids that have hit the recurring
// threshold, in no particular order (the ids live in a plain map, whose
// iteration order varies between calls; callers that need determinism
// should sort the result).
func (f *FailureTally) Recurring() []string {
	var out []string
	for id, n := range f.counts {
		if n >= RecurringThreshold {
			out = append(out, id)
		}
	}
	return out
}
