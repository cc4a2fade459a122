package turn

import (
	"regexp"
	"strings"
	"time"

	"github.com/kadirpekel/persona-core/pkg/intent"
	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
	"github.com/kadirpekel/persona-core/pkg/store"
)

// Stage-context lexicon: grounded on the evaluator's own regex-lexicon
// approach to signals a structured classifier doesn't already emit
// (pkg/evaluator's identityRegex/intimacyVocabRx family). Each regex is a
// coarse, deliberately cheap trigger for its stage-context signal; a false
// negative just leaves BoundaryNeed/Unease at their composite-risk floor
// rather than breaking the turn.
var (
	betrayalRx        = regexp.MustCompile(`(?i)(你骗我|说谎|lied to me|you lied|cheat(ed|ing)? on me|背叛)`)
	powerMoveRx       = regexp.MustCompile(`(?i)(听我的|闭嘴|do as i say|shut up|you have no choice|必须)`)
	stonewallingRx    = regexp.MustCompile(`(?i)(随便|懒得说|whatever\.|i'm done talking|不想说了)`)
	overCaringRx      = regexp.MustCompile(`(?i)(吃饭了吗|记得|你还好吗|did you eat|are you okay|take care of yourself)`)
	possessivenessRx  = regexp.MustCompile(`(?i)(只能是我|不许和别人|you're mine|only mine|不准)`)
	tooCloseTooFastRx = regexp.MustCompile(`(?i)(嫁给我|我爱你|marry me|i love you|永远在一起|move in with me)`)
	tooDistantColdRx  = regexp.MustCompile(`(?i)(别联系我|不想理你|leave me alone|don't contact me|无所谓|算了吧)`)
	dependencyBidRx   = regexp.MustCompile(`(?i)(没有你我活不下去|i can't live without you|离不开你|you're all i have)`)
)

// detectionSignals bundles the mode-manager composites and the evolver's
// stage-context composites derived from a single turn's intent detection.
// The composite names (conflict_eff, betrayal, power-move, stonewalling,
// over-caring, possessiveness, too-close-too-fast, too-distant-too-cold,
// dependency-bid, goodwill, provocation, pressure) and their roles in the
// mood regression come from emotion_update.py's stage_ctx extraction; this
// maps intent.Detection's risk_score onto the mode-manager composites and a
// coarse lexicon pass over the user's line onto the eight evolver-specific
// stage-context signals, since no structured classifier upstream already
// emits them.
type detectionSignals struct {
	composites mode.Composites

	betrayal        float64
	powerMove       float64
	stonewalling    float64
	overCaring      float64
	possessiveness  float64
	tooCloseTooFast float64
	tooDistantCold  float64
	dependencyBid   float64
}

// deriveSignals approximates the composite signal vocabulary from the
// single normal-path detection available at this point in the pipeline
// (non-normal detections already short-circuited before this runs, so the
// risk_score-derived composites are always low-to-moderate) plus a coarse
// lexicon pass over the user's line for the eight stage-context signals the
// detector doesn't name a source for.
func deriveSignals(d intent.Detection, userText string) detectionSignals {
	risk := clamp01(d.RiskScore / 10.0)

	hit := func(rx *regexp.Regexp) float64 {
		if rx.MatchString(userText) {
			return 0.8
		}
		return 0
	}

	return detectionSignals{
		composites: mode.Composites{
			ConflictEff: risk * 0.5,
			Provocation: risk * 0.3,
			Pressure:    risk * 0.3,
			Goodwill:    clamp01(1 - risk),
			Confusion:   0,
		},
		betrayal:        hit(betrayalRx),
		powerMove:       hit(powerMoveRx),
		stonewalling:    hit(stonewallingRx),
		overCaring:      hit(overCaringRx),
		possessiveness:  hit(possessivenessRx),
		tooCloseTooFast: hit(tooCloseTooFastRx),
		tooDistantCold:  hit(tooDistantColdRx),
		dependencyBid:   hit(dependencyBidRx),
	}
}

// proposeDimensions computes the evolver's bounded dimension delta
// proposal from the turn's composite signals (spec section 4.16: "applies
// bounded dimension deltas from the reasoner's signals"), returning both
// the proposed [0,1]-scale dimensions (for the store's own |Δ|≤0.20 clamp)
// and the raw, undivided 0-100-scale deltas the stage manager's jump-event
// guard compares directly (section 4.16's dual-scale design).
func proposeDimensions(old model.RelationshipDimensions, s detectionSignals) (model.RelationshipDimensions, rawDeltaPair) {
	goodwill := s.composites.Goodwill
	conflict := s.composites.ConflictEff

	deltaTrust := 0.05*goodwill - 0.5*conflict - 0.6*s.betrayal
	deltaLiking := 0.05*goodwill - 0.3*conflict - 0.3*s.stonewalling
	deltaCloseness := 0.04*goodwill - 0.3*conflict
	deltaRespect := 0.03*goodwill - 0.4*s.powerMove
	deltaWarmth := 0.03*goodwill - 0.4*s.stonewalling
	deltaPower := -0.1 * s.powerMove

	proposed := model.RelationshipDimensions{
		Closeness: old.Closeness + deltaCloseness,
		Trust:     old.Trust + deltaTrust,
		Liking:    old.Liking + deltaLiking,
		Respect:   old.Respect + deltaRespect,
		Warmth:    old.Warmth + deltaWarmth,
		Power:     old.Power + deltaPower,
	}

	return proposed, rawDeltaPair{Trust: deltaTrust * 100, Liking: deltaLiking * 100}
}

type rawDeltaPair struct {
	Trust  float64
	Liking float64
}

// clampForStage mirrors the store's own per-dimension |Δ|≤0.20 clamp so the
// stage manager's growth/decay thresholds see the same post-turn dimension
// values that will actually be persisted.
func clampForStage(old, proposed model.RelationshipDimensions) model.RelationshipDimensions {
	clamped, _ := store.ClampAllDimensions(old, proposed)
	return clamped
}

// deriveNotes is the dedicated extractor pass the memory writer accepts in
// lieu of C6/C7 emitting notes directly: the reasoner's core points are
// already the persona's own summary of what mattered in the line, so each
// one becomes a fact note scaled by the winning plan's weight.
func deriveNotes(userID string, topPlan *model.ResponsePlanAlternative, now time.Time) []model.DerivedNote {
	if topPlan == nil || len(topPlan.CorePoints) == 0 {
		return nil
	}
	notes := make([]model.DerivedNote, 0, len(topPlan.CorePoints))
	for _, point := range topPlan.CorePoints {
		point = strings.TrimSpace(point)
		if point == "" {
			continue
		}
		notes = append(notes, model.DerivedNote{
			UserID:        userID,
			NoteType:      model.NoteFact,
			Content:       point,
			Importance:    clamp01(topPlan.Weight),
			SourcePointer: topPlan.ID,
			CreatedAt:     now,
		})
	}
	return notes
}

// sptDepthCeiling is the documented SPT depth range (1=shallow .. 4=deep).
const sptDepthCeiling = 4

// nextSPTDepth updates the running substantive-topic depth from the
// reasoner's core points for this turn, the one proxy the pipeline has for
// "how deep this pair has gone" short of a dedicated topic-depth
// classifier: a plan with several core points to make moves the pair one
// step deeper, a plan with none (small talk, a deflection) lets depth
// decay by one, otherwise depth holds.
func nextSPTDepth(prev int, topPlan *model.ResponsePlanAlternative) int {
	if prev <= 0 {
		prev = 1
	}
	points := 0
	if topPlan != nil {
		points = len(topPlan.CorePoints)
	}
	switch {
	case points >= 2:
		prev++
	case points == 0:
		prev--
	}
	if prev < 1 {
		prev = 1
	}
	if prev > sptDepthCeiling {
		prev = sptDepthCeiling
	}
	return prev
}
