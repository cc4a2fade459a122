// Package evolver applies bounded relationship-dimension deltas and mood
// target-regression after a turn (C18, spec section 4.16).
package evolver

import (
	"time"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// StageContext is the detection-derived composite signal bundle the evolver
// folds into BoundaryNeed/Unease and the mood reactivity factor, grounded on
// emotion_update.py's stage_ctx extraction.
type StageContext struct {
	ConflictEff     float64
	Goodwill        float64
	Pressure        float64
	Provocation     float64
	Confusion       float64
	Betrayal        float64
	PowerMove       float64
	Stonewalling    float64
	OverCaring      float64
	Possessiveness  float64
	TooCloseTooFast float64
	TooDistantCold  float64
	DependencyBid   float64
}

// BoundaryNeed is a weighted sum of betrayal/power-move/stonewalling/
// too-distant-too-cold/possessiveness/over-caring signals, "需要立场/边界/
// 强硬" fed mainly into dominance (emotion_update.py's BoundaryNeed).
func (c StageContext) BoundaryNeed() float64 {
	v := 0.45*c.Betrayal + 0.35*c.PowerMove + 0.25*c.Stonewalling + 0.20*c.TooDistantCold + 0.20*c.Possessiveness + 0.15*c.OverCaring
	return clamp01(v)
}

// Unease is a weighted sum of too-close-too-fast/dependency-bid/over-caring/
// possessiveness/power-move signals, "不适/尴尬/紧绷" fed mainly into arousal
// (emotion_update.py's Unease).
func (c StageContext) Unease() float64 {
	v := 0.35*c.TooCloseTooFast + 0.25*c.DependencyBid + 0.25*c.OverCaring + 0.20*c.Possessiveness + 0.15*c.PowerMove
	return clamp01(v)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Base mood-regression speeds per PAD dimension (section 4.16).
const (
	betaPleasure  = 0.18
	betaArousal   = 0.12
	betaDominance = 0.15
)

// ReactivityFactor is the k multiplying all three beta speeds.
func ReactivityFactor(ctx StageContext) float64 {
	return clamp01(0.6 + 0.6*ctx.ConflictEff + 0.3*ctx.BoundaryNeed())
}

// padToUnit maps a PAD value in [-1,1] to [0,1] for target-regression math,
// and back.
func padToUnit(v float64) float64 { return clamp01((v + 1) / 2) }
func unitToPAD(v float64) float64 { return clamp(v*2-1, -1, 1) }

// affinity is "亲和" — liking-weighted warmth/closeness, making pleasure
// rise more readily and fall more slowly (emotion_update.py's Aff).
func affinity(dims model.RelationshipDimensions) float64 {
	return 0.55*dims.Liking + 0.25*dims.Warmth + 0.20*dims.Closeness
}

// safety is "安全感" — trust-weighted respect/closeness, the baseline that
// keeps arousal from spiking and dominance from needing to assert itself
// (emotion_update.py's Saf).
func safety(dims model.RelationshipDimensions) float64 {
	return 0.50*dims.Trust + 0.35*dims.Respect + 0.15*dims.Closeness
}

// powerTilt is "权力倾向" — power recentered on 0.5 so dominance can pull
// either up or down from it (emotion_update.py's PowC).
func powerTilt(dims model.RelationshipDimensions) float64 {
	return dims.Power - 0.5
}

// moodTargets computes the pleasure/arousal/dominance regression targets
// from the affinity/safety/power-tilt baselines and the turn's composite
// signals, following emotion_update.py's P_target/A_target/D_target
// formulas term for term.
func moodTargets(dims model.RelationshipDimensions, ctx StageContext, busy float64) (pleasureTarget, arousalTarget, dominanceTarget float64) {
	aff := affinity(dims)
	saf := safety(dims)
	powC01 := clamp01(powerTilt(dims) + 0.5)

	pos := ctx.Goodwill
	neg := ctx.ConflictEff
	boundary := ctx.BoundaryNeed()
	unease := ctx.Unease()

	pleasureTarget = clamp01(
		0.45 +
			0.35*aff +
			0.25*pos*(0.6+0.8*aff) -
			0.45*neg*(0.6+0.8*(1-dims.Liking)) -
			0.15*boundary -
			0.10*unease -
			0.10*busy,
	)

	arousalTarget = clamp01(
		0.35 +
			0.45*(1-saf) +
			0.20*ctx.Pressure +
			0.15*ctx.Provocation +
			0.15*ctx.Confusion +
			0.20*unease +
			0.10*neg -
			0.10*pos +
			0.10*busy,
	)

	dominanceTarget = clamp01(
		0.50 +
			0.60*powC01 +
			0.35*boundary +
			0.20*neg +
			0.10*ctx.Provocation -
			0.20*pos*(0.6+0.4*saf) -
			0.10*aff,
	)
	return
}

// RegressMood applies the target-regression update to a MoodState,
// following emotion_update.py's emotion_update_node end to end: target
// computation, the conflict/boundary-scaled reactivity factor, the PAD
// regression step, and the busyness drift.
func RegressMood(mood model.MoodState, dims model.RelationshipDimensions, ctx StageContext) model.MoodState {
	busy := clamp01(mood.Busyness)
	k := ReactivityFactor(ctx)
	pTarget, aTarget, dTarget := moodTargets(dims, ctx, busy)

	pUnit := padToUnit(mood.Pleasure) + k*betaPleasure*(pTarget-padToUnit(mood.Pleasure))
	aUnit := padToUnit(mood.Arousal) + k*betaArousal*(aTarget-padToUnit(mood.Arousal))
	dUnit := padToUnit(mood.Dominance) + k*betaDominance*(dTarget-padToUnit(mood.Dominance))

	newBusy := clamp01(busy + 0.1*(ctx.Pressure+ctx.Confusion-ctx.Goodwill*0.5))

	return model.MoodState{
		Pleasure:  clamp(unitToPAD(pUnit), -1, 1),
		Arousal:   clamp(unitToPAD(aUnit), -1, 1),
		Dominance: clamp(unitToPAD(dUnit), -1, 1),
		Busyness:  newBusy,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// TaskOutcome bundles the evolver's effect on the user's task state.
type TaskOutcome struct {
	SessionTasks []model.BotTask
	Backlog      []model.BotTask
}

// ReconcileTasks intersects completedTaskIDs with tasksForLATS (completion
// must originate from the offered set), truncates to taskBudgetMax, removes
// completed tasks from the session pool, and bumps attempt bookkeeping for
// every attempted (but not necessarily completed) task id (section 4.16).
func ReconcileTasks(sessionTasks []model.BotTask, backlog []model.BotTask, tasksForLATS []model.BotTask, attemptedTaskIDs, completedTaskIDs []string, taskBudgetMax int, now time.Time) TaskOutcome {
	offered := make(map[string]bool, len(tasksForLATS))
	for _, t := range tasksForLATS {
		offered[t.ID] = true
	}

	completed := make(map[string]bool, len(completedTaskIDs))
	count := 0
	for _, id := range completedTaskIDs {
		if !offered[id] {
			continue
		}
		if count >= taskBudgetMax {
			break
		}
		completed[id] = true
		count++
	}

	attempted := make(map[string]bool, len(attemptedTaskIDs))
	for _, id := range attemptedTaskIDs {
		attempted[id] = true
	}

	remainingSession := make([]model.BotTask, 0, len(sessionTasks))
	for _, t := range sessionTasks {
		if completed[t.ID] {
			continue
		}
		remainingSession = append(remainingSession, t)
	}

	updatedBacklog := make([]model.BotTask, 0, len(backlog))
	for _, t := range backlog {
		if completed[t.ID] {
			continue
		}
		if attempted[t.ID] {
			t.AttemptCount++
			when := now
			t.LastAttemptAt = &when
		}
		updatedBacklog = append(updatedBacklog, t)
	}

	return TaskOutcome{SessionTasks: remainingSession, Backlog: updatedBacklog}
}
