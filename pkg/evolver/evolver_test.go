package evolver

import (
	"testing"
	"time"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestReactivityFactor_RisesWithConflictAndBoundaryNeed(t *testing.T) {
	calm := ReactivityFactor(StageContext{})
	tense := ReactivityFactor(StageContext{ConflictEff: 1, Betrayal: 1})
	if tense <= calm {
		t.Fatalf("expected reactivity to rise with conflict/boundary need: calm=%f tense=%f", calm, tense)
	}
}

func TestRegressMood_MovesTowardTarget(t *testing.T) {
	mood := model.MoodState{Pleasure: -0.8, Arousal: 0, Dominance: 0, Busyness: 0.1}
	dims := model.RelationshipDimensions{Liking: 0.8, Warmth: 0.8, Closeness: 0.8, Trust: 0.8, Respect: 0.8, Power: 0.5}
	out := RegressMood(mood, dims, StageContext{})
	if out.Pleasure <= mood.Pleasure {
		t.Fatalf("expected pleasure to regress upward toward a positive target, got %f -> %f", mood.Pleasure, out.Pleasure)
	}
	if out.Busyness != mood.Busyness {
		t.Fatal("expected busyness unchanged when pressure, confusion and goodwill are all zero")
	}
}

func TestBoundaryNeed_IncludesTooDistantTooColdTerm(t *testing.T) {
	withoutCold := StageContext{Betrayal: 1}.BoundaryNeed()
	withCold := StageContext{Betrayal: 1, TooDistantCold: 1}.BoundaryNeed()
	if withCold <= withoutCold {
		t.Fatalf("expected too-distant-too-cold to raise boundary need: without=%f with=%f", withoutCold, withCold)
	}
}

func TestUnease_RisesWithPossessivenessAndPowerMove(t *testing.T) {
	base := StageContext{TooCloseTooFast: 1}.Unease()
	withMore := StageContext{TooCloseTooFast: 1, Possessiveness: 1, PowerMove: 1}.Unease()
	if withMore <= base {
		t.Fatalf("expected possessiveness/power-move to raise unease: base=%f with=%f", base, withMore)
	}
}

func TestRegressMood_DominanceFollowsPowerTilt(t *testing.T) {
	mood := model.MoodState{}
	dominant := model.RelationshipDimensions{Power: 0.9, Liking: 0.5, Warmth: 0.5, Closeness: 0.5, Trust: 0.5, Respect: 0.5}
	submissive := model.RelationshipDimensions{Power: 0.1, Liking: 0.5, Warmth: 0.5, Closeness: 0.5, Trust: 0.5, Respect: 0.5}
	outDominant := RegressMood(mood, dominant, StageContext{})
	outSubmissive := RegressMood(mood, submissive, StageContext{})
	if outDominant.Dominance <= outSubmissive.Dominance {
		t.Fatalf("expected higher relationship power to pull dominance higher: dominant=%f submissive=%f", outDominant.Dominance, outSubmissive.Dominance)
	}
}

func TestReconcileTasks_OnlyCompletesOfferedTasksWithinBudget(t *testing.T) {
	session := []model.BotTask{{ID: "t1"}, {ID: "t2"}}
	offered := []model.BotTask{{ID: "t1"}, {ID: "t2"}}
	out := ReconcileTasks(session, nil, offered, nil, []string{"t1", "not-offered"}, 2, time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC))
	if len(out.SessionTasks) != 1 || out.SessionTasks[0].ID != "t2" {
		t.Fatalf("expected only the offered+completed task removed, got %+v", out.SessionTasks)
	}
}

func TestReconcileTasks_BumpsAttemptCountForAttemptedBacklog(t *testing.T) {
	backlog := []model.BotTask{{ID: "b1", AttemptCount: 1}}
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	out := ReconcileTasks(nil, backlog, nil, []string{"b1"}, nil, 2, now)
	if out.Backlog[0].AttemptCount != 2 {
		t.Fatalf("expected attempt_count bumped to 2, got %d", out.Backlog[0].AttemptCount)
	}
	if out.Backlog[0].LastAttemptAt == nil || !out.Backlog[0].LastAttemptAt.Equal(now) {
		t.Fatal("expected last_attempt_at set to now")
	}
}
