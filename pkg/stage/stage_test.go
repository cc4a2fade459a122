package stage

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestNext_GlobalCrashTerminatesRegardlessOfStage(t *testing.T) {
	dims := model.RelationshipDimensions{Trust: -0.25, Closeness: 0.5}
	got := Next(model.StageBonding, dims, RawDeltas{}, SPTTransition{})
	if got != model.StageTerminating {
		t.Fatalf("expected global crash to terminate, got %v", got)
	}
}

func TestNext_JumpEventTrustDropTerminates(t *testing.T) {
	dims := model.DefaultDimensions()
	got := Next(model.StageIntensifying, dims, RawDeltas{Trust: -35}, SPTTransition{})
	if got != model.StageTerminating {
		t.Fatalf("expected large trust drop to terminate, got %v", got)
	}
}

func TestNext_JumpEventLikingDropDifferentiates(t *testing.T) {
	dims := model.DefaultDimensions()
	got := Next(model.StageBonding, dims, RawDeltas{Liking: -26}, SPTTransition{})
	if got != model.StageDifferentiating {
		t.Fatalf("expected large liking drop to differentiate, got %v", got)
	}
}

func TestNext_GrowthInitiatingToExperimenting(t *testing.T) {
	dims := model.RelationshipDimensions{Closeness: 0.15, Trust: 0.3, Liking: 0.3, Respect: 0.3, Warmth: 0.3, Power: 0.5}
	got := Next(model.StageInitiating, dims, RawDeltas{}, SPTTransition{})
	if got != model.StageExperimenting {
		t.Fatalf("expected growth to experimenting, got %v", got)
	}
}

func TestNext_GrowthRequiresAllThresholds(t *testing.T) {
	dims := model.RelationshipDimensions{Closeness: 0.45, Trust: 0.2, Liking: 0.3, Respect: 0.3, Warmth: 0.3, Power: 0.5}
	got := Next(model.StageExperimenting, dims, RawDeltas{}, SPTTransition{Current: 2})
	if got != model.StageExperimenting {
		t.Fatalf("expected to stay put when trust threshold unmet, got %v", got)
	}
}

func TestNext_DecayBondingToDifferentiating(t *testing.T) {
	dims := model.RelationshipDimensions{Closeness: 0.7, Trust: 0.9, Liking: 0.3, Respect: 0.9, Warmth: 0.9, Power: 0.5}
	got := Next(model.StageBonding, dims, RawDeltas{}, SPTTransition{})
	if got != model.StageDifferentiating {
		t.Fatalf("expected decay to differentiating on low liking, got %v", got)
	}
}

func TestNext_DecayCircumscribingToStagnatingRequiresLowSPT(t *testing.T) {
	dims := model.RelationshipDimensions{Closeness: 0.5, Trust: 0.5, Liking: 0.5, Respect: 0.5, Warmth: 0.2, Power: 0.5}
	got := Next(model.StageCircumscribing, dims, RawDeltas{}, SPTTransition{Current: 1})
	if got != model.StageStagnating {
		t.Fatalf("expected decay to stagnating, got %v", got)
	}
}

func TestNext_NoTransitionKeepsCurrentStage(t *testing.T) {
	dims := model.DefaultDimensions()
	got := Next(model.StageCircumscribing, dims, RawDeltas{}, SPTTransition{Current: 3})
	if got != model.StageCircumscribing {
		t.Fatalf("expected no transition to keep current stage, got %v", got)
	}
}
