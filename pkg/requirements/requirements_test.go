package requirements

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestCompile_AugmentsForbiddenWithImmersionBreakingWords(t *testing.T) {
	cs := Compile(Input{Mode: mode.Normal, Stage: model.StageInitiating, ForbiddenTerms: []string{"AI助手"}})
	found := map[string]bool{}
	for _, f := range cs.Forbidden {
		found[f] = true
	}
	if !found["AI助手"] || !found["人设"] {
		t.Fatalf("expected both custom and immersion-breaking terms present, got %v", cs.Forbidden)
	}
}

func TestCompile_LiftsMaxMessagesForHighWordBudget(t *testing.T) {
	low := Compile(Input{Mode: mode.Normal, Stage: model.StageInitiating, WordBudget: 20})
	high := Compile(Input{Mode: mode.Normal, Stage: model.StageInitiating, WordBudget: 50})
	if high.MaxMessages != low.MaxMessages+2 {
		t.Fatalf("expected +2 max_messages lift for word_budget>40, got low=%d high=%d", low.MaxMessages, high.MaxMessages)
	}
}

func TestCompile_UserAsksAdviceDetectedByRegexFallback(t *testing.T) {
	cs := Compile(Input{Mode: mode.Normal, Stage: model.StageInitiating, UserText: "what should i do about this"})
	if !cs.UserAsksAdvice {
		t.Fatal("expected advice regex to flag user_asks_advice")
	}
}

func TestCompile_StageActsFollowFixedTable(t *testing.T) {
	cs := Compile(Input{Mode: mode.Normal, Stage: model.StageInitiating})
	forbidden := map[string]bool{}
	for _, f := range cs.StageTargets.ForbiddenActs {
		forbidden[f] = true
	}
	if !forbidden["commitment_push"] {
		t.Fatal("expected initiating stage to forbid commitment_push")
	}
}

func TestCompile_MuteModeForcesNoMustHave(t *testing.T) {
	plan := &model.ResponsePlanAlternative{CorePoints: []string{"ask about trip"}}
	cs := Compile(Input{Mode: mode.Mute, Stage: model.StageInitiating, Plan: plan})
	if cs.MustHavePolicy != model.MustHaveNone {
		t.Fatalf("expected mute mode to force must_have_policy=none, got %v", cs.MustHavePolicy)
	}
}
