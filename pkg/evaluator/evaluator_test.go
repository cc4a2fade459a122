package evaluator

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestHardGate_FlagsIdentitySelfDeclaration(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "I am an AI assistant here to help"}}}
	failed := HardGate(plan, model.RequirementsChecklist{MinFirstLen: 0, AllowShortReply: true})
	found := false
	for _, f := range failed {
		if f.ID == "identity_self_declaration" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected identity_self_declaration failure, got %+v", failed)
	}
}

func TestHardGate_FlagsUnsolicitedAdvice(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "you should first calm down then talk to them"}}}
	failed := HardGate(plan, model.RequirementsChecklist{UserAsksAdvice: false, AllowShortReply: true})
	found := false
	for _, f := range failed {
		if f.ID == "unsolicited_advice" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected unsolicited_advice failure when user did not ask for advice")
	}
}

func TestHardGate_AllowsAdviceWhenUserAsked(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "you should first calm down then talk to them"}}}
	failed := HardGate(plan, model.RequirementsChecklist{UserAsksAdvice: true, AllowShortReply: true})
	for _, f := range failed {
		if f.ID == "unsolicited_advice" {
			t.Fatal("did not expect unsolicited_advice failure when user asked for advice")
		}
	}
}

func TestEvaluateHeuristic_FoundSolutionRequiresHardPassAndThreshold(t *testing.T) {
	e := &Evaluator{
		Checklist: model.RequirementsChecklist{AllowShortReply: true, MaxMessages: 4, StyleTargets: model.NeutralStyle()},
		Mode:      mode.Normal,
		Weights:   DefaultWeights,
	}
	goodPlan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "那次爬山真的很开心，你呢？"}}}
	report, err := e.EvaluateHeuristic(nil, goodPlan)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.FailedChecks) != 0 && report.FoundSolution {
		t.Fatal("found_solution should require hard_pass")
	}
	wantFound := len(report.FailedChecks) == 0 && report.EvalScore >= 0.55
	if report.FoundSolution != wantFound {
		t.Fatalf("found_solution should equal hard_pass && eval_score >= 0.55, got %v (score %f)", report.FoundSolution, report.EvalScore)
	}
}

func TestEvaluateHeuristic_HardFailMultipliesScoreDown(t *testing.T) {
	e := &Evaluator{
		Checklist: model.RequirementsChecklist{MinFirstLen: 50, StyleTargets: model.NeutralStyle()},
		Mode:      mode.Normal,
		Weights:   DefaultWeights,
	}
	shortPlan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "ok"}}}
	report, _ := e.EvaluateHeuristic(nil, shortPlan)
	if report.FoundSolution {
		t.Fatal("expected found_solution false on hard gate failure")
	}
}
