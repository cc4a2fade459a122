package lats

import (
	"context"
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

type fakeExpander struct{ calls int }

func (f *fakeExpander) Expand(ctx context.Context, parent model.ReplyPlan, k int) ([]model.ReplyPlan, error) {
	f.calls++
	out := make([]model.ReplyPlan, 0, k)
	for i := 0; i < k; i++ {
		out = append(out, model.ReplyPlan{Intent: "variant", MessagesCount: 1, Messages: []model.ReplyMessage{{ID: "m1", Content: "hi"}}})
	}
	return out, nil
}

type fakeEvaluator struct{ scoreIncrement float64 }

func (f *fakeEvaluator) EvaluateHeuristic(ctx context.Context, plan model.ReplyPlan) (model.SimReport, error) {
	f.scoreIncrement += 0.05
	score := f.scoreIncrement
	if score > 1 {
		score = 1
	}
	return model.SimReport{EvalScore: score, FoundSolution: score >= 0.85}, nil
}

func (f *fakeEvaluator) EvaluateLLM(ctx context.Context, plan model.ReplyPlan, heuristic model.SimReport) (LLMGateScores, model.SimReport, error) {
	return LLMGateScores{PlanAlignment: 0.9, Assistantiness: 0.1}, heuristic, nil
}

func TestRun_ZeroBudgetReturnsRootUnexpanded(t *testing.T) {
	expander := &fakeExpander{}
	evaluator := &fakeEvaluator{}
	root := model.ReplyPlan{Intent: "root", MessagesCount: 1, Messages: []model.ReplyMessage{{ID: "m0"}}}

	result, err := Run(context.Background(), root, Config{Rollouts: 0, ExpandK: 0}, expander, evaluator, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Best != result.Root {
		t.Fatal("expected best to be the unexpanded root")
	}
	if expander.calls != 0 {
		t.Fatal("expected no expansion calls with zero budget")
	}
}

func TestRun_ExpandsAndBackpropagates(t *testing.T) {
	expander := &fakeExpander{}
	evaluator := &fakeEvaluator{}
	root := model.ReplyPlan{Intent: "root", MessagesCount: 1, Messages: []model.ReplyMessage{{ID: "m0"}}}

	result, err := Run(context.Background(), root, Config{Rollouts: 3, ExpandK: 2, MinRolloutsBeforeEarlyExit: 99}, expander, evaluator, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Root.Visits == 0 {
		t.Fatal("expected root to accumulate visits via backprop")
	}
	if len(result.Root.Children) == 0 {
		t.Fatal("expected at least one expansion")
	}
}

func TestPatch_TickExpiresAfterTTL(t *testing.T) {
	p := NewPatch(2)
	if !p.Alive() {
		t.Fatal("expected freshly created patch to be alive")
	}
	if !p.Tick() {
		t.Fatal("expected patch to survive its first tick")
	}
	if p.Tick() {
		t.Fatal("expected patch to expire after ttl_turns ticks")
	}
	if p.Alive() {
		t.Fatal("expected expired patch to report not alive")
	}
}

func TestFailureTally_RecurringThreshold(t *testing.T) {
	tally := NewFailureTally()
	tally.Record([]string{"unsolicited_advice"})
	if len(tally.Recurring()) != 0 {
		t.Fatal("expected no recurring ids after a single occurrence")
	}
	tally.Record([]string{"unsolicited_advice"})
	recurring := tally.Recurring()
	if len(recurring) != 1 || recurring[0] != "unsolicited_advice" {
		t.Fatalf("expected unsolicited_advice to recur, got %v", recurring)
	}
}
