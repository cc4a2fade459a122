package planner

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestNormalize_FixesMessagesCountAndMustCoverMap(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{{ID: "m1"}, {ID: "m2"}}}
	checklist := model.RequirementsChecklist{PlanGoals: model.PlanGoals{MustCoverPoints: []string{"likes climbing"}}}
	normalize(&plan, checklist)

	if plan.MessagesCount != 2 {
		t.Fatalf("expected messages_count fixed to 2, got %d", plan.MessagesCount)
	}
	if plan.MustCoverMap["likes climbing"] == "" {
		t.Fatal("expected must_cover_map populated for the must-cover point")
	}
}

func TestNormalize_FallsBackToSingleMessageWhenEmpty(t *testing.T) {
	plan := model.ReplyPlan{}
	normalize(&plan, model.RequirementsChecklist{})
	if plan.MessagesCount != 1 || len(plan.Messages) != 1 {
		t.Fatalf("expected a single fallback message, got %+v", plan)
	}
}

func TestEnsureDistinctTags_GuaranteesThreeForKThree(t *testing.T) {
	variants := []model.ReplyPlan{
		{StrategyTag: "direct_answer"},
		{StrategyTag: "direct_answer"},
		{StrategyTag: "direct_answer"},
	}
	out := ensureDistinctTags(variants, 3)
	distinct := map[string]bool{}
	for _, v := range out {
		distinct[v.StrategyTag] = true
	}
	if len(distinct) < 3 {
		t.Fatalf("expected at least 3 distinct strategy tags, got %v", distinct)
	}
}

func TestMMRDiversify_DropsNearDuplicateText(t *testing.T) {
	variants := []model.ReplyPlan{
		{Messages: []model.ReplyMessage{{Content: "I really love climbing on weekends with my friends"}}},
		{Messages: []model.ReplyMessage{{Content: "I really love climbing on weekends with my friends too"}}},
		{Messages: []model.ReplyMessage{{Content: "totally unrelated content about cooking dinner"}}},
	}
	out := mmrDiversify(variants)
	if len(out) != 2 {
		t.Fatalf("expected near-duplicate dropped, got %d survivors", len(out))
	}
}

func TestJaccard_IdenticalSetsAreOne(t *testing.T) {
	a := tokenSet("hello world")
	b := tokenSet("hello world")
	if jaccard(a, b) != 1 {
		t.Fatalf("expected identical token sets to score 1.0, got %f", jaccard(a, b))
	}
}
