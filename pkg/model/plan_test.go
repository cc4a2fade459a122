package model

import "testing"

func TestReplyPlanValidate_CountMismatch(t *testing.T) {
	p := &ReplyPlan{MessagesCount: 2, Messages: []ReplyMessage{{ID: "m1"}}}
	if err := p.Validate(nil); err == nil {
		t.Fatal("expected error for messages_count mismatch")
	}
}

func TestReplyPlanValidate_MissingMustCoverMap(t *testing.T) {
	p := &ReplyPlan{MessagesCount: 1, Messages: []ReplyMessage{{ID: "m1"}}}
	if err := p.Validate([]string{"point-a"}); err == nil {
		t.Fatal("expected error when must_cover_points is set without must_cover_map")
	}

	p.MustCoverMap = map[string]string{"point-a": "m1"}
	if err := p.Validate([]string{"point-a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNormalizeWeights(t *testing.T) {
	p := &ResponsePlan{Plans: []ResponsePlanAlternative{{Weight: 3}, {Weight: 1}}}
	p.NormalizeWeights()
	if p.Plans[0].Weight != 0.75 || p.Plans[1].Weight != 0.25 {
		t.Fatalf("unexpected normalized weights: %+v", p.Plans)
	}
}

func TestNormalizeWeights_ZeroSum(t *testing.T) {
	p := &ResponsePlan{Plans: []ResponsePlanAlternative{{Weight: 0}, {Weight: 0}}}
	p.NormalizeWeights()
	if p.Plans[0].Weight != 0.5 || p.Plans[1].Weight != 0.5 {
		t.Fatalf("expected uniform split on zero-sum weights, got %+v", p.Plans)
	}
}

func TestDefaultDimensions(t *testing.T) {
	d := DefaultDimensions()
	if d.Power != 0.5 {
		t.Fatalf("expected power default 0.5, got %v", d.Power)
	}
	for _, name := range []string{"closeness", "trust", "liking", "respect", "warmth"} {
		if d.Map()[name] != 0.3 {
			t.Fatalf("expected %s default 0.3, got %v", name, d.Map()[name])
		}
	}
}
