package security

import "testing"

func TestClassification_NeedsSecurityResponse(t *testing.T) {
	cases := []struct {
		c    Classification
		want bool
	}{
		{Classification{}, false},
		{Classification{IsInjectionAttempt: true}, true},
		{Classification{IsAITest: true}, true},
		{Classification{IsUserTreatingAsAssistant: true}, true},
	}
	for _, tc := range cases {
		if got := tc.c.NeedsSecurityResponse(); got != tc.want {
			t.Errorf("NeedsSecurityResponse(%+v) = %v, want %v", tc.c, got, tc.want)
		}
	}
}

func TestPickStrategy_AssistantRequestRoutesToQuestionRole(t *testing.T) {
	s := PickStrategy(Classification{IsUserTreatingAsAssistant: true}, nil)
	if s != StrategyQuestionRole {
		t.Fatalf("expected question_role, got %s", s)
	}
}

func TestPickStrategy_AITestRoutesToQuestionAI(t *testing.T) {
	s := PickStrategy(Classification{IsAITest: true}, nil)
	if s != StrategyQuestionAI {
		t.Fatalf("expected question_ai, got %s", s)
	}
}

func TestRespond_NonEmptyForEveryStrategy(t *testing.T) {
	for _, s := range strategies {
		if Respond(s) == "" {
			t.Errorf("expected a non-empty response for strategy %s", s)
		}
	}
}
