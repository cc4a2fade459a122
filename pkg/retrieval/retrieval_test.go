package retrieval

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestTopKFor(t *testing.T) {
	if TopKFor(mode.Mute) != 0 {
		t.Fatal("expected mute_mode to skip retrieval")
	}
	if TopKFor(mode.Cold) != 3 {
		t.Fatal("expected cold_mode top_k=3")
	}
	if TopKFor(mode.Normal) != 8 {
		t.Fatal("expected normal_mode top_k=8")
	}
}

func TestSeeds_PrefersPlanQuerySeedsOverFallback(t *testing.T) {
	plan := &model.ResponsePlanAlternative{
		SearchSpec: model.SearchSpec{Enabled: true, QuerySeeds: []string{"climbing", "trip"}},
	}
	got := Seeds(plan, model.StageInitiating, model.DefaultDimensions(), nil, "irrelevant text here", nil)
	want := map[string]bool{"climbing": true, "trip": true}
	if len(got) != 2 {
		t.Fatalf("expected exactly the plan's seeds, got %v", got)
	}
	for _, s := range got {
		if !want[s] {
			t.Errorf("unexpected seed %q leaked in despite enabled plan seeds", s)
		}
	}
}

func TestSeeds_FallsBackWhenNoPlan(t *testing.T) {
	got := Seeds(nil, model.StageInitiating, model.DefaultDimensions(), nil, "talking about climbing gear", nil)
	if len(got) == 0 {
		t.Fatal("expected fallback seeds from user text tokens")
	}
}
