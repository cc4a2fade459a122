package taskplanner

import (
	"math/rand/v2"
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestAssemblePool_FiltersSystemicAndDedupesUnderstanding(t *testing.T) {
	pool := AssemblePool(
		[]model.BotTask{
			{ID: "a", Description: "ask what coffee she likes", TaskType: "ask_scope"},
			{ID: "b", Description: "ask for an example of her day", TaskType: "ask_example"},
			{ID: "c", Description: "write to memory her birthday", TaskType: "note"},
		},
		nil, nil, rand.New(rand.NewPCG(1, 1)),
	)
	if len(pool) != 1 {
		t.Fatalf("expected systemic task dropped and understanding-class deduped to 1, got %d: %+v", len(pool), pool)
	}
}

func TestSeedSessionPool_OnlySeedsWhenEmpty(t *testing.T) {
	backlog := []model.BotTask{
		{ID: "b1", Category: model.CategoryDailyNeeds},
		{ID: "b2", Category: model.CategoryDailyNeeds},
	}
	seeded := SeedSessionPool(nil, backlog)
	if len(seeded) != 2 {
		t.Fatalf("expected backlog seeded into empty pool, got %d", len(seeded))
	}

	alreadyHasBacklog := []model.BotTask{{ID: "existing", Category: model.CategoryDailyNeeds}}
	notReseeded := SeedSessionPool(alreadyHasBacklog, backlog)
	if len(notReseeded) != 1 {
		t.Fatalf("expected no reseed when pool already has backlog, got %d", len(notReseeded))
	}
}

func TestSelect_TopTwoAreDeterministic(t *testing.T) {
	pool := []model.BotTask{{ID: "low"}, {ID: "high"}, {ID: "mid"}}
	scores := []float64{0.1, 0.9, 0.5}
	r := rand.New(rand.NewPCG(1, 1))

	selected := Select(pool, scores, 1.0, r)
	if len(selected) == 0 || selected[0].ID != "high" || selected[1].ID != "mid" {
		t.Fatalf("expected top two by score first, got %+v", selected)
	}
	if len(selected) > MaxTasksForLATS {
		t.Fatalf("expected at most %d selected tasks, got %d", MaxTasksForLATS, len(selected))
	}
}

func TestSelect_EmptyPoolReturnsNil(t *testing.T) {
	if got := Select(nil, nil, 1.0, nil); got != nil {
		t.Fatalf("expected nil for empty pool, got %+v", got)
	}
}
