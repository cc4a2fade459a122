// Package taskplanner assembles and scores the backlog/daily/immediate
// candidate task pool and selects what LATS should try to advance this
// turn (C10, spec section 4.9).
package taskplanner

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// MaxTasksForLATS caps tasks_for_lats (section 4.9: "tasks_for_lats ≤ 3").
const MaxTasksForLATS = 3

// systemicKeywords filters out "systemic/assistant-ish" tasks the bot
// should never treat as its own backlog item.
var systemicKeywords = []string{
	"write to memory", "summary", "record", "database", "i'll remember",
}

// understandingClassTypes is the set of near-duplicate "clarify" tasks
// deduped to at most one per section 4.9.
var understandingClassTypes = map[string]bool{
	"clarify": true, "ask_scope": true, "ask_example": true, "confirm_gap": true,
}

func isSystemic(t model.BotTask) bool {
	lower := strings.ToLower(t.Description)
	for _, kw := range systemicKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// SeedSessionPool seeds the per-user session pool with up to 3 backlog
// tasks, but only when the pool currently holds zero backlog tasks (avoids
// monotonic growth across turns), capped at model.SessionTaskPoolCap.
func SeedSessionPool(sessionPool []model.BotTask, backlog []model.BotTask) []model.BotTask {
	hasBacklog := false
	for _, t := range sessionPool {
		if t.Category != "" {
			hasBacklog = true
			break
		}
	}
	if hasBacklog || len(backlog) == 0 {
		return capPool(sessionPool)
	}
	seeded := append([]model.BotTask{}, sessionPool...)
	n := 3
	if n > len(backlog) {
		n = len(backlog)
	}
	seeded = append(seeded, backlog[:n]...)
	return capPool(seeded)
}

func capPool(pool []model.BotTask) []model.BotTask {
	if len(pool) > model.SessionTaskPoolCap {
		return pool[:model.SessionTaskPoolCap]
	}
	return pool
}

// SampleDaily picks up to n tasks from the daily candidate pool.
func SampleDaily(daily []model.BotTask, n int, r *rand.Rand) []model.BotTask {
	if r == nil {
		r = rand.New(rand.NewPCG(1, 2))
	}
	if n > len(daily) {
		n = len(daily)
	}
	shuffled := append([]model.BotTask{}, daily...)
	r.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled[:n]
}

// AssemblePool builds the candidate pool: session tasks ∪ sampled daily(2)
// ∪ new immediate tasks from detection, filtering out systemic tasks and
// deduping understanding-class tasks to at most one.
func AssemblePool(sessionTasks, daily, immediate []model.BotTask, r *rand.Rand) []model.BotTask {
	pool := append([]model.BotTask{}, sessionTasks...)
	pool = append(pool, SampleDaily(daily, 2, r)...)
	pool = append(pool, immediate...)

	filtered := make([]model.BotTask, 0, len(pool))
	seenUnderstanding := false
	for _, t := range pool {
		if isSystemic(t) {
			continue
		}
		if understandingClassTypes[t.TaskType] {
			if seenUnderstanding {
				continue
			}
			seenUnderstanding = true
		}
		filtered = append(filtered, t)
	}
	return capPool(filtered)
}

type scoreResponse struct {
	Scores []float64 `json:"scores"`
}

var scoreSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"scores": map[string]any{"type": "array", "items": map[string]any{"type": "number"}},
	},
	"required": []string{"scores"},
}

const scoreSystemPrompt = `You score how valuable each candidate task is to pursue in the persona's
next reply, given the conversation context. Return one float score in
[0,1] per candidate, in the same order they were given, higher meaning
more worth pursuing right now.`

// Score runs the single LLM call producing scores[0..n] for the pool.
func Score(ctx context.Context, inv llm.Invoker, pool []model.BotTask, context_ string) ([]float64, error) {
	if len(pool) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString(context_)
	sb.WriteString("\nCandidates:\n")
	for i, t := range pool {
		fmt.Fprintf(&sb, "%d. %s (%s)\n", i, t.Description, t.Category)
	}

	var out scoreResponse
	if err := llm.CallStructured(ctx, inv, scoreSystemPrompt, sb.String(), scoreSchema, &out); err != nil {
		return nil, fmt.Errorf("taskplanner: score: %w", err)
	}
	for len(out.Scores) < len(pool) {
		out.Scores = append(out.Scores, 0)
	}
	return out.Scores[:len(pool)], nil
}

// scoredTask pairs a candidate task with its LLM-assigned score.
type scoredTask struct {
	task  model.BotTask
	score float64
}

// Select picks the top-2 by score deterministically, then a third by
// temperature-parameterized weighted-random over the remainder, capped at
// MaxTasksForLATS.
func Select(pool []model.BotTask, scores []float64, temperature float64, r *rand.Rand) []model.BotTask {
	if r == nil {
		r = rand.New(rand.NewPCG(1, 2))
	}
	if len(pool) == 0 {
		return nil
	}

	indexed := make([]scoredTask, len(pool))
	for i, t := range pool {
		indexed[i] = scoredTask{task: t, score: scores[i]}
	}
	sort.SliceStable(indexed, func(i, j int) bool { return indexed[i].score > indexed[j].score })

	selected := make([]model.BotTask, 0, MaxTasksForLATS)
	top := 2
	if top > len(indexed) {
		top = len(indexed)
	}
	for i := 0; i < top; i++ {
		selected = append(selected, indexed[i].task)
	}
	remainder := indexed[top:]
	if len(remainder) > 0 && len(selected) < MaxTasksForLATS {
		selected = append(selected, weightedPick(remainder, temperature, r).task)
	}

	if len(selected) > MaxTasksForLATS {
		selected = selected[:MaxTasksForLATS]
	}
	return selected
}

func weightedPick(candidates []scoredTask, temperature float64, r *rand.Rand) scoredTask {
	if temperature <= 0 {
		temperature = 1
	}
	weights := make([]float64, len(candidates))
	total := 0.0
	for i, c := range candidates {
		w := expApprox(c.score / temperature)
		weights[i] = w
		total += w
	}
	if total <= 0 {
		return candidates[0]
	}
	target := r.Float64() * total
	cum := 0.0
	for i, w := range weights {
		cum += w
		if target <= cum {
			return candidates[i]
		}
	}
	return candidates[len(candidates)-1]
}

// expApprox avoids importing math just for a softmax exponential weight;
// a first-order Taylor-style positive mapping is enough since this feeds a
// weighted-random tiebreak, not a probability model that needs to be exact.
func expApprox(x float64) float64 {
	if x < -10 {
		return 1e-5
	}
	// (1 + x/n)^n with n=64 converges closely to e^x for the bounded score
	// range (scores live in [0,1], temperature keeps x small).
	v := 1 + x/64
	for i := 0; i < 6; i++ {
		v *= v
	}
	if v < 1e-5 {
		return 1e-5
	}
	return v
}
