// Package planner generates ReplyPlan candidates (C12, spec section 4.11):
// the initial plan that satisfies the requirements checklist's hard targets,
// and the LATS variant expander that diversifies strategy.
package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// StrategyTags is the fixed vocabulary variants are tagged with.
var StrategyTags = []string{
	"direct_answer", "empathy_reflect", "self_disclosure", "light_tease", "ask_back", "co_create",
}

// MMRSimilarityThreshold drops a candidate whose text similarity to an
// already-picked variant meets or exceeds this bound (section 4.11).
const MMRSimilarityThreshold = 0.88

var planSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"intent":             map[string]any{"type": "string"},
		"speech_act":         map[string]any{"type": "string"},
		"stakes":             map[string]any{"type": "string"},
		"first_message_role": map[string]any{"type": "string"},
		"pacing_strategy":    map[string]any{"type": "string"},
		"justification":      map[string]any{"type": "string"},
		"strategy_tag":       map[string]any{"type": "string"},
		"must_cover_map":     map[string]any{"type": "object"},
		"messages": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":            map[string]any{"type": "string"},
					"function":      map[string]any{"type": "string"},
					"content":       map[string]any{"type": "string"},
					"key_points":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"target_length": map[string]any{"type": "integer"},
					"info_density":  map[string]any{"type": "number"},
					"pause_after":   map[string]any{"type": "string"},
					"delay_bucket":  map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"intent", "messages"},
}

const planSystemPrompt = `You write the persona's next reply as a structured ReplyPlan. The first
message must carry a clear stance or answer, never filler. Every point
listed as must_cover must be assigned to exactly one message id in
must_cover_map. Respect max_messages, min_first_len, and the allowed and
forbidden speech acts given in the requirements.`

// Generate produces the initial ReplyPlan satisfying the checklist's hard
// targets.
func Generate(ctx context.Context, inv llm.Invoker, checklist model.RequirementsChecklist, monologue, userText string) (model.ReplyPlan, error) {
	user := fmt.Sprintf(
		"Inner monologue: %s\nUser said: %s\nMust cover: %v\nMax messages: %d\nMin first message length: %d\nAllowed acts: %v\nForbidden acts: %v\nForbidden terms: %v",
		monologue, userText, checklist.PlanGoals.MustCoverPoints, checklist.MaxMessages, checklist.MinFirstLen,
		checklist.StageTargets.AllowedActs, checklist.StageTargets.ForbiddenActs, checklist.Forbidden,
	)

	plan, err := callPlan(ctx, inv, user)
	if err != nil {
		return model.ReplyPlan{}, fmt.Errorf("planner: generate: %w", err)
	}
	normalize(&plan, checklist)
	return plan, nil
}

type rawPlan struct {
	model.ReplyPlan
}

func callPlan(ctx context.Context, inv llm.Invoker, user string) (model.ReplyPlan, error) {
	var out rawPlan
	if err := llm.CallStructured(ctx, inv, planSystemPrompt, user, planSchema, &out); err != nil {
		return model.ReplyPlan{}, err
	}
	return out.ReplyPlan, nil
}

// normalize repairs the structural invariants Validate checks: messages_count
// must match len(messages), and a non-empty must_cover set requires a
// populated must_cover_map.
func normalize(plan *model.ReplyPlan, checklist model.RequirementsChecklist) {
	plan.MessagesCount = len(plan.Messages)
	if plan.MessagesCount == 0 {
		plan.Messages = []model.ReplyMessage{{ID: "m1", Function: "answer", Content: "嗯，我在想怎么说", DelayBucket: model.DelayShort}}
		plan.MessagesCount = 1
	}
	if len(checklist.PlanGoals.MustCoverPoints) > 0 && len(plan.MustCoverMap) == 0 {
		plan.MustCoverMap = map[string]string{}
		for _, p := range checklist.PlanGoals.MustCoverPoints {
			plan.MustCoverMap[p] = plan.Messages[0].ID
		}
	}
}

// Expander implements lats.VariantExpander by asking for k tagged variants
// in one structured call, then MMR-diversifying the result.
type Expander struct {
	Invoker   llm.Invoker
	Checklist model.RequirementsChecklist
	Monologue string
	UserText  string
}

type variantBatch struct {
	Variants []rawPlan `json:"variants"`
}

var variantSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"variants": map[string]any{"type": "array", "items": planSchema},
	},
	"required": []string{"variants"},
}

const variantSystemPrompt = `You write several alternative ReplyPlans for the same turn, each using a
different strategy_tag from {direct_answer, empathy_reflect,
self_disclosure, light_tease, ask_back, co_create}. Make them genuinely
different in content and approach, not paraphrases of each other.`

// Expand satisfies lats.VariantExpander.
func (e *Expander) Expand(ctx context.Context, parent model.ReplyPlan, k int) ([]model.ReplyPlan, error) {
	if k <= 0 {
		return nil, nil
	}
	user := fmt.Sprintf(
		"Parent plan intent: %s\nInner monologue: %s\nUser said: %s\nRequest %d variants.\nMust cover: %v\n",
		parent.Intent, e.Monologue, e.UserText, k, e.Checklist.PlanGoals.MustCoverPoints,
	)

	var batch variantBatch
	if err := llm.CallStructured(ctx, e.Invoker, variantSystemPrompt, user, variantSchema, &batch); err != nil {
		return nil, fmt.Errorf("planner: expand: %w", err)
	}

	variants := make([]model.ReplyPlan, 0, len(batch.Variants))
	for _, v := range batch.Variants {
		p := v.ReplyPlan
		normalize(&p, e.Checklist)
		variants = append(variants, p)
	}
	variants = ensureDistinctTags(variants, k)
	return mmrDiversify(variants), nil
}

// ensureDistinctTags assigns a strategy tag round-robin to any variant
// missing one, and for k>=3 guarantees at least three distinct tags appear
// by relabeling tag-collisions in order.
func ensureDistinctTags(variants []model.ReplyPlan, k int) []model.ReplyPlan {
	for i := range variants {
		if variants[i].StrategyTag == "" {
			variants[i].StrategyTag = StrategyTags[i%len(StrategyTags)]
		}
	}
	if k < 3 {
		return variants
	}
	distinct := map[string]bool{}
	for _, v := range variants {
		distinct[v.StrategyTag] = true
	}
	unused := make([]string, 0, len(StrategyTags))
	for _, tag := range StrategyTags {
		if !distinct[tag] {
			unused = append(unused, tag)
		}
	}
	for i := range variants {
		if len(distinct) >= 3 {
			break
		}
		if len(unused) == 0 {
			break
		}
		counts := map[string]int{}
		for _, v := range variants {
			counts[v.StrategyTag]++
		}
		if counts[variants[i].StrategyTag] <= 1 {
			continue // relabeling this one would leave its tag unused
		}
		newTag := unused[0]
		unused = unused[1:]
		variants[i].StrategyTag = newTag
		distinct[newTag] = true
	}
	return variants
}

// mmrDiversify drops candidates whose joined-message text is too similar
// (Jaccard token overlap ≥ threshold) to an already-picked one.
func mmrDiversify(variants []model.ReplyPlan) []model.ReplyPlan {
	picked := make([]model.ReplyPlan, 0, len(variants))
	pickedTexts := make([]map[string]bool, 0, len(variants))
	for _, v := range variants {
		text := tokenSet(joinedText(v))
		tooSimilar := false
		for _, existing := range pickedTexts {
			if jaccard(text, existing) >= MMRSimilarityThreshold {
				tooSimilar = true
				break
			}
		}
		if tooSimilar {
			continue
		}
		picked = append(picked, v)
		pickedTexts = append(pickedTexts, text)
	}
	return picked
}

func joinedText(p model.ReplyPlan) string {
	parts := make([]string, len(p.Messages))
	for i, m := range p.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, " ")
}

func tokenSet(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for k := range a {
		if b[k] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
