// Package reasoner emits the ResponsePlan that downstream stages target
// (C7, spec section 4.6), grounded on the teacher's structured
// goal-extraction call shape (pkg/reasoning/goals.go::ExtractGoals).
package reasoner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/model"
)

var responsePlanSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"user_intent": map[string]any{"type": "string"},
		"plans": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"id":                map[string]any{"type": "string"},
					"weight":            map[string]any{"type": "number"},
					"action":            map[string]any{"type": "string"},
					"information_needs": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"core_points":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"search_spec": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"enabled":         map[string]any{"type": "boolean"},
							"query_seeds":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"must_cover":      map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"optional_topics": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						},
					},
					"evaluation_rubric": map[string]any{
						"type": "object",
						"properties": map[string]any{
							"success_criteria": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"failure_modes":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
							"quality_threshold": map[string]any{"type": "number"},
						},
					},
					"stop_conditions":     map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"fallback_conditions": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
				"required": []string{"id", "action"},
			},
		},
		"speech_act":       map[string]any{"type": "string"},
		"user_asks_advice": map[string]any{"type": "boolean"},
		"confusion":        map[string]any{"type": "number"},
	},
	"required": []string{"user_intent", "plans"},
}

type rawResponse struct {
	model.ResponsePlan
	SpeechAct      string  `json:"speech_act"`
	UserAsksAdvice bool    `json:"user_asks_advice"`
	Confusion      float64 `json:"confusion"`
}

// Result bundles the ResponsePlan with the out-of-band signals the
// requirements compiler and evaluator need downstream.
type Result struct {
	Plan           model.ResponsePlan
	SpeechAct      string
	UserAsksAdvice bool
	Confusion      float64
}

const systemPrompt = `You are the reasoning layer behind a persona roleplay agent (not an
assistant). Given the persona's inner monologue and the user's message,
produce a ResponsePlan: the user's underlying intent and one or two
candidate response plans, each with an action, core points to make, and
a search_spec describing what (if anything) to recall from memory.
Emit exactly two plans only when the user's message is genuinely
ambiguous, confusing, multi-intent, or could be about more than one
person or topic; otherwise emit exactly one. Weights need not sum to 1;
they will be renormalized.`

var adviceRegex = regexp.MustCompile(`(?i)(can you (help|tell me)|what should i do|advice|帮我|建议|怎么办)`)

// Plan runs the structured reasoner call and normalizes its output.
func Plan(ctx context.Context, inv llm.Invoker, monologue, userText string) (Result, error) {
	var raw rawResponse
	user := fmt.Sprintf("Inner monologue: %s\nUser message: %s", monologue, userText)
	if err := llm.CallStructured(ctx, inv, systemPrompt, user, responsePlanSchema, &raw); err != nil {
		return Result{}, fmt.Errorf("reasoner: plan: %w", err)
	}

	plan := raw.ResponsePlan
	if len(plan.Plans) == 0 {
		plan.Plans = []model.ResponsePlanAlternative{{ID: "p1", Weight: 1, Action: "respond"}}
	}
	if len(plan.Plans) > 2 {
		plan.Plans = plan.Plans[:2]
	}
	plan.NormalizeWeights()

	userAsksAdvice := raw.UserAsksAdvice || adviceRegex.MatchString(strings.ToLower(userText))

	return Result{
		Plan:           plan,
		SpeechAct:      raw.SpeechAct,
		UserAsksAdvice: userAsksAdvice,
		Confusion:      raw.Confusion,
	}, nil
}
