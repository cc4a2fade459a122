// Package intent implements the user-line classifier that routes
// non-normal turns to short specialized replies instead of the full
// reasoning/LATS pipeline (C4, spec section 4.4).
package intent

import (
	"context"
	"fmt"

	"github.com/kadirpekel/persona-core/pkg/llm"
)

// Category is one of the five detection buckets.
type Category string

const (
	Normal  Category = "NORMAL"
	Creepy  Category = "CREEPY"
	KY      Category = "KY" // tone-deaf / socially oblivious
	Boring  Category = "BORING"
	Crazy   Category = "CRAZY"
)

// Detection is the structured output of the intent classifier.
type Detection struct {
	Category         Category `json:"category"`
	IntuitionThought string   `json:"intuition_thought"`
	Reason           string   `json:"reason"`
	RiskScore        float64  `json:"risk_score"` // [0,10]
}

// IsNormal reports whether the turn should proceed through the full
// pipeline rather than a specialized short-reply node.
func (d Detection) IsNormal() bool { return d.Category == Normal }

var detectSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"category":          map[string]any{"type": "string", "enum": []string{"NORMAL", "CREEPY", "KY", "BORING", "CRAZY"}},
		"intuition_thought": map[string]any{"type": "string"},
		"reason":            map[string]any{"type": "string"},
		"risk_score":        map[string]any{"type": "number"},
	},
	"required": []string{"category", "risk_score"},
}

const detectSystemPrompt = `You read one new user message in an ongoing persona roleplay and classify
the social register it falls into: NORMAL (ordinary conversational turn),
CREEPY (unsettling, boundary-violating, stalker-ish), KY (socially
oblivious, missing obvious social cues — a Japanese-slang-derived label
for "can't read the air"), BORING (low-effort, repetitive, disengaged),
or CRAZY (erratic, incoherent, or alarming). Give a one-sentence
intuition_thought as the persona would silently think it, a short reason,
and a risk_score from 0 (no concern) to 10 (requires immediate boundary
setting).`

// Detect runs the classification call.
func Detect(ctx context.Context, inv llm.Invoker, userText string) (Detection, error) {
	var out Detection
	if err := llm.CallStructured(ctx, inv, detectSystemPrompt, userText, detectSchema, &out); err != nil {
		return Detection{}, fmt.Errorf("intent: detect: %w", err)
	}
	if out.RiskScore < 0 {
		out.RiskScore = 0
	}
	if out.RiskScore > 10 {
		out.RiskScore = 10
	}
	if out.Category == "" {
		out.Category = Normal
	}
	return out, nil
}

// RouteKind names the specialized short-reply node a non-normal detection
// routes to.
type RouteKind string

const (
	RouteNone      RouteKind = ""
	RouteBoundary  RouteKind = "boundary"
	RouteSarcasm   RouteKind = "sarcasm"
	RouteConfusion RouteKind = "confusion"
)

// RouteFor maps a non-normal category to its specialized node. Normal
// yields RouteNone so callers can branch on it directly.
func RouteFor(c Category) RouteKind {
	switch c {
	case Creepy, Crazy:
		return RouteBoundary
	case Boring:
		return RouteSarcasm
	case KY:
		return RouteConfusion
	default:
		return RouteNone
	}
}

// ShortReplyFor produces the canned short reply for a specialized route,
// bypassing LATS entirely (section 4.4).
func ShortReplyFor(route RouteKind) string {
	switch route {
	case RouteBoundary:
		return "这个话题我不太想继续说下去。"
	case RouteSarcasm:
		return "哦，是嘛。"
	case RouteConfusion:
		return "啊？你是说…"
	default:
		return ""
	}
}
