// Package perception produces the persona's first-person inner monologue
// for a turn (C6, spec section 4.6) — deliberately forbidden from using
// strategy/plan vocabulary, since it models felt reaction, not decision.
package perception

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// forbiddenPhrases catches strategy/plan vocabulary that would leak
// planning language into what should be felt reaction.
var forbiddenPhrases = regexp.MustCompile(`(?i)\b(i will|i'm going to|steps?:|my plan|i plan to)\b`)

const systemPromptTemplate = `You are %s's inner monologue — private, first-person, felt reaction to
what the other person just said. Never describe a plan or strategy; never
write "I will...", "steps...", or "my plan is...". Just the immediate
feeling and impression, two to four sentences.`

var monologueSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"monologue": map[string]any{"type": "string"},
	},
	"required": []string{"monologue"},
}

// Monologue generates the inner-monologue text in a single model call. Lines
// that use forbidden vocabulary are dropped by sanitize; if nothing is left,
// the monologue is "...". There is no second call.
func Monologue(ctx context.Context, inv llm.Invoker, bot model.Bot, userText string) (string, error) {
	var out struct {
		Monologue string `json:"monologue"`
	}
	system := fmt.Sprintf(systemPromptTemplate, bot.Name)
	if err := llm.CallStructured(ctx, inv, system, userText, monologueSchema, &out); err != nil {
		return "", fmt.Errorf("perception: monologue: %w", err)
	}

	text := sanitize(out.Monologue)
	if text == "" {
		text = "..."
	}
	return text, nil
}

// sanitize strips any line containing forbidden strategy vocabulary,
// preferring a shorter-but-clean monologue over rejecting the call outright.
func sanitize(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for _, l := range lines {
		if forbiddenPhrases.MatchString(l) {
			continue
		}
		if strings.TrimSpace(l) != "" {
			kept = append(kept, strings.TrimSpace(l))
		}
	}
	return strings.Join(kept, " ")
}
