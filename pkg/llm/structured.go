package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CallStructured issues a schema-constrained call and decodes the result
// into out. This is the one call shape every LLM-backed pipeline stage
// (C3, C4, C6, C7, C8, C10, C12, C14) uses, grounded on the teacher's
// goal-extraction call (pkg/reasoning/goals.go::ExtractGoals): build a JSON
// schema, force the model to answer it, unmarshal into a typed struct.
//
// Parse failures are returned as errors; spec section 7 says each caller
// must map that to its own documented fallback rather than propagate it
// to the user.
func CallStructured(ctx context.Context, inv Invoker, system, user string, schema map[string]any, out any) error {
	raw, err := inv.InvokeStructured(ctx, StructuredRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: system},
			{Role: RoleUser, Content: user},
		},
		Schema: schema,
	})
	if err != nil {
		return fmt.Errorf("llm: structured call failed: %w", err)
	}

	raw = extractJSONObject(raw)
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("llm: structured response did not match schema: %w", err)
	}
	return nil
}

// extractJSONObject trims any prose a looser provider (or the Anthropic
// prompt-hint fallback) wraps around the JSON object, by slicing to the
// outermost brace pair.
func extractJSONObject(s string) string {
	s = strings.TrimSpace(s)
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end < 0 || end < start {
		return s
	}
	return s[start : end+1]
}
