// Package retrieval implements the mode-gated memory retriever (C9, spec
// section 4.8): only the reasoner's query seeds may drive recall, never
// automatic query expansion.
package retrieval

import (
	"context"
	"fmt"

	"github.com/kadirpekel/persona-core/pkg/lats"
	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
	"github.com/kadirpekel/persona-core/pkg/store"
)

// TopKFor returns the mode-gated result cap (section 4.8).
func TopKFor(m mode.Mode) int {
	switch m {
	case mode.Mute:
		return 0
	case mode.Cold:
		return 3
	default:
		return 8
	}
}

// Seeds resolves the query seeds to use: the reasoner's search_spec seeds
// when present, otherwise the minimum-configuration fallback from section
// 4.8 (user text tokens, stage, coarse dimension labels, last-two-turn
// window tokens). An active reflection patch's search_patch may add/remove
// seeds and strengthen entities before retrieval.
func Seeds(plan *model.ResponsePlanAlternative, stage model.KnappStage, dims model.RelationshipDimensions, recent []model.Message, userText string, patch *lats.SearchPatch) []string {
	var seeds []string
	if plan != nil && plan.SearchSpec.Enabled && len(plan.SearchSpec.QuerySeeds) > 0 {
		seeds = append(seeds, plan.SearchSpec.QuerySeeds...)
	} else {
		seeds = append(seeds, store.Tokenize(userText)...)
		seeds = append(seeds, string(stage))
		seeds = append(seeds, coarseDimensionLabels(dims)...)
		seeds = append(seeds, lastTwoTurnTokens(recent)...)
	}

	if patch != nil {
		seeds = applyPatch(seeds, *patch)
	}
	return dedupe(seeds)
}

func coarseDimensionLabels(d model.RelationshipDimensions) []string {
	label := func(name string, v float64) string {
		switch {
		case v >= 0.7:
			return name + ":high"
		case v <= 0.3:
			return name + ":low"
		default:
			return name + ":mid"
		}
	}
	return []string{
		label("closeness", d.Closeness),
		label("trust", d.Trust),
	}
}

func lastTwoTurnTokens(recent []model.Message) []string {
	n := len(recent)
	if n == 0 {
		return nil
	}
	start := n - 4 // last two turns ~= last 4 messages (user+ai each)
	if start < 0 {
		start = 0
	}
	var tokens []string
	for _, m := range recent[start:] {
		tokens = append(tokens, store.Tokenize(m.Content)...)
	}
	return tokens
}

func applyPatch(seeds []string, patch lats.SearchPatch) []string {
	seeds = append(seeds, patch.AddQuerySeeds...)
	removed := make(map[string]bool, len(patch.RemoveQuerySeeds))
	for _, r := range patch.RemoveQuerySeeds {
		removed[r] = true
	}
	out := seeds[:0]
	for _, s := range seeds {
		if !removed[s] {
			out = append(out, s)
		}
	}
	out = append(out, patch.StrengthenEntities...)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Result bundles the retrieved transcripts and notes for the requirements
// compiler / planner.
type Result struct {
	Transcripts []model.Transcript
	Notes       []model.DerivedNote
}

// Retrieve runs the mode-gated search against the store. mute_mode returns
// an empty Result without querying the store at all.
func Retrieve(ctx context.Context, s store.Store, relationshipID string, m mode.Mode, seeds []string) (Result, error) {
	topK := TopKFor(m)
	if topK == 0 {
		return Result{}, nil
	}

	query := joinSeeds(seeds)
	transcripts, err := s.SearchTranscripts(ctx, relationshipID, query, topK, store.DefaultScanLimit)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: search transcripts: %w", err)
	}
	notes, err := s.SearchNotes(ctx, relationshipID, query, topK, store.NotesScanLimit)
	if err != nil {
		return Result{}, fmt.Errorf("retrieval: search notes: %w", err)
	}
	return Result{Transcripts: transcripts, Notes: notes}, nil
}

func joinSeeds(seeds []string) string {
	out := ""
	for i, s := range seeds {
		if i > 0 {
			out += " "
		}
		out += s
	}
	return out
}
