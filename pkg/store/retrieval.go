package store

import (
	"sort"
	"strings"
	"unicode"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// MaxQueryTerms caps the number of tokens considered from a query (spec
// section 4.1: "cap 12 terms").
const MaxQueryTerms = 12

// MinTokenLen drops tokens shorter than this (section 4.1: "drop tokens
// shorter than 2").
const MinTokenLen = 2

// NoteStabilityBias is the extra score notes receive over raw term hits
// (section 4.1: "notes get an extra +0.5 stability bias").
const NoteStabilityBias = 0.5

// Tokenize splits a query on whitespace and common CJK/Latin punctuation,
// drops short tokens, and caps the term count.
func Tokenize(query string) []string {
	fields := strings.FieldsFunc(query, func(r rune) bool {
		if unicode.IsSpace(r) {
			return true
		}
		switch r {
		case ',', '.', '!', '?', ';', ':', '"', '\'',
			'，', '。', '！', '？', '；', '：', '、', '“', '”', '（', '）', '(', ')':
			return true
		}
		return false
	})

	terms := make([]string, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.ToLower(strings.TrimSpace(f))
		runeLen := len([]rune(f))
		if runeLen < MinTokenLen {
			continue
		}
		if seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
		if len(terms) >= MaxQueryTerms {
			break
		}
	}
	return terms
}

// termHitCount counts how many query terms occur (case-insensitively) in
// text.
func termHitCount(terms []string, text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, t := range terms {
		if strings.Contains(lower, t) {
			hits++
		}
	}
	return hits
}

// scoredTranscript pairs a transcript with its retrieval score for sorting.
type scoredTranscript struct {
	t     model.Transcript
	score float64
}

// RankTranscripts scores the given (already scan-limited) transcripts by
// term_hit_count + importance and returns the top `limit`.
func RankTranscripts(transcripts []model.Transcript, query string, limit int) []model.Transcript {
	terms := Tokenize(query)
	scored := make([]scoredTranscript, 0, len(transcripts))
	for _, t := range transcripts {
		hay := t.UserText + " " + t.BotText + " " + t.Topic + " " + t.ShortContext
		score := float64(termHitCount(terms, hay)) + t.Importance
		scored = append(scored, scoredTranscript{t: t, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]model.Transcript, len(scored))
	for i, s := range scored {
		out[i] = s.t
	}
	return out
}

type scoredNote struct {
	n     model.DerivedNote
	score float64
}

// RankNotes scores the given (already scan-limited) notes by
// term_hit_count + importance + NoteStabilityBias and returns the top
// `limit`.
func RankNotes(notes []model.DerivedNote, query string, limit int) []model.DerivedNote {
	terms := Tokenize(query)
	scored := make([]scoredNote, 0, len(notes))
	for _, n := range notes {
		score := float64(termHitCount(terms, n.Content)) + n.Importance + NoteStabilityBias
		scored = append(scored, scoredNote{n: n, score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	out := make([]model.DerivedNote, len(scored))
	for i, s := range scored {
		out[i] = s.n
	}
	return out
}
