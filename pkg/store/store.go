// Package store implements the Store adapter (C1, C20): per-(bot,user)
// relationship state, transcripts, and derived notes, with a transactional
// load-early / commit-late contract, grounded on the teacher's
// pkg/memory/session_service_sql.go (SQL-backed state with idempotent DDL).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// DimensionDeltaCap is the per-turn maximum |Δdim| (spec section 3/4.1).
const DimensionDeltaCap = 0.20

// RecentMessageCap bounds how many recent messages LoadState returns.
const RecentMessageCap = 20

// DefaultScanLimit / NotesScanLimit are the default row caps for
// search_transcripts / search_notes (spec section 4.1: "default 200/400").
const (
	DefaultScanLimit = 200
	NotesScanLimit   = 400
)

// NewMemory bundles the turn's freshly produced transcript and notes so
// SaveTurn can commit state, transcript, and notes together (C20's "commit
// in one transaction").
type NewMemory struct {
	Transcript *model.Transcript
	Notes      []model.DerivedNote
}

// DimensionAudit records one dimension's clamp outcome for the audit log
// required by section 4.1 ("the audit record {old, new, delta} for all six
// dims is logged").
type DimensionAudit struct {
	Name  string
	Old   float64
	New   float64
	Delta float64
}

// Store is the full adapter surface exposed to the rest of the pipeline
// (spec section 4.1).
type Store interface {
	// LoadState is transactional and idempotent-creating: a missing bot or
	// user is materialized via the profile factory.
	LoadState(ctx context.Context, userExtID, botID string) (*model.State, error)

	// SaveTurn is the single end-of-pipeline commit: it persists the new
	// user/ai messages, the updated user row (stage, clamped dimensions,
	// mood, inferred profile, assets, spt, conversation summary), and,
	// when newMemory is non-nil, the turn's transcript and derived notes —
	// all in one transaction.
	SaveTurn(ctx context.Context, userExtID, botID string, state *model.State, userText, aiText string, newMemory *NewMemory) ([]DimensionAudit, error)

	AppendTranscript(ctx context.Context, relationshipID string, t model.Transcript) (string, error)
	AppendNotes(ctx context.Context, relationshipID, transcriptID string, notes []model.DerivedNote) error

	SearchTranscripts(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.Transcript, error)
	SearchNotes(ctx context.Context, relationshipID, query string, limit, scanLimit int) ([]model.DerivedNote, error)

	ClearAllMemoryFor(ctx context.Context, userExtID, botID string, resetProfile bool) error
}

// NormalizeDimension implements section 4.1's load-time normalization:
// values in (1,100] are divided by 100; otherwise the value is clamped to
// [0,1].
func NormalizeDimension(v float64) float64 {
	if v > 1 && v <= 100 {
		return v / 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// BackfillDimensions fills any zero-valued (i.e. absent from a partially
// populated record) dimension from prior, then from the package defaults,
// per section 4.1 ("missing dimensions are back-filled from the previous
// value then from defaults").
func BackfillDimensions(current, prior model.RelationshipDimensions) model.RelationshipDimensions {
	defaults := model.DefaultDimensions()
	curMap := current.Map()
	priorMap := prior.Map()
	defMap := defaults.Map()
	out := make(map[string]float64, len(curMap))
	for _, name := range model.DimensionNames {
		v := curMap[name]
		if v == 0 {
			if pv := priorMap[name]; pv != 0 {
				v = pv
			} else {
				v = defMap[name]
			}
		}
		out[name] = NormalizeDimension(v)
	}
	return model.DimensionsFromMap(out)
}

// ClampDelta applies the per-dimension |Δ|≤DimensionDeltaCap rule. old is
// the authoritative pre-turn value (section 4.1: "old values are the
// authoritative pre-turn state"); proposed is the evolver's target. Returns
// the clamped new value and the audit record.
func ClampDelta(name string, old, proposed float64) (float64, DimensionAudit) {
	delta := proposed - old
	if delta > DimensionDeltaCap {
		delta = DimensionDeltaCap
	}
	if delta < -DimensionDeltaCap {
		delta = -DimensionDeltaCap
	}
	newVal := old + delta
	if newVal < 0 {
		newVal = 0
	}
	if newVal > 1 {
		newVal = 1
	}
	return newVal, DimensionAudit{Name: name, Old: old, New: newVal, Delta: newVal - old}
}

// ClampAllDimensions clamps every dimension in proposed against old and
// returns the merged result plus the full six-entry audit log, in the fixed
// DimensionNames order.
func ClampAllDimensions(old, proposed model.RelationshipDimensions) (model.RelationshipDimensions, []DimensionAudit) {
	oldMap := old.Map()
	proposedMap := proposed.Map()
	merged := make(map[string]float64, len(oldMap))
	audits := make([]DimensionAudit, 0, len(model.DimensionNames))
	for _, name := range model.DimensionNames {
		newVal, audit := ClampDelta(name, oldMap[name], proposedMap[name])
		merged[name] = newVal
		audits = append(audits, audit)
	}
	return model.DimensionsFromMap(merged), audits
}

// SortMessages orders messages by (created_at asc, role asc, id asc), per
// section 3, so user precedes ai at identical timestamps.
func SortMessages(messages []model.Message) {
	insertionSortMessages(messages)
}

func insertionSortMessages(m []model.Message) {
	less := func(a, b model.Message) bool {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.Role.RoleOrder() != b.Role.RoleOrder() {
			return a.Role.RoleOrder() < b.Role.RoleOrder()
		}
		return a.ID < b.ID
	}
	for i := 1; i < len(m); i++ {
		for j := i; j > 0 && less(m[j], m[j-1]); j-- {
			m[j], m[j-1] = m[j-1], m[j]
		}
	}
}

// ErrNotFound is returned by backends when a lookup by id finds nothing.
var ErrNotFound = fmt.Errorf("store: not found")

func nowOrFallback(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}
