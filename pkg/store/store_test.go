package store

import (
	"context"
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestFSStore_LoadStateCreatesIdempotently(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state1, err := s.LoadState(ctx, "ext-user-1", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state1.User.CurrentStage != model.StageInitiating {
		t.Fatalf("expected default stage initiating, got %s", state1.User.CurrentStage)
	}
	if state1.User.Dimensions.Power != 0.5 {
		t.Fatalf("expected default power 0.5, got %v", state1.User.Dimensions.Power)
	}

	state2, err := s.LoadState(ctx, "ext-user-1", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if state1.User.ID != state2.User.ID {
		t.Fatal("expected the same user id on repeated load (idempotent-creating)")
	}
	if state1.Bot.ID != state2.Bot.ID {
		t.Fatal("expected the same bot id on repeated load")
	}
}

func TestFSStore_SaveTurnClampsDimensionDelta(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := s.LoadState(ctx, "ext-user-2", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	proposed := state.User
	proposed.Dimensions.Closeness = state.User.Dimensions.Closeness + 0.9 // way over the 0.20 cap

	audits, err := s.SaveTurn(ctx, "ext-user-2", "bot-1", &model.State{Bot: state.Bot, User: proposed}, "hi", "hello back", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var closenessAudit *DimensionAudit
	for i := range audits {
		if audits[i].Name == "closeness" {
			closenessAudit = &audits[i]
		}
	}
	if closenessAudit == nil {
		t.Fatal("expected a closeness audit entry")
	}
	if closenessAudit.Delta > DimensionDeltaCap+1e-9 {
		t.Fatalf("expected clamped delta <= %v, got %v", DimensionDeltaCap, closenessAudit.Delta)
	}

	reloaded, err := s.LoadState(ctx, "ext-user-2", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reloaded.User.Dimensions.Closeness > state.User.Dimensions.Closeness+DimensionDeltaCap+1e-9 {
		t.Fatal("expected persisted closeness to respect the clamp")
	}
}

func TestFSStore_SaveTurnAppendsMessagesInOrder(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := s.LoadState(ctx, "ext-user-3", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.SaveTurn(ctx, "ext-user-3", "bot-1", state, "first", "reply one", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := s.LoadState(ctx, "ext-user-3", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reloaded.RecentMessages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(reloaded.RecentMessages))
	}
	if reloaded.RecentMessages[0].Role != model.RoleUser {
		t.Fatalf("expected user message first, got %s", reloaded.RecentMessages[0].Role)
	}
	if reloaded.RecentMessages[1].Role != model.RoleAI {
		t.Fatalf("expected ai message second, got %s", reloaded.RecentMessages[1].Role)
	}
}

func TestFSStore_SearchTranscriptsRanksByTermHitsAndImportance(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := s.LoadState(ctx, "ext-user-4", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.AppendTranscript(ctx, state.User.ID, model.Transcript{UserText: "we talked about climbing gear", Importance: 0.1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.AppendTranscript(ctx, state.User.ID, model.Transcript{UserText: "unrelated weather chat", Importance: 0.9}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	results, err := s.SearchTranscripts(ctx, state.User.ID, "climbing gear", 5, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].UserText != "we talked about climbing gear" {
		t.Fatalf("expected the term-matching transcript to rank first, got %q", results[0].UserText)
	}
}

func TestFSStore_ClearAllMemoryFor(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	state, err := s.LoadState(ctx, "ext-user-5", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.SaveTurn(ctx, "ext-user-5", "bot-1", state, "hi", "hello", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := s.ClearAllMemoryFor(ctx, "ext-user-5", "bot-1", true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reloaded, err := s.LoadState(ctx, "ext-user-5", "bot-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reloaded.RecentMessages) != 0 {
		t.Fatal("expected messages cleared")
	}
	if reloaded.User.ID == state.User.ID {
		t.Fatal("expected a fresh user id after profile reset")
	}
}

func TestNormalizeDimension(t *testing.T) {
	cases := map[float64]float64{
		0.5: 0.5,
		50:  0.5,
		1:   1,
		100: 1,
		150: 1,
		-1:  0,
	}
	for in, want := range cases {
		if got := NormalizeDimension(in); got != want {
			t.Errorf("NormalizeDimension(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestTokenize_DropsShortTermsAndCaps(t *testing.T) {
	terms := Tokenize("a bb ccc, dddd. 你好 世界")
	for _, term := range terms {
		if len([]rune(term)) < MinTokenLen {
			t.Fatalf("unexpected short token %q", term)
		}
	}
}
