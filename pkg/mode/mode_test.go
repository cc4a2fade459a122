package mode

import "testing"

func TestDecide_Mute(t *testing.T) {
	if got := Decide(Composites{ConflictEff: 0.8}); got != Mute {
		t.Fatalf("expected mute_mode, got %s", got)
	}
	if got := Decide(Composites{Provocation: 0.9}); got != Mute {
		t.Fatalf("expected mute_mode, got %s", got)
	}
}

func TestDecide_Cold(t *testing.T) {
	if got := Decide(Composites{Sarcasm: 0.7, Goodwill: 0.3}); got != Cold {
		t.Fatalf("expected cold_mode, got %s", got)
	}
	if got := Decide(Composites{Confusion: 0.8}); got != Cold {
		t.Fatalf("expected cold_mode from confusion alone, got %s", got)
	}
}

func TestDecide_Normal(t *testing.T) {
	if got := Decide(Composites{Goodwill: 0.9}); got != Normal {
		t.Fatalf("expected normal_mode, got %s", got)
	}
}

func TestDecide_MutePrecedesCold(t *testing.T) {
	// Both mute and cold thresholds satisfied; mute must win.
	c := Composites{ConflictEff: 0.9, Sarcasm: 0.9, Goodwill: 0.1}
	if got := Decide(c); got != Mute {
		t.Fatalf("expected mute_mode to take precedence, got %s", got)
	}
}

func TestPolicyFor_ModeShapesConstraints(t *testing.T) {
	mute := PolicyFor(Mute)
	if !mute.AllowEmptyReply {
		t.Fatal("expected mute_mode to allow empty reply")
	}
	normal := PolicyFor(Normal)
	if normal.AllowEmptyReply {
		t.Fatal("expected normal_mode to disallow empty reply")
	}
}
