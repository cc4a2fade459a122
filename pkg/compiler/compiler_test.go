package compiler

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestCompile_ForbidsEllipsisPlaceholder(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{{Content: "…", DelayBucket: model.DelayShort}}}
	out := Compile(plan, model.StageInitiating, 0.1, 10)
	if out.Messages[0] == "…" {
		t.Fatal("ellipsis placeholder must be replaced with a readable fallback line")
	}
}

func TestCompile_FirstDelayClampedToRange(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{
		{Content: "hello there, how has your day been going so far", DelayBucket: model.DelayShort},
	}}
	out := Compile(plan, model.StageAvoiding, 0.9, 500)
	if out.Delays[0] < 0.4 || out.Delays[0] > 6.0 {
		t.Fatalf("expected first delay clamped to [0.4, 6.0], got %f", out.Delays[0])
	}
}

func TestCompile_SubsequentDelayClampedToRange(t *testing.T) {
	plan := model.ReplyPlan{Messages: []model.ReplyMessage{
		{Content: "first", DelayBucket: model.DelayShort},
		{Content: "second", DelayBucket: model.DelayOffline, PauseAfter: model.PauseLong},
	}}
	out := Compile(plan, model.StageInitiating, 0.5, 10)
	if out.Delays[1] < 0.05 || out.Delays[1] > 60.0 {
		t.Fatalf("expected subsequent delay clamped to [0.05, 60.0], got %f", out.Delays[1])
	}
	if out.Actions[1] != model.ActionIdle {
		t.Fatal("expected offline bucket to use idle action")
	}
}

func TestCompile_EmptyMessagesFallsBackToReadableLine(t *testing.T) {
	out := Compile(model.ReplyPlan{}, model.StageInitiating, 0, 0)
	if len(out.Messages) != 1 || out.Messages[0] == "" {
		t.Fatal("expected a single readable fallback line for an empty plan")
	}
}

func TestFinalResponse_SpaceJoinsMessages(t *testing.T) {
	p := model.ProcessorPlan{Messages: []string{"hi", "there"}}
	if got := FinalResponse(p); got != "hi there" {
		t.Fatalf("expected space-joined messages, got %q", got)
	}
}
