package validator

import (
	"testing"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestValidate_MergesShortFirstMessageWithSecond(t *testing.T) {
	plan := model.ProcessorPlan{
		Messages: []string{"ok", "let me explain what happened yesterday at the climbing gym"},
		Delays:   []float64{1.0, 2.0},
		Actions:  []model.ActionKind{model.ActionTyping, model.ActionIdle},
	}
	checklist := model.RequirementsChecklist{MinFirstLen: 10, AllowShortReply: false}
	out := Validate(plan, model.ReplyPlan{}, checklist)
	if len(out.Messages) != 1 {
		t.Fatalf("expected merge down to 1 message, got %d: %v", len(out.Messages), out.Messages)
	}
	if out.Actions[0] != model.ActionIdle {
		t.Fatal("expected merged action to become idle since one source was idle")
	}
	if out.Delays[0] != 2.0 {
		t.Fatalf("expected merged delay to be the max of the two, got %f", out.Delays[0])
	}
}

func TestValidate_MergesTailwardWhenOverMaxMessages(t *testing.T) {
	plan := model.ProcessorPlan{
		Messages: []string{"first message here is long enough", "second", "third", "fourth"},
		Delays:   []float64{1, 1, 1, 1},
		Actions:  []model.ActionKind{model.ActionTyping, model.ActionTyping, model.ActionTyping, model.ActionTyping},
	}
	checklist := model.RequirementsChecklist{MaxMessages: 2, MinFirstLen: 0, AllowShortReply: true}
	out := Validate(plan, model.ReplyPlan{}, checklist)
	if len(out.Messages) > 2 {
		t.Fatalf("expected tailward merge down to max_messages=2, got %d", len(out.Messages))
	}
}

func TestValidate_LeavesPassingPlanUntouched(t *testing.T) {
	plan := model.ProcessorPlan{
		Messages: []string{"this is a perfectly fine and long enough first message"},
		Delays:   []float64{1.5},
		Actions:  []model.ActionKind{model.ActionTyping},
	}
	checklist := model.RequirementsChecklist{MinFirstLen: 5, MaxMessages: 4, AllowShortReply: false}
	out := Validate(plan, model.ReplyPlan{}, checklist)
	if len(out.Messages) != 1 || out.Messages[0] != plan.Messages[0] {
		t.Fatalf("expected passing plan left untouched, got %+v", out)
	}
}
