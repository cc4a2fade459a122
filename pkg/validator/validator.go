// Package validator runs the final hard-gate pass over a compiled
// ProcessorPlan and, on failure, applies a single deterministic minimal
// patch rather than re-invoking search (C17, spec section 4.15).
package validator

import (
	"strings"

	"github.com/kadirpekel/persona-core/pkg/evaluator"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// Validate runs the hard gate over the compiled plan's text once. If the
// first message is too short it merges the first two messages a single time
// (the result is not re-checked); then, while the count exceeds
// max_messages, it merges the last two messages.
func Validate(plan model.ProcessorPlan, replyPlan model.ReplyPlan, checklist model.RequirementsChecklist) model.ProcessorPlan {
	out := plan

	failed := hardGateOnText(out, checklist)
	firstTooShort := hasFailure(failed, "first_message_too_short")
	if firstTooShort && len(out.Messages) >= 2 {
		out = mergeAt(out, 0)
	}

	for checklist.MaxMessages > 0 && len(out.Messages) > checklist.MaxMessages && len(out.Messages) >= 2 {
		out = mergeAt(out, len(out.Messages)-2)
	}

	return out
}

// hardGateOnText adapts evaluator.HardGate to operate on a compiled
// ProcessorPlan's joined text rather than a ReplyPlan, since the final
// validator runs after compilation.
func hardGateOnText(plan model.ProcessorPlan, checklist model.RequirementsChecklist) []model.FailedCheck {
	asReplyPlan := model.ReplyPlan{Messages: make([]model.ReplyMessage, len(plan.Messages))}
	for i, m := range plan.Messages {
		asReplyPlan.Messages[i] = model.ReplyMessage{ID: "m", Content: m}
	}
	return evaluator.HardGate(asReplyPlan, checklist)
}

func hasFailure(failed []model.FailedCheck, id string) bool {
	for _, f := range failed {
		if f.ID == id {
			return true
		}
	}
	return false
}

// mergeAt merges message i with message i+1: text joined with a space,
// delay is the max of the two, action becomes idle if either was idle.
func mergeAt(plan model.ProcessorPlan, i int) model.ProcessorPlan {
	if i < 0 || i+1 >= len(plan.Messages) {
		return plan
	}
	mergedText := strings.TrimSpace(plan.Messages[i] + " " + plan.Messages[i+1])
	mergedDelay := plan.Delays[i]
	if plan.Delays[i+1] > mergedDelay {
		mergedDelay = plan.Delays[i+1]
	}
	mergedAction := model.ActionTyping
	if plan.Actions[i] == model.ActionIdle || plan.Actions[i+1] == model.ActionIdle {
		mergedAction = model.ActionIdle
	}

	messages := append(append([]string{}, plan.Messages[:i]...), mergedText)
	messages = append(messages, plan.Messages[i+2:]...)
	delays := append(append([]float64{}, plan.Delays[:i]...), mergedDelay)
	delays = append(delays, plan.Delays[i+2:]...)
	actions := append(append([]model.ActionKind{}, plan.Actions[:i]...), mergedAction)
	actions = append(actions, plan.Actions[i+2:]...)

	return model.ProcessorPlan{Messages: messages, Delays: delays, Actions: actions, Meta: plan.Meta}
}
