// Package compiler deterministically compiles a winning ReplyPlan into a
// ProcessorPlan of timed, displayable message segments (C15, spec section
// 4.12). No LLM calls.
package compiler

import (
	"strings"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// delayBucketSeconds maps delay_bucket to base seconds.
var delayBucketSeconds = map[model.DelayBucket]float64{
	model.DelayInstant: 0.2,
	model.DelayShort:   0.6,
	model.DelayMedium:  1.2,
	model.DelayLong:    2.5,
	model.DelayOffline: 900,
}

// pauseAfterSeconds maps pause_after to bonus seconds.
var pauseAfterSeconds = map[model.PauseAfter]float64{
	model.PauseNone:     0,
	model.PauseBeat:     0.3,
	model.PausePolite:   0.6,
	model.PauseThinking: 1.0,
	model.PauseLong:     3.0,
}

// stageFactor ranges roughly 0.8 (intensifying, eager) to 2.0 (avoiding,
// reluctant) per section 4.12.
var stageFactor = map[model.KnappStage]float64{
	model.StageInitiating:      1.2,
	model.StageExperimenting:   1.0,
	model.StageIntensifying:    0.8,
	model.StageIntegrating:     0.9,
	model.StageBonding:         0.85,
	model.StageDifferentiating: 1.4,
	model.StageCircumscribing:  1.6,
	model.StageStagnating:      1.7,
	model.StageAvoiding:        2.0,
	model.StageTerminating:     1.9,
}

const fallbackErrorLine = "抱歉，我这会儿有点说不清楚，稍后再聊。"

// Compile turns a ReplyPlan into a ProcessorPlan. userTextLen is the rune
// length of the user's message, used for the first-message read/think
// delay.
func Compile(plan model.ReplyPlan, stage model.KnappStage, busyness float64, userTextLen int) model.ProcessorPlan {
	out := model.ProcessorPlan{
		Messages: make([]string, 0, len(plan.Messages)),
		Delays:   make([]float64, 0, len(plan.Messages)),
		Actions:  make([]model.ActionKind, 0, len(plan.Messages)),
	}

	factor := stageFactor[stage]
	if factor == 0 {
		factor = 1.0
	}
	busynessMultiplier := 1 + busyness

	concatLen := 0
	for _, m := range plan.Messages {
		concatLen += len([]rune(m.Content))
	}

	for i, m := range plan.Messages {
		content := strings.TrimSpace(m.Content)
		if content == "" || content == "…" || content == "..." {
			content = fallbackErrorLine
		}
		out.Messages = append(out.Messages, content)

		bucket := delayBucketSeconds[m.DelayBucket]
		pause := pauseAfterSeconds[m.PauseAfter]

		var delay float64
		if i == 0 {
			baseRead := 0.6 + min(1.8, 0.03*float64(userTextLen))
			think := 0.5 + min(2.0, 0.01*float64(concatLen))
			delay = (baseRead + think) * factor * busynessMultiplier
			delay = clamp(delay, 0.4, 6.0)
		} else {
			delay = (bucket + pause) * factor * busynessMultiplier
			delay = clamp(delay, 0.05, 60.0)
		}
		out.Delays = append(out.Delays, delay)

		if m.DelayBucket == model.DelayOffline {
			out.Actions = append(out.Actions, model.ActionIdle)
		} else {
			out.Actions = append(out.Actions, model.ActionTyping)
		}
	}

	if len(out.Messages) == 0 {
		out.Messages = []string{fallbackErrorLine}
		out.Delays = []float64{clamp((0.6+0.5)*factor*busynessMultiplier, 0.4, 6.0)}
		out.Actions = []model.ActionKind{model.ActionTyping}
	}

	return out
}

// FinalResponse space-joins a ProcessorPlan's messages (section 4.14:
// "final_response is the space-joined concatenation of its messages").
func FinalResponse(p model.ProcessorPlan) string {
	return strings.Join(p.Messages, " ")
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
