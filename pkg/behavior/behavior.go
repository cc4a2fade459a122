// Package behavior is the alternative C16 humanizer (spec section 2):
// rather than the bucket-table pacing pkg/compiler derives from a
// message's own delay_bucket/pause_after fields, it derives fragmentation
// and typing delay purely from the bot's personality, current mood, and
// closeness, splitting an already-compiled reply into chat bubbles and
// timing each one. It is never on the C1-C20 critical path (the main
// chain always uses pkg/compiler, spec section 2's data flow goes C13
// straight to C17); this is the documented alternative deterministic
// algorithm a deployment can swap in instead, following the same no-LLM,
// pure-function shape as pkg/compiler.
//
// Grounded directly on
// original_source/EmotionalChatBot_V5/app/nodes/behavior_processor.py
// (calculate_human_dynamics / _segment_text / create_behavior_processor_node):
// the stage Chronemics table, the speed/fragmentation formulas, and the
// punctuation-run bubble splitter are carried over term for term. The
// original additionally multiplies typing time by a Gaussian jitter term
// (random.gauss); that's dropped here to keep this pure and
// reproducible, matching pkg/compiler's own fully deterministic pacing.
package behavior

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// stageDelayFactors are the Knapp-stage Chronemics multipliers
// (behavior_processor.py's STAGE_DELAY_FACTORS): pairs moving fast
// (intensifying) type quicker, pairs drifting apart (avoiding) drag.
var stageDelayFactors = map[model.KnappStage]float64{
	model.StageInitiating:      1.2,
	model.StageExperimenting:   1.0,
	model.StageIntensifying:    0.6,
	model.StageIntegrating:     0.8,
	model.StageBonding:         0.9,
	model.StageDifferentiating: 1.1,
	model.StageCircumscribing:  1.3,
	model.StageStagnating:      2.5,
	model.StageAvoiding:        3.0,
	model.StageTerminating:     2.0,
}

const fallbackLine = "嗯…让我想想怎么说"

// dynamics bundles the two derived quantities behavior_processor.py's
// calculate_human_dynamics returns that this humanizer actually needs:
// how fast the persona types and how eagerly it breaks a reply into
// several bubbles instead of one.
type dynamics struct {
	speedFactor           float64
	fragmentationTendency float64
}

// calculateDynamics reproduces calculate_human_dynamics's speed_factor and
// fragmentation_tendency formulas: extraversion speeds typing up,
// conscientiousness slows it down (more careful composing), high arousal
// speeds it up, busyness drags it out, and the Knapp stage scales the
// whole thing. Fragmentation rises with extraversion, closeness, and
// arousal.
func calculateDynamics(personality model.BigFive, mood model.MoodState, closeness float64, stage model.KnappStage) dynamics {
	stageFactor, ok := stageDelayFactors[stage]
	if !ok {
		stageFactor = 1.0
	}

	pSpeed := 1.0 - personality.Extraversion*0.2
	pCaution := 1.0 + personality.Conscientiousness*0.3
	mArousalBoost := 1.0 - mood.Arousal*0.3
	mBusynessDrag := 1.0 + mood.Busyness*1.5

	speedFactor := pSpeed * pCaution * mArousalBoost * mBusynessDrag * stageFactor
	fragmentationTendency := personality.Extraversion*0.5 + closeness*0.5 + mood.Arousal*0.3

	return dynamics{
		speedFactor:           clamp(speedFactor, 0.2, 5.0),
		fragmentationTendency: fragmentationTendency,
	}
}

// Humanize fragments text into one-or-more chat bubbles and times each one
// from personality, mood, closeness, and the relationship's Knapp stage,
// rather than the plan's own delay_bucket/pause_after annotations.
func Humanize(text string, userInputLen int, stage model.KnappStage, personality model.BigFive, mood model.MoodState, closeness float64) model.ProcessorPlan {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ProcessorPlan{
			Messages: []string{fallbackLine},
			Delays:   []float64{1.0},
			Actions:  []model.ActionKind{model.ActionTyping},
		}
	}

	dyn := calculateDynamics(personality, mood, closeness, stage)
	bubbles := segmentText(text, dyn.fragmentationTendency)
	if len(bubbles) == 0 {
		bubbles = []string{text}
	}

	tRead := 0.5 + float64(userInputLen)*0.05
	cognitiveLoad := float64(utf8.RuneCountInString(text)) * 0.02
	tCog := (1 + cognitiveLoad) * dyn.speedFactor
	typingCharsPerSec := 5.0 / dyn.speedFactor

	out := model.ProcessorPlan{}
	accumulated := tRead + tCog
	for _, bub := range bubbles {
		out.Messages = append(out.Messages, bub)
		out.Delays = append(out.Delays, round2(accumulated))
		out.Actions = append(out.Actions, model.ActionTyping)

		tType := float64(utf8.RuneCountInString(bub)) / typingCharsPerSec
		accumulated = clamp(tType, 0.05, 30.0)
	}
	return out
}

// segmentText splits text into bubbles on runs of 。！？\n, following
// _segment_text: a punctuation run only closes the current bubble once
// it's longer than the fragmentation-scaled threshold, or it contains a
// newline outright.
func segmentText(text string, fragmentationTendency float64) []string {
	if text == "" {
		return nil
	}
	threshold := int(clamp(20-fragmentationTendency*15, 5, 30))

	var bubbles []string
	var buf strings.Builder
	runes := []rune(text)

	for i := 0; i < len(runes); {
		if !isHardBreakRune(runes[i]) {
			buf.WriteRune(runes[i])
			i++
			continue
		}
		hasNewline := false
		for i < len(runes) && isHardBreakRune(runes[i]) {
			if runes[i] == '\n' {
				hasNewline = true
			}
			buf.WriteRune(runes[i])
			i++
		}
		if hasNewline || utf8.RuneCountInString(buf.String()) > threshold {
			if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
				bubbles = append(bubbles, trimmed)
			}
			buf.Reset()
		}
	}
	if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
		bubbles = append(bubbles, trimmed)
	}
	return bubbles
}

func isHardBreakRune(r rune) bool {
	switch r {
	case '。', '！', '？', '\n':
		return true
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
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
