// Package style maps relationship dimensions, mood, and speech act to the
// 12-dimensional StyleTargets vector (C8, spec section 4.7). This is a
// target for the planner and evaluator, not binding on literal wording.
package style

import (
	"github.com/kadirpekel/persona-core/pkg/model"
)

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// speechActAdjustments nudges a handful of style dimensions based on the
// reasoner's speech act, layered on top of the dimension/mood-derived base.
var speechActAdjustments = map[string]model.StyleTargets{
	"安抚": {EmotionalDisplay: 0.15, SelfDisclosure: 0.1, AdviceStyle: -0.2},
	"闲聊": {ToneTemperature: 0.1, WitAndHumor: 0.1, Initiative: 0.05},
	"建议": {AdviceStyle: 0.25, Initiative: 0.1},
	"调侃": {WitAndHumor: 0.2, ToneTemperature: 0.05},
}

// Mix computes the target style vector for the turn.
func Mix(dims model.RelationshipDimensions, mood model.MoodState, speechAct string) model.StyleTargets {
	base := model.StyleTargets{
		VerbalLength:     clamp01(0.3 + 0.5*dims.Closeness),
		SocialDistance:   clamp01(1 - dims.Closeness),
		ToneTemperature:  clamp01(0.4 + 0.3*dims.Warmth + 0.2*(mood.Pleasure+1)/2),
		EmotionalDisplay: clamp01(0.2 + 0.4*dims.Warmth + 0.3*(mood.Arousal+1)/2),
		WitAndHumor:      clamp01(0.2 + 0.4*dims.Liking),
		NonVerbalCues:    clamp01(0.15 + 0.3*dims.Closeness),
		SelfDisclosure:   clamp01(0.1 + 0.6*dims.Trust),
		TopicAdherence:   clamp01(0.5 + 0.3*dims.Respect),
		Initiative:       clamp01(0.3 + 0.4*(mood.Dominance+1)/2),
		AdviceStyle:      clamp01(0.2 + 0.3*dims.Respect),
		Subjectivity:     clamp01(0.3 + 0.4*dims.Liking),
		MemoryHook:       clamp01(0.2 + 0.5*dims.Closeness),
	}

	adj, ok := speechActAdjustments[speechAct]
	if !ok {
		return base
	}

	baseMap := base.Map()
	adjMap := adj.Map()
	merged := make(map[string]float64, len(baseMap))
	for k, v := range baseMap {
		merged[k] = clamp01(v + adjMap[k])
	}
	return model.StyleFromMap(merged)
}
