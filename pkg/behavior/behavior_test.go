package behavior

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/persona-core/pkg/model"
)

func TestHumanize_HighFragmentationSplitsLongerTextThanLowFragmentation(t *testing.T) {
	text := "今天过得怎么样。我挺想你的。晚点聊好吗。再跟我说说今天发生的事情吧。"

	fragmented := Humanize(text, 10, model.StageExperimenting, model.BigFive{Extraversion: 1}, model.MoodState{Arousal: 1}, 1.0)
	composed := Humanize(text, 10, model.StageExperimenting, model.BigFive{Extraversion: -1}, model.MoodState{Arousal: -1}, 0.0)

	assert.Greater(t, len(fragmented.Messages), len(composed.Messages), "higher extraversion/closeness/arousal should fragment into more bubbles")
}

func TestHumanize_EmptyInputFallsBackToPlaceholderLine(t *testing.T) {
	plan := Humanize("", 0, model.StageExperimenting, model.BigFive{}, model.MoodState{}, 0)

	require.Len(t, plan.Messages, 1)
	assert.Equal(t, fallbackLine, plan.Messages[0])
	require.Len(t, plan.Delays, 1)
	require.Len(t, plan.Actions, 1)
}

func TestHumanize_EveryMessageHasAMatchingDelayAndAction(t *testing.T) {
	plan := Humanize("今天过得怎么样。我挺想你的。", 5, model.StageBonding, model.BigFive{Extraversion: 0.3}, model.MoodState{}, 0.4)

	require.NotEmpty(t, plan.Messages)
	assert.Len(t, plan.Delays, len(plan.Messages))
	assert.Len(t, plan.Actions, len(plan.Messages))
}

func TestHumanize_BusyMoodSlowsFirstDelayDown(t *testing.T) {
	text := "好的。"

	calm := Humanize(text, 0, model.StageExperimenting, model.BigFive{}, model.MoodState{Busyness: 0}, 0)
	busy := Humanize(text, 0, model.StageExperimenting, model.BigFive{}, model.MoodState{Busyness: 1}, 0)

	require.Len(t, calm.Delays, 1)
	require.Len(t, busy.Delays, 1)
	assert.Greater(t, busy.Delays[0], calm.Delays[0])
}

func TestHumanize_StagnatingStageTypesSlowerThanIntensifying(t *testing.T) {
	text := "好的呀。"

	intensifying := Humanize(text, 0, model.StageIntensifying, model.BigFive{}, model.MoodState{}, 0)
	stagnating := Humanize(text, 0, model.StageStagnating, model.BigFive{}, model.MoodState{}, 0)

	require.Len(t, intensifying.Delays, 1)
	require.Len(t, stagnating.Delays, 1)
	assert.Greater(t, stagnating.Delays[0], intensifying.Delays[0])
}

func TestSegmentText_SplitsOnNewlineRegardlessOfThreshold(t *testing.T) {
	bubbles := segmentText("嗨\n在吗", 0)
	require.Len(t, bubbles, 2)
	assert.Equal(t, "嗨", bubbles[0])
	assert.Equal(t, "在吗", bubbles[1])
}

func TestCalculateDynamics_ClampsSpeedFactorToEnvelope(t *testing.T) {
	dyn := calculateDynamics(model.BigFive{Extraversion: -1, Conscientiousness: 1}, model.MoodState{Busyness: 1}, 0, model.StageStagnating)
	assert.LessOrEqual(t, dyn.speedFactor, 5.0)
	assert.GreaterOrEqual(t, dyn.speedFactor, 0.2)
}
