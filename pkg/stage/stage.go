// Package stage implements the Knapp-stage transition rules (C19, spec
// section 4.16): strict precedence over global crash guards, jump events,
// growth thresholds, and decay thresholds, each evaluated on a legacy
// 0-100 delta scale distinct from the stored [0,1] dimensions.
package stage

import "github.com/kadirpekel/persona-core/pkg/model"

// RawDeltas are the proposed per-turn dimension changes on the legacy
// 0-100 scale, before being divided down to the [0,1] store scale. The
// stage manager's jump-event and crash guards compare against these raw
// values directly, per the spec's explicit instruction that the two scales
// coexist.
type RawDeltas struct {
	Trust  float64
	Liking float64
}

// SPTTransition carries the substantive-topic depth before and after a
// turn, consumed by the circumscribing decay rule ("spt_depth decreasing").
type SPTTransition struct {
	Previous int
	Current  int
}

func scale100(v float64) float64 { return v * 100 }

// Next computes the next Knapp stage from the current stage, the post-turn
// normalized dimensions ([0,1]), the raw proposed deltas (0-100 scale), and
// the SPT depth transition.
func Next(current model.KnappStage, dims model.RelationshipDimensions, deltas RawDeltas, spt SPTTransition) model.KnappStage {
	closeness := scale100(dims.Closeness)
	trust := scale100(dims.Trust)
	liking := scale100(dims.Liking)
	respect := scale100(dims.Respect)
	warmth := scale100(dims.Warmth)
	power := scale100(dims.Power)

	// 1. Global crash.
	if trust <= -20 || closeness <= -10 {
		return model.StageTerminating
	}

	// 2. Jump events.
	if deltas.Trust <= -30 {
		return model.StageTerminating
	}
	if deltas.Liking <= -25 {
		return model.StageDifferentiating
	}

	// 3. Growth.
	switch current {
	case model.StageInitiating:
		if closeness >= 10 || liking >= 10 {
			return model.StageExperimenting
		}
	case model.StageExperimenting:
		if closeness >= 40 && trust >= 30 && spt.Current >= 2 {
			return model.StageIntensifying
		}
	case model.StageIntensifying:
		if closeness >= 70 && trust >= 60 && spt.Current >= 3 && abs(power-50)*2 <= 40 {
			return model.StageIntegrating
		}
	case model.StageIntegrating:
		if closeness >= 90 && trust >= 90 && spt.Current == 4 && respect >= 60 {
			return model.StageBonding
		}
	}

	// 4. Decay.
	switch current {
	case model.StageBonding, model.StageIntegrating:
		if closeness > 60 && (respect < 40 || liking < 40) {
			return model.StageDifferentiating
		}
	case model.StageDifferentiating:
		if trust < 50 || spt.Current < spt.Previous {
			return model.StageCircumscribing
		}
	case model.StageCircumscribing:
		if warmth < 30 && spt.Current <= 1 {
			return model.StageStagnating
		}
	case model.StageStagnating:
		if closeness < 20 {
			return model.StageAvoiding
		}
	case model.StageAvoiding:
		if closeness <= 0 {
			return model.StageTerminating
		}
	}

	return current
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
