// Package requirements compiles the per-turn RequirementsChecklist, fusing
// the mode, reasoner plan, style targets, stage, and selected tasks into the
// single binding document consumed by the reply planner and evaluator (C11,
// spec section 4.10).
package requirements

import (
	"regexp"
	"strings"

	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// ImmersionBreakingWords is the fixed augmentation to every checklist's
// forbidden-terms list (section 4.10).
var ImmersionBreakingWords = []string{
	"设定", "人设", "虚拟", "虚构", "角色", "剧本", "配置", "模型", "系统", "作为一个",
}

var adviceRegex = regexp.MustCompile(`(?i)(can you (help|tell me)|what should i do|advice|帮我|建议|怎么办)`)

// stageActTable fixes which speech acts each Knapp stage allows or forbids
// (section 4.10's example: initiating allows light chat, forbids
// intimacy-escalating moves).
var stageActTable = map[model.KnappStage]struct {
	allowed, forbidden []string
}{
	model.StageInitiating: {
		allowed:   []string{"answer", "clarify", "question", "light_tease", "small_talk"},
		forbidden: []string{"deep_probe", "commitment_push", "intimacy_escalate"},
	},
	model.StageExperimenting: {
		allowed:   []string{"answer", "clarify", "question", "light_tease", "small_talk", "self_disclosure_light"},
		forbidden: []string{"commitment_push", "intimacy_escalate"},
	},
	model.StageIntensifying: {
		allowed:   []string{"answer", "question", "light_tease", "self_disclosure", "affection_signal"},
		forbidden: []string{"commitment_push"},
	},
	model.StageIntegrating: {
		allowed:   []string{"answer", "question", "self_disclosure", "affection_signal", "future_talk"},
		forbidden: []string{},
	},
	model.StageBonding: {
		allowed:   []string{"answer", "question", "self_disclosure", "affection_signal", "future_talk", "commitment_push"},
		forbidden: []string{},
	},
	model.StageDifferentiating: {
		allowed:   []string{"answer", "clarify", "boundary_set"},
		forbidden: []string{"intimacy_escalate", "commitment_push"},
	},
	model.StageCircumscribing: {
		allowed:   []string{"answer", "small_talk"},
		forbidden: []string{"deep_probe", "intimacy_escalate", "commitment_push", "self_disclosure"},
	},
	model.StageStagnating: {
		allowed:   []string{"answer", "small_talk"},
		forbidden: []string{"deep_probe", "intimacy_escalate", "commitment_push"},
	},
	model.StageAvoiding: {
		allowed:   []string{"answer"},
		forbidden: []string{"deep_probe", "intimacy_escalate", "commitment_push", "future_talk"},
	},
	model.StageTerminating: {
		allowed:   []string{"answer"},
		forbidden: []string{"deep_probe", "intimacy_escalate", "commitment_push", "future_talk", "affection_signal"},
	},
}

// Input bundles everything the compiler folds together.
type Input struct {
	Mode               mode.Mode
	Plan               *model.ResponsePlanAlternative
	UserAsksAdviceHint bool
	UserText           string
	Style              model.StyleTargets
	Stage              model.KnappStage
	PacingNotes        []string
	StageViolationBump float64 // from detection stage_ctx, added to the table's base sensitivity
	Tasks              []model.BotTask
	TaskBudgetMax      int
	WordBudget         int
	ForbiddenTerms     []string
}

// baseViolationSensitivity is the starting point before detection's stage_ctx
// bump (section 4.10); later stages start stricter since reversions matter
// more.
var baseViolationSensitivity = map[model.KnappStage]float64{
	model.StageInitiating:      0.3,
	model.StageExperimenting:   0.35,
	model.StageIntensifying:    0.45,
	model.StageIntegrating:     0.5,
	model.StageBonding:         0.5,
	model.StageDifferentiating: 0.6,
	model.StageCircumscribing:  0.65,
	model.StageStagnating:      0.6,
	model.StageAvoiding:        0.7,
	model.StageTerminating:     0.8,
}

// Compile folds the input into a RequirementsChecklist.
func Compile(in Input) model.RequirementsChecklist {
	policy := mode.PolicyFor(in.Mode)

	forbidden := make([]string, 0, len(in.ForbiddenTerms)+len(ImmersionBreakingWords))
	seen := map[string]bool{}
	for _, t := range append(append([]string{}, in.ForbiddenTerms...), ImmersionBreakingWords...) {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		forbidden = append(forbidden, t)
	}

	acts := stageActTable[in.Stage]

	sensitivity := baseViolationSensitivity[in.Stage] + in.StageViolationBump
	if sensitivity > 1 {
		sensitivity = 1
	}
	if sensitivity < 0 {
		sensitivity = 0
	}

	maxMessages := policy.MaxMessages
	if in.WordBudget > 40 {
		maxMessages += 2
	}

	var mustCover, avoid []string
	if in.Plan != nil {
		mustCover = append(mustCover, in.Plan.CorePoints...)
		mustCover = append(mustCover, in.Plan.SearchSpec.MustCover...)
	}

	userAsksAdvice := in.UserAsksAdviceHint || adviceRegex.MatchString(in.UserText)

	mustHavePolicy := model.MustHaveNone
	if len(mustCover) > 0 && policy.MustHavePolicy != "none" {
		mustHavePolicy = model.MustHaveSoft
	}

	return model.RequirementsChecklist{
		MustHave:            mustCover,
		Forbidden:           forbidden,
		MaxMessages:         maxMessages,
		MinFirstLen:         policy.MinFirstLen,
		StagePacingNotes:    in.PacingNotes,
		MustHavePolicy:      mustHavePolicy,
		MustHaveMinCoverage: 0.6,
		AllowShortReply:     policy.AllowShortReply,
		AllowEmptyReply:     policy.AllowEmptyReply,
		PlanGoals:           model.PlanGoals{MustCoverPoints: mustCover, AvoidPoints: avoid},
		StyleTargets:        in.Style,
		StageTargets: model.StageTargets{
			Stage:                in.Stage,
			PacingNotes:          in.PacingNotes,
			ViolationSensitivity: sensitivity,
			AllowedActs:          acts.allowed,
			ForbiddenActs:        acts.forbidden,
		},
		TasksForLATS:   in.Tasks,
		TaskBudgetMax:  in.TaskBudgetMax,
		WordBudget:     in.WordBudget,
		UserAsksAdvice: userAsksAdvice,
		LatestUserText: in.UserText,
	}
}
