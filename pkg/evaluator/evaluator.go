// Package evaluator scores ReplyPlan candidates against the requirements
// checklist (C14, spec section 4.13): a hard gate of must-not-fail checks,
// a heuristic soft score, and an optional LLM soft scorer. It implements
// lats.CandidateEvaluator and lats.ReflectionPatcher.
package evaluator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kadirpekel/persona-core/pkg/lats"
	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
)

// Weights are the default heuristic soft-score weights (section 4.13).
type Weights struct {
	ModeConsistency   float64
	MustHaveCoverage  float64
	PlanCoverage      float64
	StyleDistance     float64
	StageFitHeur      float64
}

// DefaultWeights matches the spec's documented default breakdown.
var DefaultWeights = Weights{
	ModeConsistency:  0.45,
	MustHaveCoverage: 0.05,
	PlanCoverage:     0.05,
	StyleDistance:    0.15,
	StageFitHeur:     0.30,
}

var (
	identityRegex      = regexp.MustCompile(`(?i)\bi am an? (ai|assistant|chatbot|language model)\b`)
	serviceTemplateRx  = regexp.MustCompile(`(?i)(what can i help you with|how may i assist)`)
	templateEndingRx   = regexp.MustCompile(`(?i)thank you for using`)
	adviceImperativeRx = regexp.MustCompile(`(?i)(i suggest|you should|the steps are|first[,.]? then)`)
	intimacyVocabRx    = regexp.MustCompile(`(?i)(我爱你|嫁给我|永远在一起|i love you|marry me)`)
)

// Evaluator holds the config needed to score candidates.
type Evaluator struct {
	Invoker      llm.Invoker
	Checklist    model.RequirementsChecklist
	Mode         mode.Mode
	Weights      Weights
	HasLLMScorer bool
}

// HardGate runs the section-4.13 must-not-fail checks against a candidate's
// joined message text, mode-relaxed per checklist.
func HardGate(plan model.ReplyPlan, checklist model.RequirementsChecklist) []model.FailedCheck {
	var failed []model.FailedCheck

	nonEmpty := 0
	for _, m := range plan.Messages {
		if strings.TrimSpace(m.Content) != "" {
			nonEmpty++
		}
	}
	if nonEmpty == 0 && !checklist.AllowEmptyReply {
		failed = append(failed, model.FailedCheck{ID: "empty_reply", Reason: "no non-empty message and allow_empty_reply is false"})
	}

	if len(plan.Messages) > 0 {
		first := plan.Messages[0].Content
		if !checklist.AllowShortReply && len([]rune(first)) < checklist.MinFirstLen {
			failed = append(failed, model.FailedCheck{ID: "first_message_too_short", Reason: "first message shorter than min_first_len", Evidence: first})
		}
	}

	maxLen := checklist.MaxMessageLen
	if maxLen > 0 {
		for _, m := range plan.Messages {
			if len([]rune(m.Content)) > maxLen {
				failed = append(failed, model.FailedCheck{ID: "message_too_long", Reason: "message exceeds max_message_len", Evidence: m.Content})
			}
		}
	}

	joined := joinedText(plan)
	for _, term := range checklist.Forbidden {
		if term != "" && strings.Contains(joined, term) {
			failed = append(failed, model.FailedCheck{ID: "forbidden_term", Reason: "forbidden term present", Evidence: term})
		}
	}
	if identityRegex.MatchString(joined) {
		failed = append(failed, model.FailedCheck{ID: "identity_self_declaration", Reason: "self-identifies as AI/assistant/chatbot"})
	}
	if serviceTemplateRx.MatchString(joined) {
		failed = append(failed, model.FailedCheck{ID: "service_template_phrase", Reason: "uses a customer-service template phrase"})
	}
	if templateEndingRx.MatchString(joined) {
		failed = append(failed, model.FailedCheck{ID: "template_ending", Reason: "uses a template closing phrase"})
	}
	if !checklist.UserAsksAdvice && adviceImperativeRx.MatchString(joined) {
		failed = append(failed, model.FailedCheck{ID: "unsolicited_advice", Reason: "gives unsolicited step-by-step advice"})
	}

	return failed
}

func joinedText(plan model.ReplyPlan) string {
	parts := make([]string, len(plan.Messages))
	for i, m := range plan.Messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, " ")
}

// modeConsistency scores how well the candidate's structural shape matches
// the active mode's expectations.
func modeConsistency(plan model.ReplyPlan, checklist model.RequirementsChecklist, m mode.Mode) float64 {
	switch m {
	case mode.Mute:
		if len(plan.Messages) == 0 || strings.TrimSpace(joinedText(plan)) == "" {
			return 1
		}
		return 0.2
	case mode.Cold:
		if len(plan.Messages) == 1 && len([]rune(plan.Messages[0].Content)) <= 40 {
			return 1
		}
		return 0.3
	default:
		score := 1.0
		if len(plan.Messages) == 0 {
			return 0
		}
		firstLen := len([]rune(plan.Messages[0].Content))
		if firstLen < 8 {
			score -= 0.4
		}
		if checklist.MaxMessageLen > 0 && firstLen > checklist.MaxMessageLen {
			score -= 0.3
		}
		if checklist.MaxMessages > 0 && len(plan.Messages) > checklist.MaxMessages {
			score -= 0.3
		}
		if score < 0 {
			score = 0
		}
		return score
	}
}

// extractKeywords takes 2-4 salient terms from a point description for
// coverage scoring (section 4.13: "keyword-overlap over 2-4 extracted
// keywords per point").
func extractKeywords(point string) []string {
	fields := strings.FieldsFunc(point, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return fields
}

func coverageScore(points []string, text string) float64 {
	if len(points) == 0 {
		return 1
	}
	lower := strings.ToLower(text)
	covered := 0
	for _, p := range points {
		kws := extractKeywords(p)
		hit := false
		for _, kw := range kws {
			if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
				hit = true
				break
			}
		}
		if hit {
			covered++
		}
	}
	return float64(covered) / float64(len(points))
}

// mustHaveCoverage scores plan.must_cover_map coverage of checklist.MustHave,
// only meaningful under the "soft" policy.
func mustHaveCoverage(plan model.ReplyPlan, checklist model.RequirementsChecklist) float64 {
	if checklist.MustHavePolicy != model.MustHaveSoft {
		return 1
	}
	return coverageScore(checklist.MustHave, joinedText(plan))
}

func planCoverage(plan model.ReplyPlan, checklist model.RequirementsChecklist) float64 {
	return coverageScore(checklist.PlanGoals.MustCoverPoints, joinedText(plan))
}

// styleDistance scores 1 - mean|observed - target| over 5 observable
// proxies derived from the candidate text.
func styleDistance(plan model.ReplyPlan, target model.StyleTargets) float64 {
	text := joinedText(plan)
	runeLen := float64(len([]rune(text)))

	verbalLength := clamp01(runeLen / 120)
	socialDistance := clamp01(lexiconDensity(text, []string{"您", "请问", "方便"}) * 4)
	emotionalDisplay := clamp01(punctuationDensity(text) * 3)
	witAndHumor := clamp01(lexiconDensity(text, []string{"哈哈", "lol", "笑死", "хех"}) * 5)
	nonVerbalCues := clamp01(parentheticalDensity(text) * 4)

	diffs := []float64{
		abs(verbalLength - target.VerbalLength),
		abs(socialDistance - target.SocialDistance),
		abs(emotionalDisplay - target.EmotionalDisplay),
		abs(witAndHumor - target.WitAndHumor),
		abs(nonVerbalCues - target.NonVerbalCues),
	}
	sum := 0.0
	for _, d := range diffs {
		sum += d
	}
	return 1 - sum/float64(len(diffs))
}

func lexiconDensity(text string, terms []string) float64 {
	count := 0
	lower := strings.ToLower(text)
	for _, t := range terms {
		count += strings.Count(lower, strings.ToLower(t))
	}
	words := len(strings.Fields(text)) + 1
	return float64(count) / float64(words)
}

func punctuationDensity(text string) float64 {
	count := 0
	for _, r := range text {
		if r == '!' || r == '?' || r == '~' || r == '！' || r == '？' {
			count++
		}
	}
	return float64(count) / float64(len([]rune(text))+1)
}

func parentheticalDensity(text string) float64 {
	count := strings.Count(text, "(") + strings.Count(text, "（")
	return float64(count) / float64(len([]rune(text))+1)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// stageFitHeur penalizes intimacy-promotion vocabulary when stage violation
// sensitivity is high.
func stageFitHeur(plan model.ReplyPlan, checklist model.RequirementsChecklist) float64 {
	text := joinedText(plan)
	score := 1.0
	if intimacyVocabRx.MatchString(text) {
		score -= checklist.StageTargets.ViolationSensitivity
	}
	if checklist.StageTargets.Stage == model.StageInitiating {
		if strings.Contains(text, "commitment") || strings.Contains(text, "未来") {
			score -= 0.3
		}
	}
	return clamp01(score)
}

// EvaluateHeuristic runs the hard gate plus the weighted heuristic soft
// score (lats.CandidateEvaluator).
func (e *Evaluator) EvaluateHeuristic(ctx context.Context, plan model.ReplyPlan) (model.SimReport, error) {
	failed := HardGate(plan, e.Checklist)
	hardPass := len(failed) == 0

	breakdown := map[string]float64{
		"mode_consistency":   modeConsistency(plan, e.Checklist, e.Mode),
		"must_have_coverage": mustHaveCoverage(plan, e.Checklist),
		"plan_coverage":      planCoverage(plan, e.Checklist),
		"style_distance":     styleDistance(plan, e.Checklist.StyleTargets),
		"stage_fit_heur":     stageFitHeur(plan, e.Checklist),
	}
	w := e.Weights
	overall := w.ModeConsistency*breakdown["mode_consistency"] +
		w.MustHaveCoverage*breakdown["must_have_coverage"] +
		w.PlanCoverage*breakdown["plan_coverage"] +
		w.StyleDistance*breakdown["style_distance"] +
		w.StageFitHeur*breakdown["stage_fit_heur"]

	if !hardPass {
		overall *= 0.2
	}

	return model.SimReport{
		FoundSolution:  hardPass && overall >= 0.55,
		EvalScore:      overall,
		FailedChecks:   failed,
		ScoreBreakdown: breakdown,
		LLMStatus:      "skipped",
	}, nil
}

type llmScorerResponse struct {
	PlanAlignment        float64        `json:"plan_alignment"`
	StyleAdherence       float64        `json:"style_adherence"`
	StageFit             float64        `json:"stage_fit"`
	Assistantiness       float64        `json:"assistantiness"`
	ImmersionBreak       float64        `json:"immersion_break"`
	PersonaConsistency   float64        `json:"persona_consistency"`
	RelationshipFit      float64        `json:"relationship_fit"`
	MemoryFaithfulness   float64        `json:"memory_faithfulness"`
	MemoryIntegration    float64        `json:"memory_integration"`
	ModeBehaviorFit      float64        `json:"mode_behavior_fit"`
	HasModeBehaviorFit   bool           `json:"has_mode_behavior_fit"`
	PlanAlignmentDetails map[string]any `json:"plan_alignment_details"`
	StyleDimReport       map[string]any `json:"style_dim_report"`
	StageActReport       map[string]any `json:"stage_act_report"`
	MemoryReport         map[string]any `json:"memory_report"`
	Overall              float64        `json:"overall"`
}

var llmScorerSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"plan_alignment":      map[string]any{"type": "number"},
		"style_adherence":     map[string]any{"type": "number"},
		"stage_fit":           map[string]any{"type": "number"},
		"assistantiness":      map[string]any{"type": "number"},
		"immersion_break":     map[string]any{"type": "number"},
		"persona_consistency": map[string]any{"type": "number"},
		"relationship_fit":    map[string]any{"type": "number"},
		"memory_faithfulness": map[string]any{"type": "number"},
		"memory_integration":  map[string]any{"type": "number"},
		"mode_behavior_fit":   map[string]any{"type": "number"},
		"has_mode_behavior_fit": map[string]any{"type": "boolean"},
		"overall":             map[string]any{"type": "number"},
	},
	"required": []string{"plan_alignment", "assistantiness", "overall"},
}

const llmScorerSystemPrompt = `You are a strict judge scoring a candidate reply against the requirements
checklist and relationship context. Score each dimension in [0,1].
assistantiness measures how much the reply sounds like a generic AI
assistant rather than the persona; immersion_break measures how much it
breaks character. Be conservative: if uncertain whether the reply sounds
like an assistant, score assistantiness high rather than low.`

// EvaluateLLM runs the optional LLM soft scorer and recombines the overall
// score per section 4.13's formula and hard caps.
func (e *Evaluator) EvaluateLLM(ctx context.Context, plan model.ReplyPlan, heuristic model.SimReport) (lats.LLMGateScores, model.SimReport, error) {
	user := fmt.Sprintf("Candidate reply: %s\nMust cover: %v\nStage: %s\n", joinedText(plan), e.Checklist.PlanGoals.MustCoverPoints, e.Checklist.StageTargets.Stage)

	var out llmScorerResponse
	if err := llm.CallStructured(ctx, e.Invoker, llmScorerSystemPrompt, user, llmScorerSchema, &out); err != nil {
		// Missing LLM dimensions default conservatively (section 4.13).
		gates := lats.LLMGateScores{Assistantiness: 0.8}
		report := heuristic
		report.LLMStatus = "error"
		return gates, report, nil
	}

	overall := 0.75*out.Overall + 0.25*heuristic.EvalScore
	if out.Assistantiness > 0.5 && overall > 0.28 {
		overall = 0.28
	}
	if out.ImmersionBreak > 0.2 && overall > 0.28 {
		overall = 0.28
	}

	breakdown := map[string]float64{
		"plan_alignment":      out.PlanAlignment,
		"style_adherence":     out.StyleAdherence,
		"stage_fit":           out.StageFit,
		"assistantiness":      out.Assistantiness,
		"immersion_break":     out.ImmersionBreak,
		"persona_consistency": out.PersonaConsistency,
		"relationship_fit":    out.RelationshipFit,
		"memory_faithfulness": out.MemoryFaithfulness,
		"memory_integration":  out.MemoryIntegration,
		"mode_behavior_fit":   out.ModeBehaviorFit,
	}
	for k, v := range heuristic.ScoreBreakdown {
		breakdown["heuristic_"+k] = v
	}

	hardPass := len(heuristic.FailedChecks) == 0
	report := model.SimReport{
		FoundSolution:  hardPass && overall >= 0.55,
		EvalScore:      overall,
		FailedChecks:   heuristic.FailedChecks,
		ScoreBreakdown: breakdown,
		LLMStatus:      "ok",
		LLMDetails: map[string]any{
			"plan_alignment_details": out.PlanAlignmentDetails,
			"style_dim_report":       out.StyleDimReport,
			"stage_act_report":       out.StageActReport,
			"memory_report":          out.MemoryReport,
		},
	}

	gates := lats.LLMGateScores{
		PlanAlignment:      out.PlanAlignment,
		Assistantiness:     out.Assistantiness,
		ModeBehaviorFit:    out.ModeBehaviorFit,
		HasModeBehaviorFit: out.HasModeBehaviorFit,
	}
	return gates, report, nil
}

type patchResponse struct {
	lats.Patch
}

var patchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"plan_patch":   map[string]any{"type": "object"},
		"style_patch":  map[string]any{"type": "object"},
		"stage_patch":  map[string]any{"type": "object"},
		"search_patch": map[string]any{"type": "object"},
	},
}

const patchSystemPrompt = `A set of checks keep failing across attempts at this reply. Propose a
small structured patch to the requirements that would help future
attempts avoid the same failures: adjustments to must-cover points,
style targets, stage pacing notes, or memory search seeds. Be minimal
and targeted.`

// GeneratePatch implements lats.ReflectionPatcher.
func (e *Evaluator) GeneratePatch(ctx context.Context, failedIDs []string) (*lats.Patch, error) {
	user := fmt.Sprintf("Recurring failed checks: %v\n", failedIDs)
	var out patchResponse
	if err := llm.CallStructured(ctx, e.Invoker, patchSystemPrompt, user, patchSchema, &out); err != nil {
		return nil, fmt.Errorf("evaluator: generate patch: %w", err)
	}
	p := lats.NewPatch(lats.DefaultPatchTTLTurns)
	p.Plan = out.Plan
	p.Style = out.Style
	p.Stage = out.Stage
	p.Search = out.Search
	return p, nil
}
