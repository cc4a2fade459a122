// Package turn wires the perception, planning, search, and persistence
// stages into the single per-turn entry point (spec section 2's C1-C20
// data-flow, section 6's handle_turn signature), grounded on the teacher's
// graph-orchestration shape (pkg/reasoning/graph.go: a fixed node order
// with conditional short-circuit routes, never a dynamically built DAG).
package turn

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/kadirpekel/persona-core/pkg/audit"
	"github.com/kadirpekel/persona-core/pkg/compiler"
	"github.com/kadirpekel/persona-core/pkg/config"
	"github.com/kadirpekel/persona-core/pkg/evaluator"
	"github.com/kadirpekel/persona-core/pkg/evolver"
	"github.com/kadirpekel/persona-core/pkg/intent"
	"github.com/kadirpekel/persona-core/pkg/lats"
	"github.com/kadirpekel/persona-core/pkg/llm"
	"github.com/kadirpekel/persona-core/pkg/logger"
	"github.com/kadirpekel/persona-core/pkg/metrics"
	"github.com/kadirpekel/persona-core/pkg/mode"
	"github.com/kadirpekel/persona-core/pkg/model"
	"github.com/kadirpekel/persona-core/pkg/patchcache"
	"github.com/kadirpekel/persona-core/pkg/perception"
	"github.com/kadirpekel/persona-core/pkg/planner"
	"github.com/kadirpekel/persona-core/pkg/reasoner"
	"github.com/kadirpekel/persona-core/pkg/requirements"
	"github.com/kadirpekel/persona-core/pkg/retrieval"
	"github.com/kadirpekel/persona-core/pkg/security"
	"github.com/kadirpekel/persona-core/pkg/stage"
	"github.com/kadirpekel/persona-core/pkg/store"
	"github.com/kadirpekel/persona-core/pkg/style"
	"github.com/kadirpekel/persona-core/pkg/taskplanner"
	"github.com/kadirpekel/persona-core/pkg/validator"
)

// Result is the handle_turn output (spec section 6).
type Result struct {
	FinalResponse string             `json:"final_response"`
	FinalSegments []string           `json:"final_segments"`
	Delays        []float64          `json:"delays"`
	Actions       []model.ActionKind `json:"actions"`
	Meta          map[string]any     `json:"meta"`
}

// fallbackDegradationLine is the single in-character unavailability
// notice used when no plan was ever produced (section 7: "never a stack
// trace").
const fallbackDegradationLine = "抱歉，我这会儿脑子有点乱，晚点再聊好吗。"

// Orchestrator bundles the collaborators a turn needs: storage, the LLM
// router, and runtime config. Constructed once per process and reused
// across turns (section 9: "no global mutable state... may be replaced by
// dependency injection").
type Orchestrator struct {
	Store  store.Store
	Router *llm.Router
	Config *config.Config

	// Metrics, PatchCache, and Audit are optional: a nil value on any of
	// them degrades gracefully (metrics/audit become no-ops, the patch
	// cache is simply skipped in favor of the store's own read), so tests
	// and minimal deployments never need to wire them.
	Metrics    *metrics.Metrics
	PatchCache *patchcache.Cache
	Audit      *audit.Publisher
}

// HandleTurn runs one full turn for (botID, userExtID) given the new user
// text, per the data-flow order of spec section 2:
// C1(load) -> C3 -> (safety short-circuit) -> C4 -> C5 -> C6 -> C7 -> C9 ->
// C8 -> C10 -> C11 -> C13(C12,C15,C14) -> C17 -> C18 -> C19 -> C20(commit).
func (o *Orchestrator) HandleTurn(ctx context.Context, userExtID, botID, userText string, now time.Time) (result Result, err error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	turnStartWall := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = "error"
		case result.Meta["error"] != nil:
			outcome = "degraded"
		case result.Meta["bypass_reason"] != nil:
			outcome = fmt.Sprint(result.Meta["bypass_reason"])
		case result.Meta["reason"] != nil:
			outcome = fmt.Sprint(result.Meta["reason"])
		}
		o.Metrics.ObserveTurn(outcome, time.Since(turnStartWall).Seconds())
	}()
	timeout := o.Config.TurnTimeout
	if timeout <= 0 {
		timeout = 180.0
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout*float64(time.Second)))
	defer cancel()

	log := logger.Turn(fmt.Sprintf("%s:%s:%d", botID, userExtID, now.UnixNano()), botID, userExtID)

	// C1: load state. Storage-unavailable fallback is handled inside
	// store construction (cmd wiring), not here: by the time HandleTurn
	// runs, o.Store is already the resolved backend (section 7).
	state, err := o.Store.LoadState(ctx, userExtID, botID)
	if err != nil {
		return Result{}, fmt.Errorf("turn: load state: %w", err)
	}

	mainInv := o.Router.For(llm.RouteMain)

	// C3: security classification and safety routing.
	classification, err := security.Classify(ctx, mainInv, userText)
	if err != nil {
		logger.Stage(log, "security").Warn("classify failed, treating as clean", "error", err)
		o.Metrics.ObserveStageError("C3", "classify_failed")
	}
	if classification.NeedsSecurityResponse() {
		strategy := security.PickStrategy(classification, rand.New(rand.NewPCG(uint64(now.UnixNano()), 1)))
		reply := security.Respond(strategy)
		return o.commitBypass(ctx, userExtID, botID, state, userText, reply, now, "safety_response")
	}

	// C4: intent detection; non-normal categories bypass LATS for a short
	// specialized reply.
	detection, err := intent.Detect(ctx, mainInv, userText)
	if err != nil {
		logger.Stage(log, "intent").Warn("detect failed, assuming normal", "error", err)
		o.Metrics.ObserveStageError("C4", "detect_failed")
		detection = intent.Detection{Category: intent.Normal}
	}
	if !detection.IsNormal() {
		route := intent.RouteFor(detection.Category)
		reply := intent.ShortReplyFor(route)
		return o.commitBypass(ctx, userExtID, botID, state, userText, reply, now, "specialized_route")
	}

	signals := deriveSignals(detection, userText)

	// C5: mode manager.
	activeMode := mode.Decide(signals.composites)

	wordBudget := len([]rune(strings.TrimSpace(userText)))
	if wordBudget == 0 {
		// Property 8: word_budget==0 emits NO_REPLY without invoking LATS
		// or mutating task completion counters.
		return Result{FinalResponse: "NO_REPLY", FinalSegments: nil, Delays: nil, Actions: nil, Meta: map[string]any{"reason": "empty_user_text"}}, nil
	}

	// C6: inner monologue.
	monologue, err := perception.Monologue(ctx, mainInv, state.Bot, userText)
	if err != nil {
		logger.Stage(log, "perception").Warn("monologue failed, proceeding with empty monologue", "error", err)
		o.Metrics.ObserveStageError("C6", "monologue_failed")
	}

	// C7: reasoner.
	reasoned, err := reasoner.Plan(ctx, mainInv, monologue, userText)
	if err != nil {
		logger.Stage(log, "reasoner").Warn("plan failed, using default single plan", "error", err)
		o.Metrics.ObserveStageError("C7", "plan_failed")
		reasoned = reasoner.Result{
			Plan: model.ResponsePlan{Plans: []model.ResponsePlanAlternative{{ID: "p1", Weight: 1, Action: "respond"}}},
		}
	}
	topPlan := pickTopPlan(reasoned.Plan)

	// C9: memory retrieval, mode-gated and seeded only from the reasoner's
	// query seeds (or the minimum-configuration fallback). The patch cache
	// is a read-through performance layer over the store's own
	// state.User.ActivePatch: a cache hit saves nothing functionally here
	// (LoadState already fetched it), so this only refreshes the cache
	// entry to the store's current value when it's missing or stale.
	activeModelPatch := state.User.ActivePatch
	if cached, ok := o.PatchCache.Get(ctx, state.User.ID); ok {
		activeModelPatch = cached
	} else {
		o.PatchCache.Set(ctx, state.User.ID, activeModelPatch)
	}
	activePatch := lats.FromModel(activeModelPatch)
	seeds := retrieval.Seeds(topPlan, state.User.CurrentStage, state.User.Dimensions, state.RecentMessages, userText, patchSearch(activePatch))
	retrieved, err := retrieval.Retrieve(ctx, o.Store, state.User.ID, activeMode, seeds)
	if err != nil {
		logger.Stage(log, "retrieval").Warn("retrieve failed, proceeding without recall", "error", err)
		o.Metrics.ObserveStageError("C9", "retrieve_failed")
	}
	monologue = monologue + recallContext(retrieved)

	// C8: style mixer.
	speechAct := reasoned.SpeechAct
	styleTargets := styleWithPatch(activePatch, state.User.Dimensions, state.User.Mood, speechAct)

	// C10: task planner.
	sessionPool := taskplanner.SeedSessionPool(state.User.Assets.CurrentSessionTasks, state.Bot.BacklogTasks)
	pool := taskplanner.AssemblePool(sessionPool, state.Bot.BacklogTasks, nil, rand.New(rand.NewPCG(uint64(now.UnixNano()), 2)))
	var tasksForLATS []model.BotTask
	if len(pool) > 0 {
		scores, serr := taskplanner.Score(ctx, mainInv, pool, monologue)
		if serr != nil {
			logger.Stage(log, "taskplanner").Warn("score failed, skipping task offers this turn", "error", serr)
			o.Metrics.ObserveStageError("C10", "score_failed")
		} else {
			tasksForLATS = taskplanner.Select(pool, scores, 0.7, rand.New(rand.NewPCG(uint64(now.UnixNano()), 3)))
		}
	}

	// C11: requirements compiler.
	checklist := requirements.Compile(requirements.Input{
		Mode:               activeMode,
		Plan:               topPlan,
		UserAsksAdviceHint: reasoned.UserAsksAdvice,
		UserText:           userText,
		Style:              styleTargets,
		Stage:              state.User.CurrentStage,
		PacingNotes:        patchPacingNotes(activePatch),
		StageViolationBump: signals.composites.StageViolation,
		Tasks:              tasksForLATS,
		TaskBudgetMax:      taskplanner.MaxTasksForLATS,
		WordBudget:         wordBudget,
		ForbiddenTerms:     nil,
	})
	checklist = applyPlanPatch(checklist, activePatch)

	stageCfg := o.Config.LATS
	stageCfg.SetDefaults(state.User.CurrentStage)
	stageCfg.HasLLMScorer = o.Router.HasJudge()

	eval := &evaluator.Evaluator{
		Invoker:      o.Router.For(llm.RouteJudge),
		Checklist:    checklist,
		Mode:         activeMode,
		Weights:      evaluator.DefaultWeights,
		HasLLMScorer: stageCfg.HasLLMScorer,
	}
	expander := &planner.Expander{Invoker: mainInv, Checklist: checklist, Monologue: monologue, UserText: userText}

	rootPlan, err := planner.Generate(ctx, mainInv, checklist, monologue, userText)
	var searchResult *lats.Result
	rootPlanFailed := err != nil
	if rootPlanFailed {
		logger.Stage(log, "planner").Warn("root plan generation failed: root_plan_failed", "error", err)
		o.Metrics.ObserveStageError("C12", "root_plan_failed")
	} else {
		// C13: LATS choreography search over C12/C15/C14.
		searchResult, err = lats.Run(ctx, rootPlan, lats.Config{
			Rollouts:                   stageCfg.Rollouts,
			ExpandK:                    stageCfg.ExpandK,
			DisableEarlyExit:           stageCfg.DisableEarlyExit,
			MinRolloutsBeforeEarlyExit: stageCfg.MinRolloutsBeforeEarlyExit,
			TopN:                       stageCfg.LLMSoftTopN,
			MaxConcurrency:             stageCfg.LLMSoftMaxConcurrency,
			EarlyExitRootScore:         stageCfg.EarlyExitRootScore,
			EarlyExitPlanAlignmentMin:  stageCfg.EarlyExitPlanAlignmentMin,
			EarlyExitAssistantinessMax: stageCfg.EarlyExitAssistantinessMax,
			EarlyExitModeFitMin:        stageCfg.EarlyExitModeFitMin,
			HasLLMScorer:               stageCfg.HasLLMScorer,
		}, expander, eval, eval)
		if err != nil {
			logger.Stage(log, "lats").Warn("search failed, falling back to root plan", "error", err)
			o.Metrics.ObserveStageError("C13", "lats_search_failed")
			searchResult = nil
		}
	}

	var winner model.ReplyPlan
	switch {
	case searchResult != nil && searchResult.Best != nil:
		winner = searchResult.Best.Plan
	case !rootPlanFailed:
		winner = rootPlan
	default:
		// Root plan failure with no best-seen candidate anywhere: section
		// 7's degradation line, no state mutation.
		return Result{FinalResponse: fallbackDegradationLine, Meta: map[string]any{"error": "root_plan_failed"}}, nil
	}

	// C15: deterministic reply compiler.
	compiled := compiler.Compile(winner, state.User.CurrentStage, state.User.Mood.Busyness, len([]rune(userText)))

	// C17: final validator.
	validated := validator.Validate(compiled, winner, checklist)

	// New reflection patch bookkeeping: a patch emitted this rollout
	// becomes next turn's active_patch, replacing (not stacking on) whatever
	// patch was active; otherwise the active patch is ticked and dropped
	// once it expires.
	nextPatch := activePatch
	if searchResult != nil && searchResult.NewPatch != nil {
		nextPatch = searchResult.NewPatch
	} else if nextPatch != nil && !nextPatch.Tick() {
		nextPatch = nil
	}

	finalText := compiler.FinalResponse(validated)

	// C18: relationship evolver.
	stageCtx := evolver.StageContext{
		ConflictEff:     signals.composites.ConflictEff,
		Goodwill:        signals.composites.Goodwill,
		Pressure:        signals.composites.Pressure,
		Provocation:     signals.composites.Provocation,
		Confusion:       signals.composites.Confusion,
		Betrayal:        signals.betrayal,
		PowerMove:       signals.powerMove,
		Stonewalling:    signals.stonewalling,
		OverCaring:      signals.overCaring,
		Possessiveness:  signals.possessiveness,
		TooCloseTooFast: signals.tooCloseTooFast,
		TooDistantCold:  signals.tooDistantCold,
		DependencyBid:   signals.dependencyBid,
	}
	proposedDims, rawDeltas := proposeDimensions(state.User.Dimensions, signals)
	newMood := evolver.RegressMood(state.User.Mood, state.User.Dimensions, stageCtx)

	completed := winner.CompletedTaskIDs
	attempted := winner.AttemptedTaskIDs
	outcome := evolver.ReconcileTasks(state.User.Assets.CurrentSessionTasks, state.Bot.BacklogTasks, tasksForLATS, attempted, completed, taskplanner.MaxTasksForLATS, now)

	// C19: stage manager.
	newSPTDepth := nextSPTDepth(state.User.SPT.Depth, topPlan)
	newStage := stage.Next(state.User.CurrentStage, clampForStage(state.User.Dimensions, proposedDims), stage.RawDeltas{Trust: rawDeltas.Trust, Liking: rawDeltas.Liking}, stage.SPTTransition{Previous: state.User.SPT.Depth, Current: newSPTDepth})

	state.User.Dimensions = proposedDims // SaveTurn clamps this against the on-disk old value itself.
	state.User.Mood = newMood
	state.User.CurrentStage = newStage
	state.User.SPT.Depth = newSPTDepth
	state.User.Assets.CurrentSessionTasks = outcome.SessionTasks
	state.Bot.BacklogTasks = outcome.Backlog
	state.User.ActivePatch = nextPatch.ToModel()
	o.PatchCache.Set(ctx, state.User.ID, state.User.ActivePatch)

	// C20: memory writer commit.
	newMemory := &store.NewMemory{
		Transcript: &model.Transcript{
			UserID:    state.User.ID,
			UserText:  userText,
			BotText:   finalText,
			Topic:     reasoned.Plan.UserIntent,
			CreatedAt: now,
		},
		Notes: deriveNotes(state.User.ID, topPlan, now),
	}
	audits, err := o.Store.SaveTurn(ctx, userExtID, botID, state, userText, finalText, newMemory)
	if err != nil {
		return Result{}, fmt.Errorf("turn: save: %w", err)
	}
	logger.Stage(log, "evolver").Info("dimension deltas", "audits", audits)
	o.Audit.Publish(ctx, state.User.ID, botID, audits, now)
	if searchResult != nil {
		o.Metrics.ObserveLATS(searchResult.RolloutsUsed, searchResult.EarlyExited)
		if searchResult.NewPatch != nil {
			o.Metrics.ObservePatchEmitted()
		}
	}

	return Result{
		FinalResponse: finalText,
		FinalSegments: validated.Messages,
		Delays:        validated.Delays,
		Actions:       validated.Actions,
		Meta: map[string]any{
			"mode":  string(activeMode),
			"stage": string(newStage),
		},
	}, nil
}

// commitBypass persists a safety/specialized-route reply: these bypass
// LATS and the evolver's reward logic but still persist for history
// integrity (section 4.3, 4.4).
func (o *Orchestrator) commitBypass(ctx context.Context, userExtID, botID string, state *model.State, userText, reply string, now time.Time, reason string) (Result, error) {
	newMemory := &store.NewMemory{
		Transcript: &model.Transcript{
			UserID:    state.User.ID,
			UserText:  userText,
			BotText:   reply,
			CreatedAt: now,
		},
	}
	if _, err := o.Store.SaveTurn(ctx, userExtID, botID, state, userText, reply, newMemory); err != nil {
		return Result{}, fmt.Errorf("turn: save bypass: %w", err)
	}
	o.Metrics.ObserveBypass(reason)
	return Result{
		FinalResponse: reply,
		FinalSegments: []string{reply},
		Delays:        []float64{0.6},
		Actions:       []model.ActionKind{model.ActionTyping},
		Meta:          map[string]any{"bypass_reason": reason},
	}, nil
}

func pickTopPlan(plan model.ResponsePlan) *model.ResponsePlanAlternative {
	if len(plan.Plans) == 0 {
		return nil
	}
	best := plan.Plans[0]
	for _, p := range plan.Plans[1:] {
		if p.Weight > best.Weight {
			best = p
		}
	}
	return &best
}

func patchSearch(p *lats.Patch) *lats.SearchPatch {
	if p == nil {
		return nil
	}
	return &p.Search
}

func patchPacingNotes(p *lats.Patch) []string {
	if p == nil {
		return nil
	}
	return p.Stage.AddPacingNotes
}

func applyPlanPatch(checklist model.RequirementsChecklist, p *lats.Patch) model.RequirementsChecklist {
	if p == nil {
		return checklist
	}
	must := append(append([]string{}, checklist.MustHave...), p.Plan.AddMustCoverPoints...)
	removed := map[string]bool{}
	for _, r := range p.Plan.RemoveMustCoverPoints {
		removed[r] = true
	}
	kept := must[:0:0]
	for _, m := range must {
		if !removed[m] {
			kept = append(kept, m)
		}
	}
	checklist.MustHave = kept
	checklist.PlanGoals.MustCoverPoints = kept
	checklist.StageTargets.ViolationSensitivity = clamp01(checklist.StageTargets.ViolationSensitivity + p.Stage.AdjustViolationSensitivity)
	return checklist
}

func styleWithPatch(p *lats.Patch, dims model.RelationshipDimensions, mood model.MoodState, speechAct string) model.StyleTargets {
	base := styleMix(dims, mood, speechAct)
	if p == nil {
		return base
	}
	return model.StyleFromMap(p.ApplyStyle(base.Map()))
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

func styleMix(dims model.RelationshipDimensions, mood model.MoodState, speechAct string) model.StyleTargets {
	return style.Mix(dims, mood, speechAct)
}

// recallContext folds retrieved transcripts/notes into the monologue
// string handed to the reasoner and planner, since neither takes a
// separate recall argument (section 4.8's recall is advisory context, not
// a binding contract on either stage).
func recallContext(r retrieval.Result) string {
	if len(r.Transcripts) == 0 && len(r.Notes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\nRecalled context:")
	for _, t := range r.Transcripts {
		b.WriteString("\n- previously: ")
		b.WriteString(t.UserText)
	}
	for _, n := range r.Notes {
		b.WriteString("\n- noted: ")
		b.WriteString(n.Content)
	}
	return b.String()
}
