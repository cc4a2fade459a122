// Package lats implements the UCB1 choreography search over ReplyPlan
// variants (C13, spec section 4.14), grounded on the teacher's
// ownership-boundary builder pattern for tree state
// (pkg/reasoning/state.go): the tree arena owns visit/value bookkeeping,
// the active Patch is the single read-modify-write field carried across
// turns.
package lats

import (
	"context"
	"math"
	"sort"

	"github.com/kadirpekel/persona-core/pkg/model"
)

// UCBExplorationConstant is the fixed c in exploit + c·√(ln N_parent/N_child).
const UCBExplorationConstant = 1.2

// Node is one ReplyPlan in the search tree.
type Node struct {
	Plan     model.ReplyPlan
	Parent   *Node
	Children []*Node
	Visits   int
	ValueSum float64

	Report   model.SimReport
	LLMGates *LLMGateScores
}

// LLMGateScores are the LLM soft scorer's gate-relevant fields (section
// 4.14's early-exit and final-judge gates).
type LLMGateScores struct {
	PlanAlignment      float64
	Assistantiness     float64
	ModeBehaviorFit    float64
	HasModeBehaviorFit bool
}

// score returns the node's mean simulated value.
func (n *Node) score() float64 {
	if n.Visits == 0 {
		return 0
	}
	return n.ValueSum / float64(n.Visits)
}

func ucb1(child *Node, parentVisits int) float64 {
	if child.Visits == 0 {
		return math.Inf(1)
	}
	exploit := child.score()
	return exploit + UCBExplorationConstant*math.Sqrt(math.Log(float64(parentVisits))/float64(child.Visits))
}

// selectLeaf descends from root by UCB1, stopping at the first node with no
// children (a leaf available for expansion).
func selectLeaf(root *Node) *Node {
	cur := root
	for len(cur.Children) > 0 {
		best := cur.Children[0]
		bestScore := ucb1(best, cur.Visits)
		for _, c := range cur.Children[1:] {
			if s := ucb1(c, cur.Visits); s > bestScore {
				best, bestScore = c, s
			}
		}
		cur = best
	}
	return cur
}

func backprop(leaf *Node, value float64) {
	for n := leaf; n != nil; n = n.Parent {
		n.Visits++
		n.ValueSum += value
	}
}

// VariantExpander generates k candidate ReplyPlan variants from a node,
// implemented by pkg/planner so this package stays decoupled from the LLM
// call shape.
type VariantExpander interface {
	Expand(ctx context.Context, parent model.ReplyPlan, k int) ([]model.ReplyPlan, error)
}

// CandidateEvaluator runs the two-stage evaluation of section 4.14,
// implemented by pkg/evaluator.
type CandidateEvaluator interface {
	EvaluateHeuristic(ctx context.Context, plan model.ReplyPlan) (model.SimReport, error)
	EvaluateLLM(ctx context.Context, plan model.ReplyPlan, heuristic model.SimReport) (LLMGateScores, model.SimReport, error)
}

// ReflectionPatcher generates a cross-rollout reflection patch when a
// failed-check id recurs, implemented by pkg/evaluator.
type ReflectionPatcher interface {
	GeneratePatch(ctx context.Context, failedIDs []string) (*Patch, error)
}

// Config bundles the section-6 LATS knobs.
type Config struct {
	Rollouts                   int
	ExpandK                    int
	DisableEarlyExit           bool
	MinRolloutsBeforeEarlyExit int
	TopN                       int
	MaxConcurrency             int
	EarlyExitRootScore         float64
	EarlyExitPlanAlignmentMin  float64
	EarlyExitAssistantinessMax float64
	EarlyExitModeFitMin        float64
	HasLLMScorer               bool
}

// Result is the outcome of one LATS run.
type Result struct {
	Root          *Node
	Best          *Node
	RolloutsUsed  int
	NewPatch      *Patch
	EarlyExited   bool
}

// Run executes the UCB1-expand-simulate-backprop loop. If cfg.Rollouts == 0
// and cfg.ExpandK == 0, no variants are generated and root is returned
// unexpanded (spec section 8, invariant on a zero search budget).
func Run(ctx context.Context, rootPlan model.ReplyPlan, cfg Config, expander VariantExpander, evaluator CandidateEvaluator, patcher ReflectionPatcher) (*Result, error) {
	root := &Node{Plan: rootPlan}

	rootReport, err := evaluator.EvaluateHeuristic(ctx, rootPlan)
	if err != nil {
		return nil, err
	}
	root.Report = rootReport
	if cfg.HasLLMScorer {
		gates, report, err := evaluator.EvaluateLLM(ctx, rootPlan, rootReport)
		if err == nil {
			root.LLMGates = &gates
			root.Report = report
		}
	}
	backprop(root, root.Report.EvalScore)

	if cfg.Rollouts == 0 && cfg.ExpandK == 0 {
		return &Result{Root: root, Best: root, RolloutsUsed: 0}, nil
	}

	tally := NewFailureTally()
	var bestNode = root
	var newPatch *Patch

	rollout := 0
	for rollout < cfg.Rollouts {
		rollout++

		if root.Visits >= cfg.MinRolloutsBeforeEarlyExit && !cfg.DisableEarlyExit && earlyExitSatisfied(bestNode, cfg) {
			return &Result{Root: root, Best: bestNode, RolloutsUsed: rollout - 1, NewPatch: newPatch, EarlyExited: true}, nil
		}

		leaf := selectLeaf(root)

		k := cfg.ExpandK
		minExpand := 2 * k
		if minExpand > 8 {
			minExpand = 8
		}
		expandRequest := k
		if minExpand > expandRequest {
			expandRequest = minExpand
		}
		variants, err := expander.Expand(ctx, leaf.Plan, expandRequest)
		if err != nil {
			return nil, err
		}
		if len(variants) > k {
			variants = variants[:k]
		}

		children := make([]*Node, 0, len(variants))
		for _, v := range variants {
			child := &Node{Plan: v, Parent: leaf}
			report, err := evaluator.EvaluateHeuristic(ctx, v)
			if err != nil {
				return nil, err
			}
			child.Report = report
			children = append(children, child)
			leaf.Children = append(leaf.Children, child)
			tally.Record(failedIDs(report))
		}

		sort.SliceStable(children, func(i, j int) bool {
			pi, pj := children[i].Report.FoundSolution, children[j].Report.FoundSolution
			if pi != pj {
				return pi
			}
			return children[i].Report.EvalScore > children[j].Report.EvalScore
		})

		topN := cfg.TopN
		if topN <= 0 {
			topN = 1
		}
		if topN > len(children) {
			topN = len(children)
		}
		if cfg.HasLLMScorer {
			for i := 0; i < topN; i++ {
				gates, report, err := evaluator.EvaluateLLM(ctx, children[i].Plan, children[i].Report)
				if err == nil {
					children[i].LLMGates = &gates
					children[i].Report = report
				}
			}
		}

		for _, c := range children {
			backprop(c, c.Report.EvalScore)
			if better(c, bestNode) {
				bestNode = c
			}
		}

		if newPatch == nil || !newPatch.Alive() {
			recurring := tally.Recurring()
			if len(recurring) > 0 && patcher != nil {
				if p, err := patcher.GeneratePatch(ctx, recurring); err == nil && p != nil {
					newPatch = p
				}
			}
		}
	}

	return &Result{Root: root, Best: bestNode, RolloutsUsed: rollout, NewPatch: newPatch}, nil
}

func better(a, b *Node) bool {
	if a.Report.FoundSolution != b.Report.FoundSolution {
		return a.Report.FoundSolution
	}
	return a.Report.EvalScore > b.Report.EvalScore
}

func failedIDs(r model.SimReport) []string {
	ids := make([]string, 0, len(r.FailedChecks))
	for _, f := range r.FailedChecks {
		ids = append(ids, f.ID)
	}
	return ids
}

// earlyExitSatisfied implements section 4.14's termination rule: best_score
// ≥ threshold AND, when an LLM scorer is configured, every gate field must
// be present and within bound — missing fields forbid early-exit rather
// than defaulting permissively.
func earlyExitSatisfied(best *Node, cfg Config) bool {
	if best.Report.EvalScore < cfg.EarlyExitRootScore {
		return false
	}
	if !cfg.HasLLMScorer {
		return true
	}
	if best.LLMGates == nil {
		return false
	}
	g := best.LLMGates
	if g.PlanAlignment < cfg.EarlyExitPlanAlignmentMin {
		return false
	}
	if g.Assistantiness > cfg.EarlyExitAssistantinessMax {
		return false
	}
	if g.HasModeBehaviorFit && g.ModeBehaviorFit < cfg.EarlyExitModeFitMin {
		return false
	}
	return true
}
