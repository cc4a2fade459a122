// Package llm provides the abstract Invoker the turn pipeline calls into
// for every LLM-backed stage (spec sections 1 and 6), plus two concrete
// implementations grounded on the teacher's provider clients.
package llm

import "context"

// Role is the abstract LLM message role. The pipeline only ever produces
// user/system/assistant turns; tool-calling is out of scope (spec section 1
// treats tools as a non-goal for this core).
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of an LLM conversation.
type Message struct {
	Role    Role
	Content string
}

// Response is what an Invoker call returns.
type Response struct {
	Content string
	Tokens  int
}

// StructuredRequest forces a JSON-schema-shaped response, mirroring the
// teacher's StructuredOutputConfig (pkg/llms/types.go) but generalized away
// from any one provider's wire format.
type StructuredRequest struct {
	Messages []Message
	Schema   map[string]any // JSON Schema, required keys set by the caller
}

// Invoker is the single abstract contract the whole pipeline depends on
// (spec section 1: "LLM provider clients ... treated as an abstract
// Invoker with invoke(messages) -> Message and ainvoke").
type Invoker interface {
	// Invoke performs a plain text completion.
	Invoke(ctx context.Context, messages []Message) (Response, error)

	// InvokeStructured performs a completion constrained to req.Schema and
	// returns the raw JSON text (the caller decodes it into its own type).
	InvokeStructured(ctx context.Context, req StructuredRequest) (string, error)

	// Name identifies the provider/model for logging and role routing.
	Name() string
}

// Role-based routing (spec section 5): callers ask the Router for the
// invoker assigned to a role rather than holding a concrete provider.
type RouterRole string

const (
	RouteMain  RouterRole = "main"
	RouteFast  RouterRole = "fast"
	RouteJudge RouterRole = "judge"
)

// Router resolves a RouterRole to a concrete Invoker, falling back to the
// main invoker when a role has no dedicated one configured.
type Router struct {
	byRole map[RouterRole]Invoker
}

// NewRouter builds a Router. main must be non-nil; fast/judge may be nil,
// in which case they resolve to main.
func NewRouter(main, fast, judge Invoker) *Router {
	r := &Router{byRole: map[RouterRole]Invoker{RouteMain: main}}
	if fast != nil {
		r.byRole[RouteFast] = fast
	}
	if judge != nil {
		r.byRole[RouteJudge] = judge
	}
	return r
}

// For resolves a role to an invoker, defaulting to main.
func (r *Router) For(role RouterRole) Invoker {
	if inv, ok := r.byRole[role]; ok {
		return inv
	}
	return r.byRole[RouteMain]
}

// HasJudge reports whether a dedicated judge invoker is configured. The
// LATS evaluator (C14) and the early-exit gate (section 4.14) use this to
// decide whether the LLM soft scorer is available at all (section 5:
// "Soft-scorer is disabled automatically when the invoker is not
// configured for judge role").
func (r *Router) HasJudge() bool {
	_, ok := r.byRole[RouteJudge]
	return ok
}
