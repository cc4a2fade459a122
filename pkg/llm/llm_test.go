package llm

import (
	"context"
	"testing"
)

type stubInvoker struct {
	name   string
	raw    string
	err    error
}

func (s *stubInvoker) Name() string { return s.name }

func (s *stubInvoker) Invoke(ctx context.Context, messages []Message) (Response, error) {
	return Response{Content: s.raw}, s.err
}

func (s *stubInvoker) InvokeStructured(ctx context.Context, req StructuredRequest) (string, error) {
	return s.raw, s.err
}

func TestRouter_FallsBackToMain(t *testing.T) {
	main := &stubInvoker{name: "main"}
	r := NewRouter(main, nil, nil)

	if r.For(RouteFast) != main {
		t.Fatal("expected fast role to fall back to main")
	}
	if r.For(RouteJudge) != main {
		t.Fatal("expected judge role to fall back to main")
	}
	if r.HasJudge() {
		t.Fatal("expected HasJudge false when no judge invoker configured")
	}
}

func TestRouter_DedicatedJudge(t *testing.T) {
	main := &stubInvoker{name: "main"}
	judge := &stubInvoker{name: "judge"}
	r := NewRouter(main, nil, judge)

	if r.For(RouteJudge) != judge {
		t.Fatal("expected dedicated judge invoker to be returned")
	}
	if !r.HasJudge() {
		t.Fatal("expected HasJudge true")
	}
}

func TestCallStructured_ExtractsJSONFromProse(t *testing.T) {
	inv := &stubInvoker{raw: "Sure, here you go:\n{\"a\": 1}\nHope that helps!"}
	var out struct {
		A int `json:"a"`
	}
	if err := CallStructured(context.Background(), inv, "sys", "usr", nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.A != 1 {
		t.Fatalf("expected a=1, got %d", out.A)
	}
}

func TestCallStructured_PropagatesParseFailure(t *testing.T) {
	inv := &stubInvoker{raw: "not json at all"}
	var out struct{ A int }
	if err := CallStructured(context.Background(), inv, "sys", "usr", nil, &out); err == nil {
		t.Fatal("expected parse failure error")
	}
}
