package intent

import "testing"

func TestDetection_IsNormal(t *testing.T) {
	if !(Detection{Category: Normal}).IsNormal() {
		t.Fatal("expected NORMAL category to be normal")
	}
	if (Detection{Category: Creepy}).IsNormal() {
		t.Fatal("expected CREEPY category to not be normal")
	}
}

func TestRouteFor(t *testing.T) {
	cases := map[Category]RouteKind{
		Normal: RouteNone,
		Creepy: RouteBoundary,
		Crazy:  RouteBoundary,
		Boring: RouteSarcasm,
		KY:     RouteConfusion,
	}
	for category, want := range cases {
		if got := RouteFor(category); got != want {
			t.Errorf("RouteFor(%s) = %s, want %s", category, got, want)
		}
	}
}

func TestShortReplyFor_EmptyForNoRoute(t *testing.T) {
	if ShortReplyFor(RouteNone) != "" {
		t.Fatal("expected empty reply for RouteNone")
	}
	if ShortReplyFor(RouteBoundary) == "" {
		t.Fatal("expected non-empty reply for RouteBoundary")
	}
}
