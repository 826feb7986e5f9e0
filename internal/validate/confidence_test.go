package validate

import (
	"testing"

	"finspread/internal/entity"
)

func TestRouteBands(t *testing.T) {
	th := DefaultThresholds()

	cases := []struct {
		confidence float64
		want       entity.Routing
	}{
		{1.0, entity.RoutingAccepted},
		{0.95, entity.RoutingAccepted},
		{0.9499, entity.RoutingReviewSoft},
		{0.92, entity.RoutingReviewSoft}, // visible to the user, non-blocking
		{0.80, entity.RoutingReviewSoft},
		{0.7999, entity.RoutingReviewHard},
		{0.50, entity.RoutingReviewHard},
		{0.4999, entity.RoutingRejected},
		{0.0, entity.RoutingRejected},
	}
	for _, tc := range cases {
		if got := th.Route(tc.confidence); got != tc.want {
			t.Errorf("Route(%v) = %v, want %v", tc.confidence, got, tc.want)
		}
	}
}

func TestRouteMonotonic(t *testing.T) {
	th := DefaultThresholds()
	rank := map[entity.Routing]int{
		entity.RoutingRejected:   0,
		entity.RoutingReviewHard: 1,
		entity.RoutingReviewSoft: 2,
		entity.RoutingAccepted:   3,
	}
	prev := -1
	for c := 0.0; c <= 1.0; c += 0.001 {
		r := rank[th.Route(c)]
		if r < prev {
			t.Fatalf("routing not monotonic at confidence %v", c)
		}
		prev = r
	}
}

func TestRouteFieldsBlocking(t *testing.T) {
	th := DefaultThresholds()

	fields := []entity.NormalizedField{
		{Confidence: 0.99},
		{Confidence: 0.92},
	}
	if blocked := th.RouteFields(fields); blocked {
		t.Error("soft review must not block auto-approval")
	}
	if fields[1].Routing != entity.RoutingReviewSoft {
		t.Errorf("routing = %v, want soft review", fields[1].Routing)
	}

	fields = append(fields, entity.NormalizedField{Confidence: 0.6})
	if blocked := th.RouteFields(fields); !blocked {
		t.Error("hard review must block auto-approval")
	}

	fields = []entity.NormalizedField{{Confidence: 0.2}}
	if blocked := th.RouteFields(fields); !blocked {
		t.Error("rejected field must block auto-approval")
	}
	if fields[0].Routing != entity.RoutingRejected {
		t.Errorf("routing = %v, want rejected", fields[0].Routing)
	}
}
