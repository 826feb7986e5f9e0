package validate

import (
	"finspread/internal/common"
	"finspread/internal/entity"
)

// Thresholds holds the field-level routing bands. Values are defaults,
// not calibrated constants; config may override them.
type Thresholds struct {
	Accept     float64 // >= Accept: accepted outright
	SoftReview float64 // >= SoftReview: review required, non-blocking
	HardReview float64 // >= HardReview: review required, blocks auto-approval
	// below HardReview: rejected, value discarded for manual entry
}

// DefaultThresholds mirrors the config defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{Accept: 0.95, SoftReview: 0.80, HardReview: 0.50}
}

// ThresholdsFrom extracts the routing bands from pipeline config.
func ThresholdsFrom(cfg common.PipelineConfig) Thresholds {
	return Thresholds{
		Accept:     cfg.AcceptConfidence,
		SoftReview: cfg.SoftReviewFloor,
		HardReview: cfg.HardReviewFloor,
	}
}

// Route maps a field confidence onto its routing decision. Pure and
// monotonic: a higher confidence never routes worse, and band boundaries
// are exact (0.95 is accepted, 0.9499... is not).
func (t Thresholds) Route(confidence float64) entity.Routing {
	switch {
	case confidence >= t.Accept:
		return entity.RoutingAccepted
	case confidence >= t.SoftReview:
		return entity.RoutingReviewSoft
	case confidence >= t.HardReview:
		return entity.RoutingReviewHard
	default:
		return entity.RoutingRejected
	}
}

// RouteFields stamps each field's routing in place and reports whether
// any field blocks auto-approval. Rejected fields keep their identity
// and provenance; only downstream consumers treat the value as absent.
func (t Thresholds) RouteFields(fields []entity.NormalizedField) (blocked bool) {
	for i := range fields {
		fields[i].Routing = t.Route(fields[i].Confidence)
		if fields[i].Routing.Blocking() {
			blocked = true
		}
	}
	return blocked
}
