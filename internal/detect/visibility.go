package detect

// Reason names the single visibility rule that decided a verdict.
type Reason string

const (
	ReasonZeroSize       Reason = "zero_size"
	ReasonHidden         Reason = "hidden"
	ReasonNoOpacity      Reason = "no_opacity"
	ReasonAncestorHidden Reason = "ancestor_hidden"
	ReasonOutOfViewport  Reason = "out_of_viewport"
	ReasonOccluded       Reason = "occluded"
	ReasonVisible        Reason = "visible"
)

// Verdict is the outcome of classifying one descriptor. Exactly one reason
// applies; the first failing rule in the checked order wins.
type Verdict struct {
	Visible bool   `json:"visible"`
	Reason  Reason `json:"reason"`
}

// Classify decides whether an element is genuinely visible. It is a pure,
// total function over its inputs; hit may be nil, in which case the occlusion
// rule is skipped.
//
// The rule order is fixed: cheap checks over already materialized data (size,
// computed style, ancestors, viewport bounds) run before the occlusion
// hit-test result is consulted, so callers that short-circuit on the early
// rules never pay for a hit-test round trip.
func Classify(d ElementDescriptor, vp Viewport, hit *HitTest) Verdict {
	if d.Geometry.Width <= 0 || d.Geometry.Height <= 0 {
		return Verdict{Reason: ReasonZeroSize}
	}
	if styleHidden(d.Computed.Display, d.Computed.Visibility) {
		return Verdict{Reason: ReasonHidden}
	}
	if d.Computed.Opacity <= 0 {
		return Verdict{Reason: ReasonNoOpacity}
	}
	for _, a := range d.Ancestors {
		if styleHidden(a.Display, a.Visibility) {
			return Verdict{Reason: ReasonAncestorHidden}
		}
	}
	if outOfViewport(d.Geometry, vp) {
		return Verdict{Reason: ReasonOutOfViewport}
	}
	// An ancestor on top of the element (e.g. a styled wrapper) does not
	// occlude it; only an unrelated element does.
	if hit != nil && hit.Match == HitForeign {
		return Verdict{Reason: ReasonOccluded}
	}
	return Verdict{Visible: true, Reason: ReasonVisible}
}

func styleHidden(display, visibility string) bool {
	return display == "none" || visibility == "hidden"
}

// outOfViewport reports whether the box lies entirely outside
// (0,0)-(vp.Width, vp.Height).
func outOfViewport(g Geometry, vp Viewport) bool {
	if vp.Width <= 0 || vp.Height <= 0 {
		return false
	}
	return g.X+g.Width <= 0 || g.Y+g.Height <= 0 || g.X >= vp.Width || g.Y >= vp.Height
}
