// Package detect implements the smart element detection engine: a read-only
// DOM probe, a rule-ordered visibility classifier, a multi-strategy CSS
// selector synthesizer, and a catalog builder that ties them together.
//
// Everything downstream of the probe is a pure computation over already
// materialized descriptors; the only suspension point is the page-context
// call behind the Evaluator interface.
package detect

import "strings"

// Kind selects which candidate predicate the probe applies.
type Kind string

const (
	// KindClickable matches interactive elements: native interactive tags,
	// interactive ARIA roles, click-handler hints and pointer-cursor styling.
	KindClickable Kind = "clickable"
	// KindTextBearing matches leaf-ish nodes carrying non-empty trimmed text.
	KindTextBearing Kind = "text"
)

// Geometry is the bounding box of an element in viewport coordinates at probe
// time. It is a point-in-time fact, not a live rect.
type Geometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Computed holds the raw CSS values relevant to visibility at probe time.
type Computed struct {
	Display    string  `json:"display"`
	Visibility string  `json:"visibility"`
	Opacity    float64 `json:"opacity"`
}

// AncestorRef is a slim view of one ancestor, ordered from immediate parent
// to document root. It carries just enough for ancestor-visibility checks and
// hierarchical selector disambiguation.
type AncestorRef struct {
	TagName    string   `json:"tagName"`
	ID         string   `json:"id"`
	Classes    []string `json:"classes"`
	NthOfType  int      `json:"nthOfType"`
	Display    string   `json:"display"`
	Visibility string   `json:"visibility"`
}

// ElementDescriptor is an immutable snapshot of one DOM node. Staleness after
// a page re-render is the caller's responsibility; the engine never
// re-validates a descriptor against the live page.
type ElementDescriptor struct {
	TagName    string            `json:"tagName"`
	Attributes map[string]string `json:"attributes"`
	Text       string            `json:"text"`
	Geometry   Geometry          `json:"geometry"`
	Computed   Computed          `json:"computed"`
	Ancestors  []AncestorRef     `json:"ancestors"`
	// NthOfType is the 1-based index among same-tag siblings.
	NthOfType int `json:"nthOfType"`
	// TreePath is the element-child index path from the document root. Its
	// lexicographic order is document (pre-order) order, and a strict prefix
	// relation means "is ancestor of".
	TreePath []int `json:"treePath"`
}

// Viewport is the page viewport size reported in the probe envelope.
type Viewport struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// HitMatch classifies the result of an occlusion hit-test at the element's
// center point.
type HitMatch string

const (
	// HitSelf means the element itself is top-most at its center.
	HitSelf HitMatch = "self"
	// HitDescendant means a descendant of the element is top-most.
	HitDescendant HitMatch = "descendant"
	// HitAncestor means an ancestor of the element is top-most. Following the
	// original behavior this does not count as occlusion.
	HitAncestor HitMatch = "ancestor"
	// HitForeign means an unrelated element covers the center point.
	HitForeign HitMatch = "foreign"
)

// HitTest is the occlusion probe result for one element.
type HitTest struct {
	Match  HitMatch `json:"match"`
	TopTag string   `json:"topTag"`
}

// ProbedElement pairs a descriptor with its optional occlusion hit-test.
type ProbedElement struct {
	Descriptor ElementDescriptor `json:"descriptor"`
	Hit        *HitTest          `json:"hit,omitempty"`
}

// Snapshot is the envelope of one batch probe call.
type Snapshot struct {
	Viewport Viewport        `json:"viewport"`
	Elements []ProbedElement `json:"elements"`
}

// ID returns the element's id attribute, if any.
func (d ElementDescriptor) ID() string {
	return d.Attributes["id"]
}

// Classes returns the element's class tokens.
func (d ElementDescriptor) Classes() []string {
	return strings.Fields(d.Attributes["class"])
}

// IsAncestorPath reports whether a is a strict ancestor of b in tree-path
// terms, i.e. a's path is a proper prefix of b's.
func IsAncestorPath(a, b []int) bool {
	if len(a) >= len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
