package detect

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEvaluator serves canned snapshots and selector counts instead of a
// live page.
type fakeEvaluator struct {
	snapshot Snapshot
	counts   map[string]int
	err      error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, script string, arg any) (any, error) {
	if f.err != nil {
		return nil, f.err
	}
	if script == countScript {
		sel, _ := arg.(string)
		return f.counts[sel], nil
	}
	return f.snapshot, nil
}

func newTestEngine(t *testing.T, eval Evaluator, mutate func(*Policy)) *Engine {
	t.Helper()
	policy := DefaultPolicy()
	if mutate != nil {
		mutate(&policy)
	}
	engine, err := NewEngine(eval, policy, zerolog.Nop())
	require.NoError(t, err)
	return engine
}

func clickableButton(id string, path []int) ProbedElement {
	return ProbedElement{
		Descriptor: ElementDescriptor{
			TagName:    "button",
			Attributes: map[string]string{"id": id},
			Geometry:   Geometry{X: 10, Y: 10, Width: 80, Height: 24},
			Computed:   Computed{Display: "inline-block", Visibility: "visible", Opacity: 1},
			NthOfType:  1,
			TreePath:   path,
		},
		Hit: &HitTest{Match: HitSelf, TopTag: "button"},
	}
}

func TestBuildCatalog_EmptyPageIsSuccess(t *testing.T) {
	eval := &fakeEvaluator{snapshot: Snapshot{Viewport: Viewport{Width: 1280, Height: 720}}}
	engine := newTestEngine(t, eval, nil)

	catalog, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.NoError(t, err)
	assert.Empty(t, catalog.Entries)
	assert.Equal(t, KindClickable, catalog.Kind)
	assert.Equal(t, Viewport{Width: 1280, Height: 720}, catalog.Viewport)
}

func TestBuildCatalog_DropsInvisibleKeepsOrder(t *testing.T) {
	hidden := clickableButton("hidden-btn", []int{0, 1})
	hidden.Descriptor.Computed.Display = "none"

	occluded := clickableButton("covered-btn", []int{0, 2})
	occluded.Hit = &HitTest{Match: HitForeign, TopTag: "div"}

	transparent := clickableButton("ghost-btn", []int{0, 3})
	transparent.Descriptor.Computed.Opacity = 0

	eval := &fakeEvaluator{
		snapshot: Snapshot{
			Viewport: Viewport{Width: 1280, Height: 720},
			Elements: []ProbedElement{
				clickableButton("first", []int{0, 0}),
				hidden,
				occluded,
				transparent,
				clickableButton("last", []int{0, 4}),
			},
		},
		counts: map[string]int{"#first": 1, "#last": 1},
	}
	engine := newTestEngine(t, eval, nil)

	catalog, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 2)
	assert.Equal(t, "#first", catalog.Entries[0].Selector)
	assert.Equal(t, "#last", catalog.Entries[1].Selector)
	assert.Equal(t, ReasonVisible, catalog.Entries[0].Verdict.Reason)
}

func TestBuildCatalog_UniquenessPicksFirstUniqueCandidate(t *testing.T) {
	el := ProbedElement{
		Descriptor: ElementDescriptor{
			TagName:    "button",
			Attributes: map[string]string{"name": "save"},
			Text:       "Save",
			Geometry:   Geometry{X: 10, Y: 10, Width: 80, Height: 24},
			Computed:   Computed{Display: "inline-block", Visibility: "visible", Opacity: 1},
			NthOfType:  1,
			TreePath:   []int{0, 0},
		},
		Hit: &HitTest{Match: HitSelf, TopTag: "button"},
	}
	eval := &fakeEvaluator{
		snapshot: Snapshot{Viewport: Viewport{Width: 1280, Height: 720}, Elements: []ProbedElement{el}},
		counts: map[string]int{
			`[name="save"]`: 2, // ambiguous
			// :has-text is not plain CSS; the count probe resolves it to 0
			// and the cascade falls through.
			`button:has-text("Save")`: 0,
			"button:nth-of-type(1)":   1,
		},
	}
	engine := newTestEngine(t, eval, nil)

	catalog, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 1)
	assert.Equal(t, StrategyHierarchical, catalog.Entries[0].Strategy)
	assert.Equal(t, "button:nth-of-type(1)", catalog.Entries[0].Selector)
}

func TestBuildCatalog_NoUniqueCandidateKeepsHighestPriority(t *testing.T) {
	el := clickableButton("dup", []int{0, 0})
	eval := &fakeEvaluator{
		snapshot: Snapshot{Viewport: Viewport{Width: 1280, Height: 720}, Elements: []ProbedElement{el}},
		counts:   map[string]int{"#dup": 2, "button:nth-of-type(1)": 5},
	}
	engine := newTestEngine(t, eval, nil)

	catalog, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 1)
	assert.Equal(t, StrategyID, catalog.Entries[0].Strategy)
	assert.Equal(t, "#dup", catalog.Entries[0].Selector)
}

func TestBuildCatalog_VerificationOffUsesFirstCandidate(t *testing.T) {
	el := clickableButton("btn", []int{0, 0})
	eval := &fakeEvaluator{
		snapshot: Snapshot{Viewport: Viewport{Width: 1280, Height: 720}, Elements: []ProbedElement{el}},
	}
	engine := newTestEngine(t, eval, func(p *Policy) { p.VerifyUniqueness = false })

	catalog, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 1)
	assert.Equal(t, "#btn", catalog.Entries[0].Selector)
}

func textElement(tag, text string, path []int) ProbedElement {
	return ProbedElement{
		Descriptor: ElementDescriptor{
			TagName:   tag,
			Text:      text,
			Geometry:  Geometry{X: 10, Y: 10, Width: 200, Height: 40},
			Computed:  Computed{Display: "block", Visibility: "visible", Opacity: 1},
			NthOfType: 1,
			TreePath:  path,
		},
		Hit: &HitTest{Match: HitSelf, TopTag: tag},
	}
}

func TestBuildCatalog_TextBearingDedupesAncestors(t *testing.T) {
	eval := &fakeEvaluator{
		snapshot: Snapshot{
			Viewport: Viewport{Width: 1280, Height: 720},
			Elements: []ProbedElement{
				textElement("div", "Welcome back", []int{0, 0}),
				textElement("span", "  Welcome \n back ", []int{0, 0, 0}),
				textElement("p", "Something else", []int{0, 1}),
			},
		},
	}
	engine := newTestEngine(t, eval, func(p *Policy) { p.VerifyUniqueness = false })

	catalog, err := engine.BuildCatalog(context.Background(), KindTextBearing)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 2)
	// Deepest node with the same normalized text wins.
	assert.Equal(t, "span", catalog.Entries[0].Descriptor.TagName)
	assert.Equal(t, "p", catalog.Entries[1].Descriptor.TagName)
}

func TestBuildCatalog_TextBearingKeepsAncestorWithDifferentText(t *testing.T) {
	eval := &fakeEvaluator{
		snapshot: Snapshot{
			Viewport: Viewport{Width: 1280, Height: 720},
			Elements: []ProbedElement{
				textElement("div", "Header and body", []int{0, 0}),
				textElement("span", "body", []int{0, 0, 1}),
			},
		},
	}
	engine := newTestEngine(t, eval, func(p *Policy) { p.VerifyUniqueness = false })

	catalog, err := engine.BuildCatalog(context.Background(), KindTextBearing)
	require.NoError(t, err)
	require.Len(t, catalog.Entries, 2)
	assert.Equal(t, "div", catalog.Entries[0].Descriptor.TagName)
	assert.Equal(t, "span", catalog.Entries[1].Descriptor.TagName)
}

func TestBuildCatalog_ProbeFailurePropagates(t *testing.T) {
	eval := &fakeEvaluator{err: errors.New("page crashed")}
	engine := newTestEngine(t, eval, nil)

	_, err := engine.BuildCatalog(context.Background(), KindClickable)
	require.Error(t, err)
	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, "snapshot", probeErr.Op)
}
