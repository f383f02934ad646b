package detect

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSynthesizer(t *testing.T) *Synthesizer {
	t.Helper()
	s, err := NewSynthesizer(DefaultPolicy())
	require.NoError(t, err)
	return s
}

func TestNewSynthesizer_InvalidPattern(t *testing.T) {
	p := DefaultPolicy()
	p.UtilityClassPatterns = append(p.UtilityClassPatterns, `[unclosed`)
	_, err := NewSynthesizer(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unclosed")
}

func TestSynthesize_IDWins(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "button",
		Attributes: map[string]string{
			"id":          "submit-btn",
			"data-testid": "submit",
			"class":       "btn-primary",
			"name":        "submit",
		},
		Text: "Submit",
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyID, c.Strategy)
	assert.Equal(t, "#submit-btn", c.Selector)
}

func TestSynthesize_DataAttributeBeforeClass(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "button",
		Attributes: map[string]string{
			"data-testid": "submit",
			"class":       "btn-primary",
		},
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyDataAttribute, c.Strategy)
	assert.Equal(t, `[data-testid="submit"]`, c.Selector)
}

func TestSynthesize_DataAttributeDeterministicOrder(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "div",
		Attributes: map[string]string{
			"data-role": "menu",
			"data-id":   "42",
		},
	}

	// Sorted attribute name decides: data-id before data-role.
	c := s.Synthesize(d)
	assert.Equal(t, `[data-id="42"]`, c.Selector)
}

func TestSynthesize_DataAttributeEmptyValueSkipped(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "div",
		Attributes: map[string]string{
			"data-active": "  ",
			"data-name":   "panel",
		},
	}

	c := s.Synthesize(d)
	assert.Equal(t, `[data-name="panel"]`, c.Selector)
}

func TestSynthesize_ClassNameFiltersUtilityTokens(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "button",
		Attributes: map[string]string{
			"class": "btn-primary mt-2 icon",
		},
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyClassName, c.Strategy)
	assert.Equal(t, ".btn-primary.icon", c.Selector)
}

func TestSynthesize_ClassNameDropsNoiseTokens(t *testing.T) {
	s := newTestSynthesizer(t)

	tests := []struct {
		name  string
		class string
	}{
		{"all utility", "mt-2 px-4 text-sm"},
		{"single char", "a b c"},
		{"pure numeric", "12 345"},
		{"responsive prefix", "sm:hidden lg:flex"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := ElementDescriptor{
				TagName:    "div",
				Attributes: map[string]string{"class": tt.class},
				NthOfType:  1,
			}
			c := s.Synthesize(d)
			assert.Equal(t, StrategyHierarchical, c.Strategy)
		})
	}
}

func TestSynthesize_NameAttribute(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName:    "input",
		Attributes: map[string]string{"name": "email", "class": "mt-2"},
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyNameAttribute, c.Strategy)
	assert.Equal(t, `[name="email"]`, c.Selector)
}

func TestSynthesize_TextMatch(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName: "button",
		Text:    "  Submit \n form ",
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyTextMatch, c.Strategy)
	assert.Equal(t, `button:has-text("Submit form")`, c.Selector)
}

func TestSynthesize_TextTooLongFallsThrough(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName:   "p",
		Text:      strings.Repeat("long text ", 10),
		NthOfType: 2,
	}

	c := s.Synthesize(d)
	assert.Equal(t, StrategyHierarchical, c.Strategy)
}

func TestCandidates_NeverEmptyAndEndsHierarchical(t *testing.T) {
	s := newTestSynthesizer(t)

	// Nothing identifying at all.
	d := ElementDescriptor{TagName: "div", NthOfType: 3}
	candidates := s.Candidates(d)
	require.Len(t, candidates, 1)
	assert.Equal(t, StrategyHierarchical, candidates[0].Strategy)
	assert.Equal(t, "div:nth-of-type(3)", candidates[0].Selector)

	// Everything identifying: full cascade, hierarchical still last.
	d = ElementDescriptor{
		TagName: "button",
		Attributes: map[string]string{
			"id":     "go",
			"data-x": "1",
			"class":  "cta",
			"name":   "go",
		},
		Text:      "Go",
		NthOfType: 1,
	}
	candidates = s.Candidates(d)
	require.Len(t, candidates, 6)
	assert.Equal(t, StrategyID, candidates[0].Strategy)
	assert.Equal(t, StrategyDataAttribute, candidates[1].Strategy)
	assert.Equal(t, StrategyClassName, candidates[2].Strategy)
	assert.Equal(t, StrategyNameAttribute, candidates[3].Strategy)
	assert.Equal(t, StrategyTextMatch, candidates[4].Strategy)
	assert.Equal(t, StrategyHierarchical, candidates[5].Strategy)
}

func TestHierarchical_AncestorChain(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName:   "button",
		NthOfType: 2,
		Ancestors: []AncestorRef{
			{TagName: "div", Classes: []string{"toolbar"}, NthOfType: 1},
			{TagName: "section", NthOfType: 3},
			{TagName: "body"},
			{TagName: "html"},
		},
	}

	c := s.Candidates(d)
	sel := c[len(c)-1].Selector
	assert.Equal(t, "section:nth-of-type(3) > .toolbar > button:nth-of-type(2)", sel)
}

func TestHierarchical_StopsAtIDAnchor(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName:   "a",
		NthOfType: 1,
		Ancestors: []AncestorRef{
			{TagName: "li", NthOfType: 4},
			{TagName: "ul", ID: "nav-menu", NthOfType: 1},
			{TagName: "nav", NthOfType: 1},
			{TagName: "body"},
		},
	}

	c := s.Candidates(d)
	sel := c[len(c)-1].Selector
	assert.Equal(t, "#nav-menu > li:nth-of-type(4) > a:nth-of-type(1)", sel)
}

func TestHierarchical_DepthBounded(t *testing.T) {
	p := DefaultPolicy()
	p.MaxAncestorDepth = 2
	s, err := NewSynthesizer(p)
	require.NoError(t, err)

	d := ElementDescriptor{
		TagName:   "span",
		NthOfType: 1,
		Ancestors: []AncestorRef{
			{TagName: "em", NthOfType: 1},
			{TagName: "p", NthOfType: 2},
			{TagName: "article", NthOfType: 1},
			{TagName: "main", NthOfType: 1},
		},
	}

	c := s.Candidates(d)
	sel := c[len(c)-1].Selector
	// Two ancestor levels plus the element itself.
	assert.Equal(t, "p:nth-of-type(2) > em:nth-of-type(1) > span:nth-of-type(1)", sel)
}

func TestEscapeIdent(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"with-dash_u", "with-dash_u"},
		{"1start", `\31 start`},
		{"a:b", `a\:b`},
		{"x.y", `x\.y`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, escapeIdent(tt.in), "escapeIdent(%q)", tt.in)
	}
}

func TestSynthesize_AttrValueWithNewline(t *testing.T) {
	s := newTestSynthesizer(t)
	d := ElementDescriptor{
		TagName:    "div",
		Attributes: map[string]string{"data-label": "line one\nline two"},
	}

	c := s.Synthesize(d)
	assert.Equal(t, `[data-label="line one line two"]`, c.Selector)
}
