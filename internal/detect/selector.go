package detect

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Strategy tags which cascade step produced a selector.
type Strategy string

const (
	StrategyID            Strategy = "id"
	StrategyDataAttribute Strategy = "data_attribute"
	StrategyClassName     Strategy = "class_name"
	StrategyNameAttribute Strategy = "name_attribute"
	StrategyTextMatch     Strategy = "text_match"
	StrategyHierarchical  Strategy = "hierarchical"
)

// Candidate is one synthesized selector together with the strategy that
// produced it.
type Candidate struct {
	Selector string   `json:"selector"`
	Strategy Strategy `json:"strategy"`
}

// Synthesizer turns descriptors into CSS selectors via a priority cascade.
// It is deterministic for a given descriptor and never fails: when every
// strategy comes up empty it falls back to tag plus nth-of-type, trading
// specificity for availability.
type Synthesizer struct {
	policy   Policy
	denylist []*regexp.Regexp
}

// NewSynthesizer compiles the policy's utility-class denylist. An invalid
// pattern is a configuration error and is reported, not skipped.
func NewSynthesizer(policy Policy) (*Synthesizer, error) {
	if policy.TextMatchMaxLen <= 0 {
		policy.TextMatchMaxLen = defaultTextMatchMaxLen
	}
	if policy.MaxAncestorDepth <= 0 {
		policy.MaxAncestorDepth = defaultMaxAncestorDepth
	}
	denylist := make([]*regexp.Regexp, 0, len(policy.UtilityClassPatterns))
	for _, pattern := range policy.UtilityClassPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("utility class pattern %q: %w", pattern, err)
		}
		denylist = append(denylist, re)
	}
	return &Synthesizer{policy: policy, denylist: denylist}, nil
}

// Synthesize returns the highest-priority candidate for the descriptor.
func (s *Synthesizer) Synthesize(d ElementDescriptor) Candidate {
	return s.Candidates(d)[0]
}

// Candidates returns every selector the cascade can produce for the
// descriptor, in strategy priority order. The slice is never empty; the last
// entry is always the hierarchical fallback.
func (s *Synthesizer) Candidates(d ElementDescriptor) []Candidate {
	var out []Candidate

	if id := strings.TrimSpace(d.ID()); id != "" {
		out = append(out, Candidate{Selector: "#" + escapeIdent(id), Strategy: StrategyID})
	}
	if sel := s.dataAttributeSelector(d); sel != "" {
		out = append(out, Candidate{Selector: sel, Strategy: StrategyDataAttribute})
	}
	if classes := s.meaningfulClasses(d.Classes()); len(classes) > 0 {
		var b strings.Builder
		for _, c := range classes {
			b.WriteString(".")
			b.WriteString(escapeIdent(c))
		}
		out = append(out, Candidate{Selector: b.String(), Strategy: StrategyClassName})
	}
	if name := strings.TrimSpace(d.Attributes["name"]); name != "" {
		out = append(out, Candidate{
			Selector: fmt.Sprintf(`[name=%q]`, escapeAttr(name)),
			Strategy: StrategyNameAttribute,
		})
	}
	if sel := s.textMatchSelector(d); sel != "" {
		out = append(out, Candidate{Selector: sel, Strategy: StrategyTextMatch})
	}

	out = append(out, Candidate{Selector: s.hierarchicalSelector(d), Strategy: StrategyHierarchical})
	return out
}

// dataAttributeSelector renders the first data-* attribute with a non-empty
// value, by sorted attribute name so the choice is deterministic.
func (s *Synthesizer) dataAttributeSelector(d ElementDescriptor) string {
	names := make([]string, 0, len(d.Attributes))
	for name := range d.Attributes {
		if strings.HasPrefix(name, "data-") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if val := strings.TrimSpace(d.Attributes[name]); val != "" {
			return fmt.Sprintf(`[%s=%q]`, name, escapeAttr(val))
		}
	}
	return ""
}

// meaningfulClasses filters out utility-style tokens: pure numeric, single
// character, or matching the policy denylist.
func (s *Synthesizer) meaningfulClasses(classes []string) []string {
	var kept []string
	for _, c := range classes {
		if len(c) <= 1 || isNumericToken(c) || s.isUtilityClass(c) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (s *Synthesizer) isUtilityClass(c string) bool {
	for _, re := range s.denylist {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

func isNumericToken(c string) bool {
	for _, r := range c {
		if r < '0' || r > '9' {
			return false
		}
	}
	return c != ""
}

// textMatchSelector produces a tag:has-text("...") pseudo-selector for short
// non-empty text. Playwright resolves :has-text; callers using a plain CSS
// engine should verify candidates and fall through to the hierarchical one.
func (s *Synthesizer) textMatchSelector(d ElementDescriptor) string {
	text := strings.Join(strings.Fields(d.Text), " ")
	if text == "" || len(text) > s.policy.TextMatchMaxLen {
		return ""
	}
	return fmt.Sprintf(`%s:has-text(%q)`, d.TagName, escapeAttr(text))
}

// hierarchicalSelector walks the ancestor chain upward, combining each
// level's best available single-level identifier with child combinators. The
// walk is bounded by MaxAncestorDepth and stops early once an ancestor with
// an id anchors the path.
func (s *Synthesizer) hierarchicalSelector(d ElementDescriptor) string {
	segments := []string{s.levelSelector(d.TagName, d.ID(), d.Classes(), d.NthOfType)}
	for depth, a := range d.Ancestors {
		if depth >= s.policy.MaxAncestorDepth {
			break
		}
		if a.TagName == "html" || a.TagName == "body" {
			break
		}
		segments = append([]string{s.levelSelector(a.TagName, a.ID, a.Classes, a.NthOfType)}, segments...)
		if a.ID != "" {
			break
		}
	}
	return strings.Join(segments, " > ")
}

// levelSelector picks one level's identifier: id, else the first meaningful
// class, else tag with nth-of-type disambiguation.
func (s *Synthesizer) levelSelector(tag, id string, classes []string, nthOfType int) string {
	if id = strings.TrimSpace(id); id != "" {
		return "#" + escapeIdent(id)
	}
	if kept := s.meaningfulClasses(classes); len(kept) > 0 {
		return "." + escapeIdent(kept[0])
	}
	if tag == "" {
		tag = "*"
	}
	if nthOfType > 0 {
		return fmt.Sprintf("%s:nth-of-type(%d)", tag, nthOfType)
	}
	return tag
}

// escapeIdent escapes a string for use as a CSS identifier (after # or .),
// following the CSS.escape serialization rules closely enough for real-world
// ids and class names.
func escapeIdent(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r > 0x7f:
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&b, `\3%c `, r)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune('\\')
			b.WriteRune(r)
		}
	}
	return b.String()
}

// escapeAttr escapes a value for embedding in a double-quoted attribute or
// :has-text argument. %q adds the surrounding quotes and escapes the rest.
func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	return s
}
