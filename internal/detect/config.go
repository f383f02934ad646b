package detect

import (
	"os"
	"strconv"
	"strings"
)

const (
	defaultMaxElements      = 300
	defaultMaxAncestorDepth = 5
	defaultTextMatchMaxLen  = 30

	envMaxElements      = "DETECT_MAX_ELEMENTS"
	envMaxAncestorDepth = "DETECT_MAX_ANCESTOR_DEPTH"
	envTextMatchMaxLen  = "DETECT_TEXT_MATCH_MAX_LEN"
	envUtilityPatterns  = "DETECT_UTILITY_CLASS_PATTERNS"
	envVerifyUniqueness = "DETECT_VERIFY_UNIQUENESS"
)

// defaultUtilityClassPatterns is the denylist of class tokens that carry
// layout/spacing intent rather than identity. The list is a heuristic policy,
// not a constant truth: spacing-like names in a non-utility codebase can be
// legitimate, so callers may replace it wholesale via Policy or env.
var defaultUtilityClassPatterns = []string{
	`^[mp][trblxy]?-`,
	`^-?[mp][trblxy]?-\d`,
	`^(d|w|h|g|z)-`,
	`^(text|bg|border|flex|grid|col|row|gap|order|justify|items|align|self|place|position|float|inset|top|left|right|bottom)-`,
	`^(sm|md|lg|xl|2xl):`,
}

// Policy configures the synthesizer and catalog builder.
type Policy struct {
	// UtilityClassPatterns are regexps matching class tokens to exclude from
	// ClassName selectors. Pure-numeric and single-character tokens are
	// always excluded regardless of this list.
	UtilityClassPatterns []string
	// TextMatchMaxLen is the maximum trimmed text length eligible for the
	// TextMatch strategy.
	TextMatchMaxLen int
	// MaxAncestorDepth bounds the hierarchical fallback walk.
	MaxAncestorDepth int
	// MaxElements caps how many candidates a batch probe returns.
	MaxElements int
	// VerifyUniqueness makes the catalog builder resolve-count each selector
	// candidate against the live page and keep the first unique one.
	VerifyUniqueness bool
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		UtilityClassPatterns: append([]string(nil), defaultUtilityClassPatterns...),
		TextMatchMaxLen:      defaultTextMatchMaxLen,
		MaxAncestorDepth:     defaultMaxAncestorDepth,
		MaxElements:          defaultMaxElements,
		VerifyUniqueness:     true,
	}
}

// PolicyFromEnv returns the default policy with env overrides applied.
func PolicyFromEnv() Policy {
	p := DefaultPolicy()
	p.MaxElements = parseIntEnv(envMaxElements, p.MaxElements)
	p.MaxAncestorDepth = parseIntEnv(envMaxAncestorDepth, p.MaxAncestorDepth)
	p.TextMatchMaxLen = parseIntEnv(envTextMatchMaxLen, p.TextMatchMaxLen)
	if raw := strings.TrimSpace(os.Getenv(envUtilityPatterns)); raw != "" {
		var patterns []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				patterns = append(patterns, part)
			}
		}
		if len(patterns) > 0 {
			p.UtilityClassPatterns = patterns
		}
	}
	p.VerifyUniqueness = parseBoolEnv(envVerifyUniqueness, p.VerifyUniqueness)
	return p
}

func parseIntEnv(name string, def int) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func parseBoolEnv(name string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
