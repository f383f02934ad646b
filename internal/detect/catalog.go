package detect

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Entry is one catalog row: the descriptor, the selector chosen for it, the
// strategy that produced the selector, and the visibility verdict.
type Entry struct {
	Descriptor ElementDescriptor `json:"descriptor"`
	Selector   string            `json:"selector"`
	Strategy   Strategy          `json:"strategy"`
	Verdict    Verdict           `json:"verdict"`
}

// Catalog is an ordered list of entries in DOM document order, built fresh
// per request. It is never cached: the underlying page may have mutated.
type Catalog struct {
	Kind     Kind     `json:"kind"`
	Viewport Viewport `json:"viewport"`
	Entries  []Entry  `json:"entries"`
}

// Engine orchestrates probe, classifier and synthesizer into catalogs. It
// holds no element state between requests; the only shared thing is the live
// page behind the evaluator, which the engine does not lock.
type Engine struct {
	probe  *Probe
	synth  *Synthesizer
	policy Policy
	logger zerolog.Logger
}

// NewEngine builds an engine over a page evaluator.
func NewEngine(eval Evaluator, policy Policy, logger zerolog.Logger) (*Engine, error) {
	synth, err := NewSynthesizer(policy)
	if err != nil {
		return nil, err
	}
	return &Engine{
		probe:  NewProbe(eval, logger, policy.MaxElements),
		synth:  synth,
		policy: policy,
		logger: logger,
	}, nil
}

// Probe exposes the engine's probe for callers that need raw descriptors or
// point hit-tests.
func (e *Engine) Probe() *Probe { return e.probe }

// Synthesize runs the selector cascade for a single descriptor.
func (e *Engine) Synthesize(d ElementDescriptor) Candidate {
	return e.synth.Synthesize(d)
}

// BuildCatalog probes the page for elements of the given kind, keeps the ones
// the classifier rules Visible, and assigns each a selector. An empty catalog
// is a valid, non-error result; only a probe-level failure propagates.
func (e *Engine) BuildCatalog(ctx context.Context, kind Kind) (Catalog, error) {
	reqID := uuid.NewString()[:8]
	logger := e.logger.With().Str("req", reqID).Str("kind", string(kind)).Logger()

	snap, err := e.probe.Snapshot(ctx, kind)
	if err != nil {
		return Catalog{}, err
	}

	catalog := Catalog{Kind: kind, Viewport: snap.Viewport}
	dropped := 0
	for _, pe := range snap.Elements {
		verdict := Classify(pe.Descriptor, snap.Viewport, pe.Hit)
		if !verdict.Visible {
			dropped++
			continue
		}
		candidate, err := e.pickSelector(ctx, pe.Descriptor)
		if err != nil {
			return Catalog{}, err
		}
		entry := Entry{
			Descriptor: pe.Descriptor,
			Selector:   candidate.Selector,
			Strategy:   candidate.Strategy,
			Verdict:    verdict,
		}
		if kind == KindTextBearing {
			catalog.Entries = dedupeAncestorText(catalog.Entries, entry)
		} else {
			catalog.Entries = append(catalog.Entries, entry)
		}
	}

	logger.Debug().
		Int("kept", len(catalog.Entries)).
		Int("dropped", dropped).
		Msg("catalog built")
	return catalog, nil
}

// pickSelector walks the cascade's candidates and, when uniqueness
// verification is on, keeps the first that resolves to exactly one element.
// When none does, the highest-priority candidate wins anyway: a selector is
// always returned.
func (e *Engine) pickSelector(ctx context.Context, d ElementDescriptor) (Candidate, error) {
	candidates := e.synth.Candidates(d)
	if !e.policy.VerifyUniqueness {
		return candidates[0], nil
	}
	for _, c := range candidates {
		n, err := e.probe.Count(ctx, c.Selector)
		if err != nil {
			return Candidate{}, err
		}
		if n == 1 {
			return c, nil
		}
	}
	return candidates[0], nil
}

// dedupeAncestorText appends entry to kept, removing trailing kept entries
// that are ancestors of it with identical normalized text. Document order is
// pre-order, so a container always precedes its text child; the deeper node
// wins and the container is dropped.
func dedupeAncestorText(kept []Entry, entry Entry) []Entry {
	text := normalizeText(entry.Descriptor.Text)
	for len(kept) > 0 {
		last := kept[len(kept)-1]
		if !IsAncestorPath(last.Descriptor.TreePath, entry.Descriptor.TreePath) {
			break
		}
		if normalizeText(last.Descriptor.Text) != text {
			break
		}
		kept = kept[:len(kept)-1]
	}
	return append(kept, entry)
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
