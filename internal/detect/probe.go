package detect

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
)

// Evaluator is the single capability the engine consumes from its host: run a
// read-only script against the current page and return structured results.
// browser.Session satisfies it.
type Evaluator interface {
	Evaluate(ctx context.Context, script string, arg any) (any, error)
}

// ProbeError means the page handle itself was invalid or the page-context
// call failed. Zero matching elements is not a ProbeError.
type ProbeError struct {
	Op  string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Op, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Probe executes inspection scripts inside the page context and decodes the
// results into descriptors. It never mutates page state.
type Probe struct {
	eval        Evaluator
	logger      zerolog.Logger
	maxElements int
}

// NewProbe wires a probe to a page evaluator.
func NewProbe(eval Evaluator, logger zerolog.Logger, maxElements int) *Probe {
	if maxElements <= 0 {
		maxElements = defaultMaxElements
	}
	return &Probe{eval: eval, logger: logger, maxElements: maxElements}
}

// Snapshot batch-collects descriptors matching the kind's predicate, together
// with the viewport and a per-element occlusion hit-test. Elements that
// disappear between enumeration and geometry read are dropped in-page, not
// reported as errors.
func (p *Probe) Snapshot(ctx context.Context, kind Kind) (Snapshot, error) {
	var snap Snapshot
	arg := map[string]any{"kind": string(kind), "limit": p.maxElements}
	if err := p.run(ctx, "snapshot", snapshotScript, arg, &snap); err != nil {
		return Snapshot{}, err
	}
	p.logger.Debug().Str("kind", string(kind)).Int("elements", len(snap.Elements)).Msg("snapshot collected")
	return snap, nil
}

// Query returns descriptors for every element matching a single selector.
// Zero matches is a successful empty result.
func (p *Probe) Query(ctx context.Context, selector string) (Snapshot, error) {
	var snap Snapshot
	arg := map[string]any{"selector": selector, "limit": p.maxElements}
	if err := p.run(ctx, "query", queryScript, arg, &snap); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Count resolves a selector against the live document and returns how many
// elements it matches. Used by the catalog builder for uniqueness checks.
func (p *Probe) Count(ctx context.Context, selector string) (int, error) {
	var n int
	if err := p.run(ctx, "count", countScript, selector, &n); err != nil {
		return 0, err
	}
	return n, nil
}

// ElementAtPoint returns the descriptor of the top-most element at a viewport
// point, or nil when the point hits nothing.
func (p *Probe) ElementAtPoint(ctx context.Context, x, y float64) (*ElementDescriptor, error) {
	var d *ElementDescriptor
	arg := map[string]any{"x": x, "y": y}
	if err := p.run(ctx, "element_at_point", elementAtPointScript, arg, &d); err != nil {
		return nil, err
	}
	return d, nil
}

// run evaluates a script and decodes its JSON-friendly result into out via a
// marshal round trip, the same way the page snapshot layer always has.
func (p *Probe) run(ctx context.Context, op, script string, arg any, out any) error {
	if err := ctx.Err(); err != nil {
		return &ProbeError{Op: op, Err: err}
	}
	val, err := p.eval.Evaluate(ctx, script, arg)
	if err != nil {
		return &ProbeError{Op: op, Err: err}
	}
	raw, err := json.Marshal(val)
	if err != nil {
		return &ProbeError{Op: op, Err: fmt.Errorf("encode result: %w", err)}
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProbeError{Op: op, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}

// describeJS builds a descriptor object for one element. Shared by every
// probe script; kept as a fragment so each script stays a single Evaluate
// expression.
const describeJS = `
	const describe = (el) => {
		const rect = el.getBoundingClientRect();
		const style = window.getComputedStyle(el);
		const attrs = {};
		for (const a of el.attributes) attrs[a.name] = a.value;
		let text = (el.innerText || el.textContent || "").trim();
		if (text.length > 200) text = text.slice(0, 200);
		const ancestors = [];
		for (let a = el.parentElement; a; a = a.parentElement) {
			const astyle = window.getComputedStyle(a);
			ancestors.push({
				tagName: a.tagName.toLowerCase(),
				id: a.id || "",
				classes: (typeof a.className === "string" ? a.className : "").split(/\s+/).filter(Boolean),
				nthOfType: nthOfType(a),
				display: astyle.display,
				visibility: astyle.visibility,
			});
		}
		return {
			tagName: el.tagName.toLowerCase(),
			attributes: attrs,
			text: text,
			geometry: {x: rect.x, y: rect.y, width: rect.width, height: rect.height},
			computed: {
				display: style.display,
				visibility: style.visibility,
				opacity: parseFloat(style.opacity),
			},
			ancestors: ancestors,
			nthOfType: nthOfType(el),
			treePath: treePath(el),
		};
	};
	const nthOfType = (el) => {
		if (!el.parentElement) return 1;
		let n = 0;
		for (const sib of el.parentElement.children) {
			if (sib.tagName === el.tagName) n++;
			if (sib === el) return n;
		}
		return 1;
	};
	const treePath = (el) => {
		const path = [];
		for (let cur = el; cur && cur.parentElement; cur = cur.parentElement) {
			path.unshift(Array.prototype.indexOf.call(cur.parentElement.children, cur));
		}
		return path;
	};
	const hitTest = (el, rect) => {
		const cx = rect.x + rect.width / 2;
		const cy = rect.y + rect.height / 2;
		if (cx < 0 || cy < 0 || cx >= window.innerWidth || cy >= window.innerHeight) return null;
		const top = document.elementFromPoint(cx, cy);
		if (!top) return null;
		let match = "foreign";
		if (top === el) match = "self";
		else if (el.contains(top)) match = "descendant";
		else if (top.contains(el)) match = "ancestor";
		return {match: match, topTag: top.tagName.toLowerCase()};
	};
`

// snapshotScript scans the document once in pre-order and keeps elements the
// kind's predicate accepts. Scan order is document order, which the catalog
// relies on.
const snapshotScript = `(opts) => {` + describeJS + `
	const interactiveTags = new Set(["a", "button", "input", "select", "textarea", "summary", "details"]);
	const interactiveRoles = new Set(["button", "link", "tab", "menuitem", "option", "checkbox", "radio", "switch", "combobox"]);
	const isClickable = (el, style) => {
		const tag = el.tagName.toLowerCase();
		if (interactiveTags.has(tag)) return true;
		const role = el.getAttribute("role");
		if (role && interactiveRoles.has(role)) return true;
		if (el.hasAttribute("onclick") || el.onclick) return true;
		if (el.hasAttribute("contenteditable") && el.getAttribute("contenteditable") !== "false") return true;
		if (style.cursor === "pointer" && tag !== "html" && tag !== "body") return true;
		return false;
	};
	const isTextBearing = (el) => {
		const tag = el.tagName.toLowerCase();
		if (tag === "script" || tag === "style" || tag === "noscript" || tag === "html" || tag === "body") return false;
		for (const node of el.childNodes) {
			if (node.nodeType === Node.TEXT_NODE && node.textContent.trim()) return true;
		}
		return false;
	};
	const out = {
		viewport: {width: window.innerWidth, height: window.innerHeight},
		elements: [],
	};
	const all = document.querySelectorAll("*");
	for (const el of all) {
		if (out.elements.length >= opts.limit) break;
		try {
			const style = window.getComputedStyle(el);
			if (opts.kind === "clickable" ? !isClickable(el, style) : !isTextBearing(el)) continue;
			const descriptor = describe(el);
			out.elements.push({descriptor: descriptor, hit: hitTest(el, el.getBoundingClientRect())});
		} catch (e) {
			// Element detached mid-read; drop it.
		}
	}
	return out;
}`

const queryScript = `(opts) => {` + describeJS + `
	const out = {
		viewport: {width: window.innerWidth, height: window.innerHeight},
		elements: [],
	};
	let matches;
	try {
		matches = document.querySelectorAll(opts.selector);
	} catch (e) {
		return out;
	}
	for (const el of matches) {
		if (out.elements.length >= opts.limit) break;
		try {
			out.elements.push({descriptor: describe(el), hit: hitTest(el, el.getBoundingClientRect())});
		} catch (e) {
			// detached
		}
	}
	return out;
}`

const countScript = `(selector) => {
	try {
		return document.querySelectorAll(selector).length;
	} catch (e) {
		return 0;
	}
}`

const elementAtPointScript = `(opts) => {` + describeJS + `
	const top = document.elementFromPoint(opts.x, opts.y);
	return top ? describe(top) : null;
}`
