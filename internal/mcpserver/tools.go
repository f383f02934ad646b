package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/polzovatel/browser-automation-mcp/internal/browser"
	"github.com/polzovatel/browser-automation-mcp/internal/command"
	"github.com/polzovatel/browser-automation-mcp/internal/detect"
)

const defaultWaitTimeout = 5000 * time.Millisecond

var errAlreadyStarted = errors.New("browser already started")

// --- lifecycle ---

type startReq struct {
	Headless *bool `json:"headless"`
}

func (s *Server) registerBrowserTools(srv *mcp.Server) {
	s.addTool(srv, &mcp.Tool{
		Name:        "start_browser",
		Description: "Launch a browser and open a fresh page. Must be called before any other browser tool.",
		InputSchema: inputSchema(map[string]any{
			"headless": boolean("run without a visible window (default from server config)"),
		}, nil),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r startReq
		if len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		headless := s.headless
		if r.Headless != nil {
			headless = *r.Headless
		}
		return s.startBrowser(ctx, headless)
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "stop_browser",
		Description: "Close the page and shut the browser down.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			return nil, browser.ErrNoSession
		}
		s.closeLocked(ctx)
		return map[string]any{"stopped": true}, nil
	})
}

func (s *Server) startBrowser(ctx context.Context, headless bool) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		return nil, errAlreadyStarted
	}
	launcher, err := browser.NewLauncher(ctx, headless, s.logger)
	if err != nil {
		return nil, err
	}
	session, err := launcher.NewSession(ctx)
	if err != nil {
		_ = launcher.Close()
		return nil, err
	}
	engine, err := detect.NewEngine(session, s.policy, s.logger)
	if err != nil {
		_ = session.Close(ctx)
		_ = launcher.Close()
		return nil, err
	}
	s.launcher = launcher
	s.session = session
	s.engine = engine
	s.logger.Info().Bool("headless", headless).Msg("browser started")
	return map[string]any{"started": true, "headless": headless}, nil
}

// --- page actions ---

type selectorReq struct {
	Selector string `json:"selector"`
}

type navigateReq struct {
	URL string `json:"url"`
}

type fillReq struct {
	Selector string `json:"selector"`
	Value    string `json:"value"`
}

type screenshotReq struct {
	Path string `json:"path"`
}

type evaluateReq struct {
	Expression string `json:"expression"`
}

type waitReq struct {
	Selector  string `json:"selector"`
	TimeoutMs int    `json:"timeout_ms"`
}

func (s *Server) registerActionTools(srv *mcp.Server) {
	s.addTool(srv, &mcp.Tool{
		Name:        "navigate_to",
		Description: "Navigate the page to a URL and wait for it to settle.",
		InputSchema: inputSchema(map[string]any{
			"url": str("absolute URL to open"),
		}, []string{"url"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r navigateReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(r.URL) == "" {
			return nil, errors.New("url is required")
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		if err := session.Navigate(ctx, r.URL); err != nil {
			return nil, err
		}
		title, _ := session.Title()
		return map[string]any{"url": session.URL(), "title": title}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "click_element",
		Description: "Click the element matching a CSS selector.",
		InputSchema: inputSchema(map[string]any{
			"selector": str("CSS selector of the element to click"),
		}, []string{"selector"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r selectorReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(r.Selector) == "" {
			return nil, errors.New("selector is required")
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		if err := session.Click(ctx, r.Selector); err != nil {
			return nil, err
		}
		return map[string]any{"clicked": r.Selector}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "fill_form",
		Description: "Fill an input or textarea matching a CSS selector with a value.",
		InputSchema: inputSchema(map[string]any{
			"selector": str("CSS selector of the field"),
			"value":    str("text to enter"),
		}, []string{"selector", "value"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r fillReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(r.Selector) == "" {
			return nil, errors.New("selector is required")
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		if err := session.Fill(ctx, r.Selector, r.Value); err != nil {
			return nil, err
		}
		return map[string]any{"filled": r.Selector}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "extract_text",
		Description: "Extract inner text from the element matching a CSS selector, or the whole body when no selector is given.",
		InputSchema: inputSchema(map[string]any{
			"selector": str("CSS selector, optional"),
		}, nil),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r selectorReq
		if len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		text, err := session.Text(ctx, r.Selector)
		if err != nil {
			return nil, err
		}
		return map[string]any{"text": text, "length": len(text)}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "take_screenshot",
		Description: "Capture a full-page screenshot to a file path.",
		InputSchema: inputSchema(map[string]any{
			"path": str("destination file path (default screenshot.png)"),
		}, nil),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r screenshotReq
		if len(args) > 0 {
			if err := json.Unmarshal(args, &r); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		if r.Path == "" {
			r.Path = "screenshot.png"
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		if err := session.Screenshot(ctx, r.Path); err != nil {
			return nil, err
		}
		return map[string]any{"path": r.Path}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "evaluate_javascript",
		Description: "Evaluate a JavaScript expression in the page and return its JSON-serializable result.",
		InputSchema: inputSchema(map[string]any{
			"expression": str("JavaScript expression or function body"),
		}, []string{"expression"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r evaluateReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(r.Expression) == "" {
			return nil, errors.New("expression is required")
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		val, err := session.Evaluate(ctx, r.Expression, nil)
		if err != nil {
			return nil, err
		}
		return map[string]any{"result": val}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "wait_for_element",
		Description: "Wait until the element matching a CSS selector becomes visible.",
		InputSchema: inputSchema(map[string]any{
			"selector":   str("CSS selector to wait for"),
			"timeout_ms": integer("timeout in milliseconds (default 5000)"),
		}, []string{"selector"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r waitReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(r.Selector) == "" {
			return nil, errors.New("selector is required")
		}
		timeout := defaultWaitTimeout
		if r.TimeoutMs > 0 {
			timeout = time.Duration(r.TimeoutMs) * time.Millisecond
		}
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		if err := session.WaitFor(ctx, r.Selector, timeout); err != nil {
			return nil, err
		}
		return map[string]any{"visible": r.Selector}, nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "get_page_info",
		Description: "Return URL, title, ready state, node count, viewport and a text preview of the current page.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		session, _, err := s.current()
		if err != nil {
			return nil, err
		}
		return session.Info(ctx)
	})
}

// --- detection ---

// catalogEntry is the wire shape for one detected element.
type catalogEntry struct {
	Selector string  `json:"selector"`
	Strategy string  `json:"strategy"`
	Tag      string  `json:"tag"`
	Text     string  `json:"text,omitempty"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
}

type catalogResponse struct {
	Elements []catalogEntry  `json:"elements"`
	Count    int             `json:"count"`
	Viewport detect.Viewport `json:"viewport"`
}

func toCatalogResponse(c detect.Catalog) catalogResponse {
	resp := catalogResponse{
		Elements: make([]catalogEntry, 0, len(c.Entries)),
		Viewport: c.Viewport,
	}
	for _, e := range c.Entries {
		resp.Elements = append(resp.Elements, catalogEntry{
			Selector: e.Selector,
			Strategy: string(e.Strategy),
			Tag:      e.Descriptor.TagName,
			Text:     truncate(e.Descriptor.Text, 120),
			X:        e.Descriptor.Geometry.X,
			Y:        e.Descriptor.Geometry.Y,
			Width:    e.Descriptor.Geometry.Width,
			Height:   e.Descriptor.Geometry.Height,
		})
	}
	resp.Count = len(resp.Elements)
	return resp
}

// truncate cuts s to at most n bytes on a rune boundary so the JSON output
// stays valid UTF-8.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func (s *Server) registerDetectTools(srv *mcp.Server) {
	s.addTool(srv, &mcp.Tool{
		Name:        "get_clickable_elements",
		Description: "List visible clickable elements with a unique CSS selector for each. A page with none returns an empty list.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		_, engine, err := s.current()
		if err != nil {
			return nil, err
		}
		catalog, err := engine.BuildCatalog(ctx, detect.KindClickable)
		if err != nil {
			return nil, err
		}
		return toCatalogResponse(catalog), nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "get_text_elements",
		Description: "List visible text-bearing elements with a CSS selector for each; nested duplicates are collapsed.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		_, engine, err := s.current()
		if err != nil {
			return nil, err
		}
		catalog, err := engine.BuildCatalog(ctx, detect.KindTextBearing)
		if err != nil {
			return nil, err
		}
		return toCatalogResponse(catalog), nil
	})

	s.addTool(srv, &mcp.Tool{
		Name:        "get_form_elements",
		Description: "List visible form fields (inputs, selects, textareas) with selector, type and name for each.",
		InputSchema: inputSchema(map[string]any{}, nil),
	}, func(ctx context.Context, _ json.RawMessage) (any, error) {
		_, engine, err := s.current()
		if err != nil {
			return nil, err
		}
		return s.formElements(ctx, engine)
	})
}

type formEntry struct {
	Selector    string `json:"selector"`
	Strategy    string `json:"strategy"`
	Tag         string `json:"tag"`
	Type        string `json:"type,omitempty"`
	Name        string `json:"name,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

func (s *Server) formElements(ctx context.Context, engine *detect.Engine) (any, error) {
	snap, err := engine.Probe().Query(ctx, "input, select, textarea")
	if err != nil {
		return nil, err
	}
	entries := make([]formEntry, 0, len(snap.Elements))
	for _, pe := range snap.Elements {
		verdict := detect.Classify(pe.Descriptor, snap.Viewport, pe.Hit)
		if !verdict.Visible {
			continue
		}
		cand := engine.Synthesize(pe.Descriptor)
		entries = append(entries, formEntry{
			Selector:    cand.Selector,
			Strategy:    string(cand.Strategy),
			Tag:         pe.Descriptor.TagName,
			Type:        pe.Descriptor.Attributes["type"],
			Name:        pe.Descriptor.Attributes["name"],
			Placeholder: pe.Descriptor.Attributes["placeholder"],
		})
	}
	return map[string]any{"elements": entries, "count": len(entries), "viewport": snap.Viewport}, nil
}

// --- command translation ---

type translateReq struct {
	Command string `json:"command"`
}

// translatableTools excludes the translator itself from its own choices.
func (s *Server) translatableTools() []command.ToolInfo {
	out := make([]command.ToolInfo, 0, len(s.tools))
	for _, t := range s.tools {
		if t.Name == "translate_command" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (s *Server) registerTranslateTool(srv *mcp.Server) {
	s.addTool(srv, &mcp.Tool{
		Name:        "translate_command",
		Description: "Translate a natural-language command into a tool invocation using the configured LLM.",
		InputSchema: inputSchema(map[string]any{
			"command": str("natural-language instruction"),
		}, []string{"command"}),
	}, func(ctx context.Context, args json.RawMessage) (any, error) {
		var r translateReq
		if err := json.Unmarshal(args, &r); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		var catalog *detect.Catalog
		if _, engine, err := s.current(); err == nil {
			if c, err := engine.BuildCatalog(ctx, detect.KindClickable); err == nil {
				catalog = &c
			}
		}
		inv, err := s.translator.Translate(ctx, r.Command, s.translatableTools(), catalog)
		if err != nil {
			return nil, err
		}
		return inv, nil
	})
}
