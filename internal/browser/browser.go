// Package browser owns the Playwright lifecycle and exposes the action
// dispatcher the detection engine's selectors feed into: navigate, click,
// fill, extract, screenshot, script evaluation.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
	"github.com/rs/zerolog"
)

const (
	defaultNavTimeout    = 60 * time.Second
	defaultActionTimeout = 10 * time.Second
	settleDelay          = 2 * time.Second
	networkIdleTimeout   = 10 * time.Second

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// ErrNoSession is returned by every page operation before Start succeeded.
// Callers must distinguish it from "no elements found", which is a successful
// empty result.
var ErrNoSession = errors.New("browser session not started")

// Launcher owns the playwright runtime and the browser process.
type Launcher struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	logger  zerolog.Logger
}

// NewLauncher starts playwright and launches Chromium. Headless is an
// explicit parameter rather than ambient state so a host can run several
// configurations side by side.
func NewLauncher(ctx context.Context, headless bool, logger zerolog.Logger) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	b, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(headless),
		Args: []string{
			"--no-sandbox",
			"--disable-dev-shm-usage",
			"--disable-blink-features=AutomationControlled",
		},
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	logger.Info().Bool("headless", headless).Msg("browser launched")
	return &Launcher{pw: pw, browser: b, logger: logger}, nil
}

// NewSession opens a fresh context and page.
func (l *Launcher) NewSession(ctx context.Context) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bctx, err := l.browser.NewContext(playwright.BrowserNewContextOptions{
		IgnoreHttpsErrors: playwright.Bool(true),
		UserAgent:         playwright.String(userAgent),
	})
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	page, err := bctx.NewPage()
	if err != nil {
		_ = bctx.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(defaultNavTimeout.Milliseconds()))
	return &Session{context: bctx, page: page, logger: l.logger}, nil
}

// Close shuts the browser and the playwright runtime down.
func (l *Launcher) Close() error {
	if l.browser != nil {
		_ = l.browser.Close()
	}
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

// Session is one browser context plus its single page. One logical caller at
// a time; the session does no internal locking beyond what playwright does.
type Session struct {
	context playwright.BrowserContext
	page    playwright.Page
	logger  zerolog.Logger
}

// Close releases the page and context.
func (s *Session) Close(ctx context.Context) error {
	_ = ctx
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.context != nil {
		return s.context.Close()
	}
	return nil
}

func (s *Session) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.page == nil {
		return ErrNoSession
	}
	return nil
}

// URL returns the current page URL.
func (s *Session) URL() string {
	if s == nil || s.page == nil {
		return ""
	}
	return s.page.URL()
}

// Title returns the current page title.
func (s *Session) Title() (string, error) {
	if s == nil || s.page == nil {
		return "", ErrNoSession
	}
	return s.page.Title()
}

// Navigate opens a URL and lets the page settle: domcontentloaded first, a
// short pause, then a best-effort wait for network idle, then a scroll nudge
// to trigger lazy loading. Slow network idle is not an error.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(defaultNavTimeout.Milliseconds())),
	}); err != nil {
		return wrap(err)
	}
	s.page.WaitForTimeout(float64(settleDelay.Milliseconds()))
	if err := s.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateNetworkidle,
		Timeout: playwright.Float(float64(networkIdleTimeout.Milliseconds())),
	}); err != nil {
		s.logger.Debug().Err(err).Msg("network did not go idle, continuing")
	}
	_, _ = s.page.Evaluate("window.scrollTo(0, 100)")
	s.page.WaitForTimeout(500)
	_, _ = s.page.Evaluate("window.scrollTo(0, 0)")
	return nil
}

// Click clicks the first element matching the selector. The element is
// scrolled into view first; when the regular click fails a force click is the
// last resort, since a selector coming from the catalog was already judged
// visible at probe time.
func (s *Session) Click(ctx context.Context, selector string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(defaultActionTimeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("element not visible: %s: %w", selector, err)
	}
	if err := loc.ScrollIntoViewIfNeeded(); err != nil {
		s.logger.Debug().Err(err).Str("selector", selector).Msg("scroll into view failed")
	}
	if err := loc.Click(); err != nil {
		s.logger.Debug().Err(err).Str("selector", selector).Msg("click failed, trying force click")
		if ferr := loc.Click(playwright.LocatorClickOptions{
			Force:   playwright.Bool(true),
			Timeout: playwright.Float(5000),
		}); ferr != nil {
			return wrap(err)
		}
	}
	return nil
}

// Fill clears the target field, fills it, dispatches the input/change/blur
// events SPAs listen on, and verifies the value stuck.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(defaultActionTimeout.Milliseconds())),
	}); err != nil {
		return fmt.Errorf("element not visible: %s: %w", selector, err)
	}
	if err := loc.Fill(""); err != nil {
		return wrap(err)
	}
	if err := loc.Fill(value); err != nil {
		return wrap(err)
	}
	if _, err := s.page.Evaluate(dispatchInputEventsScript, selector); err != nil {
		s.logger.Debug().Err(err).Msg("dispatch input events failed")
	}
	got, err := loc.InputValue()
	if err == nil && got != value {
		return fmt.Errorf("fill verification failed for %s: got %q", selector, got)
	}
	return nil
}

// Text extracts inner text from the first element matching the selector, or
// from body when the selector is empty.
func (s *Session) Text(ctx context.Context, selector string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	if strings.TrimSpace(selector) == "" {
		selector = "body"
	}
	loc := s.page.Locator(selector).First()
	if err := loc.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateAttached,
		Timeout: playwright.Float(float64(defaultActionTimeout.Milliseconds())),
	}); err != nil {
		return "", fmt.Errorf("element not found: %s: %w", selector, err)
	}
	text, err := loc.InnerText()
	if err != nil {
		return "", wrap(err)
	}
	return text, nil
}

// Screenshot captures the full page to the given path.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	})
	return wrap(err)
}

// Evaluate runs a script in the page context and returns its JSON-friendly
// result. This is the probe capability the detection engine consumes.
func (s *Session) Evaluate(ctx context.Context, script string, arg any) (any, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var (
		val any
		err error
	)
	if arg == nil {
		val, err = s.page.Evaluate(script)
	} else {
		val, err = s.page.Evaluate(script, arg)
	}
	if err != nil {
		return nil, wrap(err)
	}
	return val, nil
}

// WaitFor waits until the selector is visible or the timeout expires.
func (s *Session) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	return wrap(s.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: playwright.Float(float64(timeout.Milliseconds())),
	}))
}

// PageInfo is the compact page summary served to callers.
type PageInfo struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	ReadyState  string `json:"ready_state"`
	TotalNodes  int    `json:"total_nodes"`
	TextPreview string `json:"text_preview"`
	Viewport    string `json:"viewport"`
}

// Info collects basic facts about the current page.
func (s *Session) Info(ctx context.Context) (PageInfo, error) {
	if err := s.ready(ctx); err != nil {
		return PageInfo{}, err
	}
	title, _ := s.page.Title()
	info := PageInfo{URL: s.page.URL(), Title: title}
	val, err := s.page.Evaluate(pageInfoScript)
	if err != nil {
		return PageInfo{}, wrap(err)
	}
	if m, ok := val.(map[string]any); ok {
		if v, ok := m["readyState"].(string); ok {
			info.ReadyState = v
		}
		if v, ok := m["total"].(float64); ok {
			info.TotalNodes = int(v)
		}
		if v, ok := m["preview"].(string); ok {
			info.TextPreview = v
		}
		if v, ok := m["viewport"].(string); ok {
			info.Viewport = v
		}
	}
	return info, nil
}

const dispatchInputEventsScript = `(selector) => {
	const el = document.querySelector(selector);
	if (!el) return;
	for (const type of ["input", "change", "blur"]) {
		el.dispatchEvent(new Event(type, {bubbles: true}));
	}
}`

const pageInfoScript = `() => {
	const preview = (document.body ? document.body.innerText : "").replace(/\s+/g, " ").trim().slice(0, 300);
	return {
		readyState: document.readyState,
		total: document.querySelectorAll("*").length,
		preview: preview,
		viewport: window.innerWidth + "x" + window.innerHeight,
	};
}`

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
