// Package command turns natural-language instructions into concrete tool
// invocations using an LLM provider.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/polzovatel/browser-automation-mcp/internal/detect"
	"github.com/polzovatel/browser-automation-mcp/internal/llm"
)

const systemPrompt = `You translate user commands into browser tool calls.
CRITICAL RULES:
1. Use ONLY the provided tools.
2. Respond with a SINGLE JSON object and NOTHING else: {"tool": "...", "arguments": {...}}
3. When the command targets something on the page, prefer a selector from the ELEMENTS list over inventing one.
4. If no tool fits, respond {"tool":"none","arguments":{"reason":"..."}}.`

// ToolInfo describes one tool the translator may pick.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}

// Invocation is the translator's verdict: which tool to call and with what.
type Invocation struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

type Translator struct {
	llm    llm.Client
	logger zerolog.Logger
}

func NewTranslator(client llm.Client, logger zerolog.Logger) *Translator {
	return &Translator{llm: client, logger: logger}
}

// Translate maps a free-form command to a tool invocation. The catalog may
// be nil when no browser session is active.
func (t *Translator) Translate(ctx context.Context, command string, tools []ToolInfo, catalog *detect.Catalog) (Invocation, error) {
	if err := ctx.Err(); err != nil {
		return Invocation{}, err
	}
	command = strings.TrimSpace(command)
	if command == "" {
		return Invocation{}, fmt.Errorf("empty command")
	}

	payload := map[string]any{
		"command": command,
		"tools":   tools,
	}
	if catalog != nil {
		payload["elements"] = summarizeCatalog(catalog)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Invocation{}, err
	}
	msg := fmt.Sprintf("STATE:\n%s\n\nOUTPUT FORMAT (strict JSON only, no text outside): {\"tool\":\"...\",\"arguments\":{}}\n", string(raw))

	resp, err := t.llm.Generate(ctx, llm.Request{
		System:      systemPrompt,
		Messages:    []llm.Message{{Role: "user", Content: msg}},
		Temperature: 0.0,
		MaxTokens:   400,
	})
	if err != nil {
		return Invocation{}, err
	}
	t.logger.Debug().Str("model", t.llm.Name()).Int("len", len(resp.Text)).Msg("translation received")

	inv, err := parseInvocation(resp.Text)
	if err != nil {
		return Invocation{}, fmt.Errorf("%w: raw=%q", err, resp.Text)
	}
	return inv, nil
}

// summarizeCatalog keeps the prompt small: selector plus a short text label
// per entry, capped at 50 entries.
func summarizeCatalog(c *detect.Catalog) []map[string]string {
	const maxEntries = 50
	out := make([]map[string]string, 0, len(c.Entries))
	for _, e := range c.Entries {
		if len(out) >= maxEntries {
			break
		}
		text := strings.Join(strings.Fields(e.Descriptor.Text), " ")
		if len(text) > 60 {
			cut := 60
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
			text = text[:cut]
		}
		out = append(out, map[string]string{
			"selector": e.Selector,
			"tag":      e.Descriptor.TagName,
			"text":     text,
		})
	}
	return out
}

func parseInvocation(text string) (Invocation, error) {
	jsonStr, err := extractJSON(text)
	if err != nil {
		return Invocation{}, err
	}
	var parsed Invocation
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return Invocation{}, fmt.Errorf("llm json parse: %w", err)
	}
	parsed.Tool = strings.TrimSpace(parsed.Tool)
	if parsed.Tool == "" {
		return Invocation{}, fmt.Errorf("missing tool name")
	}
	if parsed.Arguments == nil {
		parsed.Arguments = map[string]any{}
	}
	return parsed, nil
}

// extractJSON returns the first balanced top-level object in text, skipping
// braces inside string literals.
func extractJSON(text string) (string, error) {
	depth := 0
	start := -1
	inStr := false
	esc := false
	for i := 0; i < len(text); i++ {
		ch := text[i]
		if esc {
			esc = false
			continue
		}
		switch ch {
		case '\\':
			if inStr {
				esc = true
			}
		case '"':
			inStr = !inStr
		case '{':
			if !inStr {
				if depth == 0 {
					start = i
				}
				depth++
			}
		case '}':
			if !inStr && depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					return text[start : i+1], nil
				}
			}
		}
	}
	return "", fmt.Errorf("json not found")
}
