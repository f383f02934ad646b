// Package mcpserver exposes browser automation and element detection as MCP
// tools over any MCP transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/polzovatel/browser-automation-mcp/internal/browser"
	"github.com/polzovatel/browser-automation-mcp/internal/command"
	"github.com/polzovatel/browser-automation-mcp/internal/detect"
)

// Server owns the browser lifecycle behind the MCP tool surface. A single
// launcher and session exist at a time, guarded by mu.
type Server struct {
	mu       sync.Mutex
	launcher *browser.Launcher
	session  *browser.Session
	engine   *detect.Engine

	translator *command.Translator
	policy     detect.Policy
	headless   bool
	logger     zerolog.Logger

	tools []command.ToolInfo
}

// New builds a server. translator may be nil when no LLM provider is
// configured; the translate_command tool is then not registered.
func New(policy detect.Policy, headless bool, translator *command.Translator, logger zerolog.Logger) *Server {
	return &Server{
		translator: translator,
		policy:     policy,
		headless:   headless,
		logger:     logger.With().Str("comp", "mcpserver").Logger(),
	}
}

// Register adds every tool to srv.
func (s *Server) Register(srv *mcp.Server) {
	s.registerBrowserTools(srv)
	s.registerActionTools(srv)
	s.registerDetectTools(srv)
	if s.translator != nil {
		s.registerTranslateTool(srv)
	}
}

// Shutdown closes any live browser state. Safe to call when nothing is open.
func (s *Server) Shutdown(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked(ctx)
}

func (s *Server) closeLocked(ctx context.Context) {
	if s.session != nil {
		if err := s.session.Close(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("session close failed")
		}
		s.session = nil
		s.engine = nil
	}
	if s.launcher != nil {
		if err := s.launcher.Close(); err != nil {
			s.logger.Warn().Err(err).Msg("launcher close failed")
		}
		s.launcher = nil
	}
}

// current returns the live session and engine, or ErrNoSession.
func (s *Server) current() (*browser.Session, *detect.Engine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil, nil, browser.ErrNoSession
	}
	return s.session, s.engine, nil
}

type handlerFunc func(ctx context.Context, args json.RawMessage) (any, error)

// addTool wires a handler that decodes arguments, runs, and marshals the
// result to a single text content block. Tool failures are reported via the
// result error flag, not a protocol error.
func (s *Server) addTool(srv *mcp.Server, tool *mcp.Tool, handler handlerFunc) {
	s.tools = append(s.tools, command.ToolInfo{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: toSchemaMap(tool.InputSchema),
	})
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		resp, err := handler(ctx, req.Params.Arguments)
		if err != nil {
			s.logger.Debug().Str("tool", tool.Name).Err(err).Msg("tool failed")
			var res mcp.CallToolResult
			res.SetError(errors.New(err.Error()))
			return &res, nil
		}
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		}, nil
	})
}

func toSchemaMap(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	return nil
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func boolean(desc string) map[string]any {
	return map[string]any{"type": "boolean", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}
