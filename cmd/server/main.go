package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/polzovatel/browser-automation-mcp/internal/command"
	"github.com/polzovatel/browser-automation-mcp/internal/detect"
	"github.com/polzovatel/browser-automation-mcp/internal/llm"
	"github.com/polzovatel/browser-automation-mcp/internal/mcpserver"
)

const (
	serverName    = "browser-automation-mcp"
	serverVersion = "1.0.0"

	envHeadless = "BROWSER_HEADLESS"
)

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Stdout carries the MCP protocol; all logging goes to stderr.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	policy := detect.PolicyFromEnv()
	headless := parseBoolEnv(envHeadless, true)

	var translator *command.Translator
	if client, err := llm.NewClientFromEnv(log.With().Str("comp", "llm").Logger()); err != nil {
		log.Info().Err(err).Msg("no LLM provider configured, translate_command disabled")
	} else {
		translator = command.NewTranslator(client, log.With().Str("comp", "translator").Logger())
	}

	srv := mcp.NewServer(&mcp.Implementation{Name: serverName, Version: serverVersion}, nil)
	automation := mcpserver.New(policy, headless, translator, log.Logger)
	automation.Register(srv)
	defer automation.Shutdown(context.Background())

	log.Info().Bool("headless", headless).Msg("serving MCP on stdio")
	if err := srv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func parseBoolEnv(name string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return v
}
