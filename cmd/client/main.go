// Interactive menu client: spawns the MCP server, lists its tools, and lets
// the user pick one, fill in its parameters, and see the result.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var clientImpl = &mcp.Implementation{Name: "browser-automation-client", Version: "1.0.0"}

func main() {
	_ = godotenv.Load()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	serverCmd := flag.String("server", "", "Server command to spawn (default: built server binary)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cmd := buildServerCommand(*serverCmd)
	client := mcp.NewClient(clientImpl, nil)
	session, err := client.Connect(ctx, &mcp.CommandTransport{Command: cmd}, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("connect to server")
	}
	defer session.Close()

	if err := runMenu(ctx, session, bufio.NewReader(os.Stdin)); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("client stopped")
	}
}

func buildServerCommand(override string) *exec.Cmd {
	if override != "" {
		parts := strings.Fields(override)
		return exec.Command(parts[0], parts[1:]...)
	}
	return exec.Command("go", "run", "./cmd/server")
}

func runMenu(ctx context.Context, session *mcp.ClientSession, in *bufio.Reader) error {
	listed, err := session.ListTools(ctx, nil)
	if err != nil {
		return fmt.Errorf("list tools: %w", err)
	}
	if len(listed.Tools) == 0 {
		fmt.Println("No tools available from the server.")
		return nil
	}

	fmt.Println(strings.Repeat("=", 50))
	fmt.Println("AVAILABLE TOOLS:")
	fmt.Println(strings.Repeat("=", 50))
	for i, tool := range listed.Tools {
		fmt.Printf("%d. %s\n   %s\n\n", i+1, tool.Name, tool.Description)
	}

	for {
		tool, quit, err := selectTool(in, listed.Tools)
		if err != nil {
			return err
		}
		if quit {
			fmt.Println("Goodbye!")
			return nil
		}

		args, err := promptArguments(in, tool)
		if err != nil {
			return err
		}

		fmt.Printf("\nEXECUTING: %s\n", tool.Name)
		result, err := session.CallTool(ctx, &mcp.CallToolParams{Name: tool.Name, Arguments: args})
		if err != nil {
			fmt.Printf("Error executing tool: %v\n", err)
		} else if toolErr := result.GetError(); toolErr != nil {
			fmt.Printf("Tool error: %v\n", toolErr)
		} else {
			fmt.Println("\nRESULT:")
			for _, content := range result.Content {
				if tc, ok := content.(*mcp.TextContent); ok {
					fmt.Println(tc.Text)
				}
			}
		}

		again, err := readLine(in, "\nRun another tool? (y/n): ")
		if err != nil {
			return err
		}
		if !strings.EqualFold(again, "y") && !strings.EqualFold(again, "yes") {
			fmt.Println("Goodbye!")
			return nil
		}
	}
}

func selectTool(in *bufio.Reader, tools []*mcp.Tool) (*mcp.Tool, bool, error) {
	for {
		answer, err := readLine(in, "Select a tool by number (or 'q' to quit): ")
		if err != nil {
			return nil, false, err
		}
		if strings.EqualFold(answer, "q") {
			return nil, true, nil
		}
		idx, err := strconv.Atoi(answer)
		if err != nil || idx < 1 || idx > len(tools) {
			fmt.Printf("Invalid selection. Enter a number between 1 and %d.\n", len(tools))
			continue
		}
		return tools[idx-1], false, nil
	}
}

// promptArguments walks the tool's input schema and asks for each property,
// casting the typed answer per its declared JSON type.
func promptArguments(in *bufio.Reader, tool *mcp.Tool) (map[string]any, error) {
	schema := schemaAsMap(tool.InputSchema)
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		fmt.Println("This tool requires no parameters.")
		return map[string]any{}, nil
	}

	required := map[string]bool{}
	if raw, ok := schema["required"].([]any); ok {
		for _, r := range raw {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	args := map[string]any{}
	for _, name := range names {
		def, _ := props[name].(map[string]any)
		val, skip, err := promptOne(in, name, def, required[name])
		if err != nil {
			return nil, err
		}
		if !skip {
			args[name] = val
		}
	}
	return args, nil
}

func promptOne(in *bufio.Reader, name string, def map[string]any, isRequired bool) (any, bool, error) {
	desc, _ := def["description"].(string)
	typeHint, _ := def["type"].(string)
	if typeHint == "" {
		typeHint = "string"
	}

	prompt := fmt.Sprintf("\nEnter value for '%s'", name)
	if desc != "" {
		prompt += fmt.Sprintf(" (%s)", desc)
	}
	prompt += fmt.Sprintf(" (type: %s)", typeHint)
	if isRequired {
		prompt += " [REQUIRED]"
	}
	prompt += ": "

	for {
		answer, err := readLine(in, prompt)
		if err != nil {
			return nil, false, err
		}
		if answer == "" {
			if isRequired {
				fmt.Println("This field is required.")
				continue
			}
			return nil, true, nil
		}
		val, err := castInput(answer, typeHint)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}
		return val, false, nil
	}
}

// castInput converts a raw answer to the JSON type the schema declares.
func castInput(value, typeHint string) (any, error) {
	switch typeHint {
	case "integer":
		n, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("invalid input %q for expected type integer", value)
		}
		return n, nil
	case "number":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid input %q for expected type number", value)
		}
		return f, nil
	case "boolean":
		switch strings.ToLower(value) {
		case "true", "1", "yes", "y":
			return true, nil
		default:
			return false, nil
		}
	default:
		return value, nil
	}
}

// schemaAsMap normalizes whatever schema representation the SDK decoded into
// a plain map through a JSON round trip.
func schemaAsMap(schema any) map[string]any {
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func readLine(in *bufio.Reader, prompt string) (string, error) {
	fmt.Print(prompt)
	line, err := in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
