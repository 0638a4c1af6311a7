package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"McpAgent/internal/engine"
	"McpAgent/internal/logger"
	"McpAgent/internal/models"
)

func (c *ChatCmd) run(ctx context.Context, opts *Options) error {
	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.engine.ConnectAll(ctx)
	if err != nil {
		return err
	}
	if len(result.ConnectedServers) == 0 {
		return fmt.Errorf("no servers connected, failed: %v", result.Failed())
	}
	fmt.Printf("Connected to %v with tools: %v\n", result.ConnectedServers, toolNames(a.engine.Tools()))

	if c.Query != "" {
		return ask(ctx, a.engine, c.Query, os.Stdout)
	}
	return chatLoop(ctx, a.engine, os.Stdin, os.Stdout)
}

// chatLoop 读取用户输入直到 quit/exit/q 或输入结束
func chatLoop(ctx context.Context, e *engine.Engine, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "\nMCP Client Started!")
	fmt.Fprintln(out, "Type your queries or 'quit' to exit.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nYou: ")
		if !scanner.Scan() {
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "quit", "exit", "q":
			return nil
		case "":
			continue
		}

		if err := ask(ctx, e, query, out); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "\nError: %v\n", err)
		}
	}
}

func ask(ctx context.Context, e *engine.Engine, query string, out io.Writer) error {
	result, err := e.SubmitQuery(ctx, query)
	if err != nil {
		return err
	}
	for _, inv := range result.ToolInvocations {
		logger.Debug("Executed tool %s on %s", inv.ToolName, inv.Server)
		fmt.Fprintf(out, "\nExecuting tool: %s\nArguments: %v\n", inv.ToolName, inv.Arguments)
	}
	fmt.Fprintf(out, "\nAssistant: %s\n", result.Content)
	return nil
}

func toolNames(tools []models.ToolDescriptor) []string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = t.Name
	}
	return names
}
