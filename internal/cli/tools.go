package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"McpAgent/internal/manager"
	"McpAgent/internal/session"
)

// run 不需要 LLM，直接使用注册表连接所有服务器
func (t *ToolsCmd) run(ctx context.Context, opts *Options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	registry := manager.NewServerRegistry(session.NewDialer())
	defer registry.CloseAll()

	servers := cfg.Servers
	if len(servers) == 0 && cfg.DefaultServer != nil {
		servers = append(servers, *cfg.DefaultServer)
	}
	for _, s := range servers {
		if err := registry.AddConfig(s); err != nil {
			return err
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Agent.ConnectAllTimeout)
	defer cancel()
	result := registry.ConnectAll(connectCtx)
	for _, res := range result.Results {
		if !res.Success {
			fmt.Fprintf(os.Stderr, "failed to connect to %s: %s\n", res.Server, res.Error)
		}
	}

	return printCatalog(os.Stdout, registry.Catalog(), t.JSON)
}

func printCatalog(out io.Writer, catalog *manager.Catalog, asJSON bool) error {
	tools := catalog.FlatToolList()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"tools":    tools,
			"shadowed": catalog.Shadowed(),
		})
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TOOL\tSERVER\tDESCRIPTION")
	for _, tool := range tools {
		fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, tool.OwnerServer, tool.Description)
	}
	for _, s := range catalog.Shadowed() {
		fmt.Fprintf(w, "%s\t%s\t(shadowed by %s)\n", s.Name, s.Server, s.Owner)
	}
	return w.Flush()
}
