package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/zslzxy/toolmesh/internal/config"
	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/render"
)

const mcpCheckTimeout = 8 * time.Second

var mcpCheckServer = checkMCPServer

func NewMCPCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Inspect configured tool servers",
	}

	cmd.AddCommand(
		newMCPListCmd(),
		newMCPToolsCmd(),
		newMCPCheckCmd(),
	)

	return cmd
}

func newMCPListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List servers from the server list",
		RunE:  runMCPList,
	}
}

func newMCPToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Connect active servers and print their qualified tools",
		RunE:  runMCPTools,
	}
}

func newMCPCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <server>",
		Short: "Connect one server, list its tools and disconnect",
		Args:  cobra.ExactArgs(1),
		RunE:  runMCPCheck,
	}
}

func runMCPList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := cfg.ServersFilePath()
	servers, err := mcp.ReadServerConfigs(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to read server list: %w", err)
	}
	if len(servers) == 0 {
		fmt.Printf("No tool servers configured in %s.\n", path)
		return nil
	}

	fmt.Println("Tool servers:")
	for _, srv := range servers {
		state := "inactive"
		if srv.IsActive {
			state = "active"
		}
		transport := "invalid"
		if resolved, err := mcp.ResolveTransportKind(srv); err == nil {
			transport = string(resolved.Transport)
		}
		line := fmt.Sprintf("  %s: %s (%s)", srv.Name, state, transport)
		if desc := strings.TrimSpace(srv.Description); desc != "" {
			line += " - " + desc
		}
		fmt.Println(line)
	}
	return nil
}

func runMCPTools(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configs := mcp.LoadActiveServers(cfg.ServersFilePath(), nil)
	if len(configs) == 0 {
		fmt.Println("No active tool servers.")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), mcpCheckTimeout*time.Duration(len(configs)))
	defer cancel()

	manager := mcp.NewManager(mcp.DefaultConnectors(cfg.RuntimeOptions()))
	defer func() {
		if err := manager.CloseAll(); err != nil {
			fmt.Printf("cleanup: %v\n", err)
		}
	}()

	if err := manager.ConnectAll(ctx, configs); err != nil {
		return err
	}
	catalog, err := manager.Catalog(ctx)
	if err != nil {
		return fmt.Errorf("failed to build catalog: %w", err)
	}

	fmt.Print(render.ServerTable("Servers", manager.Statuses()))
	if len(catalog) == 0 {
		fmt.Println("No tools available.")
		return nil
	}
	fmt.Println("Tools:")
	for _, entry := range catalog {
		fmt.Printf("  %s  %s\n", entry.QualifiedName, entry.Description)
	}
	return nil
}

func runMCPCheck(cmd *cobra.Command, args []string) error {
	serverName := strings.TrimSpace(args[0])

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	servers, err := mcp.ReadServerConfigs(cfg.ServersFilePath())
	if err != nil {
		return fmt.Errorf("failed to read server list: %w", err)
	}
	var (
		serverCfg mcp.ServerConfig
		found     bool
	)
	for _, srv := range servers {
		if srv.Name == serverName {
			serverCfg, found = srv, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %s", mcp.ErrServerNotFound, serverName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mcpCheckTimeout)
	defer cancel()

	status, err := mcpCheckServer(ctx, cfg.RuntimeOptions(), serverCfg)
	if err != nil {
		return fmt.Errorf("check %s failed: %w", serverName, err)
	}

	fmt.Print(render.ServerTable("Check", []mcp.ServerStatus{status}))
	if status.State != mcp.StateConnected {
		msg := strings.TrimSpace(status.Message)
		if msg == "" {
			msg = "unknown error"
		}
		return fmt.Errorf("tool server %s is unavailable: %s", serverName, msg)
	}
	return nil
}

// checkMCPServer connects a single server with its own manager so the check
// never disturbs a conversation's connections.
func checkMCPServer(ctx context.Context, rt mcp.RuntimeOptions, cfg mcp.ServerConfig) (status mcp.ServerStatus, err error) {
	manager := mcp.NewManager(mcp.DefaultConnectors(rt))
	defer func() {
		if closeErr := manager.CloseAll(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := manager.ConnectAll(ctx, []mcp.ServerConfig{cfg}); err != nil {
		return mcp.ServerStatus{}, err
	}
	if manager.HasConnections() {
		if _, err := manager.Catalog(ctx); err != nil {
			return mcp.ServerStatus{}, err
		}
	}

	statuses := manager.Statuses()
	if len(statuses) == 0 {
		return mcp.ServerStatus{
			Name:    cfg.Name,
			State:   mcp.StateFailed,
			Message: "no status available",
		}, nil
	}
	return statuses[0], nil
}
