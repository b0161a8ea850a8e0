package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/cobra"

	"github.com/zslzxy/toolmesh/internal/agent"
	"github.com/zslzxy/toolmesh/internal/audit"
	"github.com/zslzxy/toolmesh/internal/config"
	"github.com/zslzxy/toolmesh/internal/gateway"
	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/metrics"
	"github.com/zslzxy/toolmesh/internal/provider"
	"github.com/zslzxy/toolmesh/internal/render"
)

var (
	chatServerNames []string
	chatMarkdown    bool
)

func NewChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the model using the active tool servers",
		RunE:  runChat,
	}
	cmd.Flags().StringSliceVar(&chatServerNames, "server", nil, "Restrict to these tool servers (repeatable)")
	cmd.Flags().BoolVar(&chatMarkdown, "markdown", false, "Render each answer as markdown once it is complete")
	return cmd
}

// chatSession holds the state kept between user messages.
type chatSession struct {
	cfg      *config.Config
	model    model.BaseChatModel
	recorder *metrics.Recorder
	audit    *audit.Writer
	servers  []string
	out      io.Writer
	// markdown buffers answers and renders them when set.
	markdown render.Renderer

	history []*schema.Message

	mu       sync.Mutex
	statuses []mcp.ServerStatus
}

func (s *chatSession) Statuses() []mcp.ServerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]mcp.ServerStatus(nil), s.statuses...)
}

// ask runs one user message through a fresh manager and loop.
func (s *chatSession) ask(ctx context.Context, input string) error {
	configs := mcp.LoadActiveServers(s.cfg.ServersFilePath(), s.servers)
	manager := mcp.NewManager(mcp.DefaultConnectors(s.cfg.RuntimeOptions()))
	manager.SetMetrics(s.recorder)
	if err := manager.ConnectAll(ctx, configs); err != nil {
		return errors.Join(err, manager.CloseAll())
	}
	if manager.HasConnections() {
		// Fills ToolCount for /servers; the loop reuses the cached catalog.
		if _, err := manager.Catalog(ctx); err != nil {
			slog.Debug("catalog warmup failed", "error", err)
		}
	}
	s.mu.Lock()
	s.statuses = manager.Statuses()
	s.mu.Unlock()

	loop := agent.NewLoop(s.model, manager, agent.LoopConfig{MaxTurns: s.cfg.Agent.MaxTurns})
	loop.SetMetrics(s.recorder)
	loop.SetAudit(s.audit)

	conversation := append(append([]*schema.Message(nil), s.history...), schema.UserMessage(input))
	var answer []*schema.Message
	output := func(chunk *schema.Message) error {
		answer = append(answer, chunk)
		if s.markdown != nil {
			return nil
		}
		_, err := fmt.Fprint(s.out, chunk.Content)
		return err
	}
	push := func(notice string) {
		fmt.Fprintln(s.out, render.Notices(notice))
	}

	result, err := loop.ProcessQuery(ctx, conversation, output, push)
	if s.markdown != nil {
		var text strings.Builder
		for _, chunk := range answer {
			text.WriteString(chunk.Content)
		}
		fmt.Fprint(s.out, render.Answer(text.String(), s.markdown))
	}
	fmt.Fprintln(s.out)
	if err != nil {
		if errors.Is(err, agent.ErrNoConnections) {
			return fmt.Errorf("%w: check %s", err, s.cfg.ServersFilePath())
		}
		return err
	}

	if len(answer) > 0 {
		final, concatErr := schema.ConcatMessages(answer)
		if concatErr != nil {
			slog.Warn("concat answer chunks failed", "error", concatErr)
		} else {
			result = append(result, final)
		}
	}
	s.history = result
	return nil
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	chatModel, err := provider.NewChatModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create model: %w", err)
	}

	session := &chatSession{
		cfg:      cfg,
		model:    chatModel,
		recorder: metrics.NewRecorder(),
		servers:  chatServerNames,
		out:      os.Stdout,
	}
	if chatMarkdown {
		renderer, err := render.NewMarkdownRenderer("dark", 0)
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}
		session.markdown = renderer
	}
	if path := cfg.AuditFilePath(); path != "" {
		session.audit = audit.NewWriter(path)
	}

	if listen := strings.TrimSpace(cfg.Metrics.Listen); listen != "" {
		srv := gateway.New(listen, session.recorder, session)
		go func() {
			if err := srv.Start(); err != nil {
				slog.Error("metrics server failed", "addr", listen, "error", err)
			}
		}()
		defer func() {
			shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
			defer stop()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Warn("metrics server shutdown failed", "error", err)
			}
		}()
	}

	if len(args) > 0 {
		return session.ask(ctx, strings.Join(args, " "))
	}

	fmt.Println("toolmesh ready. Type 'exit' to quit.")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "exit" || input == "quit" {
			break
		}
		if input == "" {
			continue
		}

		if err := session.ask(ctx, input); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Printf("Error: %v\n", err)
		}
	}

	return nil
}
