package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zslzxy/toolmesh/internal/audit"
	"github.com/zslzxy/toolmesh/internal/bus"
	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/metrics"
)

// LoopConfig tunes the turn loop.
type LoopConfig struct {
	// Model overrides the provider's default model name when set.
	Model string
	// MaxTurns bounds the number of model turns per query; 0 is unbounded.
	MaxTurns int
}

// Loop drives one conversation's streaming model turns and tool dispatch.
type Loop struct {
	model    model.BaseChatModel
	manager  *mcp.Manager
	metrics  *metrics.Recorder
	audit    *audit.Writer
	modelID  string
	maxTurns int
	now      func() time.Time
}

// NewLoop creates a loop bound to the connections owned by manager.
func NewLoop(chatModel model.BaseChatModel, manager *mcp.Manager, cfg LoopConfig) *Loop {
	maxTurns := cfg.MaxTurns
	if maxTurns < 0 {
		maxTurns = 0
	}
	return &Loop{
		model:    chatModel,
		manager:  manager,
		modelID:  strings.TrimSpace(cfg.Model),
		maxTurns: maxTurns,
		now:      time.Now,
	}
}

// SetMetrics attaches a recorder for turn and tool call metrics.
func (l *Loop) SetMetrics(r *metrics.Recorder) {
	l.metrics = r
}

// SetAudit attaches a JSONL audit trail of executed tool calls.
func (l *Loop) SetAudit(w *audit.Writer) {
	l.audit = w
}

// ProcessQuery answers the last user message in conversation. Plain response
// chunks go to output as they arrive; each executed tool call is announced
// on push. On failure output receives one final error chunk. All manager
// connections are closed before ProcessQuery returns.
func (l *Loop) ProcessQuery(ctx context.Context, conversation []*schema.Message, output func(*schema.Message) error, push func(string)) (result []*schema.Message, err error) {
	requestID := bus.RequestIDFromContext(ctx)
	if requestID == "" {
		requestID = bus.NewRequestID()
		ctx = bus.WithRequestID(ctx, requestID)
	}
	if output == nil {
		output = func(*schema.Message) error { return nil }
	}

	defer func() {
		if closeErr := l.manager.CloseAll(); closeErr != nil {
			slog.Warn("tool server cleanup failed", "request_id", requestID, "error", closeErr)
		}
	}()

	result = append([]*schema.Message(nil), conversation...)
	result, err = l.run(ctx, result, output, push)
	if err != nil {
		slog.Error("process query failed", "request_id", requestID, "error", err)
		if emitErr := output(errorChunk(err)); emitErr != nil {
			slog.Warn("emit error chunk failed", "request_id", requestID, "error", emitErr)
		}
		return result, err
	}
	return result, nil
}

func (l *Loop) run(ctx context.Context, conversation []*schema.Message, output func(*schema.Message) error, push func(string)) ([]*schema.Message, error) {
	requestID := bus.RequestIDFromContext(ctx)
	if l.model == nil {
		return conversation, errors.New("agent: no model configured")
	}
	if !l.manager.HasConnections() {
		return conversation, ErrNoConnections
	}

	catalog, err := l.manager.Catalog(ctx)
	if err != nil {
		return conversation, fmt.Errorf("build tool catalog: %w", err)
	}
	opts := l.modelOptions(mcp.ToolInfos(catalog))
	dispatcher := NewDispatcher(l.manager, l.metrics, push)
	dispatcher.SetAudit(l.audit)
	slog.Info("processing query", "request_id", requestID, "servers", l.manager.ServerNames(), "tools", len(catalog))

	for turn := 1; ; turn++ {
		if l.maxTurns > 0 && turn > l.maxTurns {
			return conversation, fmt.Errorf("%w: %d turns", ErrTurnLimit, l.maxTurns)
		}

		start := l.now()
		pending, preface, err := l.streamTurn(ctx, conversation, opts, output)
		l.metrics.ObserveTurn(l.now().Sub(start), err)
		if err != nil {
			return conversation, err
		}
		if pending.Len() == 0 {
			slog.Debug("query complete", "request_id", requestID, "turns", turn)
			return conversation, nil
		}

		calls := make([]schema.ToolCall, 0, pending.Len())
		for _, call := range pending.Calls() {
			if !IsDispatchable(call) {
				slog.Warn("dropping incomplete tool call", "request_id", requestID,
					"call_id", call.ID, "name", call.Function.Name, "arguments", call.Function.Arguments)
				continue
			}
			calls = append(calls, call)
		}

		before := len(conversation)
		conversation, err = dispatcher.Dispatch(ctx, calls, conversation, preface)
		if err != nil {
			return conversation, err
		}
		if len(conversation) == before {
			// Nothing ran, so another turn would see the same conversation.
			slog.Warn("no tool call could be dispatched, ending query", "request_id", requestID, "requested", pending.Len())
			if strings.TrimSpace(preface) != "" {
				if err := output(schema.AssistantMessage(preface, nil)); err != nil {
					return conversation, err
				}
			}
			return conversation, nil
		}
	}
}

func (l *Loop) streamTurn(ctx context.Context, conversation []*schema.Message, opts []model.Option, output func(*schema.Message) error) (*PendingToolCalls, string, error) {
	stream, err := l.model.Stream(ctx, conversation, opts...)
	if err != nil {
		return nil, "", fmt.Errorf("model stream: %w", err)
	}
	defer stream.Close()

	pending := NewPendingToolCalls()
	var preface strings.Builder
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return pending, preface.String(), nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("model stream: %w", err)
		}
		if chunk == nil {
			continue
		}
		if len(chunk.ToolCalls) > 0 {
			pending.Merge(chunk.ToolCalls)
			preface.WriteString(chunk.Content)
			continue
		}
		if err := output(chunk); err != nil {
			return nil, "", fmt.Errorf("output: %w", err)
		}
	}
}

func (l *Loop) modelOptions(tools []*schema.ToolInfo) []model.Option {
	var opts []model.Option
	if len(tools) > 0 {
		opts = append(opts, model.WithTools(tools), model.WithToolChoice(schema.ToolChoiceAllowed))
	}
	if l.modelID != "" {
		opts = append(opts, model.WithModel(l.modelID))
	}
	return opts
}

func errorChunk(err error) *schema.Message {
	return schema.AssistantMessage("Error: "+err.Error(), nil)
}
