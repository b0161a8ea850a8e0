package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/tidwall/gjson"

	"github.com/zslzxy/toolmesh/internal/audit"
	"github.com/zslzxy/toolmesh/internal/bus"
	"github.com/zslzxy/toolmesh/internal/mcp"
	"github.com/zslzxy/toolmesh/internal/metrics"
)

// IsDispatchable reports whether call names a tool and carries a complete
// JSON argument document.
func IsDispatchable(call schema.ToolCall) bool {
	args := strings.TrimSpace(call.Function.Arguments)
	return strings.TrimSpace(call.Function.Name) != "" && args != "" && gjson.Valid(args)
}

// Dispatcher executes model tool calls against the sessions of a manager.
type Dispatcher struct {
	manager *mcp.Manager
	metrics *metrics.Recorder
	push    func(string)
	audit   *audit.Writer
}

// NewDispatcher creates a dispatcher. push may be nil.
func NewDispatcher(manager *mcp.Manager, recorder *metrics.Recorder, push func(string)) *Dispatcher {
	return &Dispatcher{manager: manager, metrics: recorder, push: push}
}

// SetAudit records every executed call to w.
func (d *Dispatcher) SetAudit(w *audit.Writer) {
	d.audit = w
}

// Dispatch runs calls one after another in emission order and returns the
// conversation extended with an assistant message and a tool message per
// executed call. Calls naming a server that is not connected, or a tool its
// server does not advertise, are skipped. The preface text is attached to
// the first executed call's assistant message.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []schema.ToolCall, conversation []*schema.Message, preface string) ([]*schema.Message, error) {
	requestID := bus.RequestIDFromContext(ctx)
	for _, call := range calls {
		server, tool, err := mcp.SplitQualifiedName(call.Function.Name)
		if err != nil {
			slog.Debug("skipping tool call with unknown name", "request_id", requestID, "name", call.Function.Name, "error", err)
			continue
		}
		session, ok := d.manager.Session(server)
		if !ok {
			slog.Debug("skipping tool call for unconnected server", "request_id", requestID, "server", server, "tool", tool,
				"error", mcp.ErrServerNotFound)
			continue
		}
		known, err := d.manager.HasTool(ctx, server, tool)
		if err != nil {
			return conversation, err
		}
		if !known {
			slog.Debug("skipping tool call for unknown tool", "request_id", requestID, "server", server, "tool", tool,
				"error", mcp.ErrToolNotFound)
			continue
		}

		args, err := decodeArguments(call.Function.Arguments)
		if err != nil {
			d.record(requestID, server, tool, call.ID, 0, false, err)
			return conversation, fmt.Errorf("%w: %s on %s: %w", ErrToolExecution, tool, server, err)
		}

		slog.Debug("executing tool", "request_id", requestID, "server", server, "tool", tool, "call_id", call.ID)
		start := time.Now()
		result, err := session.CallTool(ctx, tool, args)
		duration := time.Since(start)
		toolErr := err == nil && result != nil && result.IsError
		d.metrics.ObserveToolCall(server, duration, toolErr, err)
		d.record(requestID, server, tool, call.ID, duration, toolErr, err)
		if err != nil {
			slog.Warn("tool execution failed", "request_id", requestID, "server", server, "tool", tool,
				"duration_ms", duration.Milliseconds(), "error", err)
			return conversation, fmt.Errorf("%w: %s on %s: %w", ErrToolExecution, tool, server, err)
		}

		text := result.Text()
		slog.Info("tool execution finished", "request_id", requestID, "server", server, "tool", tool,
			"duration_ms", duration.Milliseconds(), "tool_error", result.IsError)

		if d.push != nil {
			d.push(bus.NewToolNotice(server, tool, args, text).Format())
		}

		conversation = append(conversation,
			schema.AssistantMessage(preface, []schema.ToolCall{call}),
			schema.ToolMessage(text, call.ID),
		)
		preface = ""
	}
	return conversation, nil
}

func (d *Dispatcher) record(requestID, server, tool, callID string, duration time.Duration, toolErr bool, err error) {
	if d.audit == nil {
		return
	}
	event := audit.Event{
		Type:       audit.TypeToolCall,
		RequestID:  requestID,
		Server:     server,
		Tool:       tool,
		CallID:     callID,
		Outcome:    metrics.Outcome(err),
		DurationMS: duration.Milliseconds(),
	}
	if err != nil {
		event.Error = err.Error()
	} else if toolErr {
		event.Outcome = metrics.OutcomeError
		event.Error = "tool reported error"
	}
	if appendErr := d.audit.Append(event); appendErr != nil {
		slog.Warn("append audit event failed", "request_id", requestID, "path", d.audit.Path(), "error", appendErr)
	}
}

func decodeArguments(raw string) (map[string]any, error) {
	args := map[string]any{}
	if strings.TrimSpace(raw) == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("decode arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
