package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zslzxy/toolmesh/internal/mcp"
)

type toolInvocation struct {
	tool string
	args map[string]any
}

type fakeSession struct {
	mu       sync.Mutex
	tools    []mcp.ToolDescriptor
	results  map[string]*mcp.ToolResult
	callErr  error
	calls    []toolInvocation
	closes   int
	closeErr error
}

func (f *fakeSession) ListTools(ctx context.Context) ([]mcp.ToolDescriptor, error) {
	return f.tools, nil
}

func (f *fakeSession) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, toolInvocation{tool: toolName, args: args})
	if f.callErr != nil {
		return nil, f.callErr
	}
	if res, ok := f.results[toolName]; ok {
		return res, nil
	}
	return &mcp.ToolResult{Content: []mcp.ContentItem{{Type: "text", Text: toolName + " done"}}}, nil
}

func (f *fakeSession) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return f.closeErr
}

func toolList(names ...string) []mcp.ToolDescriptor {
	out := make([]mcp.ToolDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, mcp.ToolDescriptor{Name: name, Description: name})
	}
	return out
}

type fakeConnector struct {
	sessions map[string]*fakeSession
}

func (f fakeConnector) Connect(ctx context.Context, cfg mcp.ServerConfig) (mcp.Session, error) {
	if s, ok := f.sessions[cfg.Name]; ok {
		return s, nil
	}
	return nil, errors.New("unreachable server " + cfg.Name)
}

// connectedManager returns a manager connected to one fake session per name.
func connectedManager(t *testing.T, sessions map[string]*fakeSession, names ...string) *mcp.Manager {
	t.Helper()
	manager := mcp.NewManager(mcp.Connectors{Process: fakeConnector{sessions: sessions}})
	configs := make([]mcp.ServerConfig, 0, len(names))
	for _, name := range names {
		configs = append(configs, mcp.ServerConfig{Name: name, Command: "fake", IsActive: true})
	}
	if err := manager.ConnectAll(context.Background(), configs); err != nil {
		t.Fatalf("ConnectAll error: %v", err)
	}
	return manager
}

// scriptedModel replays one chunk list per Stream call.
type scriptedModel struct {
	mu      sync.Mutex
	turns   [][]*schema.Message
	errs    []error
	inputs  [][]*schema.Message
	options []*model.Options
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return nil, errors.New("generate not supported")
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	turn := len(m.inputs)
	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	m.options = append(m.options, model.GetCommonOptions(&model.Options{}, opts...))
	if turn < len(m.errs) && m.errs[turn] != nil {
		return nil, m.errs[turn]
	}
	if turn >= len(m.turns) {
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("done", nil)}), nil
	}
	return schema.StreamReaderFromArray(m.turns[turn]), nil
}

func toolCallChunk(content string, calls ...schema.ToolCall) *schema.Message {
	return &schema.Message{Role: schema.Assistant, Content: content, ToolCalls: calls}
}

func intPtr(v int) *int {
	return &v
}
