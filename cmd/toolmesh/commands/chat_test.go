package commands

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zslzxy/toolmesh/internal/agent"
	"github.com/zslzxy/toolmesh/internal/config"
	"github.com/zslzxy/toolmesh/internal/mcp"
)

type stubChatModel struct {
	calls int
}

func (m *stubChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.calls++
	return schema.AssistantMessage("ok", nil), nil
}

func (m *stubChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.calls++
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("ok", nil)}), nil
}

func TestChatSession_NoActiveServersReportsError(t *testing.T) {
	prepareMCPWorkspace(t)

	var out bytes.Buffer
	stub := &stubChatModel{}
	session := &chatSession{
		cfg:   config.DefaultConfig(),
		model: stub,
		out:   &out,
	}

	err := session.ask(context.Background(), "list my files")
	if !errors.Is(err, agent.ErrNoConnections) {
		t.Fatalf("expected ErrNoConnections, got %v", err)
	}
	if !strings.Contains(out.String(), "Error: ") {
		t.Fatalf("expected error chunk in output, got %q", out.String())
	}
	if stub.calls != 0 {
		t.Fatalf("model should not be called without connections, got %d calls", stub.calls)
	}
	if len(session.history) != 0 {
		t.Fatalf("history should be unchanged on failure, got %d messages", len(session.history))
	}
}

func TestChatSession_StatusesReturnsCopy(t *testing.T) {
	session := &chatSession{statuses: []mcp.ServerStatus{{Name: "localfs", State: mcp.StateConnected}}}
	got := session.Statuses()
	got[0].State = mcp.StateFailed
	if session.Statuses()[0].State != mcp.StateConnected {
		t.Fatal("Statuses must not expose internal state")
	}
}

type prefixRenderer struct{}

func (prefixRenderer) Render(s string) (string, error) {
	return "MD:" + s, nil
}

func TestChatSession_MarkdownRendersBufferedAnswer(t *testing.T) {
	prepareMCPWorkspace(t)

	var out bytes.Buffer
	session := &chatSession{
		cfg:      config.DefaultConfig(),
		model:    &stubChatModel{},
		out:      &out,
		markdown: prefixRenderer{},
	}

	_ = session.ask(context.Background(), "hello")
	if !strings.HasPrefix(out.String(), "MD:Error: ") {
		t.Fatalf("expected rendered error chunk, got %q", out.String())
	}
}
