package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

type echoInput struct {
	Text string `json:"text" jsonschema:"text to echo"`
}

func startInMemorySession(t *testing.T) Session {
	t.Helper()
	ctx := context.Background()

	server := sdkmcp.NewServer(&sdkmcp.Implementation{Name: "fixture", Version: "v0.0.1"}, nil)
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "echo", Description: "Echo text back"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in echoInput) (*sdkmcp.CallToolResult, any, error) {
			return &sdkmcp.CallToolResult{
				Content: []sdkmcp.Content{&sdkmcp.TextContent{Text: "echo: " + in.Text}},
			}, nil, nil
		})
	sdkmcp.AddTool(server, &sdkmcp.Tool{Name: "fail", Description: "Always fails"},
		func(ctx context.Context, req *sdkmcp.CallToolRequest, in struct{}) (*sdkmcp.CallToolResult, any, error) {
			return nil, nil, errors.New("disk on fire")
		})

	serverTransport, clientTransport := sdkmcp.NewInMemoryTransports()
	serverSession, err := server.Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdkmcp.NewClient(&sdkmcp.Implementation{Name: "toolmesh-test", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	session := NewSession("fixture", cs, 5*time.Second)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func TestSession_ListTools(t *testing.T) {
	session := startInMemorySession(t)

	tools, err := session.ListTools(context.Background())
	if err != nil {
		t.Fatalf("ListTools error: %v", err)
	}
	if len(tools) != 2 {
		t.Fatalf("expected 2 tools, got %+v", tools)
	}
	var echo ToolDescriptor
	for _, tool := range tools {
		if tool.Name == "echo" {
			echo = tool
		}
	}
	if echo.Description != "Echo text back" {
		t.Fatalf("unexpected echo descriptor: %+v", echo)
	}
	if !strings.Contains(string(echo.InputSchema), `"text"`) {
		t.Fatalf("expected input schema with text property, got %s", echo.InputSchema)
	}
}

func TestSession_CallTool(t *testing.T) {
	session := startInMemorySession(t)

	res, err := session.CallTool(context.Background(), "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("CallTool error: %v", err)
	}
	if res.IsError || res.Text() != "echo: hi" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSession_CallToolReportsToolError(t *testing.T) {
	session := startInMemorySession(t)

	res, err := session.CallTool(context.Background(), "fail", nil)
	if err != nil {
		t.Fatalf("expected tool error in result, got protocol error %v", err)
	}
	if !res.IsError || !strings.Contains(res.Text(), "disk on fire") {
		t.Fatalf("expected flagged error result, got %+v", res)
	}
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	session := startInMemorySession(t)
	first := session.Close()
	second := session.Close()
	if first != second {
		t.Fatalf("expected repeated Close to return the first result, got %v then %v", first, second)
	}
}

func TestConvertCallResult_NonTextContent(t *testing.T) {
	res, err := convertCallResult(&sdkmcp.CallToolResult{
		Content: []sdkmcp.Content{
			&sdkmcp.TextContent{Text: "caption"},
			&sdkmcp.ImageContent{Data: []byte("png-bytes"), MIMEType: "image/png"},
		},
	})
	if err != nil {
		t.Fatalf("convertCallResult error: %v", err)
	}
	if len(res.Content) != 2 {
		t.Fatalf("expected 2 items, got %+v", res.Content)
	}
	image := res.Content[1]
	if image.Type != "image" || image.MimeType != "image/png" || image.Data == "" {
		t.Fatalf("unexpected image item: %+v", image)
	}
}

func TestSDKConnector_RejectsMismatchedKind(t *testing.T) {
	connectors := DefaultConnectors(RuntimeOptions{})
	_, err := connectors.Process.Connect(context.Background(), ServerConfig{Name: "x", Transport: TransportEventStream, BaseURL: "http://localhost"})
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestSDKConnector_ProcessFailureIsConnectionError(t *testing.T) {
	connectors := DefaultConnectors(RuntimeOptions{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := connectors.Process.Connect(ctx, ServerConfig{
		Name:      "missing",
		Transport: TransportProcess,
		Command:   "toolmesh-definitely-not-installed",
	})
	if !errors.Is(err, ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
}

func TestTailBuffer_KeepsTail(t *testing.T) {
	buf := newTailBuffer(8)
	_, _ = buf.Write([]byte("0123456789"))
	_, _ = buf.Write([]byte("ab"))
	if got := buf.String(); got != "456789ab" {
		t.Fatalf("unexpected tail: %q", got)
	}
}
