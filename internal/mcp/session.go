package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zslzxy/toolmesh/internal/version"
)

const stderrTailBytes = 4096

type sdkConnector struct {
	kind    TransportKind
	runtime RuntimeOptions
}

// DefaultConnectors returns SDK-backed connectors for both transport kinds.
func DefaultConnectors(rt RuntimeOptions) Connectors {
	return Connectors{
		Process:     sdkConnector{kind: TransportProcess, runtime: rt},
		EventStream: sdkConnector{kind: TransportEventStream, runtime: rt},
	}
}

func (c sdkConnector) Connect(ctx context.Context, cfg ServerConfig) (Session, error) {
	if cfg.Transport != c.kind {
		return nil, fmt.Errorf("%w: connector for %s cannot dial %s server %q", ErrTransport, c.kind, cfg.Transport, cfg.Name)
	}

	stderr := newTailBuffer(stderrTailBytes)
	transport, err := BuildTransport(cfg, c.runtime, stderr)
	if err != nil {
		return nil, err
	}

	client := sdkmcp.NewClient(&sdkmcp.Implementation{
		Name:    version.Name,
		Version: version.Version,
	}, nil)
	cs, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnection, cfg.Name, decorateStderr(err, stderr))
	}

	return &sdkSession{
		name:    cfg.Name,
		session: cs,
		timeout: c.runtime.callTimeout(cfg),
		stderr:  stderr,
	}, nil
}

// NewSession wraps an already connected SDK client session.
func NewSession(name string, cs *sdkmcp.ClientSession, timeout time.Duration) Session {
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &sdkSession{name: name, session: cs, timeout: timeout, stderr: newTailBuffer(stderrTailBytes)}
}

type sdkSession struct {
	name    string
	session *sdkmcp.ClientSession
	timeout time.Duration
	stderr  *tailBuffer

	closeOnce sync.Once
	closeErr  error
}

func (s *sdkSession) supportsTools() bool {
	initRes := s.session.InitializeResult()
	if initRes == nil || initRes.Capabilities == nil {
		return true
	}
	return initRes.Capabilities.Tools != nil
}

func (s *sdkSession) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	if !s.supportsTools() {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		out    []ToolDescriptor
		cursor string
	)
	for {
		params := &sdkmcp.ListToolsParams{Cursor: cursor}
		res, err := s.session.ListTools(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("list tools on %s: %w", s.name, decorateStderr(err, s.stderr))
		}
		for _, tool := range res.Tools {
			if tool == nil {
				continue
			}
			out = append(out, ToolDescriptor{
				Name:        strings.TrimSpace(tool.Name),
				Description: strings.TrimSpace(tool.Description),
				InputSchema: rawSchema(tool.InputSchema),
			})
		}
		if res.NextCursor == "" || res.NextCursor == cursor {
			return out, nil
		}
		cursor = res.NextCursor
	}
}

func (s *sdkSession) CallTool(ctx context.Context, toolName string, args map[string]any) (*ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if args == nil {
		args = map[string]any{}
	}
	res, err := s.session.CallTool(ctx, &sdkmcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", toolName, s.name, decorateStderr(err, s.stderr))
	}
	return convertCallResult(res)
}

func (s *sdkSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.session.Close()
	})
	return s.closeErr
}

func rawSchema(schema any) json.RawMessage {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil || string(data) == "null" {
		return nil
	}
	return data
}

func convertCallResult(res *sdkmcp.CallToolResult) (*ToolResult, error) {
	if res == nil {
		return &ToolResult{}, nil
	}

	out := &ToolResult{
		IsError:    res.IsError,
		Structured: res.StructuredContent,
		Content:    make([]ContentItem, 0, len(res.Content)),
	}
	for _, content := range res.Content {
		if text, ok := content.(*sdkmcp.TextContent); ok {
			out.Content = append(out.Content, ContentItem{Type: "text", Text: text.Text})
			continue
		}

		// Non-text content keeps its wire form (base64 data, mime type, uri).
		data, err := json.Marshal(content)
		if err != nil {
			return nil, fmt.Errorf("encode tool content: %w", err)
		}
		var item ContentItem
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decode tool content: %w", err)
		}
		out.Content = append(out.Content, item)
	}
	return out, nil
}

func decorateStderr(err error, stderr *tailBuffer) error {
	if err == nil || stderr == nil {
		return err
	}
	if tail := strings.TrimSpace(stderr.String()); tail != "" {
		return fmt.Errorf("%w; stderr=%s", err, tail)
	}
	return err
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	if max <= 0 {
		max = 1024
	}
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = append([]byte(nil), b.buf[len(b.buf)-b.max:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
