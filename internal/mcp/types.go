package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

// TransportKind selects how a tool server is reached.
type TransportKind string

const (
	TransportProcess     TransportKind = "process"
	TransportEventStream TransportKind = "eventstream"
)

// normalizeTransportKind maps persisted spellings onto the two supported kinds.
// Unknown values are returned lower-cased so validation can report them.
func normalizeTransportKind(raw string) TransportKind {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return ""
	case "process", "stdio":
		return TransportProcess
	case "eventstream", "sse", "http_sse":
		return TransportEventStream
	default:
		return TransportKind(strings.ToLower(strings.TrimSpace(raw)))
	}
}

// ServerConfig is one configured tool server as read from the server list.
type ServerConfig struct {
	Name        string            `mapstructure:"name" json:"name"`
	Description string            `mapstructure:"description" json:"description,omitempty"`
	Transport   TransportKind     `mapstructure:"type" json:"type,omitempty"`
	Command     string            `mapstructure:"command" json:"command,omitempty"`
	Args        []string          `mapstructure:"args" json:"args,omitempty"`
	Env         map[string]string `mapstructure:"env" json:"env,omitempty"`
	BaseURL     string            `mapstructure:"baseurl" json:"baseUrl,omitempty"`
	Headers     map[string]string `mapstructure:"headers" json:"headers,omitempty"`
	Timeout     int               `mapstructure:"timeout" json:"timeout,omitempty"` // seconds
	IsActive    bool              `mapstructure:"is_active" json:"is_active"`
}

// ToolDescriptor describes a tool advertised by one server.
type ToolDescriptor struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ContentItem is one piece of a tool result.
type ContentItem struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// ToolResult is the decoded outcome of a tools/call request.
type ToolResult struct {
	Content    []ContentItem `json:"content"`
	Structured any           `json:"structuredContent,omitempty"`
	IsError    bool          `json:"isError,omitempty"`
}

// Session is a live protocol connection to one tool server.
type Session interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, toolName string, args map[string]any) (*ToolResult, error)
	Close() error
}

// Connector dials a server of one transport kind and returns a session.
type Connector interface {
	Connect(ctx context.Context, cfg ServerConfig) (Session, error)
}

// Connectors groups the supported transport connectors.
type Connectors struct {
	Process     Connector
	EventStream Connector
}

// RuntimeOptions controls how process transports are launched and how long
// protocol calls may take.
type RuntimeOptions struct {
	// BunPath is the bundled runtime substituted for npx invocations.
	// Empty disables the substitution.
	BunPath string
	// NPMRegistry is exported as NPM_CONFIG_REGISTRY for substituted commands.
	NPMRegistry string
	// CallTimeout bounds each list/call request unless the server overrides it.
	CallTimeout time.Duration
}

const defaultCallTimeout = 30 * time.Second

func (o RuntimeOptions) callTimeout(cfg ServerConfig) time.Duration {
	if cfg.Timeout > 0 {
		return time.Duration(cfg.Timeout) * time.Second
	}
	if o.CallTimeout > 0 {
		return o.CallTimeout
	}
	return defaultCallTimeout
}

// ConnState is the lifecycle state of one server within a Manager.
type ConnState string

const (
	StateUnconnected ConnState = "unconnected"
	StateConnecting  ConnState = "connecting"
	StateConnected   ConnState = "connected"
	StateFailed      ConnState = "failed"
)

// ServerStatus represents current manager state for one server.
type ServerStatus struct {
	Name      string
	Transport TransportKind
	State     ConnState
	ToolCount int
	Message   string
}
