package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// Delimiters wrapping each tool notice pushed to observers.
const (
	NoticeOpen  = "<mcptool>"
	NoticeClose = "</mcptool>"
)

var noticeBlockRe = regexp.MustCompile(`(?s)` + NoticeOpen + `\n(.*?)\n` + NoticeClose + `\n*`)

// ToolNotice describes one dispatched tool call for a human observer.
type ToolNotice struct {
	Server string `json:"name"`
	Tool   string `json:"tool_name"`
	Args   any    `json:"args"`
	Result any    `json:"result"`
}

// Format renders the notice in its delimited wire form.
func (n ToolNotice) Format() string {
	payload, err := json.Marshal(n)
	if err != nil {
		payload, _ = json.Marshal(ToolNotice{
			Server: n.Server,
			Tool:   n.Tool,
			Result: fmt.Sprint(n.Result),
		})
	}
	return NoticeOpen + "\n" + string(payload) + "\n" + NoticeClose + "\n\n"
}

// NewToolNotice builds a notice whose result is the decoded JSON of text
// when text is a JSON document, and text itself otherwise.
func NewToolNotice(server, tool string, args any, text string) ToolNotice {
	var result any = text
	var decoded any
	if err := json.Unmarshal([]byte(text), &decoded); err == nil {
		result = decoded
	}
	return ToolNotice{Server: server, Tool: tool, Args: args, Result: result}
}

// ParseNotices extracts every notice in s and returns the remaining text.
// Blocks that do not decode are left in the text.
func ParseNotices(s string) ([]ToolNotice, string) {
	var notices []ToolNotice
	rest := noticeBlockRe.ReplaceAllStringFunc(s, func(block string) string {
		m := noticeBlockRe.FindStringSubmatch(block)
		var n ToolNotice
		if len(m) < 2 || json.Unmarshal([]byte(m[1]), &n) != nil {
			return block
		}
		notices = append(notices, n)
		return ""
	})
	return notices, rest
}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
