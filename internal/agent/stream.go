package agent

import (
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// PendingToolCalls accumulates tool-call deltas from one streamed turn.
// Calls are keyed by id and returned in the order they first appeared.
type PendingToolCalls struct {
	order   []string
	calls   map[string]*schema.ToolCall
	byIndex map[int]string
	last    string
}

// NewPendingToolCalls returns an empty accumulator.
func NewPendingToolCalls() *PendingToolCalls {
	return &PendingToolCalls{
		calls:   make(map[string]*schema.ToolCall),
		byIndex: make(map[int]string),
	}
}

// Merge folds one chunk's tool-call deltas into the accumulator. A fragment
// without an id continues the call at the same stream index, or the most
// recent call when the index is unknown. Name and argument fragments are
// appended, except a full name resent on a delta carrying the call's id.
func (p *PendingToolCalls) Merge(deltas []schema.ToolCall) {
	for _, delta := range deltas {
		key := p.keyFor(delta)
		call, ok := p.calls[key]
		if !ok {
			call = &schema.ToolCall{ID: key, Index: delta.Index}
			p.calls[key] = call
			p.order = append(p.order, key)
		}
		if delta.Type != "" {
			call.Type = delta.Type
		}
		if name := delta.Function.Name; name != "" && !(ok && delta.ID != "" && name == call.Function.Name) {
			call.Function.Name += name
		}
		call.Function.Arguments += delta.Function.Arguments
		if delta.Index != nil {
			p.byIndex[*delta.Index] = key
		}
		p.last = key
	}
}

func (p *PendingToolCalls) keyFor(delta schema.ToolCall) string {
	if delta.ID != "" {
		return delta.ID
	}
	if delta.Index != nil {
		if key, ok := p.byIndex[*delta.Index]; ok {
			return key
		}
		if p.last != "" && p.calls[p.last].Index == nil {
			return p.last
		}
		return "call_" + uuid.NewString()
	}
	if p.last != "" {
		return p.last
	}
	return "call_" + uuid.NewString()
}

// Len returns the number of distinct calls seen.
func (p *PendingToolCalls) Len() int {
	return len(p.order)
}

// Calls returns the accumulated calls in emission order.
func (p *PendingToolCalls) Calls() []schema.ToolCall {
	out := make([]schema.ToolCall, 0, len(p.order))
	for _, key := range p.order {
		call := *p.calls[key]
		if call.Type == "" {
			call.Type = "function"
		}
		out = append(out, call)
	}
	return out
}
