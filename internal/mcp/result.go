package mcp

import "encoding/json"

// Text normalizes a tool result to the payload handed back to the model.
// A result made of exactly one text item yields that text; anything else is
// serialized whole.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	if len(r.Content) == 1 && r.Content[0].Type == "text" && r.Structured == nil {
		return r.Content[0].Text
	}

	out := *r
	if out.Content == nil {
		out.Content = []ContentItem{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		// Only hand-built structured values fail here.
		return ""
	}
	return string(data)
}
