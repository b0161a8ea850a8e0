package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
)

// CatalogEntry is one tool as presented to the model.
type CatalogEntry struct {
	QualifiedName string
	Server        string
	Tool          string
	Description   string
	InputSchema   json.RawMessage
}

// Catalog returns the flat tool catalog across all connected servers. The
// result is cached until the connection set changes. A server whose listing
// fails is left out of the catalog.
func (m *Manager) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	m.mu.RLock()
	if m.catalogValid {
		out := append([]CatalogEntry(nil), m.catalog...)
		m.mu.RUnlock()
		return out, nil
	}
	generation := m.generation
	names := m.serverNamesLocked()
	sessions := make([]Session, len(names))
	for i, name := range names {
		sessions[i] = m.entries[name].session
	}
	m.mu.RUnlock()

	var (
		catalog []CatalogEntry
		counts  = make(map[string]int, len(names))
	)
	for i, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tools, err := sessions[i].ListTools(ctx)
		if err != nil {
			slog.Warn("list tools failed, omitting server from catalog", "server", name, "error", err)
			continue
		}
		for _, td := range tools {
			entry, ok := projectTool(name, td)
			if !ok {
				continue
			}
			catalog = append(catalog, entry)
			counts[name]++
		}
	}

	m.mu.Lock()
	if m.generation == generation {
		m.catalog = catalog
		m.catalogValid = true
		for name, status := range m.statuses {
			if status.State == StateConnected {
				status.ToolCount = counts[name]
			}
		}
	}
	m.mu.Unlock()

	return append([]CatalogEntry(nil), catalog...), nil
}

// HasTool reports whether the catalog lists tool under server. The cached
// catalog is used when valid; otherwise it is rebuilt first.
func (m *Manager) HasTool(ctx context.Context, server, tool string) (bool, error) {
	m.mu.RLock()
	if m.catalogValid {
		found := catalogHas(m.catalog, server, tool)
		m.mu.RUnlock()
		return found, nil
	}
	m.mu.RUnlock()

	catalog, err := m.Catalog(ctx)
	if err != nil {
		return false, err
	}
	return catalogHas(catalog, server, tool), nil
}

func catalogHas(catalog []CatalogEntry, server, tool string) bool {
	for _, entry := range catalog {
		if entry.Server == server && entry.Tool == tool {
			return true
		}
	}
	return false
}

func projectTool(server string, td ToolDescriptor) (CatalogEntry, bool) {
	tool := strings.TrimSpace(td.Name)
	if !validToolName(tool) {
		slog.Warn("skipping tool with unsupported name", "server", server, "tool", td.Name)
		return CatalogEntry{}, false
	}
	qualified := QualifyToolName(server, tool)
	if len(qualified) > MaxQualifiedNameLength {
		slog.Warn("skipping tool whose qualified name is too long",
			"server", server, "tool", tool, "length", len(qualified), "max", MaxQualifiedNameLength)
		return CatalogEntry{}, false
	}

	desc := strings.TrimSpace(td.Description)
	if desc == "" {
		desc = tool
	}
	return CatalogEntry{
		QualifiedName: qualified,
		Server:        server,
		Tool:          tool,
		Description:   fmt.Sprintf("[%s] %s", server, desc),
		InputSchema:   td.InputSchema,
	}, true
}

// ToolInfos projects catalog entries onto the model tool definitions.
func ToolInfos(entries []CatalogEntry) []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, 0, len(entries))
	for _, entry := range entries {
		out = append(out, &schema.ToolInfo{
			Name:        entry.QualifiedName,
			Desc:        entry.Description,
			ParamsOneOf: schema.NewParamsOneOfByJSONSchema(parseInputSchema(entry.InputSchema)),
			Extra: map[string]any{
				"provider": "mcp",
				"server":   entry.Server,
				"tool":     entry.Tool,
			},
		})
	}
	return out
}

func parseInputSchema(raw json.RawMessage) *jsonschema.Schema {
	if len(raw) > 0 {
		var s jsonschema.Schema
		if err := json.Unmarshal(raw, &s); err == nil {
			if s.Type == "" {
				s.Type = "object"
			}
			return &s
		}
	}
	return &jsonschema.Schema{Type: "object"}
}
