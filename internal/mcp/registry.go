package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

type serverList struct {
	Servers []ServerConfig `mapstructure:"mcpServers"`
}

// ReadServerConfigs decodes the persisted server list at path. Entries keep
// file order; unnamed entries are dropped and duplicate names keep the first
// occurrence.
func ReadServerConfigs(path string) ([]ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse server list %s: %w", path, err)
	}

	var list serverList
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &list,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		MatchName: func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		},
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode server list %s: %w", path, err)
	}

	seen := make(map[string]struct{}, len(list.Servers))
	out := make([]ServerConfig, 0, len(list.Servers))
	for _, cfg := range list.Servers {
		cfg.Name = strings.TrimSpace(cfg.Name)
		if cfg.Name == "" {
			continue
		}
		if _, dup := seen[cfg.Name]; dup {
			slog.Warn("duplicate mcp server name ignored", "server", cfg.Name, "file", path)
			continue
		}
		seen[cfg.Name] = struct{}{}
		cfg.Transport = normalizeTransportKind(string(cfg.Transport))
		out = append(out, cfg)
	}
	return out, nil
}

// LoadActiveServers returns the active servers from the list at path,
// restricted to filterNames when it is non-empty. A missing or unreadable
// list yields no servers rather than an error.
func LoadActiveServers(path string, filterNames []string) []ServerConfig {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	configs, err := ReadServerConfigs(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("mcp server list not found", "file", path)
		} else {
			slog.Warn("mcp server list unreadable", "file", path, "error", err)
		}
		return nil
	}

	var filter map[string]struct{}
	if len(filterNames) > 0 {
		filter = make(map[string]struct{}, len(filterNames))
		for _, name := range filterNames {
			filter[strings.TrimSpace(name)] = struct{}{}
		}
	}

	active := make([]ServerConfig, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.IsActive {
			continue
		}
		if filter != nil {
			if _, ok := filter[cfg.Name]; !ok {
				continue
			}
		}
		active = append(active, cfg)
	}
	return active
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}
