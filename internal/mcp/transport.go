package mcp

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

const npmRegistryEnv = "NPM_CONFIG_REGISTRY"

// ResolveTransportKind fills in cfg.Transport when it is absent: a command
// implies a process transport, a base URL an event-stream transport.
func ResolveTransportKind(cfg ServerConfig) (ServerConfig, error) {
	cfg.Transport = normalizeTransportKind(string(cfg.Transport))
	switch cfg.Transport {
	case TransportProcess, TransportEventStream:
		return cfg, nil
	case "":
	default:
		return cfg, fmt.Errorf("%w: server %q has unsupported transport %q", ErrConfiguration, cfg.Name, cfg.Transport)
	}

	switch {
	case strings.TrimSpace(cfg.Command) != "":
		cfg.Transport = TransportProcess
	case strings.TrimSpace(cfg.BaseURL) != "":
		cfg.Transport = TransportEventStream
	default:
		return cfg, fmt.Errorf("%w: server %q has neither command nor baseUrl", ErrConfiguration, cfg.Name)
	}
	return cfg, nil
}

// BuildTransport creates the SDK transport for a resolved configuration.
// Process stderr is copied to stderr when it is non-nil.
func BuildTransport(cfg ServerConfig, rt RuntimeOptions, stderr io.Writer) (sdkmcp.Transport, error) {
	switch cfg.Transport {
	case TransportProcess:
		return buildProcessTransport(cfg, rt, stderr)
	case TransportEventStream:
		return buildEventStreamTransport(cfg)
	default:
		return nil, fmt.Errorf("%w: server %q has unresolved transport %q", ErrTransport, cfg.Name, cfg.Transport)
	}
}

func buildProcessTransport(cfg ServerConfig, rt RuntimeOptions, stderr io.Writer) (*sdkmcp.CommandTransport, error) {
	command, args, env := resolveCommand(cfg, rt)
	if command == "" {
		return nil, fmt.Errorf("%w: process transport for %q requires command", ErrTransport, cfg.Name)
	}

	cmd := exec.Command(command, args...)
	cmd.Env = mergeEnv(env)
	if stderr != nil {
		cmd.Stderr = stderr
	}
	return &sdkmcp.CommandTransport{Command: cmd}, nil
}

// resolveCommand swaps a generic npx invocation for the bundled runtime so
// package-based servers start on hosts without a Node toolchain.
func resolveCommand(cfg ServerConfig, rt RuntimeOptions) (string, []string, map[string]string) {
	command := strings.TrimSpace(cfg.Command)
	args := append([]string(nil), cfg.Args...)
	env := make(map[string]string, len(cfg.Env)+1)
	for key, value := range cfg.Env {
		env[key] = value
	}

	bun := strings.TrimSpace(rt.BunPath)
	if bun == "" || !isNpxCommand(command) {
		return command, args, env
	}

	args = append([]string{"x"}, args...)
	if registry := strings.TrimSpace(rt.NPMRegistry); registry != "" {
		if _, set := env[npmRegistryEnv]; !set {
			env[npmRegistryEnv] = registry
		}
	}
	return bun, args, env
}

func isNpxCommand(command string) bool {
	base := strings.ToLower(filepath.Base(strings.TrimSpace(command)))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base == "npx"
}

func mergeEnv(extra map[string]string) []string {
	base := os.Environ()
	if len(extra) == 0 {
		return base
	}

	merged := make(map[string]string, len(base)+len(extra))
	for _, item := range base {
		key, value, _ := strings.Cut(item, "=")
		merged[key] = value
	}
	for key, value := range extra {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		merged[trimmedKey] = value
	}

	out := make([]string, 0, len(merged))
	for key, value := range merged {
		out = append(out, key+"="+value)
	}
	return out
}

func buildEventStreamTransport(cfg ServerConfig) (*sdkmcp.SSEClientTransport, error) {
	endpoint, err := validateEventStreamURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: server %q: %v", ErrTransport, cfg.Name, err)
	}

	client := http.DefaultClient
	if headers := cloneHeaders(cfg.Headers); len(headers) > 0 {
		client = &http.Client{Transport: headerRoundTripper{base: http.DefaultTransport, headers: headers}}
	}
	return &sdkmcp.SSEClientTransport{Endpoint: endpoint, HTTPClient: client}, nil
}

func validateEventStreamURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("event-stream transport requires baseUrl")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid baseUrl %q: %w", trimmed, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported baseUrl scheme: %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("baseUrl %q has no host", trimmed)
	}
	return parsed.String(), nil
}

type headerRoundTripper struct {
	base    http.RoundTripper
	headers map[string]string
}

func (h headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	applyHeaders(clone.Header, h.headers)
	return h.base.RoundTrip(clone)
}

func applyHeaders(dst http.Header, src map[string]string) {
	for key, value := range src {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		dst.Set(trimmedKey, value)
	}
}

func cloneHeaders(src map[string]string) map[string]string {
	if len(src) == 0 {
		return map[string]string{}
	}
	out := make(map[string]string, len(src))
	for key, value := range src {
		trimmed := strings.TrimSpace(key)
		if trimmed == "" {
			continue
		}
		out[trimmed] = value
	}
	return out
}
