package mcp

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestResolveTransportKind(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want TransportKind
		err  error
	}{
		{"command infers process", ServerConfig{Name: "a", Command: "node"}, TransportProcess, nil},
		{"url infers eventstream", ServerConfig{Name: "b", BaseURL: "http://localhost:1/sse"}, TransportEventStream, nil},
		{"explicit alias", ServerConfig{Name: "c", Transport: "sse", BaseURL: "http://x"}, TransportEventStream, nil},
		{"neither is invalid", ServerConfig{Name: "d"}, "", ErrConfiguration},
		{"unknown kind", ServerConfig{Name: "e", Transport: "carrier-pigeon", Command: "x"}, "", ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveTransportKind(tt.cfg)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("expected %v, got %v", tt.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Transport != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got.Transport)
			}
		})
	}
}

func TestResolveCommand_SubstitutesNpx(t *testing.T) {
	rt := RuntimeOptions{BunPath: "/opt/toolmesh/bun", NPMRegistry: "https://registry.npmmirror.com"}
	cfg := ServerConfig{Command: "/usr/local/bin/npx.cmd", Args: []string{"-y", "@scope/server"}}

	command, args, env := resolveCommand(cfg, rt)
	if command != "/opt/toolmesh/bun" {
		t.Fatalf("expected bun substitution, got %q", command)
	}
	if !slices.Equal(args, []string{"x", "-y", "@scope/server"}) {
		t.Fatalf("unexpected args: %v", args)
	}
	if env[npmRegistryEnv] != "https://registry.npmmirror.com" {
		t.Fatalf("expected registry env, got %+v", env)
	}

	cfg.Env = map[string]string{npmRegistryEnv: "https://custom"}
	_, _, env = resolveCommand(cfg, rt)
	if env[npmRegistryEnv] != "https://custom" {
		t.Fatalf("expected server registry to win, got %q", env[npmRegistryEnv])
	}
}

func TestResolveCommand_VerbatimOtherwise(t *testing.T) {
	cfg := ServerConfig{Command: "uvx", Args: []string{"mcp-server-git"}}

	command, args, _ := resolveCommand(cfg, RuntimeOptions{BunPath: "/opt/bun"})
	if command != "uvx" || !slices.Equal(args, cfg.Args) {
		t.Fatalf("expected verbatim command, got %q %v", command, args)
	}

	npx := ServerConfig{Command: "npx", Args: []string{"pkg"}}
	command, args, _ = resolveCommand(npx, RuntimeOptions{})
	if command != "npx" || !slices.Equal(args, []string{"pkg"}) {
		t.Fatalf("expected npx kept without bundled runtime, got %q %v", command, args)
	}
}

func TestMergeEnv_OverridesHost(t *testing.T) {
	t.Setenv("TOOLMESH_TEST_VAR", "host")
	merged := mergeEnv(map[string]string{"TOOLMESH_TEST_VAR": "server", " ": "ignored"})
	if !slices.Contains(merged, "TOOLMESH_TEST_VAR=server") {
		t.Fatalf("expected override in merged env")
	}
	if slices.Contains(merged, "TOOLMESH_TEST_VAR=host") {
		t.Fatalf("expected host value replaced")
	}
}

func TestBuildTransport_Process(t *testing.T) {
	transport, err := BuildTransport(ServerConfig{Name: "p", Transport: TransportProcess, Command: "node", Args: []string{"server.js"}}, RuntimeOptions{}, nil)
	if err != nil {
		t.Fatalf("BuildTransport error: %v", err)
	}
	ct, ok := transport.(*sdkmcp.CommandTransport)
	if !ok {
		t.Fatalf("expected CommandTransport, got %T", transport)
	}
	if !slices.Equal(ct.Command.Args, []string{"node", "server.js"}) {
		t.Fatalf("unexpected command args: %v", ct.Command.Args)
	}

	if _, err := BuildTransport(ServerConfig{Name: "p", Transport: TransportProcess}, RuntimeOptions{}, nil); !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport for missing command, got %v", err)
	}
}

func TestBuildTransport_EventStreamValidatesURL(t *testing.T) {
	for _, raw := range []string{"", "ftp://example.com", "http://", "::bad"} {
		_, err := BuildTransport(ServerConfig{Name: "s", Transport: TransportEventStream, BaseURL: raw}, RuntimeOptions{}, nil)
		if !errors.Is(err, ErrTransport) {
			t.Fatalf("BaseURL %q: expected ErrTransport, got %v", raw, err)
		}
	}

	transport, err := BuildTransport(ServerConfig{Name: "s", Transport: TransportEventStream, BaseURL: "https://example.com/sse"}, RuntimeOptions{}, nil)
	if err != nil {
		t.Fatalf("BuildTransport error: %v", err)
	}
	sse, ok := transport.(*sdkmcp.SSEClientTransport)
	if !ok || sse.Endpoint != "https://example.com/sse" {
		t.Fatalf("unexpected transport: %#v", transport)
	}
}

func TestBuildTransport_EventStreamAppliesHeaders(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	transport, err := BuildTransport(ServerConfig{
		Name:      "s",
		Transport: TransportEventStream,
		BaseURL:   srv.URL,
		Headers:   map[string]string{"Authorization": "Bearer token"},
	}, RuntimeOptions{}, nil)
	if err != nil {
		t.Fatalf("BuildTransport error: %v", err)
	}

	client := transport.(*sdkmcp.SSEClientTransport).HTTPClient
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error: %v", err)
	}
	resp.Body.Close()
	if got != "Bearer token" {
		t.Fatalf("expected Authorization header, got %q", got)
	}
}
