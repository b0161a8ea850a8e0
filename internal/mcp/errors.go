package mcp

import "errors"

var (
	// ErrConfiguration is returned when a server entry cannot be resolved to
	// a transport kind.
	ErrConfiguration = errors.New("mcp: invalid server configuration")

	// ErrTransport is returned when a transport cannot be built from an
	// otherwise resolvable configuration.
	ErrTransport = errors.New("mcp: transport error")

	// ErrConnection is returned when a transport fails to connect or the
	// session handshake fails.
	ErrConnection = errors.New("mcp: connection failed")

	// ErrServerNotFound is returned when a server name has no live
	// connection in the manager.
	ErrServerNotFound = errors.New("mcp: server not connected")

	// ErrToolNotFound is returned when a connected server does not
	// advertise the requested tool.
	ErrToolNotFound = errors.New("mcp: tool not found")

	// ErrInvalidToolName is returned when a qualified tool name cannot be
	// split into a server and a tool.
	ErrInvalidToolName = errors.New("mcp: invalid qualified tool name")

	// ErrCleanup wraps the aggregate of transport close failures.
	ErrCleanup = errors.New("mcp: cleanup failed")
)
