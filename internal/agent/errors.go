package agent

import "errors"

var (
	// ErrNoConnections is returned when a query starts without any
	// connected tool server.
	ErrNoConnections = errors.New("agent: no tool servers connected")

	// ErrToolExecution wraps a failed tools/call request.
	ErrToolExecution = errors.New("agent: tool execution failed")

	// ErrTurnLimit is returned when the model keeps requesting tools past
	// the configured turn budget.
	ErrTurnLimit = errors.New("agent: turn limit exceeded")
)
