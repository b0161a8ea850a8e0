package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/zslzxy/toolmesh/internal/metrics"
)

type connectionEntry struct {
	cfg     ServerConfig
	session Session
}

// Manager owns the live tool server connections of one conversation.
type Manager struct {
	mu         sync.RWMutex
	connectors Connectors
	metrics    *metrics.Recorder

	entries  map[string]*connectionEntry
	statuses map[string]*ServerStatus

	catalog      []CatalogEntry
	catalogValid bool
	// generation changes whenever the connection set does, so a catalog
	// listed concurrently with a reconnect is never cached.
	generation uint64
}

// NewManager constructs an empty manager that dials through connectors.
func NewManager(connectors Connectors) *Manager {
	return &Manager{
		connectors: connectors,
		entries:    make(map[string]*connectionEntry),
		statuses:   make(map[string]*ServerStatus),
	}
}

// SetMetrics attaches a recorder for connection and catalog metrics.
func (m *Manager) SetMetrics(r *metrics.Recorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metrics = r
}

// ConnectAll connects to each server in order. A server that fails to
// resolve, build or connect is logged and skipped; only cancellation of ctx
// stops the sequence early.
func (m *Manager) ConnectAll(ctx context.Context, configs []ServerConfig) error {
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := m.connectOne(ctx, cfg); err != nil {
			slog.Warn("tool server unavailable, skipping", "server", cfg.Name, "error", err)
		}
	}
	return nil
}

func (m *Manager) connectOne(ctx context.Context, cfg ServerConfig) error {
	name := strings.TrimSpace(cfg.Name)
	if name == "" {
		return fmt.Errorf("%w: server name is required", ErrConfiguration)
	}
	cfg.Name = name
	m.setStatus(name, cfg.Transport, StateConnecting, "")

	resolved, err := ResolveTransportKind(cfg)
	if err != nil {
		m.setStatus(name, cfg.Transport, StateFailed, err.Error())
		return err
	}

	connector := m.connectorFor(resolved.Transport)
	if connector == nil {
		err := fmt.Errorf("%w: no connector for transport %q", ErrTransport, resolved.Transport)
		m.setStatus(name, resolved.Transport, StateFailed, err.Error())
		return err
	}

	session, err := connector.Connect(ctx, resolved)
	m.recorder().ObserveConnect(string(resolved.Transport), err)
	if err != nil {
		if !errors.Is(err, ErrConnection) && !errors.Is(err, ErrTransport) && !errors.Is(err, ErrConfiguration) {
			err = fmt.Errorf("%w: %s: %w", ErrConnection, name, err)
		}
		m.setStatus(name, resolved.Transport, StateFailed, err.Error())
		return err
	}

	m.mu.Lock()
	previous := m.entries[name]
	m.entries[name] = &connectionEntry{cfg: resolved, session: session}
	m.invalidateCatalogLocked()
	m.statuses[name] = &ServerStatus{Name: name, Transport: resolved.Transport, State: StateConnected}
	m.mu.Unlock()

	if previous != nil {
		if err := previous.session.Close(); err != nil {
			slog.Warn("close replaced tool server session failed", "server", name, "error", err)
		}
	}
	slog.Info("tool server connected", "server", name, "transport", resolved.Transport)
	return nil
}

// CloseAll closes every session independently and clears the manager. All
// close failures are reported together; none of them stops the others.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	entries := m.entries
	m.entries = make(map[string]*connectionEntry)
	m.statuses = make(map[string]*ServerStatus)
	m.invalidateCatalogLocked()
	m.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := entries[name].session.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCleanup, errors.Join(errs...))
	}
	return nil
}

// HasConnections reports whether at least one server is connected.
func (m *Manager) HasConnections() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries) > 0
}

// Session returns the live session for a server.
func (m *Manager) Session(name string) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.entries[name]
	if !ok {
		return nil, false
	}
	return entry.session, true
}

// ServerNames returns the connected server names in sorted order.
func (m *Manager) ServerNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.serverNamesLocked()
}

// Statuses returns per-server connection state, sorted by name.
func (m *Manager) Statuses() []ServerStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.statuses))
	for name := range m.statuses {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ServerStatus, 0, len(names))
	for _, name := range names {
		out = append(out, *m.statuses[name])
	}
	return out
}

// setStatus records a connection attempt. While a live entry exists for
// name its status stays connected; a failed reconnect is only noted in the
// message.
func (m *Manager) setStatus(name string, transport TransportKind, state ConnState, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.entries[name]; live && state != StateConnected {
		if prev := m.statuses[name]; prev != nil && state == StateFailed {
			prev.Message = "reconnect failed, previous connection kept: " + strings.TrimSpace(msg)
		}
		return
	}
	m.statuses[name] = &ServerStatus{
		Name:      name,
		Transport: transport,
		State:     state,
		Message:   strings.TrimSpace(msg),
	}
}

func (m *Manager) invalidateCatalogLocked() {
	m.catalog = nil
	m.catalogValid = false
	m.generation++
}

func (m *Manager) serverNamesLocked() []string {
	names := make([]string, 0, len(m.entries))
	for name := range m.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) connectorFor(kind TransportKind) Connector {
	switch kind {
	case TransportProcess:
		return m.connectors.Process
	case TransportEventStream:
		return m.connectors.EventStream
	default:
		return nil
	}
}

func (m *Manager) recorder() *metrics.Recorder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metrics
}
