// Package toolreg registers translated invocables on the aggregator's MCP
// surface and tracks which mount owns which registered name.
package toolreg

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
	"github.com/tsoernes/mcp-registry/internal/infra/toolschema"
)

// Executor runs one routed invocation with kwargs keyed by the sanitized
// parameter names.
type Executor func(ctx context.Context, kwargs map[string]any) (string, error)

// Aggregator is the surrounding MCP server framework's surface, consumed but
// not implemented here.
type Aggregator interface {
	AddTool(name, description string, inputSchema map[string]any, exec Executor) error
	RemoveTool(name string) error
	NotifyToolListChanged(ctx context.Context)
}

// Registry tracks dynamically registered tool names per mount handle so
// deactivation removes exactly what activation added. A name collision
// aborts the registering mount; nothing is silently overwritten.
type Registry struct {
	agg    Aggregator
	logger *zap.Logger

	mu       sync.Mutex
	byHandle map[domain.Handle][]string
	owners   map[string]domain.Handle
}

func NewRegistry(agg Aggregator, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		agg:      agg,
		logger:   logger.Named("toolreg"),
		byHandle: make(map[domain.Handle][]string),
		owners:   make(map[string]domain.Handle),
	}
}

// Register adds one invocable under the given mount handle.
func (r *Registry) Register(handle domain.Handle, inv toolschema.Invocable, exec Executor) error {
	r.mu.Lock()
	if owner, ok := r.owners[inv.FullName]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s already registered for %s", domain.ErrRegistrationFailed, inv.FullName, owner)
	}
	r.owners[inv.FullName] = handle
	r.byHandle[handle] = append(r.byHandle[handle], inv.FullName)
	r.mu.Unlock()

	if err := r.agg.AddTool(inv.FullName, inv.Description, inv.InputSchema(), exec); err != nil {
		r.forget(handle, inv.FullName)
		return fmt.Errorf("%w: %s: %s", domain.ErrRegistrationFailed, inv.FullName, err.Error())
	}
	r.logger.Debug("tool registered", telemetry.ToolField(inv.FullName), telemetry.HandleField(string(handle)))
	return nil
}

// UnregisterMount removes every name registered for the handle. Individual
// removal failures are logged, not surfaced.
func (r *Registry) UnregisterMount(handle domain.Handle) []string {
	r.mu.Lock()
	names := r.byHandle[handle]
	delete(r.byHandle, handle)
	for _, name := range names {
		delete(r.owners, name)
	}
	r.mu.Unlock()

	for _, name := range names {
		if err := r.agg.RemoveTool(name); err != nil {
			r.logger.Warn("tool unregister failed", telemetry.ToolField(name), zap.Error(err))
		}
	}
	return names
}

// NamesFor lists the registered names owned by a handle.
func (r *Registry) NamesFor(handle domain.Handle) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := r.byHandle[handle]
	out := make([]string, len(names))
	copy(out, names)
	return out
}

// NotifyToolListChanged asks the aggregator to tell its client the tool set
// changed. Emission outside a client connection is silently skipped by the
// aggregator.
func (r *Registry) NotifyToolListChanged(ctx context.Context) {
	r.agg.NotifyToolListChanged(ctx)
}

func (r *Registry) forget(handle domain.Handle, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.owners, name)
	names := r.byHandle[handle]
	for i, candidate := range names {
		if candidate == name {
			r.byHandle[handle] = append(names[:i], names[i+1:]...)
			break
		}
	}
	if len(r.byHandle[handle]) == 0 {
		delete(r.byHandle, handle)
	}
}
