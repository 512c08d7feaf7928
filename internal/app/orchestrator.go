package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/catalog"
	"github.com/tsoernes/mcp-registry/internal/infra/clients"
	"github.com/tsoernes/mcp-registry/internal/infra/launcher"
	"github.com/tsoernes/mcp-registry/internal/infra/mounts"
	"github.com/tsoernes/mcp-registry/internal/infra/session"
	"github.com/tsoernes/mcp-registry/internal/infra/telemetry"
	"github.com/tsoernes/mcp-registry/internal/infra/toolreg"
	"github.com/tsoernes/mcp-registry/internal/infra/toolschema"
)

// teardownBudget bounds a full deactivation: graceful stop plus forced-kill
// slack.
const teardownBudget = 15 * time.Second

// Launcher spawns children; satisfied by launcher.Launcher and by test
// fakes.
type Launcher interface {
	Start(ctx context.Context, spec launcher.Spec) (domain.Handle, domain.IOStreams, domain.StopFn, error)
}

// ActivateRequest parameterizes one mount activation.
type ActivateRequest struct {
	EntryID     string
	Prefix      string
	Environment map[string]string
	// MethodOverride resolves ambiguous entries; empty uses the descriptor's
	// launch method.
	MethodOverride domain.LaunchMethod
}

// Orchestrator composes launcher, session, translator, registry, store, and
// client manager into the activate/deactivate flows.
type Orchestrator struct {
	catalog  *catalog.Catalog
	store    *mounts.Store
	clients  *clients.Manager
	registry *toolreg.Registry
	launcher Launcher
	timeouts session.Timeouts
	logger   *zap.Logger
	metrics  *telemetry.Metrics
}

// OrchestratorOptions wires an Orchestrator.
type OrchestratorOptions struct {
	Catalog  *catalog.Catalog
	Store    *mounts.Store
	Clients  *clients.Manager
	Registry *toolreg.Registry
	Launcher Launcher
	Timeouts session.Timeouts
	Logger   *zap.Logger
	Metrics  *telemetry.Metrics
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = telemetry.NopMetrics()
	}
	return &Orchestrator{
		catalog:  opts.Catalog,
		store:    opts.Store,
		clients:  opts.Clients,
		registry: opts.Registry,
		launcher: opts.Launcher,
		timeouts: opts.Timeouts,
		logger:   logger.Named("orchestrator"),
		metrics:  metrics,
	}
}

// Activate runs the end-to-end mount flow. On any failure the system state
// is as if activation never started: child reaped, session gone, no
// registered tools, no mount record.
func (o *Orchestrator) Activate(ctx context.Context, req ActivateRequest) (domain.ActiveMount, error) {
	mount, err := o.activate(ctx, req)
	if err != nil {
		o.metrics.Activations.WithLabelValues("error").Inc()
		o.logger.Warn("activation failed", telemetry.EntryField(req.EntryID), zap.Error(err))
		return domain.ActiveMount{}, err
	}
	o.metrics.Activations.WithLabelValues("ok").Inc()
	o.metrics.ActiveMounts.Set(float64(len(o.store.List())))
	return mount, nil
}

func (o *Orchestrator) activate(ctx context.Context, req ActivateRequest) (domain.ActiveMount, error) {
	entry, ok := o.catalog.Get(req.EntryID)
	if !ok {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindEntryNotFound, req.EntryID, nil)
	}

	release, err := o.store.LockEntry(ctx, req.EntryID)
	if err != nil {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindTimeout, req.EntryID, err)
	}
	defer release()

	if _, active := o.store.Get(req.EntryID); active {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindAlreadyActive, req.EntryID, nil)
	}

	prefix := req.Prefix
	if prefix == "" {
		prefix = domain.DerivePrefix(req.EntryID)
	}
	if err := o.store.ReservePrefix(req.EntryID, prefix); err != nil {
		kind := domain.KindPrefixConflict
		if errors.Is(err, domain.ErrAlreadyActive) {
			kind = domain.KindAlreadyActive
		}
		return domain.ActiveMount{}, domain.NewMountError(kind, req.EntryID, err)
	}
	failed := true
	defer func() {
		if failed {
			o.store.ReleasePrefix(req.EntryID, prefix)
		}
	}()

	spec, env, err := buildLaunchSpec(entry, prefix, req)
	if err != nil {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindLaunchFailed, req.EntryID, err)
	}

	handle, streams, stop, err := o.launcher.Start(ctx, spec)
	if err != nil {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindLaunchFailed, req.EntryID, err)
	}

	sess := session.New(streams, session.Options{
		Logger:   o.logger.With(telemetry.EntryField(req.EntryID)),
		Timeouts: o.timeouts,
	})
	teardown := func() {
		_ = sess.Close()
		stopCtx, cancel := context.WithTimeout(context.Background(), teardownBudget)
		defer cancel()
		if err := stop(stopCtx); err != nil {
			o.logger.Warn("child teardown failed", telemetry.EntryField(req.EntryID), zap.Error(err))
		}
	}

	if err := sess.Initialize(ctx); err != nil {
		teardown()
		return domain.ActiveMount{}, domain.NewMountError(initFailureKind(err), req.EntryID, err)
	}

	tools, err := sess.ListTools(ctx)
	if err != nil {
		teardown()
		kind := domain.KindDiscoveryFailed
		if errors.Is(err, context.DeadlineExceeded) {
			kind = domain.KindTimeout
		}
		return domain.ActiveMount{}, domain.NewMountError(kind, req.EntryID, err)
	}

	// Resource and prompt listings are display bookkeeping; failures degrade
	// to empty.
	resources, err := sess.ListResources(ctx)
	if err != nil {
		o.logger.Warn("resources/list failed", telemetry.EntryField(req.EntryID), zap.Error(err))
		resources = nil
	}
	prompts, err := sess.ListPrompts(ctx)
	if err != nil {
		o.logger.Warn("prompts/list failed", telemetry.EntryField(req.EntryID), zap.Error(err))
		prompts = nil
	}

	var toolNames []string
	for _, def := range tools {
		inv, err := toolschema.Translate(def, prefix, o.logger)
		if err != nil {
			o.logger.Warn("skipping tool with invalid schema",
				telemetry.EntryField(req.EntryID),
				telemetry.ToolField(def.Name),
				zap.Error(err),
			)
			continue
		}
		if err := o.registry.Register(handle, inv, o.executor(handle, prefix, inv)); err != nil {
			o.registry.UnregisterMount(handle)
			teardown()
			return domain.ActiveMount{}, domain.NewMountError(domain.KindRegistrationFailed, req.EntryID, err)
		}
		toolNames = append(toolNames, def.Name)
	}

	mount := domain.ActiveMount{
		EntryID:     req.EntryID,
		Name:        entry.Name,
		Prefix:      prefix,
		Handle:      handle,
		Environment: env,
		Tools:       toolNames,
		Resources:   resources,
		Prompts:     prompts,
		MountedAt:   time.Now().UTC(),
	}
	if err := o.store.Add(mount); err != nil {
		o.registry.UnregisterMount(handle)
		teardown()
		return domain.ActiveMount{}, domain.NewMountError(domain.KindRegistrationFailed, req.EntryID, err)
	}
	failed = false

	o.clients.Register(handle, sess, stop)
	o.registry.NotifyToolListChanged(ctx)

	o.logger.Info("mount activated",
		telemetry.EntryField(req.EntryID),
		telemetry.PrefixField(prefix),
		telemetry.HandleField(string(handle)),
		zap.Int("tools", len(toolNames)),
	)
	return mount, nil
}

func initFailureKind(err error) domain.MountKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	return domain.KindInitFailed
}

// executor builds the invocation closure registered for one tool: assemble
// arguments, resolve the session by handle, route tools/call, and return the
// textual result.
func (o *Orchestrator) executor(handle domain.Handle, prefix string, inv toolschema.Invocable) toolreg.Executor {
	return func(ctx context.Context, kwargs map[string]any) (string, error) {
		sess, ok := o.clients.Get(handle)
		if !ok {
			return "", fmt.Errorf("%w: no session for %s", domain.ErrTransportClosed, handle)
		}
		args, err := toolschema.BuildArguments(inv.Params, kwargs)
		if err != nil {
			return "", err
		}

		started := time.Now()
		result, err := sess.CallTool(ctx, inv.ToolName, args)
		o.metrics.ToolCallTime.WithLabelValues(prefix).Observe(time.Since(started).Seconds())
		if err != nil {
			o.metrics.ToolCalls.WithLabelValues(prefix, "error").Inc()
			return "", err
		}
		o.metrics.ToolCalls.WithLabelValues(prefix, "ok").Inc()
		return session.TextResult(result), nil
	}
}

func buildLaunchSpec(entry domain.RegistryEntry, prefix string, req ActivateRequest) (launcher.Spec, map[string]string, error) {
	method := entry.LaunchMethod
	if req.MethodOverride != "" {
		method = req.MethodOverride
	}

	env := make(map[string]string)
	if entry.ServerCommand != nil {
		for key, val := range entry.ServerCommand.Env {
			env[key] = val
		}
	}
	for key, val := range req.Environment {
		env[key] = val
	}

	spec := launcher.Spec{
		Method: method,
		Name:   entry.Name,
		Prefix: prefix,
		Env:    env,
	}
	switch method {
	case domain.LaunchPodman:
		if entry.ContainerImage == "" {
			return launcher.Spec{}, nil, fmt.Errorf("entry has no container image")
		}
		spec.Image = entry.ContainerImage
	case domain.LaunchStdioProxy:
		if entry.ServerCommand == nil {
			return launcher.Spec{}, nil, fmt.Errorf("entry has no server command")
		}
		spec.Command = entry.ServerCommand.Command
		spec.Args = entry.ServerCommand.Args
	case domain.LaunchRemoteHTTP, domain.LaunchUnknown:
		// Fail in the launcher's fan-out so the error shape is uniform.
	}
	return spec, env, nil
}

// Deactivate runs the unmount flow: unregister the mount's tools, close its
// session, reap the child, drop the record, notify.
func (o *Orchestrator) Deactivate(ctx context.Context, entryID string) error {
	if err := o.deactivate(ctx, entryID); err != nil {
		o.metrics.Deactivations.WithLabelValues("error").Inc()
		return err
	}
	o.metrics.Deactivations.WithLabelValues("ok").Inc()
	o.metrics.ActiveMounts.Set(float64(len(o.store.List())))
	return nil
}

func (o *Orchestrator) deactivate(ctx context.Context, entryID string) error {
	release, err := o.store.LockEntry(ctx, entryID)
	if err != nil {
		return domain.NewMountError(domain.KindTimeout, entryID, err)
	}
	defer release()

	mount, ok := o.store.Get(entryID)
	if !ok {
		return domain.NewMountError(domain.KindEntryNotFound, entryID, nil)
	}

	o.registry.UnregisterMount(mount.Handle)

	removeCtx, cancel := context.WithTimeout(ctx, teardownBudget)
	defer cancel()
	o.clients.Remove(removeCtx, mount.Handle)

	if _, err := o.store.Remove(entryID); err != nil {
		return domain.NewMountError(domain.KindEntryNotFound, entryID, err)
	}
	o.registry.NotifyToolListChanged(ctx)

	o.logger.Info("mount deactivated",
		telemetry.EntryField(entryID),
		telemetry.PrefixField(mount.Prefix),
	)
	return nil
}

// Replay re-activates the persisted mount set on startup. Each replayed
// mount re-spawns its child and re-runs discovery; persisted tool lists are
// not trusted. Mounts that fail replay are dropped from the persisted set.
func (o *Orchestrator) Replay(ctx context.Context) error {
	persisted, err := o.store.Load()
	if err != nil {
		return err
	}
	for _, mount := range persisted {
		_, err := o.Activate(ctx, ActivateRequest{
			EntryID:     mount.EntryID,
			Prefix:      mount.Prefix,
			Environment: mount.Environment,
		})
		if err != nil {
			o.logger.Warn("dropping mount that failed replay",
				telemetry.EntryField(mount.EntryID),
				zap.Error(err),
			)
		}
	}
	// Rewrite the file so dropped mounts disappear even when nothing was
	// re-activated.
	return o.store.Persist()
}

// SetEnvironment updates an active mount's stored environment. The change
// reaches the child only after deactivate + activate.
func (o *Orchestrator) SetEnvironment(entryID string, env map[string]string) (domain.ActiveMount, error) {
	if err := validateEnvironment(env); err != nil {
		return domain.ActiveMount{}, err
	}
	mount, err := o.store.UpdateEnvironment(entryID, env)
	if err != nil {
		return domain.ActiveMount{}, domain.NewMountError(domain.KindEntryNotFound, entryID, err)
	}
	return mount, nil
}

// ActiveMounts lists the current mounts.
func (o *Orchestrator) ActiveMounts() []domain.ActiveMount {
	return o.store.List()
}

// ExecTool routes one invocation by fully-qualified name
// (mcp_<prefix>_<tool>) with arguments in the child's original spelling.
func (o *Orchestrator) ExecTool(ctx context.Context, fullName string, args map[string]any) (string, error) {
	for _, mount := range o.store.List() {
		marker := "mcp_" + mount.Prefix + "_"
		if !strings.HasPrefix(fullName, marker) {
			continue
		}
		toolName := strings.TrimPrefix(fullName, marker)
		sess, ok := o.clients.Get(mount.Handle)
		if !ok {
			return "", fmt.Errorf("%w: no session for %s", domain.ErrTransportClosed, mount.EntryID)
		}
		result, err := sess.CallTool(ctx, toolName, args)
		if err != nil {
			o.metrics.ToolCalls.WithLabelValues(mount.Prefix, "error").Inc()
			return "", err
		}
		o.metrics.ToolCalls.WithLabelValues(mount.Prefix, "ok").Inc()
		return session.TextResult(result), nil
	}
	return "", fmt.Errorf("no active mount serves tool %q", fullName)
}
