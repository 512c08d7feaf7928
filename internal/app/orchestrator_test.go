package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/stretchr/testify/require"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/catalog"
	"github.com/tsoernes/mcp-registry/internal/infra/clients"
	"github.com/tsoernes/mcp-registry/internal/infra/launcher"
	"github.com/tsoernes/mcp-registry/internal/infra/mounts"
	"github.com/tsoernes/mcp-registry/internal/infra/session"
	"github.com/tsoernes/mcp-registry/internal/infra/toolreg"
	"github.com/tsoernes/mcp-registry/internal/infra/toolschema"
)

// childScript configures the scripted MCP child a fake launcher spawns.
type childScript struct {
	tools    []map[string]any
	silent   bool
	callText string

	mu        sync.Mutex
	lastCall  string
	lastArgs  map[string]any
	callCount int
}

func (s *childScript) recordCall(name string, args map[string]any) {
	s.mu.Lock()
	s.lastCall = name
	s.lastArgs = args
	s.callCount++
	s.mu.Unlock()
}

func (s *childScript) call() (string, map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCall, s.lastArgs
}

// serveChild runs a line-delimited MCP server over in-memory pipes.
func serveChild(script *childScript) (domain.IOStreams, func()) {
	childIn, sessWriter := io.Pipe()
	sessReader, childOut := io.Pipe()

	go func() {
		defer func() { _ = childOut.Close() }()
		decoder := json.NewDecoder(childIn)
		for {
			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				return
			}
			if script.silent {
				continue
			}
			msg, err := jsonrpc.DecodeMessage(raw)
			if err != nil {
				continue
			}
			req, ok := msg.(*jsonrpc.Request)
			if !ok || !req.ID.IsValid() {
				continue
			}
			result := script.respond(req)
			if result == nil {
				continue
			}
			rawResult, err := json.Marshal(result)
			if err != nil {
				continue
			}
			wire, err := jsonrpc.EncodeMessage(&jsonrpc.Response{ID: req.ID, Result: rawResult})
			if err != nil {
				continue
			}
			if _, err := childOut.Write(append(wire, '\n')); err != nil {
				return
			}
		}
	}()

	closeAll := func() {
		_ = sessWriter.Close()
		_ = childIn.Close()
		_ = childOut.Close()
		_ = sessReader.Close()
	}
	return domain.IOStreams{Reader: sessReader, Writer: sessWriter}, closeAll
}

func (s *childScript) respond(req *jsonrpc.Request) any {
	switch req.Method {
	case "initialize":
		return map[string]any{
			"protocolVersion": domain.ProtocolVersion,
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
		}
	case "tools/list":
		tools := s.tools
		if tools == nil {
			tools = []map[string]any{}
		}
		return map[string]any{"tools": tools}
	case "resources/list":
		return map[string]any{"resources": []any{}}
	case "prompts/list":
		return map[string]any{"prompts": []any{}}
	case "tools/call":
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &params)
		s.recordCall(params.Name, params.Arguments)
		text := s.callText
		if text == "" {
			text = "ok"
		}
		return map[string]any{
			"content": []map[string]any{{"type": "text", "text": text}},
		}
	default:
		return map[string]any{}
	}
}

// fakeLauncher spawns scripted children keyed by mount prefix.
type fakeLauncher struct {
	scripts map[string]*childScript

	mu       sync.Mutex
	launches []launcher.Spec
	stopped  map[domain.Handle]bool
	closers  map[domain.Handle]func()
}

func newFakeLauncher(scripts map[string]*childScript) *fakeLauncher {
	return &fakeLauncher{
		scripts: scripts,
		stopped: make(map[domain.Handle]bool),
		closers: make(map[domain.Handle]func()),
	}
}

func (f *fakeLauncher) Start(ctx context.Context, spec launcher.Spec) (domain.Handle, domain.IOStreams, domain.StopFn, error) {
	if spec.Method == domain.LaunchRemoteHTTP || spec.Method == domain.LaunchUnknown {
		return "", domain.IOStreams{}, nil, domain.ErrUnsupportedLaunchMethod
	}
	script, ok := f.scripts[spec.Prefix]
	if !ok {
		return "", domain.IOStreams{}, nil, errors.New("no child scripted for prefix " + spec.Prefix)
	}

	streams, closeAll := serveChild(script)

	f.mu.Lock()
	f.launches = append(f.launches, spec)
	handle := domain.Handle("h-" + spec.Prefix)
	f.closers[handle] = closeAll
	f.mu.Unlock()

	stop := func(context.Context) error {
		f.mu.Lock()
		f.stopped[handle] = true
		closer := f.closers[handle]
		f.mu.Unlock()
		if closer != nil {
			closer()
		}
		return nil
	}
	return handle, streams, stop, nil
}

func (f *fakeLauncher) isStopped(handle domain.Handle) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped[handle]
}

func (f *fakeLauncher) launchSpecs() []launcher.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]launcher.Spec, len(f.launches))
	copy(out, f.launches)
	return out
}

// fakeAggregator records the tool surface the registry manipulates.
type fakeAggregator struct {
	mu       sync.Mutex
	tools    map[string]toolreg.Executor
	order    []string
	removed  []string
	notified int
}

func newFakeAggregator() *fakeAggregator {
	return &fakeAggregator{tools: make(map[string]toolreg.Executor)}
}

func (f *fakeAggregator) AddTool(name, description string, inputSchema map[string]any, exec toolreg.Executor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tools[name] = exec
	f.order = append(f.order, name)
	return nil
}

func (f *fakeAggregator) RemoveTool(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tools, name)
	f.removed = append(f.removed, name)
	return nil
}

func (f *fakeAggregator) NotifyToolListChanged(context.Context) {
	f.mu.Lock()
	f.notified++
	f.mu.Unlock()
}

func (f *fakeAggregator) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.tools))
	for name := range f.tools {
		out = append(out, name)
	}
	return out
}

func (f *fakeAggregator) exec(name string) toolreg.Executor {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools[name]
}

func (f *fakeAggregator) notifyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified
}

type testHarness struct {
	orchestrator *Orchestrator
	aggregator   *fakeAggregator
	launcher     *fakeLauncher
	store        *mounts.Store
	clients      *clients.Manager
	registry     *toolreg.Registry
	catalog      *catalog.Catalog
	mountsPath   string
}

func newHarness(t *testing.T, entries []domain.RegistryEntry, scripts map[string]*childScript, timeouts session.Timeouts) *testHarness {
	t.Helper()

	dir := t.TempDir()
	cat := catalog.New(filepath.Join(dir, "registry_entries.json"), nil)
	if len(entries) > 0 {
		_, err := cat.UpsertAll(entries)
		require.NoError(t, err)
	}

	mountsPath := filepath.Join(dir, "active_mounts.json")
	store := mounts.New(mountsPath, nil)
	clientMgr := clients.NewManager(nil)
	agg := newFakeAggregator()
	registry := toolreg.NewRegistry(agg, nil)
	launch := newFakeLauncher(scripts)

	if timeouts == (session.Timeouts{}) {
		timeouts = session.Timeouts{
			Init: 2 * time.Second,
			List: 2 * time.Second,
			Call: 2 * time.Second,
		}
	}

	orchestrator := NewOrchestrator(OrchestratorOptions{
		Catalog:  cat,
		Store:    store,
		Clients:  clientMgr,
		Registry: registry,
		Launcher: launch,
		Timeouts: timeouts,
	})
	return &testHarness{
		orchestrator: orchestrator,
		aggregator:   agg,
		launcher:     launch,
		store:        store,
		clients:      clientMgr,
		registry:     registry,
		catalog:      cat,
		mountsPath:   mountsPath,
	}
}

func sqliteEntry() domain.RegistryEntry {
	return domain.RegistryEntry{
		ID:             "docker/sqlite-test",
		Name:           "SQLite",
		Description:    "SQLite database server",
		Source:         domain.SourceDocker,
		ContainerImage: "example/sqlite:test",
		LaunchMethod:   domain.LaunchPodman,
	}
}

func simpleTool(name string) map[string]any {
	return map[string]any{
		"name":        name,
		"description": "tool " + name,
		"inputSchema": map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
	}
}

func sqliteTools() []map[string]any {
	readQuery := map[string]any{
		"name":        "read_query",
		"description": "Execute a read-only SQL query",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{"type": "string", "description": "SQL to run"},
			},
			"required": []any{"query"},
		},
	}
	tools := []map[string]any{readQuery}
	for _, name := range []string{"write_query", "create_table", "list_tables", "describe_table", "append_insight"} {
		tools = append(tools, simpleTool(name))
	}
	return tools
}

func TestActivate_ColdStartRegistersNamespacedTools(t *testing.T) {
	script := &childScript{tools: sqliteTools()}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	mount, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.NoError(t, err)
	require.Equal(t, "sq", mount.Prefix)
	require.Equal(t, []string{
		"read_query", "write_query", "create_table",
		"list_tables", "describe_table", "append_insight",
	}, mount.Tools)
	require.False(t, mount.MountedAt.IsZero())

	require.ElementsMatch(t, []string{
		"mcp_sq_read_query", "mcp_sq_write_query", "mcp_sq_create_table",
		"mcp_sq_list_tables", "mcp_sq_describe_table", "mcp_sq_append_insight",
	}, h.aggregator.names())
	require.Equal(t, 1, h.aggregator.notifyCount())
	require.Equal(t, 1, h.clients.Len())

	specs := h.launcher.launchSpecs()
	require.Len(t, specs, 1)
	require.Equal(t, domain.LaunchPodman, specs[0].Method)
	require.Equal(t, "example/sqlite:test", specs[0].Image)

	raw, err := os.ReadFile(h.mountsPath)
	require.NoError(t, err)
	var state struct {
		Version int                  `json:"version"`
		Mounts  []domain.ActiveMount `json:"mounts"`
	}
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Len(t, state.Mounts, 1)
	require.Equal(t, "sq", state.Mounts[0].Prefix)
	require.Equal(t, mount.Tools, state.Mounts[0].Tools)
}

func TestActivate_ToolInvocationRoundTrip(t *testing.T) {
	script := &childScript{tools: sqliteTools(), callText: `[{"1":1}]`}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.NoError(t, err)

	exec := h.aggregator.exec("mcp_sq_read_query")
	require.NotNil(t, exec)

	text, err := exec(context.Background(), map[string]any{"query": "SELECT 1"})
	require.NoError(t, err)
	require.Equal(t, `[{"1":1}]`, text)

	name, args := script.call()
	require.Equal(t, "read_query", name)
	require.Equal(t, map[string]any{"query": "SELECT 1"}, args)
}

func TestActivate_UnknownEntry(t *testing.T) {
	h := newHarness(t, nil, nil, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "missing"})
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestActivate_AlreadyActive(t *testing.T) {
	script := &childScript{tools: sqliteTools()}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq"})
	require.NoError(t, err)

	_, err = h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq2"})
	require.ErrorIs(t, err, domain.ErrAlreadyActive)
}

func TestActivate_ConcurrentPrefixConflict(t *testing.T) {
	entryA := sqliteEntry()
	entryA.ID = "a/fs"
	entryB := sqliteEntry()
	entryB.ID = "b/fs"

	scripts := map[string]*childScript{"fs": {tools: []map[string]any{simpleTool("read")}}}
	h := newHarness(t, []domain.RegistryEntry{entryA, entryB}, scripts, session.Timeouts{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{"a/fs", "b/fs"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: id})
		}(i, id)
	}
	wg.Wait()

	var okCount, conflictCount int
	for _, err := range errs {
		switch {
		case err == nil:
			okCount++
		case errors.Is(err, domain.ErrPrefixConflict):
			conflictCount++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, okCount)
	require.Equal(t, 1, conflictCount)
	require.Len(t, h.store.List(), 1)
}

func TestActivate_InitializeTimeoutTearsDownChild(t *testing.T) {
	script := &childScript{silent: true}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{
		Init: 100 * time.Millisecond,
		List: time.Second,
		Call: time.Second,
	})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	var mountErr *domain.MountError
	require.ErrorAs(t, err, &mountErr)
	require.Equal(t, domain.KindTimeout, mountErr.Kind)

	require.Empty(t, h.store.List())
	require.Empty(t, h.aggregator.names())
	require.Equal(t, 0, h.clients.Len())
	require.True(t, h.launcher.isStopped(domain.Handle("h-sq")))
	require.Equal(t, 0, h.aggregator.notifyCount())
}

func TestActivate_LaunchFailure(t *testing.T) {
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.ErrorIs(t, err, domain.ErrLaunchFailed)
	require.Empty(t, h.store.List())

	// The prefix is free for a retry.
	_, ok := h.store.GetByPrefix("sq")
	require.False(t, ok)
}

func TestActivate_RemoteHTTPUnsupported(t *testing.T) {
	entry := sqliteEntry()
	entry.LaunchMethod = domain.LaunchRemoteHTTP
	h := newHarness(t, []domain.RegistryEntry{entry}, map[string]*childScript{"sq": {}}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.ErrorIs(t, err, domain.ErrLaunchFailed)
}

func TestActivate_PartialDiscoverySkipsMalformedTool(t *testing.T) {
	malformed := map[string]any{
		"name":        "broken",
		"description": "no type in schema",
		"inputSchema": map[string]any{"properties": map[string]any{}},
	}
	script := &childScript{tools: []map[string]any{simpleTool("good"), malformed}}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	mount, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"good"}, mount.Tools)
	require.Equal(t, []string{"mcp_sq_good"}, h.aggregator.names())
	require.Equal(t, 1, h.aggregator.notifyCount())
}

func TestActivate_RegistrationConflictRollsBack(t *testing.T) {
	script := &childScript{tools: sqliteTools()}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	// Another mount already owns one of the names this mount will derive.
	squatter := domain.Handle("squatter")
	require.NoError(t, h.registry.Register(squatter, toolschema.Invocable{
		FullName: "mcp_sq_create_table",
		ToolName: "create_table",
	}, func(context.Context, map[string]any) (string, error) {
		return "", nil
	}))

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.ErrorIs(t, err, domain.ErrRegistrationFailed)

	// Everything registered before the collision was rolled back.
	require.Equal(t, []string{"mcp_sq_create_table"}, h.aggregator.names())
	require.Empty(t, h.store.List())
	require.Equal(t, 0, h.clients.Len())
	require.True(t, h.launcher.isStopped(domain.Handle("h-sq")))
}

func TestDeactivate_RemovesToolsSessionAndRecord(t *testing.T) {
	script := &childScript{tools: []map[string]any{
		simpleTool("a"), simpleTool("b"), simpleTool("c"), simpleTool("d"),
	}}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{
		EntryID: "docker/sqlite-test",
		Prefix:  "sq",
	})
	require.NoError(t, err)
	require.Len(t, h.aggregator.names(), 4)

	require.NoError(t, h.orchestrator.Deactivate(context.Background(), "docker/sqlite-test"))

	require.Empty(t, h.aggregator.names())
	require.Empty(t, h.store.List())
	require.Equal(t, 0, h.clients.Len())
	require.True(t, h.launcher.isStopped(domain.Handle("h-sq")))
	require.Equal(t, 2, h.aggregator.notifyCount())

	// Deactivating again reports the entry as unknown and changes nothing.
	err = h.orchestrator.Deactivate(context.Background(), "docker/sqlite-test")
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
	require.Equal(t, 2, h.aggregator.notifyCount())
}

func TestActivateDeactivateActivate_Succeeds(t *testing.T) {
	script := &childScript{tools: []map[string]any{simpleTool("read")}}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq"})
	require.NoError(t, err)
	require.NoError(t, h.orchestrator.Deactivate(context.Background(), "docker/sqlite-test"))

	mount, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq"})
	require.NoError(t, err)
	require.Equal(t, []string{"read"}, mount.Tools)
}

func TestReplay_ReactivatesPersistedAndDropsFailed(t *testing.T) {
	dir := t.TempDir()
	mountsPath := filepath.Join(dir, "active_mounts.json")

	// Seed the persisted set with one replayable mount and one whose entry
	// no longer exists.
	seed := mounts.New(mountsPath, nil)
	require.NoError(t, seed.Add(domain.ActiveMount{
		EntryID:   "docker/sqlite-test",
		Name:      "SQLite",
		Prefix:    "sq",
		Tools:     []string{"stale_tool_list"},
		MountedAt: time.Now().UTC(),
	}))
	require.NoError(t, seed.Add(domain.ActiveMount{
		EntryID:   "docker/gone",
		Name:      "Gone",
		Prefix:    "gone",
		MountedAt: time.Now().UTC(),
	}))

	script := &childScript{tools: []map[string]any{simpleTool("read")}}
	cat := catalog.New(filepath.Join(dir, "registry_entries.json"), nil)
	_, err := cat.UpsertAll([]domain.RegistryEntry{sqliteEntry()})
	require.NoError(t, err)

	store := mounts.New(mountsPath, nil)
	agg := newFakeAggregator()
	orchestrator := NewOrchestrator(OrchestratorOptions{
		Catalog:  cat,
		Store:    store,
		Clients:  clients.NewManager(nil),
		Registry: toolreg.NewRegistry(agg, nil),
		Launcher: newFakeLauncher(map[string]*childScript{"sq": script}),
		Timeouts: session.Timeouts{Init: time.Second, List: time.Second, Call: time.Second},
	})

	require.NoError(t, orchestrator.Replay(context.Background()))

	list := store.List()
	require.Len(t, list, 1)
	require.Equal(t, "docker/sqlite-test", list[0].EntryID)
	// Discovery reran; the persisted tool list was not trusted.
	require.Equal(t, []string{"read"}, list[0].Tools)

	raw, err := os.ReadFile(mountsPath)
	require.NoError(t, err)
	var state struct {
		Mounts []domain.ActiveMount `json:"mounts"`
	}
	require.NoError(t, json.Unmarshal(raw, &state))
	require.Len(t, state.Mounts, 1)
	require.Equal(t, "docker/sqlite-test", state.Mounts[0].EntryID)
}

func TestSetEnvironment_AllowlistAndPersistence(t *testing.T) {
	script := &childScript{tools: []map[string]any{simpleTool("read")}}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq"})
	require.NoError(t, err)

	mount, err := h.orchestrator.SetEnvironment("docker/sqlite-test", map[string]string{"DB_HOST": "localhost"})
	require.NoError(t, err)
	require.Equal(t, "localhost", mount.Environment["DB_HOST"])

	_, err = h.orchestrator.SetEnvironment("docker/sqlite-test", map[string]string{"RANDOM_VAR": "nope"})
	require.Error(t, err)

	_, err = h.orchestrator.SetEnvironment("docker/missing", map[string]string{"DB_HOST": "x"})
	require.ErrorIs(t, err, domain.ErrEntryNotFound)
}

func TestExecTool_RoutesByPrefix(t *testing.T) {
	script := &childScript{tools: []map[string]any{simpleTool("read")}, callText: "routed"}
	h := newHarness(t, []domain.RegistryEntry{sqliteEntry()}, map[string]*childScript{"sq": script}, session.Timeouts{})

	_, err := h.orchestrator.Activate(context.Background(), ActivateRequest{EntryID: "docker/sqlite-test", Prefix: "sq"})
	require.NoError(t, err)

	text, err := h.orchestrator.ExecTool(context.Background(), "mcp_sq_read", map[string]any{"k": "v"})
	require.NoError(t, err)
	require.Equal(t, "routed", text)

	name, args := script.call()
	require.Equal(t, "read", name)
	require.Equal(t, map[string]any{"k": "v"}, args)

	_, err = h.orchestrator.ExecTool(context.Background(), "mcp_none_read", nil)
	require.Error(t, err)
}
