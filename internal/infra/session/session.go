// Package session implements the MCP client session spoken to one child:
// handshake, surface discovery, tool invocation, and response correlation
// over line-delimited JSON-RPC framing.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
	"github.com/tsoernes/mcp-registry/internal/infra/framing"
)

// Timeouts bounds the session's operations. Zero values fall back to the
// domain defaults.
type Timeouts struct {
	Init time.Duration
	List time.Duration
	Call time.Duration
}

func (t Timeouts) withDefaults() Timeouts {
	if t.Init <= 0 {
		t.Init = domain.DefaultInitTimeout
	}
	if t.List <= 0 {
		t.List = domain.DefaultListTimeout
	}
	if t.Call <= 0 {
		t.Call = domain.DefaultCallTimeout
	}
	return t
}

type callResult struct {
	resp *jsonrpc.Response
	err  error
}

// Session is the single-owner JSON-RPC client wrapped around one child's
// pipes. One background reader drains stdout; concurrent calls share the
// codec's write lock and await independent waiters.
type Session struct {
	codec    *framing.Codec
	streams  domain.IOStreams
	timeouts Timeouts
	logger   *zap.Logger

	mu          sync.Mutex
	pending     map[string]chan callResult
	initialized bool

	closeOnce sync.Once
	closed    chan struct{}

	serverInfo *mcp.InitializeResult
}

// Options configures a session.
type Options struct {
	Logger   *zap.Logger
	Timeouts Timeouts
}

// New wraps a child's stdio in a session and starts the reader task.
func New(streams domain.IOStreams, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Session{
		codec:    framing.NewCodec(streams, logger),
		streams:  streams,
		timeouts: opts.Timeouts.withDefaults(),
		logger:   logger.Named("session"),
		pending:  make(map[string]chan callResult),
		closed:   make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Session) readLoop() {
	for {
		msg, err := s.codec.Read()
		if err != nil {
			s.failPending(err)
			return
		}
		switch typed := msg.(type) {
		case *jsonrpc.Response:
			s.dispatchResponse(typed)
		case *jsonrpc.Request:
			// Server-initiated calls and notifications are not routed in
			// this release.
			s.logger.Debug("ignoring inbound message", zap.String("method", typed.Method))
		}
	}
}

func (s *Session) dispatchResponse(resp *jsonrpc.Response) {
	key, err := framing.IDKey(resp.ID)
	if err != nil {
		s.logger.Warn("drop response with invalid id", zap.Error(err))
		return
	}
	s.mu.Lock()
	ch := s.pending[key]
	delete(s.pending, key)
	s.mu.Unlock()
	if ch == nil {
		s.logger.Warn("drop response with no pending call", zap.String("id", key))
		return
	}
	ch <- callResult{resp: resp}
}

func (s *Session) failPending(err error) {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: err}
	}
}

func (s *Session) removePending(key string) {
	s.mu.Lock()
	if s.pending != nil {
		delete(s.pending, key)
	}
	s.mu.Unlock()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// call issues one request and awaits its correlated response within the
// given timeout.
func (s *Session) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	if s.isClosed() {
		return nil, domain.ErrTransportClosed
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	id, err := s.codec.NextID()
	if err != nil {
		return nil, err
	}
	key, err := framing.IDKey(id)
	if err != nil {
		return nil, err
	}

	resultCh := make(chan callResult, 1)
	s.mu.Lock()
	if s.pending == nil {
		s.mu.Unlock()
		return nil, domain.ErrTransportClosed
	}
	s.pending[key] = resultCh
	s.mu.Unlock()

	if err := s.codec.WriteRequest(id, method, params); err != nil {
		s.removePending(key)
		_ = s.Close()
		return nil, err
	}

	select {
	case result := <-resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return decodeResult(result.resp)
	case <-callCtx.Done():
		s.removePending(key)
		return nil, fmt.Errorf("%s: %w", method, callCtx.Err())
	}
}

func decodeResult(resp *jsonrpc.Response) (json.RawMessage, error) {
	if resp.Error != nil {
		var wire *jsonrpc.Error
		if errors.As(resp.Error, &wire) {
			return nil, &domain.RemoteError{
				Code:    wire.Code,
				Message: wire.Message,
				Data:    wire.Data,
			}
		}
		return nil, &domain.RemoteError{Message: resp.Error.Error()}
	}
	return resp.Result, nil
}

type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Initialize performs the MCP handshake: an initialize request followed by a
// fire-and-forget notifications/initialized. Server capabilities are retained
// but not interpreted in this release.
func (s *Session) Initialize(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: domain.ProtocolVersion,
		Capabilities:    map[string]any{"tools": map[string]any{}},
		ClientInfo: clientInfo{
			Name:    domain.ClientName,
			Version: domain.ClientVersion,
		},
	}
	raw, err := s.call(ctx, "initialize", params, s.timeouts.Init)
	if err != nil {
		return err
	}

	var result mcp.InitializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("decode initialize result: %w", err)
	}

	s.mu.Lock()
	s.serverInfo = &result
	s.initialized = true
	s.mu.Unlock()

	if err := s.codec.WriteNotification("notifications/initialized", nil); err != nil {
		s.logger.Warn("send initialized notification failed", zap.Error(err))
	}
	return nil
}

// ServerInfo returns the retained initialize result, or nil before the
// handshake completes.
func (s *Session) ServerInfo() *mcp.InitializeResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverInfo
}

// ListTools fetches the child's tool definitions in discovery order.
func (s *Session) ListTools(ctx context.Context) ([]domain.ToolDefinition, error) {
	raw, err := s.call(ctx, "tools/list", nil, s.timeouts.List)
	if err != nil {
		return nil, err
	}
	var result mcp.ListToolsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/list result: %w", err)
	}
	defs := make([]domain.ToolDefinition, 0, len(result.Tools))
	for _, tool := range result.Tools {
		if tool == nil {
			continue
		}
		defs = append(defs, domain.ToolDefinition{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaMap(tool.InputSchema),
		})
	}
	return defs, nil
}

func schemaMap(schema any) map[string]any {
	switch typed := schema.(type) {
	case nil:
		return nil
	case map[string]any:
		return typed
	default:
		raw, err := json.Marshal(schema)
		if err != nil {
			return nil
		}
		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil
		}
		return out
	}
}

// ListResources fetches resource identifiers for display bookkeeping.
func (s *Session) ListResources(ctx context.Context) ([]string, error) {
	raw, err := s.call(ctx, "resources/list", nil, s.timeouts.List)
	if err != nil {
		return nil, err
	}
	var result mcp.ListResourcesResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode resources/list result: %w", err)
	}
	names := make([]string, 0, len(result.Resources))
	for _, res := range result.Resources {
		if res == nil {
			continue
		}
		name := res.Name
		if name == "" {
			name = res.URI
		}
		names = append(names, name)
	}
	return names, nil
}

// ListPrompts fetches prompt identifiers for display bookkeeping.
func (s *Session) ListPrompts(ctx context.Context) ([]string, error) {
	raw, err := s.call(ctx, "prompts/list", nil, s.timeouts.List)
	if err != nil {
		return nil, err
	}
	var result mcp.ListPromptsResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode prompts/list result: %w", err)
	}
	names := make([]string, 0, len(result.Prompts))
	for _, prompt := range result.Prompts {
		if prompt == nil {
			continue
		}
		names = append(names, prompt.Name)
	}
	return names, nil
}

// CallTool routes one invocation to the child and returns its result.
func (s *Session) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	params := &mcp.CallToolParams{Name: name, Arguments: args}
	raw, err := s.call(ctx, "tools/call", params, s.timeouts.Call)
	if err != nil {
		return nil, err
	}
	var result mcp.CallToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode tools/call result: %w", err)
	}
	return &result, nil
}

// TextResult extracts the text of the first text entry of the result, falling
// back to the JSON form of the whole result when it has none.
func TextResult(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			return text.Text
		}
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Close closes the child's stdin and fails all pending waiters. It is safe
// to call more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		if s.streams.Writer != nil {
			err = s.streams.Writer.Close()
		}
		s.failPending(domain.ErrTransportClosed)
	})
	return err
}
