package session

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// fakeChild scripts the far side of a session over in-memory pipes. The
// handler returns raw reply lines for each request; nil means no reply.
type fakeChild struct {
	handler func(req *jsonrpc.Request) []byte

	mu            sync.Mutex
	notifications []string

	in  *io.PipeWriter
	out *io.PipeReader
}

func startFakeChild(t *testing.T, handler func(req *jsonrpc.Request) []byte) (*fakeChild, domain.IOStreams) {
	t.Helper()
	childIn, sessWriter := io.Pipe()
	sessReader, childOut := io.Pipe()

	child := &fakeChild{handler: handler, in: childOut, out: childIn}

	go func() {
		defer func() { _ = childOut.Close() }()
		decoder := json.NewDecoder(childIn)
		for {
			var raw json.RawMessage
			if err := decoder.Decode(&raw); err != nil {
				return
			}
			msg, err := jsonrpc.DecodeMessage(raw)
			if err != nil {
				continue
			}
			req, ok := msg.(*jsonrpc.Request)
			if !ok {
				continue
			}
			if !req.ID.IsValid() {
				child.mu.Lock()
				child.notifications = append(child.notifications, req.Method)
				child.mu.Unlock()
				continue
			}
			if reply := handler(req); reply != nil {
				if _, err := childOut.Write(append(reply, '\n')); err != nil {
					return
				}
			}
		}
	}()

	t.Cleanup(func() {
		_ = sessWriter.Close()
		_ = childIn.Close()
	})
	return child, domain.IOStreams{Reader: sessReader, Writer: sessWriter}
}

func (c *fakeChild) notificationMethods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.notifications))
	copy(out, c.notifications)
	return out
}

func (c *fakeChild) closeStdout() {
	_ = c.in.Close()
}

func encodeResponse(t *testing.T, id jsonrpc.ID, result any) []byte {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	wire, err := jsonrpc.EncodeMessage(&jsonrpc.Response{ID: id, Result: raw})
	require.NoError(t, err)
	return wire
}

func encodeError(t *testing.T, id jsonrpc.ID, code int64, message string) []byte {
	t.Helper()
	wire, err := jsonrpc.EncodeMessage(&jsonrpc.Response{
		ID:    id,
		Error: &jsonrpc.Error{Code: code, Message: message},
	})
	require.NoError(t, err)
	return wire
}

func initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": domain.ProtocolVersion,
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "fake", "version": "0.0.1"},
	}
}

func shortTimeouts() Timeouts {
	return Timeouts{
		Init: 2 * time.Second,
		List: 2 * time.Second,
		Call: 2 * time.Second,
	}
}

func TestSession_InitializeHandshake(t *testing.T) {
	var initParams json.RawMessage
	child, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		if req.Method == "initialize" {
			initParams = req.Params
			return encodeResponse(t, req.ID, initializeResult())
		}
		return nil
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	require.NoError(t, sess.Initialize(context.Background()))

	var params struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ClientInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"clientInfo"`
	}
	require.NoError(t, json.Unmarshal(initParams, &params))
	require.Equal(t, domain.ProtocolVersion, params.ProtocolVersion)
	require.Contains(t, params.Capabilities, "tools")
	require.Equal(t, domain.ClientName, params.ClientInfo.Name)

	require.Eventually(t, func() bool {
		for _, method := range child.notificationMethods() {
			if method == "notifications/initialized" {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	info := sess.ServerInfo()
	require.NotNil(t, info)
	require.Equal(t, domain.ProtocolVersion, info.ProtocolVersion)
}

func TestSession_CallToolRoundTrip(t *testing.T) {
	var callParams json.RawMessage
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		if req.Method != "tools/call" {
			return nil
		}
		callParams = req.Params
		return encodeResponse(t, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": `[{"1":1}]`}},
		})
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	result, err := sess.CallTool(context.Background(), "read_query", map[string]any{"query": "SELECT 1"})
	require.NoError(t, err)
	require.Equal(t, `[{"1":1}]`, TextResult(result))

	var params struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	require.NoError(t, json.Unmarshal(callParams, &params))
	require.Equal(t, "read_query", params.Name)
	require.Equal(t, map[string]any{"query": "SELECT 1"}, params.Arguments)
}

func TestSession_ConcurrentCallsCorrelateByID(t *testing.T) {
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		if req.Method != "tools/call" {
			return nil
		}
		var params mcp.CallToolParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil
		}
		return encodeResponse(t, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": "result:" + params.Name}},
		})
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	const calls = 8
	results := make([]string, calls)
	var wg sync.WaitGroup
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := "tool_" + string(rune('a'+i))
			result, err := sess.CallTool(context.Background(), name, nil)
			if err == nil {
				results[i] = TextResult(result)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < calls; i++ {
		require.Equal(t, "result:tool_"+string(rune('a'+i)), results[i])
	}
}

func TestSession_TimeoutLeavesSessionUsable(t *testing.T) {
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		if req.Method == "tools/list" {
			return encodeResponse(t, req.ID, map[string]any{"tools": []any{}})
		}
		// tools/call never answered
		return nil
	})

	sess := New(streams, Options{Timeouts: Timeouts{
		Init: time.Second,
		List: time.Second,
		Call: 50 * time.Millisecond,
	}})
	defer func() { _ = sess.Close() }()

	_, err := sess.CallTool(context.Background(), "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	require.Empty(t, tools)
}

func TestSession_RemoteErrorSurfaced(t *testing.T) {
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		return encodeError(t, req.ID, -32000, "table missing")
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	_, err := sess.CallTool(context.Background(), "read_query", nil)
	var remote *domain.RemoteError
	require.ErrorAs(t, err, &remote)
	require.Equal(t, int64(-32000), remote.Code)
	require.Equal(t, "table missing", remote.Message)
}

func TestSession_EOFFailsPendingCalls(t *testing.T) {
	child, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		return nil
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	done := make(chan error, 1)
	go func() {
		_, err := sess.CallTool(context.Background(), "never", nil)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	child.closeStdout()

	select {
	case err := <-done:
		require.ErrorIs(t, err, domain.ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("pending call was not failed on EOF")
	}
}

func TestSession_GarbageLinesDoNotPoisonCalls(t *testing.T) {
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		reply := encodeResponse(t, req.ID, map[string]any{"tools": []any{}})
		return append([]byte("log line that is not json\n"), reply...)
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	require.Empty(t, tools)
}

func TestSession_UnknownResponseIDDropped(t *testing.T) {
	_, streams := startFakeChild(t, func(req *jsonrpc.Request) []byte {
		stale, err := jsonrpc.MakeID(float64(999))
		require.NoError(t, err)
		reply := encodeResponse(t, req.ID, map[string]any{"tools": []any{}})
		staleReply := encodeResponse(t, stale, map[string]any{"tools": []any{}})
		return append(append(staleReply, '\n'), reply...)
	})

	sess := New(streams, Options{Timeouts: shortTimeouts()})
	defer func() { _ = sess.Close() }()

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	require.Empty(t, tools)
}
