package toolreg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// ServerAggregator adapts a go-sdk mcp.Server to the Aggregator surface.
type ServerAggregator struct {
	server *mcp.Server
	logger *zap.Logger
}

func NewServerAggregator(server *mcp.Server, logger *zap.Logger) *ServerAggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ServerAggregator{
		server: server,
		logger: logger.Named("aggregator"),
	}
}

func (a *ServerAggregator) AddTool(name, description string, inputSchema map[string]any, exec Executor) error {
	tool := &mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: inputSchema,
	}
	a.server.AddTool(tool, a.handler(exec))
	return nil
}

func (a *ServerAggregator) RemoveTool(name string) error {
	a.server.RemoveTools(name)
	return nil
}

// NotifyToolListChanged is a no-op: the SDK server emits
// notifications/tools/list_changed to connected sessions itself when the
// tool set changes, and skips emission when no client is connected.
func (a *ServerAggregator) NotifyToolListChanged(context.Context) {}

func (a *ServerAggregator) handler(exec Executor) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		kwargs := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &kwargs); err != nil {
				return nil, fmt.Errorf("decode arguments: %w", err)
			}
		}
		text, err := exec(ctx, kwargs)
		if err != nil {
			var remote *domain.RemoteError
			if errors.As(err, &remote) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domain.ErrTransportClosed) {
				return errorResult(err), nil
			}
			return nil, err
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: text}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("error: %s", err.Error())},
		},
	}
}
