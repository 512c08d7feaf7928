// Package framing implements line-delimited JSON-RPC 2.0 framing over a
// child's piped stdio. One UTF-8 JSON object per line; outbound requests and
// notifications, inbound responses and notifications. Correlation is the
// session's job.
package framing

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"go.uber.org/zap"

	"github.com/tsoernes/mcp-registry/internal/domain"
)

// Codec frames JSON-RPC messages over one child's pipes. Writes are
// serialized by an internal lock; reads are expected from a single reader.
type Codec struct {
	reader *bufio.Reader
	writer io.Writer
	logger *zap.Logger

	writeMu sync.Mutex
	seq     atomic.Int64
}

// NewCodec wraps a child's stdio streams.
func NewCodec(streams domain.IOStreams, logger *zap.Logger) *Codec {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Codec{
		reader: bufio.NewReader(streams.Reader),
		writer: streams.Writer,
		logger: logger.Named("framing"),
	}
}

// NextID allocates the next request id for this codec. Ids are monotone per
// session, starting at 1, and marshal as JSON numbers.
func (c *Codec) NextID() (jsonrpc.ID, error) {
	seq := c.seq.Add(1)
	id, err := jsonrpc.MakeID(float64(seq))
	if err != nil {
		return jsonrpc.ID{}, fmt.Errorf("build request id: %w", err)
	}
	return id, nil
}

// WriteRequest emits a request line. A write failure is session-terminating
// for the caller.
func (c *Codec) WriteRequest(id jsonrpc.ID, method string, params any) error {
	rawParams, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	req := &jsonrpc.Request{ID: id, Method: method, Params: rawParams}
	return c.writeMessage(req)
}

// WriteNotification emits a notification line (no id).
func (c *Codec) WriteNotification(method string, params any) error {
	rawParams, err := marshalParams(params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	req := &jsonrpc.Request{Method: method, Params: rawParams}
	return c.writeMessage(req)
}

func (c *Codec) writeMessage(msg jsonrpc.Message) error {
	wire, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.writer.Write(append(wire, '\n')); err != nil {
		return fmt.Errorf("%w: write: %s", domain.ErrTransportClosed, err.Error())
	}
	return nil
}

// Read returns the next well-formed inbound message. Unparseable lines are
// logged and discarded; they do not terminate the session. EOF and read
// failures surface as ErrTransportClosed.
func (c *Codec) Read() (jsonrpc.Message, error) {
	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if strings.TrimSpace(line) != "" {
				if msg, perr := decodeLine(line); perr == nil {
					return msg, nil
				}
			}
			return nil, fmt.Errorf("%w: read: %s", domain.ErrTransportClosed, err.Error())
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		msg, err := decodeLine(trimmed)
		if err != nil {
			c.logger.Warn("discarding unparseable line", zap.Error(err))
			continue
		}
		return msg, nil
	}
}

func decodeLine(line string) (jsonrpc.Message, error) {
	msg, err := jsonrpc.DecodeMessage([]byte(line))
	if err != nil {
		return nil, fmt.Errorf("decode line: %w", err)
	}
	return msg, nil
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// IDKey normalizes a request id for pending-map correlation.
func IDKey(id jsonrpc.ID) (string, error) {
	if !id.IsValid() {
		return "", errors.New("missing request id")
	}
	raw := id.Raw()
	switch typed := raw.(type) {
	case string:
		return "s:" + typed, nil
	case float64:
		return fmt.Sprintf("n:%v", typed), nil
	case int64:
		return fmt.Sprintf("n:%v", typed), nil
	case json.Number:
		return "n:" + typed.String(), nil
	default:
		return "", fmt.Errorf("unsupported id type %T", raw)
	}
}
