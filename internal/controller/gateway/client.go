// internal/controller/gateway/client.go
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"makino-adapter/internal/protocol"
	"makino-adapter/pkg/link"
)

// Client exchanges request/reply frames with the vendor library gateway. One request is
// outstanding at a time; a transport failure closes the transport and is reported as
// CodeWinsock so the session layer treats it as a disconnect.
type Client struct {
	transport protocol.Transport
	logger    *zap.Logger
	mu        sync.Mutex
}

// NewClient creates a gateway client over a transport. The transport is opened on first use.
func NewClient(transport protocol.Transport, logger *zap.Logger) *Client {
	return &Client{
		transport: transport,
		logger:    logger.With(zap.String("component", "gateway"), zap.String("transport", string(transport.Type()))),
	}
}

// Close closes the underlying transport
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport.Close()
}

// Stats returns the transport statistics
func (c *Client) Stats() protocol.ProtocolStats {
	return c.transport.Stats()
}

// ProX returns the ProX link of a generation
func (c *Client) ProX(v link.Version) (link.ProXLink, error) {
	switch v {
	case link.Version3:
		return &pro3Link{proxLink{client: c, version: v}}, nil
	case link.Version5, link.Version6:
		return &pro5Link{proxLink{client: c, version: v}}, nil
	default:
		return nil, fmt.Errorf("no gateway link for ProX version %d", int(v))
	}
}

// Cnc returns the Cnc link
func (c *Client) Cnc() link.CncLink {
	return &cncLink{client: c}
}

// call sends one request and returns a decoder over the reply payload
func (c *Client) call(ctx context.Context, op Op, version link.Version, payload []byte) (*decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !c.transport.IsOpen() {
		if err := c.transport.Open(ctx); err != nil {
			return nil, c.transportFailure(ctx, op, err)
		}
	}

	if err := c.transport.Write(ctx, encodeRequest(op, version, payload)); err != nil {
		return nil, c.transportFailure(ctx, op, err)
	}

	header, err := protocol.ReadFull(ctx, c.transport, replyHeaderSize)
	if err != nil {
		return nil, c.transportFailure(ctx, op, err)
	}
	code, size, err := decodeReplyHeader(header)
	if err != nil {
		// The stream is out of sync, so start over on a fresh connection
		return nil, c.transportFailure(ctx, op, err)
	}

	var body []byte
	if size > 0 {
		if body, err = protocol.ReadFull(ctx, c.transport, size); err != nil {
			return nil, c.transportFailure(ctx, op, err)
		}
	}

	if code != link.CodeOK {
		c.logger.Debug("Gateway call failed",
			zap.Stringer("op", op),
			zap.Stringer("version", version),
			zap.Stringer("code", code),
		)
		return nil, link.NewError(op.String(), code)
	}
	return &decoder{buf: body}, nil
}

// transportFailure closes the transport and maps the failure onto a disconnect-class code.
// Context errors are returned unchanged.
func (c *Client) transportFailure(ctx context.Context, op Op, cause error) error {
	if err := c.transport.Close(); err != nil {
		c.logger.Warn("Failed to close gateway transport", zap.Error(err))
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	c.logger.Error("Gateway transport failure", zap.Stringer("op", op), zap.Error(cause))
	return fmt.Errorf("%w: %w", link.NewError(op.String(), link.CodeWinsock), cause)
}

// decode finishes a reply, mapping a malformed payload to CodeInternal
func decode(op Op, d *decoder) error {
	if d.err != nil {
		return fmt.Errorf("%w: %w", link.NewError(op.String(), link.CodeInternal), d.err)
	}
	return nil
}
