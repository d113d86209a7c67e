package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/pullpipe/internal/protocol"
)

const closeGracePeriod = time.Second

// WSConn runs the packet protocol over binary WebSocket messages.
type WSConn struct {
	ws *websocket.Conn

	wmu sync.Mutex // gorilla allows one concurrent writer
	rmu sync.Mutex // and one concurrent reader

	closeOnce sync.Once
	closeErr  error
}

var _ Conn = (*WSConn)(nil)

// NewWSConn takes ownership of ws.
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Send writes pkt as one binary message.
func (c *WSConn) Send(ctx context.Context, pkt *protocol.Packet) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	stop := context.AfterFunc(ctx, c.abort)
	defer stop()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, protocol.Encode(pkt)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ws write %s: %w", protocol.TypeName(pkt.Type), err)
	}
	return nil
}

// Recv reads the next binary message. Text messages are a protocol error.
func (c *WSConn) Recv(ctx context.Context) (*protocol.Packet, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	stop := context.AfterFunc(ctx, c.abort)
	defer stop()

	mt, data, err := c.ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, ErrClosed
		}
		return nil, fmt.Errorf("ws read: %w", err)
	}
	if mt != websocket.BinaryMessage {
		return nil, fmt.Errorf("unexpected ws message type %d", mt)
	}
	return protocol.Decode(data)
}

func (c *WSConn) RemoteAddr() string {
	return c.ws.RemoteAddr().String()
}

// Close sends a close frame and tears the connection down.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl may run concurrently with other methods.
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGracePeriod))
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// abort unblocks a pending read or write when its context is cancelled.
func (c *WSConn) abort() {
	_ = c.ws.Close()
}
