// Package ws provides a WebSocket implementation of the transport
// consumed by the room engine. Each binary message carries a leading
// channel byte followed by the packet payload.
package ws

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	sendQueueDepth = 256
	maxMessageSize = 1 << 20
)

// peer is one WebSocket link.
type peer struct {
	id   string
	addr string
	conn *websocket.Conn

	sendCh chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newPeer(conn *websocket.Conn) *peer {
	ctx, cancel := context.WithCancel(context.Background())

	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	conn.SetReadLimit(maxMessageSize)

	return &peer{
		id:     uuid.NewString(),
		addr:   addr,
		conn:   conn,
		sendCh: make(chan []byte, sendQueueDepth),
		ctx:    ctx,
		cancel: cancel,
	}
}

// ID returns the link's unique identifier.
func (p *peer) ID() string { return p.id }

// Addr returns the remote IP without port.
func (p *peer) Addr() string { return p.addr }

// Context is cancelled once the link closes.
func (p *peer) Context() context.Context { return p.ctx }

// Send queues a message for delivery: channel byte plus payload. It
// never blocks; a full queue drops the message.
func (p *peer) Send(channel byte, data []byte) error {
	if p.ctx.Err() != nil {
		return fmt.Errorf("send to %s: connection closed", p.id)
	}
	msg := make([]byte, 0, len(data)+1)
	msg = append(msg, channel)
	msg = append(msg, data...)
	select {
	case p.sendCh <- msg:
		return nil
	default:
		return fmt.Errorf("send to %s: queue full, message dropped", p.id)
	}
}

// Disconnect sends the reason as a single-byte packet on channel 0, then
// closes the link.
func (p *peer) Disconnect(reason byte) {
	_ = p.Send(0, []byte{reason})
	time.AfterFunc(100*time.Millisecond, p.close)
}

func (p *peer) close() {
	p.once.Do(func() {
		p.cancel()
		p.conn.Close()
	})
}

// writePump drains the send queue onto the socket and keeps the
// connection alive with periodic pings.
func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case msg := <-p.sendCh:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				p.close()
				return
			}
		case <-ticker.C:
			_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				p.close()
				return
			}
		}
	}
}
