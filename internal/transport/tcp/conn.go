// Package tcp provides a length-framed TCP implementation of the
// transport consumed by the room engine. Each frame carries a channel
// byte and a 4-byte big-endian payload length; TCP's ordered delivery
// gives per-channel ordering for free.
package tcp

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// maxFrameSize bounds a single frame payload. Anything larger indicates
// a broken or hostile client and closes the connection.
const maxFrameSize = 1 << 20

// sendQueueDepth is the outbound frame buffer per peer. A full queue
// drops frames rather than blocking the broadcast path.
const sendQueueDepth = 256

const frameHeaderSize = 5 // channel byte + u32 payload length

type frame struct {
	channel byte
	data    []byte
}

// peer is one framed TCP link.
type peer struct {
	id   string
	addr string
	conn net.Conn

	writeTimeout time.Duration
	sendCh       chan frame

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

func newPeer(conn net.Conn, writeTimeout time.Duration) *peer {
	ctx, cancel := context.WithCancel(context.Background())

	addr := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	return &peer{
		id:           uuid.NewString(),
		addr:         addr,
		conn:         conn,
		writeTimeout: writeTimeout,
		sendCh:       make(chan frame, sendQueueDepth),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// ID returns the link's unique identifier.
func (p *peer) ID() string { return p.id }

// Addr returns the remote IP without port.
func (p *peer) Addr() string { return p.addr }

// Context is cancelled once the link closes.
func (p *peer) Context() context.Context { return p.ctx }

// Send queues a frame for delivery. It never blocks; a full queue drops
// the frame.
func (p *peer) Send(channel byte, data []byte) error {
	if p.ctx.Err() != nil {
		return fmt.Errorf("send to %s: connection closed", p.id)
	}
	select {
	case p.sendCh <- frame{channel: channel, data: data}:
		return nil
	default:
		return fmt.Errorf("send to %s: queue full, frame dropped", p.id)
	}
}

// Disconnect sends the reason as a single-byte packet on channel 0, then
// closes the link.
func (p *peer) Disconnect(reason byte) {
	_ = p.Send(0, []byte{reason})
	// Give the write pump a moment to drain before tearing down.
	time.AfterFunc(100*time.Millisecond, p.close)
}

// close shuts the link down exactly once.
func (p *peer) close() {
	p.once.Do(func() {
		p.cancel()
		p.conn.Close()
	})
}

// writePump serializes queued frames onto the socket until the link
// closes.
func (p *peer) writePump() {
	for {
		select {
		case <-p.ctx.Done():
			return
		case f := <-p.sendCh:
			if p.writeTimeout > 0 {
				_ = p.conn.SetWriteDeadline(time.Now().Add(p.writeTimeout))
			}
			header := make([]byte, frameHeaderSize)
			header[0] = f.channel
			binary.BigEndian.PutUint32(header[1:], uint32(len(f.data)))
			if _, err := p.conn.Write(header); err != nil {
				p.close()
				return
			}
			if _, err := p.conn.Write(f.data); err != nil {
				p.close()
				return
			}
		}
	}
}

// readFrame blocks for the next inbound frame.
func (p *peer) readFrame(readTimeout time.Duration) (byte, []byte, error) {
	if readTimeout > 0 {
		_ = p.conn.SetReadDeadline(time.Now().Add(readTimeout))
	}
	header := make([]byte, frameHeaderSize)
	if _, err := io.ReadFull(p.conn, header); err != nil {
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(header[1:])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("frame of %d bytes exceeds limit", length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(p.conn, payload); err != nil {
		return 0, nil, err
	}
	return header[0], payload, nil
}
