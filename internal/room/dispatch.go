package room

import (
	"context"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/auth"
	"github.com/ldnlab/roomd/internal/chat"
	"github.com/ldnlab/roomd/internal/transport"
	"github.com/ldnlab/roomd/internal/wire"
)

// TokenVerifier validates join-handshake authentication tokens.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (auth.Identity, error)
}

// handlerFunc processes one inbound packet's payload. raw is the packet
// as delivered, tag byte included, for verbatim relaying.
type handlerFunc func(p transport.Peer, payload, raw []byte) error

// Dispatcher routes inbound packets to the handler for their type tag.
// The table is fixed at construction; unknown tags are logged and
// dropped, and a handler failure never terminates the connection or the
// process.
type Dispatcher struct {
	room     *Room
	verifier TokenVerifier
	commands *chat.Table
	prefix   rune
	log      *zap.Logger
	handlers map[wire.PacketType]handlerFunc
}

// NewDispatcher builds the dispatch table for all supported packet types.
//
// Precondition: all arguments must be non-nil; prefix is the chat
// command prefix character.
func NewDispatcher(r *Room, verifier TokenVerifier, commands *chat.Table, prefix rune, logger *zap.Logger) *Dispatcher {
	d := &Dispatcher{
		room:     r,
		verifier: verifier,
		commands: commands,
		prefix:   prefix,
		log:      logger,
	}
	d.handlers = map[wire.PacketType]handlerFunc{
		wire.TypeJoinRequest: d.handleJoinRequest,
		wire.TypeChatMessage: d.handleChatMessage,
		wire.TypeSetGameInfo: d.handleSetGameInfo,
		wire.TypeLdnPacket:   d.handleLdnRelay,
		wire.TypeProxyPacket: d.handleProxyRelay,
	}
	return d
}

// HandleConnect registers the new link with the session registry.
func (d *Dispatcher) HandleConnect(p transport.Peer) {
	d.room.Connect(p)
}

// HandleDisconnect removes the link from the session registry.
func (d *Dispatcher) HandleDisconnect(p transport.Peer) {
	d.room.Disconnect(p.ID())
}

// HandleMessage reads the packet's type tag and invokes the matching
// handler inside an error boundary.
func (d *Dispatcher) HandleMessage(p transport.Peer, channel byte, data []byte) {
	tag, payload, err := wire.Split(data)
	if err != nil {
		d.log.Warn("dropping empty packet",
			zap.String("conn_id", p.ID()),
		)
		return
	}

	handler, ok := d.handlers[tag]
	if !ok {
		d.log.Warn("no handler for packet type",
			zap.Stringer("packet_type", tag),
			zap.String("conn_id", p.ID()),
		)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("handler panicked",
				zap.Stringer("packet_type", tag),
				zap.String("conn_id", p.ID()),
				zap.Any("panic", rec),
			)
		}
	}()

	if err := handler(p, payload, data); err != nil {
		d.log.Error("handler failed",
			zap.Stringer("packet_type", tag),
			zap.String("conn_id", p.ID()),
			zap.Error(err),
		)
	}
}
