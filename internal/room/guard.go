package room

import (
	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/moderation"
	"github.com/ldnlab/roomd/internal/transport"
	"github.com/ldnlab/roomd/internal/wire"
)

// BanGuard wraps a transport handler and rejects connections from
// banned addresses before any packet reaches the inner handler.
type BanGuard struct {
	inner transport.Handler
	store *moderation.Store
	log   *zap.Logger
}

// NewBanGuard creates a guard in front of inner.
//
// Precondition: all arguments must be non-nil.
func NewBanGuard(inner transport.Handler, store *moderation.Store, logger *zap.Logger) *BanGuard {
	return &BanGuard{inner: inner, store: store, log: logger}
}

// HandleConnect disconnects banned peers with a ban notice and passes
// everyone else through.
func (g *BanGuard) HandleConnect(p transport.Peer) {
	if g.store.IsBanned(p.Addr()) {
		g.log.Info("rejecting banned address",
			zap.String("addr", p.Addr()),
			zap.String("conn_id", p.ID()),
		)
		p.Disconnect(byte(wire.TypeHostBanned))
		return
	}
	g.inner.HandleConnect(p)
}

// HandleMessage drops traffic from banned peers; a ban added while the
// peer was connected takes effect on its next packet.
func (g *BanGuard) HandleMessage(p transport.Peer, channel byte, data []byte) {
	if g.store.IsBanned(p.Addr()) {
		p.Disconnect(byte(wire.TypeHostBanned))
		return
	}
	g.inner.HandleMessage(p, channel, data)
}

// HandleDisconnect always passes through so the registry stays clean.
func (g *BanGuard) HandleDisconnect(p transport.Peer) {
	g.inner.HandleDisconnect(p)
}
