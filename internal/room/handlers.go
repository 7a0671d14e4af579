package room

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/auth"
	"github.com/ldnlab/roomd/internal/chat"
	"github.com/ldnlab/roomd/internal/transport"
	"github.com/ldnlab/roomd/internal/wire"
)

// handleJoinRequest runs the join handshake. Token verification may
// suspend on external I/O; the commit re-checks that the connection is
// still alive, so a join completing after a disconnect is a no-op.
func (d *Dispatcher) handleJoinRequest(p transport.Peer, payload, _ []byte) error {
	req, err := wire.ParseJoinRequest(payload)
	if err != nil {
		return err
	}

	addr := req.Addr
	if addr == wire.WildcardAddr {
		addr = d.room.AssignAddr()
	}

	d.log.Info("join request",
		zap.String("nickname", req.Nickname),
		zap.String("addr", addr),
		zap.Uint32("version", req.Version),
	)

	identity, err := d.verifier.Verify(p.Context(), req.Token)
	if err != nil {
		if p.Context().Err() != nil {
			// Disconnected while verification was in flight.
			return nil
		}
		if !errors.Is(err, auth.ErrNoKey) {
			d.log.Debug("token verification failed, joining unauthenticated",
				zap.String("nickname", req.Nickname),
				zap.Error(err),
			)
		}
		identity = auth.Identity{}
	}

	member := Member{
		Nickname:  req.Nickname,
		Addr:      addr,
		Username:  identity.Username,
		AvatarURL: identity.AvatarURL,
	}
	switch err := d.room.Join(p.ID(), member); {
	case errors.Is(err, ErrNameCollision):
		d.log.Info("name collision",
			zap.String("nickname", req.Nickname),
		)
		return p.Send(0, wire.Tag(wire.TypeNameCollision))
	case errors.Is(err, ErrConnectionClosed):
		// Late join completion for a closed connection.
		return nil
	case err != nil:
		return err
	}

	if err := p.Send(0, wire.JoinSuccess(addr)); err != nil {
		return fmt.Errorf("sending join success: %w", err)
	}
	d.room.Greet(p.ID(), member)

	d.log.Info("member joined",
		zap.String("nickname", req.Nickname),
		zap.String("addr", addr),
		zap.Bool("authenticated", identity.Username != ""),
	)
	return nil
}

// handleChatMessage relays chat to the rest of the room and feeds the
// text to the command subsystem. A chat packet from a connection that
// never joined is a protocol violation: the sender is kicked.
func (d *Dispatcher) handleChatMessage(p transport.Peer, payload, _ []byte) error {
	text, err := wire.ChatText(payload)
	if err != nil {
		return err
	}

	member, ok := d.room.MemberOf(p.ID())
	if !ok {
		d.log.Warn("chat from non-member, kicking",
			zap.String("conn_id", p.ID()),
		)
		p.Disconnect(byte(wire.TypeHostKicked))
		return nil
	}

	d.log.Info("chat",
		zap.String("nickname", member.Nickname),
		zap.Int("display_index", d.room.DisplayIndex(p.ID())),
		zap.String("text", text),
	)

	d.room.Broadcast(wire.ChatMessage(member.Nickname, member.Username, text), p.ID())

	inv, ok := chat.Parse(d.prefix, text)
	if !ok {
		return nil
	}
	cmd, ok := d.commands.Resolve(inv.Name)
	if !ok {
		// Unknown commands are logged locally, never surfaced to users.
		d.log.Info("unknown command",
			zap.String("command", inv.Name),
			zap.String("nickname", member.Nickname),
		)
		return nil
	}
	cmd.Run(d.room, inv.Args, p.ID())
	return nil
}

// handleSetGameInfo updates the sender's game fields. Membership is
// required; violations kick the sender like any other member-only packet.
func (d *Dispatcher) handleSetGameInfo(p transport.Peer, payload, _ []byte) error {
	info, err := wire.ParseGameInfo(payload)
	if err != nil {
		return err
	}

	switch err := d.room.SetGameInfo(p.ID(), info); {
	case errors.Is(err, ErrNotJoined):
		d.log.Warn("set-game-info from non-member, kicking",
			zap.String("conn_id", p.ID()),
		)
		p.Disconnect(byte(wire.TypeHostKicked))
		return nil
	case errors.Is(err, ErrConnectionClosed):
		return nil
	case err != nil:
		return err
	}

	d.log.Info("game info updated",
		zap.String("game_name", info.Name),
		zap.Uint64("game_id", info.ID),
		zap.String("game_version", info.Version),
	)
	return nil
}

// handleLdnRelay forwards a game-link frame: broadcast to the whole room
// excluding the sender, or unicast to the member owning the embedded
// target address.
func (d *Dispatcher) handleLdnRelay(p transport.Peer, payload, raw []byte) error {
	relay, err := wire.ParseLdnRelay(payload)
	if err != nil {
		return err
	}
	if relay.Broadcast {
		d.room.Broadcast(raw, p.ID())
		return nil
	}
	return d.relayTo(relay.TargetAddr, raw)
}

// handleProxyRelay forwards a proxied socket datagram: broadcast to the
// whole room including the sender, or unicast to the target address.
func (d *Dispatcher) handleProxyRelay(p transport.Peer, payload, raw []byte) error {
	relay, err := wire.ParseProxyRelay(payload)
	if err != nil {
		return err
	}
	if relay.Broadcast {
		d.room.Broadcast(raw)
		return nil
	}
	return d.relayTo(relay.TargetAddr, raw)
}

// relayTo forwards the raw message to the connection owning addr on
// channel 0. A missing recipient is dropped, never buffered or retried.
func (d *Dispatcher) relayTo(addr string, raw []byte) error {
	_, connID, ok := d.room.LookupByAddr(addr)
	if !ok {
		d.log.Debug("relay recipient not found",
			zap.String("target_addr", addr),
		)
		return nil
	}
	if err := d.room.SendTo(connID, 0, raw); err != nil {
		d.log.Debug("relay send failed",
			zap.String("target_addr", addr),
			zap.Error(err),
		)
	}
	return nil
}
