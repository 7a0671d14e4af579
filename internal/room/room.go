package room

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/transport"
	"github.com/ldnlab/roomd/internal/wire"
)

var (
	// ErrNameCollision is returned by Join when the nickname is taken.
	ErrNameCollision = errors.New("room: nickname already in use")
	// ErrNotJoined is returned when an operation requires membership.
	ErrNotJoined = errors.New("room: connection has not joined")
	// ErrConnectionClosed is returned when the target connection is gone
	// or its link has been cancelled. A late join completion hitting this
	// is a no-op, not a failure.
	ErrConnectionClosed = errors.New("room: connection closed")
)

// connection pairs a transport peer with its member profile, nil until
// the join handshake completes.
type connection struct {
	peer   transport.Peer
	member *Member
}

// Room owns all per-connection state for one running room instance. All
// mutation funnels through its methods; a single mutex preserves the
// engine's serialized-mutation invariant.
type Room struct {
	opts Options
	log  *zap.Logger

	mu    sync.RWMutex
	conns map[string]*connection
	order []string // connection ids in connect order; broadcast iterates joined members in this order
	fake  []string
}

// New creates an empty Room with the given options.
//
// Precondition: logger must be non-nil.
func New(opts Options, logger *zap.Logger) *Room {
	return &Room{
		opts:  opts,
		log:   logger,
		conns: make(map[string]*connection),
	}
}

// Options returns the room's static configuration.
func (r *Room) Options() Options { return r.opts }

// Connect registers a new connection with no member.
//
// Precondition: p must have an ID unused by any live connection.
func (r *Room) Connect(p transport.Peer) {
	r.mu.Lock()
	r.conns[p.ID()] = &connection{peer: p}
	r.order = append(r.order, p.ID())
	count := len(r.conns)
	r.mu.Unlock()

	r.log.Info("client connected",
		zap.String("conn_id", p.ID()),
		zap.String("remote_addr", p.Addr()),
		zap.Int("connections", count),
	)
}

// Join attaches a member profile to a connection and broadcasts the
// updated room snapshot.
//
// Postcondition: Returns ErrNameCollision (no state mutated) if the
// nickname is taken, or ErrConnectionClosed if the connection is gone or
// its link already cancelled — callers treat that as a no-op.
func (r *Room) Join(connID string, m Member) error {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok || conn.peer.Context().Err() != nil {
		r.mu.Unlock()
		return ErrConnectionClosed
	}
	for _, c := range r.conns {
		if c.member != nil && c.member.Nickname == m.Nickname {
			r.mu.Unlock()
			return fmt.Errorf("join %q: %w", m.Nickname, ErrNameCollision)
		}
	}
	conn.member = &m
	r.mu.Unlock()

	r.BroadcastSnapshot()
	return nil
}

// SetGameInfo updates a member's game fields and broadcasts the updated
// snapshot.
//
// Postcondition: Returns ErrNotJoined if the connection has no member,
// or ErrConnectionClosed if the connection is gone.
func (r *Room) SetGameInfo(connID string, info wire.GameInfo) error {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return ErrConnectionClosed
	}
	if conn.member == nil {
		r.mu.Unlock()
		return ErrNotJoined
	}
	conn.member.GameName = info.Name
	conn.member.GameID = info.ID
	conn.member.GameVersion = info.Version
	r.mu.Unlock()

	r.BroadcastSnapshot()
	return nil
}

// Disconnect removes a connection and its member, if any. A departed
// member triggers a snapshot broadcast and a farewell: either the
// configured bye template or a structured MemberLeave status message.
func (r *Room) Disconnect(connID string) {
	r.mu.Lock()
	conn, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	member := conn.member
	delete(r.conns, connID)
	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	count := len(r.conns)
	r.mu.Unlock()

	if member == nil {
		r.log.Info("client disconnected",
			zap.String("conn_id", connID),
			zap.Int("connections", count),
		)
		return
	}

	r.log.Info("member left",
		zap.String("conn_id", connID),
		zap.String("nickname", member.Nickname),
		zap.Int("connections", count),
	)
	r.BroadcastSnapshot()
	if len(r.opts.ByeMessage) > 0 {
		r.SendAsServer(expandTemplate(r.opts.ByeMessage, member.Nickname)...)
	} else {
		r.Broadcast(wire.StatusMessage(wire.StatusMemberLeave, member.Nickname, member.Username, member.Addr))
	}
}

// LookupByNickname returns the member with the given nickname and its
// connection id. Absence is a normal outcome, not an error.
func (r *Room) LookupByNickname(nickname string) (Member, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.conns {
		if c.member != nil && c.member.Nickname == nickname {
			return *c.member, id, true
		}
	}
	return Member{}, "", false
}

// LookupByAddr returns the member whose virtual room address matches.
func (r *Room) LookupByAddr(addr string) (Member, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.conns {
		if c.member != nil && c.member.Addr == addr {
			return *c.member, id, true
		}
	}
	return Member{}, "", false
}

// MemberOf returns the member attached to a connection.
func (r *Room) MemberOf(connID string) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[connID]; ok && c.member != nil {
		return *c.member, true
	}
	return Member{}, false
}

// PeerAddr returns the transport address of a connection.
func (r *Room) PeerAddr(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.conns[connID]; ok {
		return c.peer.Addr(), true
	}
	return "", false
}

// PeerAddrByNickname resolves a member nickname to the transport address
// of its connection.
func (r *Room) PeerAddrByNickname(nickname string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.conns {
		if c.member != nil && c.member.Nickname == nickname {
			return c.peer.Addr(), true
		}
	}
	return "", false
}

// SendTo forwards data to a single connection on the given channel.
//
// Postcondition: Returns ErrConnectionClosed if the connection is gone.
func (r *Room) SendTo(connID string, channel byte, data []byte) error {
	r.mu.RLock()
	c, ok := r.conns[connID]
	r.mu.RUnlock()
	if !ok {
		return ErrConnectionClosed
	}
	return c.peer.Send(channel, data)
}

// DisplayIndex returns the connection's position among joined members in
// broadcast order, for deterministic display coloring. Returns -1 for
// connections that have not joined.
func (r *Room) DisplayIndex(connID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx := 0
	for _, id := range r.order {
		c := r.conns[id]
		if c == nil || c.member == nil {
			continue
		}
		if id == connID {
			return idx
		}
		idx++
	}
	return -1
}

// MemberCount returns live joined members plus fake padding members,
// matching the count reported in snapshots.
func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := len(r.fake)
	for _, c := range r.conns {
		if c.member != nil {
			count++
		}
	}
	return count
}

// SetFakeMembers replaces the synthetic padding list and broadcasts the
// updated snapshot.
func (r *Room) SetFakeMembers(names []string) {
	r.mu.Lock()
	r.fake = append([]string(nil), names...)
	r.mu.Unlock()
	r.BroadcastSnapshot()
}

// Snapshot assembles the current room-information view: live members in
// join order, then fake members in configured order.
func (r *Room) Snapshot() wire.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info := wire.RoomInfo{
		Name:              r.opts.Name,
		Description:       r.opts.Description,
		MaxPlayers:        r.opts.MaxPlayers,
		Port:              r.opts.Port,
		PreferredGameName: r.opts.PreferredGameName,
		HostName:          r.opts.HostName,
	}
	for _, id := range r.order {
		c := r.conns[id]
		if c == nil || c.member == nil {
			continue
		}
		m := c.member
		info.Members = append(info.Members, wire.MemberInfo{
			Nickname:    m.Nickname,
			Addr:        m.Addr,
			GameName:    m.GameName,
			GameID:      m.GameID,
			GameVersion: m.GameVersion,
			Username:    m.Username,
			DisplayName: m.DisplayName,
			AvatarURL:   m.AvatarURL,
		})
	}
	for _, name := range r.fake {
		info.Members = append(info.Members, wire.MemberInfo{
			Nickname:    name,
			Addr:        "0.0.0.0",
			GameName:    fakeGameName,
			GameVersion: r.opts.HostName,
			Username:    name,
			DisplayName: name,
		})
	}
	return info
}

// Broadcast sends packet to every joined connection, in join order,
// skipping ids in exclude. Delivering to zero recipients is valid.
func (r *Room) Broadcast(packet []byte, exclude ...string) {
	r.mu.RLock()
	peers := make([]transport.Peer, 0, len(r.order))
	for _, id := range r.order {
		c := r.conns[id]
		if c == nil || c.member == nil || contains(exclude, id) {
			continue
		}
		peers = append(peers, c.peer)
	}
	r.mu.RUnlock()

	for _, p := range peers {
		if err := p.Send(0, packet); err != nil {
			r.log.Debug("broadcast send failed",
				zap.String("conn_id", p.ID()),
				zap.Error(err),
			)
		}
	}
}

// BroadcastSnapshot sends the full room-information packet to every
// joined connection. This is the only membership sync mechanism; there
// is no incremental diff.
func (r *Room) BroadcastSnapshot() {
	r.Broadcast(wire.RoomInformation(r.Snapshot()))
}

// AssignAddr picks an unused 192.168.x.y virtual address for a joiner
// that claimed the wildcard address.
func (r *Room) AssignAddr() string {
	for attempt := 0; attempt < 64; attempt++ {
		addr := fmt.Sprintf("192.168.%d.%d", rand.Intn(256), rand.Intn(256))
		if _, _, taken := r.LookupByAddr(addr); !taken {
			return addr
		}
	}
	return fmt.Sprintf("192.168.%d.%d", rand.Intn(256), rand.Intn(256))
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
