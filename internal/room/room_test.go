package room

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/ldnlab/roomd/internal/wire"
)

// fakePeer records everything sent to it.
type fakePeer struct {
	id   string
	addr string

	mu         sync.Mutex
	sent       [][]byte
	channels   []byte
	disconnect []byte

	ctx    context.Context
	cancel context.CancelFunc
}

func newFakePeer(id, addr string) *fakePeer {
	ctx, cancel := context.WithCancel(context.Background())
	return &fakePeer{id: id, addr: addr, ctx: ctx, cancel: cancel}
}

func (f *fakePeer) ID() string   { return f.id }
func (f *fakePeer) Addr() string { return f.addr }

func (f *fakePeer) Send(channel byte, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), data...))
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakePeer) Disconnect(reason byte) {
	f.mu.Lock()
	f.disconnect = append(f.disconnect, reason)
	f.mu.Unlock()
	f.cancel()
}

func (f *fakePeer) Context() context.Context { return f.ctx }

func (f *fakePeer) packets() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakePeer) lastOfType(t wire.PacketType) ([]byte, bool) {
	var found []byte
	for _, pkt := range f.packets() {
		if tag, payload, err := wire.Split(pkt); err == nil && tag == t {
			found = payload
		}
	}
	return found, found != nil
}

func testRoom(t *testing.T, opts Options) *Room {
	t.Helper()
	if opts.Name == "" {
		opts.Name = "Test Room"
	}
	if opts.MaxPlayers == 0 {
		opts.MaxPlayers = 8
	}
	return New(opts, zap.NewNop())
}

func joinPeer(t *testing.T, r *Room, id, nickname string) *fakePeer {
	t.Helper()
	p := newFakePeer(id, "10.0.0."+id)
	r.Connect(p)
	require.NoError(t, r.Join(id, Member{Nickname: nickname, Addr: "192.168.0." + id}))
	return p
}

func TestRoom_JoinNameCollision(t *testing.T) {
	r := testRoom(t, Options{})
	joinPeer(t, r, "1", "Alice")

	p2 := newFakePeer("2", "10.0.0.2")
	r.Connect(p2)
	err := r.Join("2", Member{Nickname: "Alice", Addr: "192.168.0.2"})
	require.ErrorIs(t, err, ErrNameCollision)

	// The collision must not mutate state: the second connection has
	// no member and the nickname still resolves to the first.
	_, ok := r.MemberOf("2")
	assert.False(t, ok)
	_, connID, ok := r.LookupByNickname("Alice")
	require.True(t, ok)
	assert.Equal(t, "1", connID)
}

func TestRoom_DisconnectFreesNickname(t *testing.T) {
	r := testRoom(t, Options{})
	joinPeer(t, r, "1", "Alice")

	r.Disconnect("1")

	p := newFakePeer("2", "10.0.0.2")
	r.Connect(p)
	assert.NoError(t, r.Join("2", Member{Nickname: "Alice", Addr: "192.168.0.2"}))
}

func TestRoom_JoinOnClosedConnection(t *testing.T) {
	r := testRoom(t, Options{})
	p := newFakePeer("1", "10.0.0.1")
	r.Connect(p)
	p.cancel()

	err := r.Join("1", Member{Nickname: "Alice", Addr: "192.168.0.1"})
	require.ErrorIs(t, err, ErrConnectionClosed)
	assert.Equal(t, 0, r.MemberCount())
}

func TestRoom_JoinUnknownConnection(t *testing.T) {
	r := testRoom(t, Options{})
	err := r.Join("nope", Member{Nickname: "Alice"})
	assert.ErrorIs(t, err, ErrConnectionClosed)
}

func TestRoom_SetGameInfoRequiresMembership(t *testing.T) {
	r := testRoom(t, Options{})
	p := newFakePeer("1", "10.0.0.1")
	r.Connect(p)

	err := r.SetGameInfo("1", wire.GameInfo{Name: "Game"})
	assert.ErrorIs(t, err, ErrNotJoined)

	require.NoError(t, r.Join("1", Member{Nickname: "Alice", Addr: "192.168.0.1"}))
	require.NoError(t, r.SetGameInfo("1", wire.GameInfo{Name: "Game", ID: 42, Version: "1.0"}))

	m, ok := r.MemberOf("1")
	require.True(t, ok)
	assert.Equal(t, "Game", m.GameName)
	assert.Equal(t, uint64(42), m.GameID)
	assert.Equal(t, "1.0", m.GameVersion)
}

func TestRoom_SnapshotOrderAndFakes(t *testing.T) {
	r := testRoom(t, Options{HostName: "host"})
	joinPeer(t, r, "1", "Alice")
	joinPeer(t, r, "2", "Bob")
	r.SetFakeMembers([]string{"Server"})

	snap := r.Snapshot()
	require.Len(t, snap.Members, 3)
	assert.Equal(t, "Alice", snap.Members[0].Nickname)
	assert.Equal(t, "Bob", snap.Members[1].Nickname)

	fake := snap.Members[2]
	assert.Equal(t, "Server", fake.Nickname)
	assert.Equal(t, "0.0.0.0", fake.Addr)
	assert.Equal(t, "Server", fake.Username)
	assert.Equal(t, "host", fake.GameVersion)

	assert.Equal(t, 3, r.MemberCount())

	r.SetFakeMembers(nil)
	assert.Equal(t, 2, r.MemberCount())
}

func TestRoom_SnapshotExcludesUnjoined(t *testing.T) {
	r := testRoom(t, Options{})
	joinPeer(t, r, "1", "Alice")
	r.Connect(newFakePeer("2", "10.0.0.2"))

	snap := r.Snapshot()
	require.Len(t, snap.Members, 1)
	assert.Equal(t, "Alice", snap.Members[0].Nickname)
}

func TestRoom_BroadcastSkipsExcludedAndUnjoined(t *testing.T) {
	r := testRoom(t, Options{})
	p1 := joinPeer(t, r, "1", "Alice")
	p2 := joinPeer(t, r, "2", "Bob")
	p3 := newFakePeer("3", "10.0.0.3")
	r.Connect(p3)

	p1.mu.Lock()
	p1.sent = nil
	p1.mu.Unlock()
	p2.mu.Lock()
	p2.sent = nil
	p2.mu.Unlock()

	packet := wire.ChatMessage("Alice", "", "hello")
	r.Broadcast(packet, "1")

	assert.Empty(t, p1.packets())
	require.Len(t, p2.packets(), 1)
	assert.Equal(t, packet, p2.packets()[0])
	assert.Empty(t, p3.packets())
}

func TestRoom_DisplayIndex(t *testing.T) {
	r := testRoom(t, Options{})
	joinPeer(t, r, "1", "Alice")
	p2 := newFakePeer("2", "10.0.0.2")
	r.Connect(p2)
	joinPeer(t, r, "3", "Cara")

	assert.Equal(t, 0, r.DisplayIndex("1"))
	assert.Equal(t, -1, r.DisplayIndex("2"))
	assert.Equal(t, 1, r.DisplayIndex("3"))

	r.Disconnect("1")
	assert.Equal(t, 0, r.DisplayIndex("3"))
}

func TestRoom_LookupByAddr(t *testing.T) {
	r := testRoom(t, Options{})
	joinPeer(t, r, "1", "Alice")

	m, connID, ok := r.LookupByAddr("192.168.0.1")
	require.True(t, ok)
	assert.Equal(t, "Alice", m.Nickname)
	assert.Equal(t, "1", connID)

	_, _, ok = r.LookupByAddr("192.168.0.99")
	assert.False(t, ok)
}

func TestRoom_AssignAddrAvoidsTaken(t *testing.T) {
	r := testRoom(t, Options{})
	addrPattern := regexp.MustCompile(`^192\.168\.\d+\.\d+$`)

	for i := 0; i < 100; i++ {
		addr := r.AssignAddr()
		require.Regexp(t, addrPattern, addr)
	}
}

func TestRoom_SnapshotCountMatchesMemberCount(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		r := New(Options{Name: "r", MaxPlayers: 64}, zap.NewNop())

		joins := rapid.IntRange(0, 12).Draw(t, "joins")
		leaves := rapid.IntRange(0, joins).Draw(t, "leaves")
		fakes := rapid.IntRange(0, 3).Draw(t, "fakes")

		for i := 0; i < joins; i++ {
			id := fmt.Sprintf("c%d", i)
			r.Connect(newFakePeer(id, "10.0.0.1"))
			if err := r.Join(id, Member{Nickname: fmt.Sprintf("n%d", i)}); err != nil {
				t.Fatalf("join: %v", err)
			}
		}
		for i := 0; i < leaves; i++ {
			r.Disconnect(fmt.Sprintf("c%d", i))
		}
		names := make([]string, fakes)
		for i := range names {
			names[i] = fmt.Sprintf("f%d", i)
		}
		r.SetFakeMembers(names)

		if got, want := r.MemberCount(), joins-leaves+fakes; got != want {
			t.Fatalf("MemberCount = %d, want %d", got, want)
		}
		if got := len(r.Snapshot().Members); got != r.MemberCount() {
			t.Fatalf("snapshot has %d members, MemberCount reports %d", got, r.MemberCount())
		}
	})
}

func TestRoom_DisconnectBroadcastsLeave(t *testing.T) {
	r := testRoom(t, Options{})
	p1 := joinPeer(t, r, "1", "Alice")
	joinPeer(t, r, "2", "Bob")

	r.Disconnect("2")

	payload, ok := p1.lastOfType(wire.TypeStatusMessage)
	require.True(t, ok, "remaining member must receive a status message")
	assert.Equal(t, byte(wire.StatusMemberLeave), payload[0])
}

func TestRoom_SendAsServerWrapsFakeMember(t *testing.T) {
	r := testRoom(t, Options{})
	p1 := joinPeer(t, r, "1", "Alice")

	p1.mu.Lock()
	p1.sent = nil
	p1.mu.Unlock()

	r.SendAsServer("line one", "line two")

	// Expected sequence: snapshot with Server, two chat lines, snapshot
	// without Server.
	pkts := p1.packets()
	require.Len(t, pkts, 4)

	tag, _, err := wire.Split(pkts[0])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRoomInformation, tag)

	for i, want := range []string{"line one", "line two"} {
		tag, payload, err := wire.Split(pkts[1+i])
		require.NoError(t, err)
		require.Equal(t, wire.TypeChatMessage, tag)
		nick, next, err := wire.ReadString(payload, 0)
		require.NoError(t, err)
		assert.Equal(t, ServerNickname, nick)
		_, next, err = wire.ReadString(payload, next)
		require.NoError(t, err)
		text, _, err := wire.ReadString(payload, next)
		require.NoError(t, err)
		assert.Equal(t, want, text)
	}

	tag, _, err = wire.Split(pkts[3])
	require.NoError(t, err)
	assert.Equal(t, wire.TypeRoomInformation, tag)
	assert.Equal(t, 1, r.MemberCount())
}

func TestRoom_GreetTemplate(t *testing.T) {
	r := testRoom(t, Options{GreetMessage: []string{"welcome {{name}}!"}})
	p1 := joinPeer(t, r, "1", "Alice")

	p1.mu.Lock()
	p1.sent = nil
	p1.mu.Unlock()

	r.Greet("1", Member{Nickname: "Alice"})

	found := false
	for _, pkt := range p1.packets() {
		tag, payload, err := wire.Split(pkt)
		if err != nil || tag != wire.TypeChatMessage {
			continue
		}
		_, next, err := wire.ReadString(payload, 0)
		require.NoError(t, err)
		_, next, err = wire.ReadString(payload, next)
		require.NoError(t, err)
		text, _, err := wire.ReadString(payload, next)
		require.NoError(t, err)
		if text == "welcome Alice!" {
			found = true
		}
	}
	assert.True(t, found, "greeting template must be expanded and broadcast")
}

func TestRoom_ConcurrentJoinsUniqueNicknames(t *testing.T) {
	r := testRoom(t, Options{MaxPlayers: 64})
	const n = 32

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%d", i)
		r.Connect(newFakePeer(id, "10.0.0."+id))
	}
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("%d", i)
			// Half the goroutines fight over one nickname.
			nick := "Dup"
			if i%2 == 0 {
				nick = "User" + id
			}
			errs[i] = r.Join(id, Member{Nickname: nick, Addr: "192.168.1." + id})
		}(i)
	}
	wg.Wait()

	collisions := 0
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrNameCollision)
			collisions++
		}
	}
	// Exactly one of the contending joins may hold "Dup".
	assert.Equal(t, n/2-1, collisions)
	assert.Equal(t, n/2+1, r.MemberCount())
}
