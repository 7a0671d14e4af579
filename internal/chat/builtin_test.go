package chat

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ldnlab/roomd/internal/moderation"
)

// fakeRoom records server-authored chat and resolves a fixed member set.
type fakeRoom struct {
	lines []string
	// addrs maps connection ids and nicknames to transport addresses.
	peerAddrs map[string]string
	nickAddrs map[string]string
}

func newFakeRoom() *fakeRoom {
	return &fakeRoom{
		peerAddrs: make(map[string]string),
		nickAddrs: make(map[string]string),
	}
}

func (f *fakeRoom) SendAsServer(lines ...string) {
	f.lines = append(f.lines, lines...)
}

func (f *fakeRoom) PeerAddr(connID string) (string, bool) {
	addr, ok := f.peerAddrs[connID]
	return addr, ok
}

func (f *fakeRoom) PeerAddrByNickname(nickname string) (string, bool) {
	addr, ok := f.nickAddrs[nickname]
	return addr, ok
}

func (f *fakeRoom) joined() string {
	return strings.Join(f.lines, "\n")
}

func openStore(t *testing.T) *moderation.Store {
	t.Helper()
	store, err := moderation.Open(filepath.Join(t.TempDir(), "banlist.yaml"), zap.NewNop())
	require.NoError(t, err)
	return store
}

func resolveBuiltin(t *testing.T, store *moderation.Store, name string) *Command {
	t.Helper()
	table, err := NewTable(BuiltinCommands(store))
	require.NoError(t, err)
	cmd, ok := table.Resolve(name)
	require.True(t, ok)
	return cmd
}

func TestHelp_ListsAllUsages(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()

	cmd := resolveBuiltin(t, store, "help")
	cmd.Run(room, nil, "c1")

	out := room.joined()
	assert.Contains(t, out, "Available commands:")
	assert.Contains(t, out, reportUsage)
	assert.Contains(t, out, "/tuxsay")
	assert.Contains(t, out, "/help")
	assert.Contains(t, out, `"quotes"`)
}

func TestReport_RecordsAgainstLiveMember(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()
	room.peerAddrs["c1"] = "10.0.0.1"
	room.nickAddrs["Bob"] = "10.0.0.2"

	cmd := resolveBuiltin(t, store, "report")
	cmd.Run(room, []string{"Bob", "spamming", "links"}, "c1")

	assert.Contains(t, room.joined(), `User "Bob" reported for: spamming links`)

	reports := store.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "10.0.0.1", reports[0].ReporterIP)
	assert.Equal(t, "10.0.0.2", reports[0].ReportedIP)
	assert.Equal(t, "spamming links", reports[0].Reason)
}

func TestReport_DuplicateKeepsOriginalReason(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()
	room.peerAddrs["c1"] = "10.0.0.1"
	room.nickAddrs["Bob"] = "10.0.0.2"

	cmd := resolveBuiltin(t, store, "report")
	cmd.Run(room, []string{"Bob", "first", "reason"}, "c1")
	cmd.Run(room, []string{"Bob", "second", "reason"}, "c1")

	assert.Contains(t, room.joined(), `You already reported user "Bob" for: first reason`)

	reports := store.Reports()
	require.Len(t, reports, 1)
	assert.Equal(t, "first reason", reports[0].Reason)
}

func TestReport_DistinctReportersBothRecorded(t *testing.T) {
	store := openStore(t)
	cmd := resolveBuiltin(t, store, "report")

	for i, reporter := range []string{"10.0.0.1", "10.0.0.3"} {
		room := newFakeRoom()
		room.peerAddrs["c"] = reporter
		room.nickAddrs["Bob"] = "10.0.0.2"
		cmd.Run(room, []string{"Bob", fmt.Sprintf("reason %d", i)}, "c")
	}

	assert.Len(t, store.Reports(), 2)
}

func TestReport_MissingArgsShowsUsage(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()
	room.peerAddrs["c1"] = "10.0.0.1"

	cmd := resolveBuiltin(t, store, "report")
	cmd.Run(room, []string{"Bob"}, "c1")

	assert.Contains(t, room.joined(), "/report [user: string, use quotes!]")
	assert.Empty(t, store.Reports())
}

func TestReport_UnknownUser(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()
	room.peerAddrs["c1"] = "10.0.0.1"

	cmd := resolveBuiltin(t, store, "report")
	cmd.Run(room, []string{"Ghost", "haunting"}, "c1")

	assert.Contains(t, room.joined(), `User "Ghost" not found`)
	assert.Empty(t, store.Reports())
}

func TestTuxsay_WrapsMessageInArt(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()

	cmd := resolveBuiltin(t, store, "tuxsay")
	cmd.Run(room, []string{"hello", "world"}, "c1")

	out := room.joined()
	assert.Contains(t, out, "hello world")
	assert.Contains(t, out, "|o_o|")
}

func TestTuxsay_EmptyMessageIsSilent(t *testing.T) {
	store := openStore(t)
	room := newFakeRoom()

	cmd := resolveBuiltin(t, store, "tuxsay")
	cmd.Run(room, nil, "c1")

	assert.Empty(t, room.lines)
}
