// Package room implements the protocol session engine: per-connection
// state, membership lifecycle, snapshot broadcasting, and inbound packet
// dispatch.
package room

import "time"

// Member is a joined participant's profile, attached to exactly one
// connection. A connection may exist without a Member (pre-join); a
// Member never outlives its connection.
type Member struct {
	// Nickname is unique among current members (case-sensitive).
	Nickname string
	// Addr is the member's virtual room address (dotted quad).
	Addr string
	// DisplayName is the profile display name, may be empty.
	DisplayName string
	// Username is the authenticated account name, empty when the join
	// was unauthenticated.
	Username string
	// AvatarURL references the member's avatar, may be empty.
	AvatarURL string
	// GameID is the 64-bit identifier of the game currently played.
	GameID uint64
	// GameName is the name of the game currently played.
	GameName string
	// GameVersion is the client-reported game version string.
	GameVersion string
}

// Options is the process-lifetime room configuration.
type Options struct {
	Name              string
	Description       string
	MaxPlayers        uint32
	Port              uint16
	PreferredGameName string
	HostName          string
	// GreetMessage lines are sent as server-authored chat after a join,
	// with {{name}} replaced by the joiner's nickname. When empty a
	// structured MemberJoin status message is broadcast instead.
	GreetMessage []string
	// ByeMessage is the leave counterpart of GreetMessage.
	ByeMessage []string
	// AnnounceDelay is the pause between the fake-member snapshot and
	// the server-authored chat lines that depend on it. Zero in tests.
	AnnounceDelay time.Duration
}

// ServerNickname is the pseudo-member that server-authored chat lines
// are attributed to.
const ServerNickname = "Server"

// fakeGameName fills the game-name field of padding members.
const fakeGameName = "Playing with the server"
