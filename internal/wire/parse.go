package wire

import "fmt"

// JoinRequest is the decoded payload of a join handshake packet.
type JoinRequest struct {
	// Nickname is the requested display nickname.
	Nickname string
	// Addr is the client's claimed address. 255.255.255.255 asks the
	// server to assign one.
	Addr string
	// Version is the client protocol version.
	Version uint32
	// Token is the raw authentication token, possibly empty.
	Token string
}

// WildcardAddr is the claimed address that requests server assignment.
const WildcardAddr = "255.255.255.255"

// ParseJoinRequest decodes a join-request payload: nickname, 4-byte
// address, u32 version, 8 reserved bytes, then the remainder of the
// payload as the raw authentication token.
func ParseJoinRequest(payload []byte) (JoinRequest, error) {
	var req JoinRequest
	offset := 0
	var err error
	if req.Nickname, offset, err = ReadString(payload, offset); err != nil {
		return JoinRequest{}, fmt.Errorf("join nickname: %w", err)
	}
	if req.Addr, offset, err = ReadAddr(payload, offset); err != nil {
		return JoinRequest{}, fmt.Errorf("join address: %w", err)
	}
	if req.Version, offset, err = ReadUint32(payload, offset); err != nil {
		return JoinRequest{}, fmt.Errorf("join version: %w", err)
	}
	offset += 8 // reserved
	if offset > len(payload) {
		return JoinRequest{}, fmt.Errorf("join reserved bytes: %w", ErrTruncated)
	}
	req.Token = string(payload[offset:])
	return req, nil
}

// ChatText decodes the single length-prefixed string carried by an
// inbound chat packet.
func ChatText(payload []byte) (string, error) {
	text, _, err := ReadString(payload, 0)
	if err != nil {
		return "", fmt.Errorf("chat text: %w", err)
	}
	return text, nil
}

// GameInfo is the decoded payload of a set-game-info packet.
type GameInfo struct {
	Name    string
	ID      uint64
	Version string
}

// ParseGameInfo decodes a set-game-info payload: game name, u64 game id,
// game version string.
func ParseGameInfo(payload []byte) (GameInfo, error) {
	var info GameInfo
	offset := 0
	var err error
	if info.Name, offset, err = ReadString(payload, offset); err != nil {
		return GameInfo{}, fmt.Errorf("game name: %w", err)
	}
	if info.ID, offset, err = ReadUint64(payload, offset); err != nil {
		return GameInfo{}, fmt.Errorf("game id: %w", err)
	}
	if info.Version, _, err = ReadString(payload, offset); err != nil {
		return GameInfo{}, fmt.Errorf("game version: %w", err)
	}
	return info, nil
}

// Relay is the routing information embedded in a game-link or proxy
// payload.
type Relay struct {
	// TargetAddr is the destination member address for unicast relays.
	TargetAddr string
	// Broadcast requests fan-out to every connection instead of unicast.
	Broadcast bool
}

// ParseLdnRelay extracts routing info from an LDN payload. Layout: one
// byte LAN frame type, 4 bytes local address, 4 bytes target address,
// one broadcast flag byte.
func ParseLdnRelay(payload []byte) (Relay, error) {
	var r Relay
	offset := 1 + 4
	var err error
	if r.TargetAddr, offset, err = ReadAddr(payload, offset); err != nil {
		return Relay{}, fmt.Errorf("ldn target: %w", err)
	}
	if r.Broadcast, _, err = ReadBool(payload, offset); err != nil {
		return Relay{}, fmt.Errorf("ldn broadcast flag: %w", err)
	}
	return r, nil
}

// ParseProxyRelay extracts routing info from a proxy payload. The target
// address sits at offset 8 past the local endpoint header; the broadcast
// flag at offset 23, past the remote endpoint and protocol fields.
func ParseProxyRelay(payload []byte) (Relay, error) {
	var r Relay
	var err error
	if r.TargetAddr, _, err = ReadAddr(payload, 8); err != nil {
		return Relay{}, fmt.Errorf("proxy target: %w", err)
	}
	if r.Broadcast, _, err = ReadBool(payload, 23); err != nil {
		return Relay{}, fmt.Errorf("proxy broadcast flag: %w", err)
	}
	return r, nil
}
