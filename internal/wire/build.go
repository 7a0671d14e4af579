package wire

// MemberInfo is one member record inside a room-information packet.
type MemberInfo struct {
	Nickname    string
	Addr        string
	GameName    string
	GameID      uint64
	GameVersion string
	Username    string
	DisplayName string
	AvatarURL   string
}

// RoomInfo is the full snapshot serialized as a room-information packet.
// Members must already be ordered: live members in join order, then fake
// members in configured order.
type RoomInfo struct {
	Name              string
	Description       string
	MaxPlayers        uint32
	Port              uint16
	PreferredGameName string
	HostName          string
	Members           []MemberInfo
}

// RoomInformation serializes a room snapshot. The member-count field is
// always len(info.Members); callers are responsible for including fake
// members in the slice so the count invariant holds.
func RoomInformation(info RoomInfo) []byte {
	buf := []byte{byte(TypeRoomInformation)}
	buf = AppendString(buf, info.Name)
	buf = AppendString(buf, info.Description)
	buf = AppendUint32(buf, info.MaxPlayers)
	buf = AppendUint16(buf, info.Port)
	buf = AppendString(buf, info.PreferredGameName)
	buf = AppendString(buf, info.HostName)
	buf = AppendUint32(buf, uint32(len(info.Members)))
	for _, m := range info.Members {
		buf = AppendString(buf, m.Nickname)
		buf = AppendAddr(buf, m.Addr)
		buf = AppendString(buf, m.GameName)
		buf = AppendUint64(buf, m.GameID)
		buf = AppendString(buf, m.GameVersion)
		buf = AppendString(buf, m.Username)
		buf = AppendString(buf, m.DisplayName)
		buf = AppendString(buf, m.AvatarURL)
	}
	return buf
}

// ChatMessage serializes an outbound chat packet.
func ChatMessage(nickname, username, text string) []byte {
	buf := []byte{byte(TypeChatMessage)}
	buf = AppendString(buf, nickname)
	buf = AppendString(buf, username)
	buf = AppendString(buf, text)
	return buf
}

// StatusMessage serializes a structured membership-change notification.
func StatusMessage(sub StatusMessageType, nickname, username, addr string) []byte {
	buf := []byte{byte(TypeStatusMessage), byte(sub)}
	buf = AppendString(buf, nickname)
	buf = AppendString(buf, username)
	buf = AppendAddr(buf, addr)
	return buf
}

// JoinSuccess serializes the join acknowledgement carrying the member's
// assigned address.
func JoinSuccess(addr string) []byte {
	return AppendAddr([]byte{byte(TypeJoinSuccess)}, addr)
}

// Tag returns a packet consisting of only the given type byte. Used for
// collision and kick notifications that carry no payload.
func Tag(t PacketType) []byte {
	return []byte{byte(t)}
}
