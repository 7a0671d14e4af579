package wire

import "fmt"

// PacketType is the one-byte tag leading every application packet. The
// numeric values are a fixed contract with clients and must not change.
type PacketType byte

const (
	TypeJoinRequest PacketType = iota + 1
	TypeJoinSuccess
	TypeRoomInformation
	TypeSetGameInfo
	TypeProxyPacket
	TypeLdnPacket
	TypeChatMessage
	TypeNameCollision
	TypeIPCollision
	TypeVersionMismatch
	TypeWrongPassword
	TypeCloseRoom
	TypeRoomIsFull
	TypeStatusMessage
	TypeHostKicked
	TypeHostBanned
	TypeModKick
	TypeModBan
	TypeModUnban
	TypeModGetBanList
	TypeModBanListResponse
	TypeModPermissionDenied
	TypeModNoSuchUser
	TypeJoinSuccessAsMod
)

var packetTypeNames = map[PacketType]string{
	TypeJoinRequest:         "JoinRequest",
	TypeJoinSuccess:         "JoinSuccess",
	TypeRoomInformation:     "RoomInformation",
	TypeSetGameInfo:         "SetGameInfo",
	TypeProxyPacket:         "ProxyPacket",
	TypeLdnPacket:           "LdnPacket",
	TypeChatMessage:         "ChatMessage",
	TypeNameCollision:       "NameCollision",
	TypeIPCollision:         "IpCollision",
	TypeVersionMismatch:     "VersionMismatch",
	TypeWrongPassword:       "WrongPassword",
	TypeCloseRoom:           "CloseRoom",
	TypeRoomIsFull:          "RoomIsFull",
	TypeStatusMessage:       "StatusMessage",
	TypeHostKicked:          "HostKicked",
	TypeHostBanned:          "HostBanned",
	TypeModKick:             "ModKick",
	TypeModBan:              "ModBan",
	TypeModUnban:            "ModUnban",
	TypeModGetBanList:       "ModGetBanList",
	TypeModBanListResponse:  "ModBanListResponse",
	TypeModPermissionDenied: "ModPermissionDenied",
	TypeModNoSuchUser:       "ModNoSuchUser",
	TypeJoinSuccessAsMod:    "JoinSuccessAsMod",
}

// String returns the packet type name, or a numeric form for unknown tags.
func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("PacketType(%d)", byte(t))
}

// Known reports whether t is a tag defined by the protocol.
func (t PacketType) Known() bool {
	_, ok := packetTypeNames[t]
	return ok
}

// StatusMessageType is the one-byte subtype carried inside a
// StatusMessage packet.
type StatusMessageType byte

const (
	StatusMemberJoin StatusMessageType = iota + 1
	StatusMemberLeave
	StatusMemberKicked
	StatusMemberBanned
	StatusAddressUnbanned
)

var statusTypeNames = map[StatusMessageType]string{
	StatusMemberJoin:      "MemberJoin",
	StatusMemberLeave:     "MemberLeave",
	StatusMemberKicked:    "MemberKicked",
	StatusMemberBanned:    "MemberBanned",
	StatusAddressUnbanned: "AddressUnbanned",
}

// String returns the status subtype name, or a numeric form for unknown values.
func (s StatusMessageType) String() string {
	if name, ok := statusTypeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StatusMessageType(%d)", byte(s))
}

// Split separates an inbound application packet into its type tag and
// payload.
//
// Postcondition: Returns ErrTruncated for an empty packet.
func Split(data []byte) (PacketType, []byte, error) {
	if len(data) == 0 {
		return 0, nil, fmt.Errorf("packet tag: %w", ErrTruncated)
	}
	return PacketType(data[0]), data[1:], nil
}
