// Package wire implements the binary packet format shared with room
// clients. All multi-byte integers are big-endian; strings are
// length-prefixed with a 4-byte byte count; addresses are 4 raw octets.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrTruncated is returned when a decode would read past the end of the
// payload. Malformed packets are dropped; the connection survives.
var ErrTruncated = errors.New("wire: truncated payload")

// AppendString appends the length-prefixed encoding of s.
//
// Postcondition: Returns buf extended by 4+len(s) bytes.
func AppendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// ReadString decodes a length-prefixed string at offset.
//
// Postcondition: Returns the string and the offset just past it, or
// ErrTruncated if the prefix or body extends beyond the buffer.
func ReadString(buf []byte, offset int) (string, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return "", 0, fmt.Errorf("string length at offset %d: %w", offset, ErrTruncated)
	}
	length := int(binary.BigEndian.Uint32(buf[offset:]))
	end := offset + 4 + length
	if length < 0 || end > len(buf) {
		return "", 0, fmt.Errorf("string body at offset %d (%d bytes): %w", offset+4, length, ErrTruncated)
	}
	return string(buf[offset+4 : end]), end, nil
}

// AppendUint16 appends v as 2 big-endian bytes.
func AppendUint16(buf []byte, v uint16) []byte {
	return binary.BigEndian.AppendUint16(buf, v)
}

// AppendUint32 appends v as 4 big-endian bytes.
func AppendUint32(buf []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(buf, v)
}

// AppendUint64 appends v as 8 big-endian bytes.
func AppendUint64(buf []byte, v uint64) []byte {
	return binary.BigEndian.AppendUint64(buf, v)
}

// ReadUint16 decodes 2 big-endian bytes at offset.
func ReadUint16(buf []byte, offset int) (uint16, int, error) {
	if offset < 0 || offset+2 > len(buf) {
		return 0, 0, fmt.Errorf("uint16 at offset %d: %w", offset, ErrTruncated)
	}
	return binary.BigEndian.Uint16(buf[offset:]), offset + 2, nil
}

// ReadUint32 decodes 4 big-endian bytes at offset.
func ReadUint32(buf []byte, offset int) (uint32, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, 0, fmt.Errorf("uint32 at offset %d: %w", offset, ErrTruncated)
	}
	return binary.BigEndian.Uint32(buf[offset:]), offset + 4, nil
}

// ReadUint64 decodes 8 big-endian bytes at offset.
func ReadUint64(buf []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset+8 > len(buf) {
		return 0, 0, fmt.Errorf("uint64 at offset %d: %w", offset, ErrTruncated)
	}
	return binary.BigEndian.Uint64(buf[offset:]), offset + 8, nil
}

// AppendAddr appends addr as 4 raw octets. Octets that fail to parse
// encode as zero, so a malformed address degrades to 0.0.0.0 rather
// than corrupting the packet layout.
func AppendAddr(buf []byte, addr string) []byte {
	var octets [4]byte
	parts := strings.SplitN(addr, ".", 4)
	for i := 0; i < len(parts) && i < 4; i++ {
		if n, err := strconv.ParseUint(parts[i], 10, 8); err == nil {
			octets[i] = byte(n)
		}
	}
	return append(buf, octets[:]...)
}

// ReadAddr decodes 4 octets at offset into a dotted-quad string.
func ReadAddr(buf []byte, offset int) (string, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return "", 0, fmt.Errorf("address at offset %d: %w", offset, ErrTruncated)
	}
	a := buf[offset : offset+4]
	return fmt.Sprintf("%d.%d.%d.%d", a[0], a[1], a[2], a[3]), offset + 4, nil
}

// AppendBool appends a single byte: 0x01 for true, 0x00 for false.
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 0x01)
	}
	return append(buf, 0x00)
}

// ReadBool decodes one byte at offset. Any non-zero value is true.
func ReadBool(buf []byte, offset int) (bool, int, error) {
	if offset < 0 || offset >= len(buf) {
		return false, 0, fmt.Errorf("bool at offset %d: %w", offset, ErrTruncated)
	}
	return buf[offset] != 0x00, offset + 1, nil
}
