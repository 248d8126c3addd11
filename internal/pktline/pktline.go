// Package pktline implements Git's pkt-line wire format: encoding,
// length parsing, buffer iteration, and a streaming
// inspect-and-passthrough reader. See spec.md §4.1.
package pktline

import (
	"fmt"

	"github.com/crohr/smart-git-proxy/internal/gerrors"
)

// FrameType selects the channel byte an out-of-band frame is prefixed
// with. Only message/error frames get a channel byte; Data frames are
// passed through as-is.
type FrameType int

const (
	// Data is a plain pkt-line payload with no sideband channel byte.
	Data FrameType = iota
	// Message is a sideband progress/info frame (channel \x02).
	Message
	// ErrorMessage is a sideband error frame (channel \x03).
	ErrorMessage
)

const (
	chanProgress = 0x02
	chanError    = 0x03

	// FlushPkt is the literal 4-byte flush-packet length header.
	FlushPkt = "0000"
	// MaxLineLen is the largest payload a single frame's 4-hex length
	// header can address (0xffff - 4 header bytes).
	MaxLineLen = 0xfff0
)

// EncodePacket prepends the channel byte (if type is Message or
// ErrorMessage), appends a trailing newline if absent, then prepends
// the 4-hex length header covering the header itself and the payload.
func EncodePacket(t FrameType, message string) []byte {
	var payload []byte
	switch t {
	case Message:
		payload = append(payload, chanProgress)
	case ErrorMessage:
		payload = append(payload, chanError)
	}
	payload = append(payload, []byte(message)...)
	if len(payload) == 0 || payload[len(payload)-1] != '\n' {
		payload = append(payload, '\n')
	}
	return framify(payload)
}

// framify prepends a 4-hex length header (length header + payload) to
// payload, producing a complete non-flush pkt-line frame.
func framify(payload []byte) []byte {
	total := len(payload) + 4
	out := make([]byte, 0, total)
	out = append(out, []byte(fmt.Sprintf("%04x", total))...)
	out = append(out, payload...)
	return out
}

// Flush returns the literal 4-byte flush packet.
func Flush() []byte {
	return []byte(FlushPkt)
}

// ReadPacketLength returns the integer length of the frame starting at
// buf[offset:], or -1 when fewer than 4 bytes remain or those 4 bytes
// are not all lowercase hex.
func ReadPacketLength(buf []byte, offset int) int {
	if offset < 0 || offset+4 > len(buf) {
		return -1
	}
	n := 0
	for i := 0; i < 4; i++ {
		c := buf[offset+i]
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		default:
			return -1
		}
		n = n<<4 | v
	}
	return n
}

// Frame is one decoded pkt-line frame: Raw is the full wire bytes
// (header + payload) of the frame, Payload is the slice after the
// 4-hex header, and Flush is true for the zero-length flush packet
// (whose Payload is always empty).
type Frame struct {
	Raw     []byte
	Payload []byte
	Flush   bool
}

// IterateResult is the outcome of IteratePackets: Frames holds every
// complete frame found, and Remainder holds whatever trailing bytes
// were not consumed (the bytes after a flush packet when stopOnFlush,
// or the truncated trailing frame when tolerateTruncation).
type IterateResult struct {
	Frames     []Frame
	Remainder  []byte
	FlushFound bool
}

// IteratePackets lazily (here: eagerly, since the whole buffer is
// already in memory) decodes complete frames from buf starting at
// offset 0, per spec.md §4.1.
//
// On a flush header (0000): if stopOnFlush, stop and report the
// remaining slice (after the flush header) as Remainder; otherwise
// advance past the 4 header bytes and continue.
//
// On a length in 1..3: return gerrors.KindInvalidPacket.
//
// On a length exceeding the remaining buffer: if tolerateTruncation,
// stop and report the trailing slice (including its partial header)
// as Remainder; otherwise return gerrors.KindInvalidPacket.
func IteratePackets(buf []byte, stopOnFlush, tolerateTruncation bool) (IterateResult, error) {
	var res IterateResult
	offset := 0
	for {
		if offset >= len(buf) {
			break
		}
		n := ReadPacketLength(buf, offset)
		if n == -1 {
			if tolerateTruncation {
				res.Remainder = buf[offset:]
				return res, nil
			}
			return res, gerrors.New(gerrors.KindInvalidPacket)
		}
		if n == 0 {
			if stopOnFlush {
				res.Remainder = buf[offset+4:]
				res.FlushFound = true
				return res, nil
			}
			res.Frames = append(res.Frames, Frame{Raw: buf[offset : offset+4], Flush: true})
			offset += 4
			continue
		}
		if n < 4 {
			return res, gerrors.New(gerrors.KindInvalidPacket)
		}
		if offset+n > len(buf) {
			if tolerateTruncation {
				res.Remainder = buf[offset:]
				return res, nil
			}
			return res, gerrors.New(gerrors.KindInvalidPacket)
		}
		frame := buf[offset : offset+n]
		res.Frames = append(res.Frames, Frame{Raw: frame, Payload: frame[4:]})
		offset += n
	}
	return res, nil
}
