// Package tap implements the tap-interface engine: the Ethernet frame-size
// classifier, the BPF capture-record parser, and the lifecycle of the paired
// virtual Ethernet endpoints that back a tap device on macOS.
package tap

import "encoding/binary"

// FrameSize is the result of classifying the first bytes of an Ethernet
// frame. A positive value is the total frame length in bytes. The two
// sentinel values below mirror the original C++ get_frame_size contract.
type FrameSize int

const (
	// FrameIncomplete means the buffer is too short to determine the frame
	// size; the caller should wait for more bytes.
	FrameIncomplete FrameSize = 0
	// FrameUnsupported means the protocol cannot be sized by this classifier.
	FrameUnsupported FrameSize = -1
)

const ethernetHeaderSize = 14

// EtherType values this classifier knows how to size.
const (
	etherTypeIPv4    = 0x0800
	etherTypeARP     = 0x0806
	etherTypeVLAN    = 0x8100
	etherTypeIPv6    = 0x86DD
	etherTypeRARP    = 0x8035
	etherTypeAppleT  = 0x809B
	etherTypeAppleAR = 0x80F3
	etherTypeIPX     = 0x8137
	etherTypeLoop    = 0x9000
)

// ClassifySize computes the total length of an Ethernet II frame from its
// leading bytes alone, recursing into the payload by EtherType. It does not
// validate the frame beyond what's needed to read size fields; a corrupt
// payload may yield a garbage (but not panicking) result.
func ClassifySize(data []byte) FrameSize {
	if len(data) < ethernetHeaderSize {
		return FrameIncomplete
	}
	etherType := binary.BigEndian.Uint16(data[12:14])
	sub := classifyPayload(etherType, data[ethernetHeaderSize:])
	if sub <= 0 {
		return sub
	}
	total := FrameSize(ethernetHeaderSize) + sub
	// The size fields being readable only means the frame's length is
	// known, not that the whole frame has arrived yet — a frame whose
	// header is present but whose payload is still in flight must still
	// report incomplete (propagates through the VLAN recursion above
	// since sub is always computed relative to this same buffer).
	if int(total) > len(data) {
		return FrameIncomplete
	}
	return total
}

// classifyPayload sizes the payload that follows an Ethernet (or VLAN inner)
// header, given its EtherType.
func classifyPayload(etherType uint16, data []byte) FrameSize {
	switch etherType {
	case etherTypeIPv4:
		// IPv4 Total Length is a big-endian uint16 at byte offset 2.
		if len(data) < 4 {
			return FrameIncomplete
		}
		return FrameSize(binary.BigEndian.Uint16(data[2:4]))

	case etherTypeIPv6:
		// IPv6 fixed header is 40 bytes; Payload Length is a big-endian
		// uint16 at byte offset 4. The total frame size is the fixed header
		// plus the payload length (the original C++ source returns the
		// field alone, which undercounts by 40 bytes relative to every
		// other handler here — corrected per the spec's resolved open
		// question).
		if len(data) < 6 {
			return FrameIncomplete
		}
		payloadLen := binary.BigEndian.Uint16(data[4:6])
		return 40 + FrameSize(payloadLen)

	case etherTypeARP:
		// 8-byte fixed ARP header, then hlen-byte hardware addresses and
		// plen-byte protocol addresses, each appearing twice (sender +
		// target).
		if len(data) < 6 {
			return FrameIncomplete
		}
		hlen := int(data[4])
		plen := int(data[5])
		return FrameSize(8 + 2*(hlen+plen))

	case etherTypeVLAN:
		// 802.1Q: 2 bytes of tag control info we don't need, then the
		// inner EtherType, then the inner payload.
		if len(data) < 4 {
			return FrameIncomplete
		}
		innerType := binary.BigEndian.Uint16(data[2:4])
		sub := classifyPayload(innerType, data[4:])
		if sub > 0 {
			return 4 + sub
		}
		return sub

	case etherTypeRARP, etherTypeAppleT, etherTypeAppleAR, etherTypeIPX, etherTypeLoop:
		return FrameUnsupported

	default:
		return FrameUnsupported
	}
}
