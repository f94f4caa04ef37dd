package tap

import "encoding/binary"

// Capture record header byte offsets, grounded in the macOS bpf_hdr layout
// (struct BPF_TIMEVAL bh_tstamp; bpf_u_int32 bh_caplen; bpf_u_int32
// bh_datalen; u_short bh_hdrlen;) referenced by
// original_source/MacOSNetworkTapInterface.cc. Fields are read at these
// fixed byte offsets rather than via a Go struct, since the kernel's layout
// is not guaranteed to match Go's natural alignment.
const (
	captureCaplenOffset  = 8
	captureWirelenOffset = 12
	captureHdrlenOffset  = 16
	captureMinHeaderSize = 18
	captureWordAlign     = 4
)

// alignUp rounds n up to the next multiple of captureWordAlign, matching
// the kernel's BPF_WORDALIGN record spacing.
func alignUp(n int) int {
	return (n + captureWordAlign - 1) &^ (captureWordAlign - 1)
}

// ParseCaptureBuffer splits a raw capture-device read into the individual
// Ethernet frames it contains, in capture order. A malformed record header
// is skipped (the offset still advances by the aligned record size) rather
// than aborting the whole buffer — it does not panic and does not stop
// parsing of subsequent records.
func ParseCaptureBuffer(buf []byte) [][]byte {
	var frames [][]byte
	size := len(buf)

	for offset := 0; offset < size; {
		if offset+captureMinHeaderSize > size {
			break
		}

		hdrlen := int(binary.NativeEndian.Uint16(buf[offset+captureHdrlenOffset : offset+captureHdrlenOffset+2]))
		caplen := int(binary.NativeEndian.Uint32(buf[offset+captureCaplenOffset : offset+captureCaplenOffset+4]))

		advance := alignUp(hdrlen + caplen)
		if advance <= 0 {
			// The kernel contract guarantees hdrlen >= sizeof(header) > 0,
			// but never trust a read buffer enough to spin forever on it.
			break
		}

		if caplen > 0 && offset+hdrlen+caplen <= size {
			payload := buf[offset+hdrlen : offset+hdrlen+caplen]
			frame := make([]byte, len(payload))
			copy(frame, payload)
			frames = append(frames, frame)
		}

		offset += advance
	}

	return frames
}
