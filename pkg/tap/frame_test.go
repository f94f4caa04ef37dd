package tap

import "testing"

func ethHeader(dst, src [6]byte, etherType uint16) []byte {
	h := make([]byte, 14)
	copy(h[0:6], dst[:])
	copy(h[6:12], src[:])
	h[12] = byte(etherType >> 8)
	h[13] = byte(etherType)
	return h
}

// TestClassifySizeIPv4 covers spec scenario S1: a 14-byte Ethernet II header
// followed by a 40-byte IPv4 packet (20-byte header plus payload) whose
// Total Length field is 40.
func TestClassifySizeIPv4(t *testing.T) {
	dst := [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	src := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	frame := append(ethHeader(dst, src, 0x0800), make([]byte, 40)...)
	// IPv4 Total Length at byte offset 2 of the IP header = 0x0028 (40).
	frame[14+2] = 0x00
	frame[14+3] = 0x28

	if got := ClassifySize(frame); got != 54 {
		t.Errorf("ClassifySize() = %d, want 54", got)
	}
}

// TestClassifySizeARP covers spec scenario S2.
func TestClassifySizeARP(t *testing.T) {
	dst := [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	src := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	frame := append(ethHeader(dst, src, 0x0806), make([]byte, 8+2*(6+4))...)
	frame[14+4] = 6 // hlen
	frame[14+5] = 4 // plen

	want := FrameSize(14 + 8 + 2*(6+4))
	if got := ClassifySize(frame); got != want {
		t.Errorf("ClassifySize() = %d, want %d", got, want)
	}
}

// TestClassifySizeVLAN covers spec scenario S3: VLAN-tagged IPv6, asserting
// the corrected (40 + Payload Length) IPv6 rule.
func TestClassifySizeVLAN(t *testing.T) {
	dst := [6]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}
	src := [6]byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	frame := ethHeader(dst, src, 0x8100)
	frame = append(frame, 0x00, 0x0a) // VLAN tag control info
	frame = append(frame, 0x86, 0xDD) // inner EtherType: IPv6
	ipv6 := make([]byte, 40)          // Payload Length = 0
	frame = append(frame, ipv6...)

	if got := ClassifySize(frame); got != 58 {
		t.Errorf("ClassifySize() = %d, want 58", got)
	}
}

func TestClassifySizeUnsupported(t *testing.T) {
	dst := [6]byte{}
	src := [6]byte{}
	for _, et := range []uint16{0x8035, 0x809B, 0x80F3, 0x8137, 0x9000, 0xDEAD} {
		frame := ethHeader(dst, src, et)
		if got := ClassifySize(frame); got != FrameUnsupported {
			t.Errorf("ClassifySize(etherType=0x%04X) = %d, want FrameUnsupported", et, got)
		}
	}
}

func TestClassifySizeIncomplete(t *testing.T) {
	if got := ClassifySize(nil); got != FrameIncomplete {
		t.Errorf("ClassifySize(nil) = %d, want FrameIncomplete", got)
	}
	if got := ClassifySize(make([]byte, 13)); got != FrameIncomplete {
		t.Errorf("ClassifySize(13 bytes) = %d, want FrameIncomplete", got)
	}

	dst := [6]byte{}
	src := [6]byte{}
	// IPv4 header present but truncated before the Total Length field.
	frame := append(ethHeader(dst, src, 0x0800), 0x45, 0x00)
	if got := ClassifySize(frame); got != FrameIncomplete {
		t.Errorf("ClassifySize(truncated IPv4) = %d, want FrameIncomplete", got)
	}
}

// TestClassifySizeClosedFormIPv4 is invariant #1 from spec.md §8: for any
// byte sequence whose IPv4 Total Length field is L, classifying the frame
// plus trailing junk yields 14+L once enough bytes are present, else
// incomplete.
func TestClassifySizeClosedFormIPv4(t *testing.T) {
	dst := [6]byte{0xaa}
	src := [6]byte{0xbb}
	const totalLength = 30
	ip := make([]byte, 20)
	ip[2] = 0
	ip[3] = totalLength
	frame := append(ethHeader(dst, src, 0x0800), ip...)

	junk := make([]byte, 10)
	full := append(append([]byte{}, frame...), junk...)
	if got := ClassifySize(full); got != 14+totalLength {
		t.Errorf("ClassifySize() = %d, want %d", got, 14+totalLength)
	}

	short := full[:14+totalLength-1]
	if got := ClassifySize(short); got != FrameIncomplete {
		t.Errorf("ClassifySize(short) = %d, want FrameIncomplete", got)
	}
}

// TestClassifySizeVLANTransparency is invariant #2 from spec.md §8.
func TestClassifySizeVLANTransparency(t *testing.T) {
	dst := [6]byte{0x01}
	src := [6]byte{0x02}
	ip := make([]byte, 28)
	ip[2], ip[3] = 0, 28

	plain := append(ethHeader(dst, src, 0x0800), ip...)
	vlan := ethHeader(dst, src, 0x8100)
	vlan = append(vlan, 0x00, 0x01, 0x08, 0x00)
	vlan = append(vlan, ip...)

	plainSize := ClassifySize(plain)
	vlanSize := ClassifySize(vlan)
	if vlanSize != plainSize+4 {
		t.Errorf("ClassifySize(vlan) = %d, want %d", vlanSize, plainSize+4)
	}
}
