// Package codec implements the Client Framing Codec: the two wire framings
// a client stream socket can speak (self-delimited and length-prefixed),
// symmetric encode and decode.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fuzziqersoftware/tapserver/pkg/tap"
)

// ErrUnsupportedFrame is returned by Decode in self-delimited mode when the
// Frame-Size Classifier cannot place a boundary in the accumulated buffer
// (spec.md §4.5: "cannot determine frame size" is a fatal protocol error).
var ErrUnsupportedFrame = errors.New("codec: cannot determine frame size")

// Mode selects the wire framing in use for the client socket.
type Mode int

const (
	// SelfDelimited frames have no prefix; boundaries come from the
	// Frame-Size Classifier.
	SelfDelimited Mode = iota
	// LengthPrefixed frames are preceded by a 16-bit native-byte-order
	// length.
	LengthPrefixed
)

const lengthPrefixSize = 2

// Codec decodes and encodes frames for one mode.
type Codec struct {
	mode Mode
	// onSizeWarning, if set, is called in length-prefixed mode whenever
	// the classifier's computed size disagrees with the declared length.
	// Purely diagnostic (spec.md §4.5, §11): never alters decoding.
	onSizeWarning func(declared, computed int, frame []byte)
}

// New returns a Codec for mode.
func New(mode Mode) *Codec {
	return &Codec{mode: mode}
}

// OnSizeWarning registers a callback invoked in length-prefixed mode when
// the computed frame size (via the classifier) differs from the declared
// length prefix. Used to drive --show-size-warnings.
func (c *Codec) OnSizeWarning(fn func(declared, computed int, frame []byte)) {
	c.onSizeWarning = fn
}

// Decode consumes as many complete frames as buf contains and returns them
// along with the number of bytes consumed from buf. The caller retains any
// trailing partial frame (spec.md §4.6: "retain the trailing partial frame
// in the accumulator").
func (c *Codec) Decode(buf []byte) (frames [][]byte, consumed int, err error) {
	switch c.mode {
	case LengthPrefixed:
		return c.decodeLengthPrefixed(buf)
	default:
		return c.decodeSelfDelimited(buf)
	}
}

func (c *Codec) decodeSelfDelimited(buf []byte) ([][]byte, int, error) {
	var frames [][]byte
	offset := 0
	for {
		remaining := buf[offset:]
		size := tap.ClassifySize(remaining)
		switch {
		case size == tap.FrameIncomplete:
			return frames, offset, nil
		case size == tap.FrameUnsupported:
			return frames, offset, ErrUnsupportedFrame
		case int(size) > len(remaining):
			// ClassifySize already reports FrameIncomplete when the
			// computed size runs past the buffer; this guard keeps Decode
			// from over-reading regardless, mirroring the original's
			// end_offset > read_buffer.size() guard.
			return frames, offset, nil
		default:
			frames = append(frames, append([]byte(nil), remaining[:size]...))
			offset += int(size)
		}
	}
}

func (c *Codec) decodeLengthPrefixed(buf []byte) ([][]byte, int, error) {
	var frames [][]byte
	offset := 0
	for {
		remaining := buf[offset:]
		// Never read a length prefix without at least 2 bytes available
		// (spec.md §4.5 edge case).
		if len(remaining) < lengthPrefixSize {
			return frames, offset, nil
		}
		length := int(binary.NativeEndian.Uint16(remaining[:lengthPrefixSize]))
		if len(remaining) < lengthPrefixSize+length {
			return frames, offset, nil
		}

		frame := append([]byte(nil), remaining[lengthPrefixSize:lengthPrefixSize+length]...)
		if c.onSizeWarning != nil {
			if computed := tap.ClassifySize(frame); computed != tap.FrameIncomplete && int(computed) != length {
				c.onSizeWarning(length, int(computed), frame)
			}
		}

		frames = append(frames, frame)
		offset += lengthPrefixSize + length
	}
}

// Encode renders a single frame for the wire: the bare payload in
// self-delimited mode, or a 16-bit native-byte-order length prefix followed
// by the payload in length-prefixed mode.
func (c *Codec) Encode(frame []byte) ([]byte, error) {
	if c.mode != LengthPrefixed {
		return frame, nil
	}
	if len(frame) > 0xFFFF {
		return nil, fmt.Errorf("codec: frame too large for 16-bit length prefix: %d bytes", len(frame))
	}
	out := make([]byte, lengthPrefixSize+len(frame))
	binary.NativeEndian.PutUint16(out[:lengthPrefixSize], uint16(len(frame)))
	copy(out[lengthPrefixSize:], frame)
	return out, nil
}
