package tap

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrCaptureClosed is returned by OnDataAvailable when the capture
// descriptor reports EOF (a zero-length read), meaning the interface was
// torn down out from under the program.
var ErrCaptureClosed = errors.New("tap: capture interface was closed")

// Config holds the immutable-after-open interface configuration described
// in spec.md §3.
type Config struct {
	NetworkDeviceNumber int
	IODeviceNumber      int
	MAC                 [6]byte
	IPv4                [4]byte
	MTU                 int
	Metric              int
	NUDEnabled          bool
	RAEnabled           bool
	IfconfigCmd         string
}

// DefaultConfig returns the CLI defaults from spec.md §6.
func DefaultConfig() Config {
	return Config{
		NetworkDeviceNumber: 1,
		IODeviceNumber:      2,
		MAC:                 [6]byte{0x90, 0x90, 0x90, 0x90, 0x90, 0x90},
		IPv4:                [4]byte{172, 30, 0, 1},
		MTU:                 1500,
		Metric:              0,
		NUDEnabled:          true,
		RAEnabled:           false,
		IfconfigCmd:         "ifconfig",
	}
}

// ioInjectMTU is the fixed io-side MTU (spec.md §3 invariant): large enough
// that it never fragments frames destined for the user-configurable
// net-side MTU.
const ioInjectMTU = 16370

// captureReadBufferSize is the BPF receive buffer size set during open
// (spec.md §4.3 step 11), recorded as max_read_size.
const captureReadBufferSize = 128 * 1024

// Device is the Tap I/O Facade (spec.md §4.4): it owns the injection
// socket, the capture descriptor, the captured-frame FIFO, and the shared
// Poller an embedding forwarder multiplexes alongside its own descriptors.
//
// All methods are expected to be called from a single goroutine; the FIFO
// is not synchronized.
type Device struct {
	cfg Config

	injectFD    int
	captureFD   int
	maxReadSize int

	networkDeviceName string
	ioDeviceName       string

	poller *Poller
	fifo   [][]byte

	teardown func()
}

// Send writes a single raw Ethernet frame to the injection socket. The
// write is retried until the whole frame is delivered (spec.md §4.4).
func (d *Device) Send(frame []byte) error {
	for len(frame) > 0 {
		n, err := unix.Write(d.injectFD, frame)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return fmt.Errorf("tap: write to injection socket: %w", err)
		}
		frame = frame[n:]
	}
	return nil
}

// Recv pops the oldest captured frame if one is already queued; otherwise
// it waits on the Poller up to timeoutMs, and if the capture descriptor
// becomes readable, drains exactly one read's worth of capture records
// before returning. Returns a nil slice (not an error) if no frame is
// available within the timeout.
func (d *Device) Recv(timeoutMs int) ([]byte, error) {
	if len(d.fifo) == 0 {
		ready, err := d.poller.Wait(timeoutMs)
		if err != nil {
			return nil, err
		}
		if ev, ok := ready[d.captureFD]; ok && ev&EventReadable != 0 {
			if err := d.OnDataAvailable(); err != nil {
				return nil, err
			}
		}
	}

	if len(d.fifo) == 0 {
		return nil, nil
	}
	frame := d.fifo[0]
	d.fifo = d.fifo[1:]
	return frame, nil
}

// FD returns the capture descriptor, for an embedding forwarder that wants
// to multiplex it alongside other descriptors.
func (d *Device) FD() int { return d.captureFD }

// Poll returns the Poller the capture descriptor is registered on, shared
// with the caller so it can register its own descriptors (e.g. the client
// socket) on the same poll set.
func (d *Device) Poll() *Poller { return d.poller }

// MaxReadSize returns the configured BPF read buffer size.
func (d *Device) MaxReadSize() int { return d.maxReadSize }

// NetworkDeviceName returns the net-side interface name (e.g. "feth1").
func (d *Device) NetworkDeviceName() string { return d.networkDeviceName }

// IODeviceName returns the io-side interface name (e.g. "feth2").
func (d *Device) IODeviceName() string { return d.ioDeviceName }

// OnDataAvailable reads up to MaxReadSize bytes from the capture
// descriptor and parses them into the FIFO. A zero-length read
// (ErrCaptureClosed) or a read error is always fatal.
func (d *Device) OnDataAvailable() error {
	buf := make([]byte, d.maxReadSize)
	n, err := unix.Read(d.captureFD, buf)
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("tap: read from capture device: %w", err)
	}
	if n == 0 {
		return ErrCaptureClosed
	}

	frames := ParseCaptureBuffer(buf[:n])
	d.fifo = append(d.fifo, frames...)
	return nil
}

// Close tears down the capture descriptor, the injection socket, and the
// two virtual endpoints. Every step is best-effort (spec.md §4.3 teardown):
// a failure does not stop the remaining teardown steps. Failures closing
// the two descriptors are returned joined; failures of the endpoint destroy
// commands are not reported.
func (d *Device) Close() error {
	var errs []error
	if d.teardown != nil {
		d.teardown()
	}
	if d.poller != nil && d.captureFD != 0 {
		d.poller.Remove(d.captureFD)
	}
	if d.injectFD != 0 {
		if err := unix.Close(d.injectFD); err != nil {
			errs = append(errs, fmt.Errorf("close injection socket: %w", err))
		}
	}
	if d.captureFD != 0 {
		if err := unix.Close(d.captureFD); err != nil {
			errs = append(errs, fmt.Errorf("close capture device: %w", err))
		}
	}
	return errors.Join(errs...)
}
