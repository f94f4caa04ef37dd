// Package forwarder implements the Forwarder Loop: the single-threaded,
// poll-driven event loop that shuttles frames between the Tap I/O Facade
// and one client stream socket.
package forwarder

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"syscall"

	"github.com/fuzziqersoftware/tapserver/pkg/codec"
	"github.com/fuzziqersoftware/tapserver/pkg/logging"
	"github.com/fuzziqersoftware/tapserver/pkg/tap"
)

const clientReadBufferSize = 64 * 1024

// Options configures a single run of the Forwarder Loop.
type Options struct {
	Mode             codec.Mode
	ShowData         bool
	ShowSizeWarnings bool
	Logger           *logging.Logger
}

// Run drives frames between dev and conn until Shutdown is set, the capture
// descriptor hangs up, the client hangs up, or a component returns an
// unrecoverable error (spec.md §4.6). Shutdown is a shared one-way latch:
// a signal handler sets it from outside the loop; Run observes it after
// every poll wakeup.
func Run(dev *tap.Device, conn net.Conn, shutdown *atomic.Bool, opts Options) error {
	clientFD, err := connFD(conn)
	if err != nil {
		return fmt.Errorf("forwarder: client connection has no descriptor to poll: %w", err)
	}

	poller := dev.Poll()
	poller.Add(clientFD, tap.EventReadable)
	defer poller.Remove(clientFD)

	c := codec.New(opts.Mode)
	if opts.ShowSizeWarnings {
		c.OnSizeWarning(func(declared, computed int, frame []byte) {
			opts.logger().Warn("outbound frame size mismatch", logging.Fields{
				"declared": declared,
				"computed": computed,
			})
			fmt.Fprint(os.Stderr, hex.Dump(frame))
		})
	}

	var accumulator []byte

	for {
		ready, err := poller.Wait(-1)
		if err != nil {
			return fmt.Errorf("forwarder: poll: %w", err)
		}

		if ev, ok := ready[dev.FD()]; ok {
			if ev&tap.EventHangup != 0 {
				shutdown.Store(true)
			}
			if ev&tap.EventReadable != 0 {
				if err := handleCaptureReadable(dev, conn, c, opts); err != nil {
					return err
				}
			}
		}

		if ev, ok := ready[clientFD]; ok {
			if ev&tap.EventHangup != 0 {
				shutdown.Store(true)
			}
			if ev&tap.EventReadable != 0 {
				done, err := handleClientReadable(dev, conn, c, &accumulator)
				if err != nil {
					return err
				}
				if done {
					shutdown.Store(true)
				}
			}
		}

		if shutdown.Load() {
			return nil
		}
	}
}

// handleCaptureReadable implements spec.md §4.6 step 2: on_data_available
// once, then drain the FIFO to empty with repeated recv(0) calls.
func handleCaptureReadable(dev *tap.Device, conn net.Conn, c *codec.Codec, opts Options) error {
	if err := dev.OnDataAvailable(); err != nil {
		return err
	}

	for {
		frame, err := dev.Recv(0)
		if err != nil {
			return err
		}
		if frame == nil {
			return nil
		}

		if opts.ShowData {
			opts.logger().Debug("forwarding captured frame", logging.Fields{"bytes": len(frame)})
			fmt.Fprint(os.Stderr, hex.Dump(frame))
		}

		encoded, err := c.Encode(frame)
		if err != nil {
			return fmt.Errorf("forwarder: encode frame: %w", err)
		}
		if err := writeAll(conn, encoded); err != nil {
			return fmt.Errorf("forwarder: write to client: %w", err)
		}
	}
}

// handleClientReadable implements spec.md §4.6 step 3. A zero-length read
// indicates the client closed its side of the connection.
func handleClientReadable(dev *tap.Device, conn net.Conn, c *codec.Codec, accumulator *[]byte) (closed bool, err error) {
	buf := make([]byte, clientReadBufferSize)
	n, readErr := conn.Read(buf)
	if n > 0 {
		*accumulator = append(*accumulator, buf[:n]...)

		frames, consumed, decodeErr := c.Decode(*accumulator)
		*accumulator = (*accumulator)[consumed:]
		for _, frame := range frames {
			if sendErr := dev.Send(frame); sendErr != nil {
				return false, fmt.Errorf("forwarder: inject frame: %w", sendErr)
			}
		}
		if decodeErr != nil {
			return false, fmt.Errorf("forwarder: decode client stream: %w", decodeErr)
		}
	}
	if readErr != nil {
		// EOF and any other read error both mean the client side is done.
		return true, nil
	}
	return false, nil
}

// writeAll writes buf to conn in full; spec.md §4.6 requires writes be
// all-or-nothing.
func writeAll(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

// connFD extracts the underlying file descriptor of conn so it can be
// registered on the shared Poller alongside the capture descriptor
// (spec.md §11: the facade exposes its poll set so an embedding forwarder
// can multiplex its own descriptors on it).
func connFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, fmt.Errorf("connection type %T does not expose a descriptor", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if err := raw.Control(func(descriptor uintptr) {
		fd = int(descriptor)
	}); err != nil {
		return 0, err
	}
	return fd, nil
}

func (o Options) logger() *logging.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	l, _ := logging.New("forwarder", logging.INFO, "")
	return l
}
