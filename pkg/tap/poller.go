package tap

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Events is a bitmask of poll(2) readiness events, matching POLLIN/POLLOUT/
// POLLHUP/etc from <poll.h>.
type Events int16

const (
	EventReadable Events = unix.POLLIN
	EventHangup   Events = unix.POLLHUP
)

// Poller is a small wrapper around poll(2) shared between the Tap I/O
// Facade and an embedding forwarder, so both the capture descriptor and a
// client socket can be multiplexed on one poll set. Grounded in the
// original C++ Poll class (add/remove/poll) referenced throughout
// original_source/MacOSNetworkTapInterface{.cc,.hh} and in the
// syscall.Poll/syscall.PollFd usage pattern from
// other_examples/c28c493c_packetcap-go-pcap__pcap_linux.go.go.
type Poller struct {
	fds   []unix.PollFd
	index map[int]int
}

// NewPoller returns an empty Poller.
func NewPoller() *Poller {
	return &Poller{index: make(map[int]int)}
}

// Add registers fd for the given events. Re-adding an already-registered fd
// updates its event mask.
func (p *Poller) Add(fd int, events Events) {
	if i, ok := p.index[fd]; ok {
		p.fds[i].Events = int16(events)
		return
	}
	p.index[fd] = len(p.fds)
	p.fds = append(p.fds, unix.PollFd{Fd: int32(fd), Events: int16(events)})
}

// Remove unregisters fd. It is a no-op if fd was never added.
func (p *Poller) Remove(fd int) {
	i, ok := p.index[fd]
	if !ok {
		return
	}
	last := len(p.fds) - 1
	p.fds[i] = p.fds[last]
	p.fds = p.fds[:last]
	delete(p.index, fd)
	if i != last {
		p.index[int(p.fds[i].Fd)] = i
	}
}

// Wait blocks until one of the registered descriptors is ready or
// timeoutMs elapses (-1 blocks forever), then returns the readiness events
// observed per descriptor.
func (p *Poller) Wait(timeoutMs int) (map[int]Events, error) {
	if len(p.fds) == 0 {
		return nil, nil
	}
	n, err := unix.Poll(p.fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, fmt.Errorf("poll: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	ready := make(map[int]Events, n)
	for _, pfd := range p.fds {
		if pfd.Revents != 0 {
			ready[int(pfd.Fd)] = Events(pfd.Revents)
		}
	}
	return ready, nil
}
