//go:build darwin

package tap

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// AF_NDRV is the macOS-specific "network driver" address family used to
// inject raw frames onto a named link. golang.org/x/sys/unix does not
// export it (no mainstream Go consumer needs it), so it's declared here
// from <net/ndrv.h>, alongside the minimal sockaddr_ndrv mirror needed to
// bind/connect an AF_NDRV socket by interface name.
const (
	sysAFNDRV       = 27
	ndrvNameMax     = 12 // sizeof(((struct sockaddr_ndrv*)0)->snd_name)
	sizeofSockaddr  = 2 + ndrvNameMax
)

type rawSockaddrNdrv struct {
	Len    uint8
	Family uint8
	Name   [ndrvNameMax]byte
}

// BPF capture ioctls (spec.md §4.3 step 11), named after <net/bpf.h>.
// golang.org/x/sys/unix exposes these on darwin.
const (
	biocSBLEN      = unix.BIOCSBLEN
	biocImmediate  = unix.BIOCIMMEDIATE
	biocSSeeSent   = unix.BIOCSSEESENT
	biocSetIf      = unix.BIOCSETIF
	biocSHdrCmplt  = unix.BIOCSHDRCMPLT
	biocPromisc    = unix.BIOCPROMISC
)

// ifreqName is the minimal ifreq shape BIOCSETIF needs: a 16-byte
// interface name, nothing else.
type ifreqName struct {
	Name [unix.IFNAMSIZ]byte
}

// IPv6 neighbor-discovery ioctls (spec.md §4.3 step 8), named after
// <netinet6/in6_var.h> and <netinet6/nd6.h>. golang.org/x/sys/unix does not
// export these macOS-only request codes, so they're computed here with the
// same _IOWR encoding the original C++ source uses.
const (
	iocOut   = 0x40000000
	iocIn    = 0x80000000
	iocInOut = iocIn | iocOut

	sizeofIn6Ndireq = unix.IFNAMSIZ + 28 // ifname + struct nd_ifinfo
	sizeofIn6Ifreq  = unix.IFNAMSIZ + 28 // ifname + sockaddr_in6-sized union

	siocgIfInfoIn6   = iocInOut | (sizeofIn6Ndireq << 16) | ('i' << 8) | 108
	siocsIfInfoFlags = iocInOut | (sizeofIn6Ndireq << 16) | ('i' << 8) | 109

	ndFlagPerformNUD = 0x1 // ND6_IFF_PERFORMNUD

	siocAcceptRtrAdv = iocInOut | (sizeofIn6Ifreq << 16) | ('i' << 8) | 132
	siocIgnoreRtrAdv = iocInOut | (sizeofIn6Ifreq << 16) | ('i' << 8) | 133
)

type in6Ndireq struct {
	Name  [unix.IFNAMSIZ]byte
	Flags uint32
	_     [24]byte // remaining struct nd_ifinfo fields, unused here
}

type in6Ifreq struct {
	Name [unix.IFNAMSIZ]byte
	_    [28]byte
}

// Open creates the paired virtual Ethernet endpoints, configures them, and
// attaches the injection socket and capture device, per the twelve steps
// of spec.md §4.3. Already-created resources are torn down before the
// error is returned if any step fails.
func Open(cfg Config) (*Device, error) {
	if os.Geteuid() != 0 {
		return nil, fmt.Errorf("tap: permission denied: must run as root to create interfaces and open raw sockets")
	}

	ifc := newIfconfigRunner(cfg.IfconfigCmd)

	// Step 2: injection socket.
	injectFD, err := unix.Socket(sysAFNDRV, unix.SOCK_RAW, 0)
	if err != nil {
		return nil, fmt.Errorf("tap: cannot open network driver socket: %w", err)
	}

	d := &Device{cfg: cfg, injectFD: injectFD}
	var created struct {
		io, net bool
	}
	rollback := func() {
		if created.net {
			_ = ifc.run(d.networkDeviceName, "destroy")
		}
		if created.io {
			_ = ifc.run(d.ioDeviceName, "destroy")
		}
		_ = unix.Close(injectFD)
	}

	d.ioDeviceName = fmt.Sprintf("feth%d", cfg.IODeviceNumber)
	d.networkDeviceName = fmt.Sprintf("feth%d", cfg.NetworkDeviceNumber)

	// Step 3: create both endpoints.
	if err := ifc.run(d.ioDeviceName, "create"); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: create io-side endpoint: %w", err)
	}
	created.io = true
	if err := ifc.run(d.networkDeviceName, "create"); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: create net-side endpoint: %w", err)
	}
	created.net = true

	// Step 4: configure net-side MAC and IPv4 address.
	if err := ifc.run(d.networkDeviceName, "lladdr", macString(cfg.MAC)); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: set net-side MAC: %w", err)
	}
	if err := ifc.run(d.networkDeviceName, ipv4String(cfg.IPv4)); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: set net-side IPv4 address: %w", err)
	}

	// Step 5: peer the pair.
	if err := ifc.run(d.ioDeviceName, "peer", d.networkDeviceName); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: peer endpoints: %w", err)
	}

	// Step 6: bring up both sides.
	if err := ifc.run(d.ioDeviceName, "mtu", fmt.Sprint(ioInjectMTU), "up"); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: bring up io-side: %w", err)
	}
	if err := ifc.run(d.networkDeviceName, "mtu", fmt.Sprint(cfg.MTU), "metric", fmt.Sprint(cfg.Metric), "up"); err != nil {
		rollback()
		return nil, fmt.Errorf("tap: bring up net-side: %w", err)
	}

	// Step 7: let the kernel finish interface activation.
	time.Sleep(100 * time.Millisecond)

	// Step 8: best-effort IPv6 flags. Failures are warnings, never fatal.
	configureIPv6Flags(d.networkDeviceName, cfg.NUDEnabled, cfg.RAEnabled)

	// Step 9: bind and connect the injection socket.
	if err := bindConnectNdrv(injectFD, d.ioDeviceName); err != nil {
		rollback()
		return nil, err
	}

	// Step 10: open the capture device.
	captureFD, err := openBPFDevice()
	if err != nil {
		rollback()
		return nil, err
	}

	// Step 11: configure capture.
	if err := configureBPF(captureFD, d.ioDeviceName); err != nil {
		_ = unix.Close(captureFD)
		rollback()
		return nil, err
	}

	d.captureFD = captureFD
	d.maxReadSize = captureReadBufferSize
	d.poller = NewPoller()
	d.poller.Add(captureFD, EventReadable)
	d.teardown = func() {
		_ = ifc.run(d.networkDeviceName, "destroy")
		_ = ifc.run(d.ioDeviceName, "destroy")
	}

	return d, nil
}

// bindConnectNdrv binds and connects an AF_NDRV socket to the named
// interface. Both are required so subsequent writes inject without
// needing a destination (spec.md §4.3 step 9). golang.org/x/sys/unix's
// typed Sockaddr interface has no AF_NDRV implementation, so this issues
// the bind/connect syscalls directly against a raw sockaddr_ndrv, exactly
// as the original C++ source does at the libc level.
func bindConnectNdrv(fd int, ifName string) error {
	if len(ifName)+1 > ndrvNameMax {
		return fmt.Errorf("tap: device name too long: %s", ifName)
	}

	var sa rawSockaddrNdrv
	sa.Len = sizeofSockaddr
	sa.Family = sysAFNDRV
	copy(sa.Name[:], ifName)

	if _, _, errno := unix.Syscall(unix.SYS_BIND, uintptr(fd), uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Sizeof(sa))); errno != 0 {
		return fmt.Errorf("tap: cannot bind network driver socket: %w", errno)
	}
	if _, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(fd), uintptr(unsafe.Pointer(&sa)), uintptr(unsafe.Sizeof(sa))); errno != 0 {
		return fmt.Errorf("tap: cannot connect network driver socket: %w", errno)
	}
	return nil
}

// openBPFDevice scans /dev/bpf0, /dev/bpf1, ... opening the first one that
// isn't already in use (spec.md §4.3 step 10).
func openBPFDevice() (int, error) {
	for i := 0; ; i++ {
		path := fmt.Sprintf("/dev/bpf%d", i)
		fd, err := unix.Open(path, unix.O_RDWR, 0)
		switch {
		case err == nil:
			return fd, nil
		case err == unix.EBUSY:
			continue
		case err == unix.ENOENT:
			return 0, fmt.Errorf("tap: no available /dev/bpf* device")
		default:
			return 0, fmt.Errorf("tap: open %s: %w", path, err)
		}
	}
}

// configureBPF applies the capture device settings of spec.md §4.3 step 11.
func configureBPF(fd int, ioDeviceName string) error {
	blen := captureReadBufferSize
	if err := unix.IoctlSetInt(fd, biocSBLEN, blen); err != nil {
		return fmt.Errorf("tap: cannot set receive buffer size: %w", err)
	}

	if err := unix.IoctlSetInt(fd, biocImmediate, 1); err != nil {
		return fmt.Errorf("tap: cannot enable immediate mode: %w", err)
	}

	if err := unix.IoctlSetInt(fd, biocSSeeSent, 0); err != nil {
		return fmt.Errorf("tap: cannot disable sent frame availability: %w", err)
	}

	var ifr ifreqName
	copy(ifr.Name[:], ioDeviceName)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(biocSetIf), uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		return fmt.Errorf("tap: cannot attach to interface: %w", errno)
	}

	if err := unix.IoctlSetInt(fd, biocSHdrCmplt, 1); err != nil {
		return fmt.Errorf("tap: cannot enable header autocomplete: %w", err)
	}

	if err := unix.IoctlSetInt(fd, biocPromisc, 1); err != nil {
		return fmt.Errorf("tap: cannot enable promiscuous mode: %w", err)
	}

	return nil
}

// configureIPv6Flags is best-effort: every failure is a warning, never
// fatal (spec.md §4.3 step 8, §7 "best-effort warnings").
func configureIPv6Flags(ifName string, nudEnabled, raEnabled bool) {
	s, err := unix.Socket(unix.AF_INET6, unix.SOCK_DGRAM, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, "warning: cannot create IPv6 socket for setting flags")
		return
	}
	defer unix.Close(s)

	var nd in6Ndireq
	copy(nd.Name[:], ifName)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s), uintptr(siocgIfInfoIn6), uintptr(unsafe.Pointer(&nd))); errno != 0 {
		fmt.Fprintln(os.Stderr, "warning: cannot get IPv6 behavior flags")
		return
	}

	origFlags := nd.Flags
	if nudEnabled {
		nd.Flags |= ndFlagPerformNUD
	} else {
		nd.Flags &^= ndFlagPerformNUD
	}

	if origFlags != nd.Flags {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s), uintptr(siocsIfInfoFlags), uintptr(unsafe.Pointer(&nd))); errno != 0 {
			verb := "disable"
			if nudEnabled {
				verb = "enable"
			}
			fmt.Fprintf(os.Stderr, "warning: cannot %s IPv6 neighbor unreachability detection: %v\n", verb, errno)
			return
		}
	}

	var ifr in6Ifreq
	copy(ifr.Name[:], ifName)
	req := uintptr(siocIgnoreRtrAdv)
	if raEnabled {
		req = uintptr(siocAcceptRtrAdv)
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(s), req, uintptr(unsafe.Pointer(&ifr))); errno != 0 {
		verb := "disable"
		if raEnabled {
			verb = "enable"
		}
		fmt.Fprintf(os.Stderr, "warning: cannot %s IPv6 router advertisements: %v\n", verb, errno)
	}
}
