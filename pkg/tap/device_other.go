//go:build !darwin

package tap

import "fmt"

// Open always fails on non-Darwin platforms. The endpoint lifecycle this
// package implements depends on feth pseudo-interfaces, AF_NDRV injection
// sockets, and /dev/bpf* capture devices, none of which exist outside the
// macOS kernel (spec.md Non-goals: no support for other platforms).
func Open(cfg Config) (*Device, error) {
	return nil, fmt.Errorf("tap: unsupported platform: requires macOS (feth/AF_NDRV/BPF)")
}
