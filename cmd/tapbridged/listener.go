package main

import (
	"net"
	"os"
	"strconv"
	"strings"
)

func chmodSocket(path string) error {
	return os.Chmod(path, 0777)
}

// listen implements spec.md §6's three --listen forms: a bare port (TCP, any
// address), ADDR:PORT (TCP, specific address), or /PATH (Unix domain,
// chmod 0777 after bind). Plain stdlib net.Listen/net.ListenUnix: no
// ecosystem library in the pack offers anything better suited to a single
// blocking accept (SPEC_FULL.md §6, DESIGN.md).
func listen(spec string) (net.Listener, error) {
	if strings.HasPrefix(spec, "/") {
		ln, err := net.Listen("unix", spec)
		if err != nil {
			return nil, newArgError("listen: %w", err)
		}
		if err := chmodSocket(spec); err != nil {
			ln.Close()
			return nil, newArgError("listen: chmod unix socket: %w", err)
		}
		return ln, nil
	}

	if _, err := strconv.Atoi(spec); err == nil {
		ln, err := net.Listen("tcp", ":"+spec)
		if err != nil {
			return nil, newArgError("listen: %w", err)
		}
		return ln, nil
	}

	if strings.Contains(spec, ":") {
		ln, err := net.Listen("tcp", spec)
		if err != nil {
			return nil, newArgError("listen: %w", err)
		}
		return ln, nil
	}

	return nil, newArgError("listen: %q is not a port, ADDR:PORT, or /PATH", spec)
}
