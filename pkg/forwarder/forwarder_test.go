package forwarder

import (
	"io"
	"net"
	"testing"
)

// loopbackPair returns two ends of a real TCP loopback connection. The
// Forwarder Loop itself (Run) needs a *tap.Device, which in turn needs real
// macOS endpoints created by tap.Open — not something a unit test can fake
// without root and a darwin kernel. The helpers below are exercised
// directly instead; Run is exercised end to end via cmd/tapbridged.
func loopbackPair(t *testing.T) (a, b net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	acceptErr := make(chan error, 1)
	var server net.Conn
	go func() {
		var err error
		server, err = ln.Accept()
		acceptErr <- err
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	if err := <-acceptErr; err != nil {
		t.Fatalf("Accept: %v", err)
	}
	return client, server
}

func TestWriteAllDeliversFullBuffer(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	payload := make([]byte, 256*1024)
	for i := range payload {
		payload[i] = byte(i)
	}

	done := make(chan error, 1)
	go func() { done <- writeAll(client, payload) }()

	got := make([]byte, len(payload))
	if _, err := io.ReadFull(server, got); err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("writeAll: %v", err)
	}
	for i := range got {
		if got[i] != payload[i] {
			t.Fatalf("payload mismatch at byte %d", i)
		}
	}
}

func TestConnFDReturnsDistinctDescriptors(t *testing.T) {
	client, server := loopbackPair(t)
	defer client.Close()
	defer server.Close()

	cfd, err := connFD(client)
	if err != nil {
		t.Fatalf("connFD(client): %v", err)
	}
	sfd, err := connFD(server)
	if err != nil {
		t.Fatalf("connFD(server): %v", err)
	}
	if cfd <= 0 || sfd <= 0 {
		t.Fatalf("expected positive descriptors, got client=%d server=%d", cfd, sfd)
	}
	if cfd == sfd {
		t.Fatalf("expected distinct descriptors, got %d for both", cfd)
	}
}
