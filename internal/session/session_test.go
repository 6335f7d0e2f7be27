package session

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/seifzadeh/ctftp/internal/ctftplog"
	"github.com/seifzadeh/ctftp/internal/events"
	"github.com/seifzadeh/ctftp/internal/wire"
)

func testDeps(t *testing.T, rootDir string) Deps {
	t.Helper()
	lg, err := ctftplog.New(t.TempDir(), ctftplog.LevelDebug)
	if err != nil {
		t.Fatalf("ctftplog.New: %v", err)
	}
	p, err := events.NewPipeline(events.Config{Log: lg})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(p.Shutdown)
	return Deps{RootDir: rootDir, TimeoutSec: 1, MaxRetries: 2, Pipeline: p, Logger: lg}
}

// fakeClient listens on an ephemeral port and hands back its address, so a
// session can be driven exactly as a real TFTP client would.
func fakeClient(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestServeSingleBlockTransfer(t *testing.T) {
	root := t.TempDir()
	content := []byte("hello world")
	if err := os.WriteFile(filepath.Join(root, "greeting.txt"), content, 0o644); err != nil {
		t.Fatal(err)
	}

	client := fakeClient(t)
	host, portStr, _ := net.SplitHostPort(client.LocalAddr().String())
	port := mustPort(t, portStr)

	ctx := Context{ListenAddr: "127.0.0.1", ClientIP: host, ClientPort: port, Filename: "greeting.txt"}
	done := make(chan struct{})
	go func() {
		Serve(ctx, testDeps(t, root))
		close(done)
	}()

	buf := make([]byte, wire.MaxPacketSize)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, from, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("client did not receive DATA: %v", err)
	}
	if op, _ := wire.ParseOpcode(buf[:n]); op != wire.OpDATA {
		t.Fatalf("expected DATA opcode, got %v", op)
	}
	if string(buf[4:n]) != string(content) {
		t.Fatalf("got payload %q, want %q", buf[4:n], content)
	}

	ack := make([]byte, 4)
	ack[1] = byte(wire.OpACK)
	ack[3] = 1
	if _, err := client.WriteToUDP(ack, from); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestServeRetransmitsOnLostACK(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "f.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := fakeClient(t)
	host, portStr, _ := net.SplitHostPort(client.LocalAddr().String())
	port := mustPort(t, portStr)

	deps := testDeps(t, root)
	deps.TimeoutSec = 1
	deps.MaxRetries = 2

	ctx := Context{ListenAddr: "127.0.0.1", ClientIP: host, ClientPort: port, Filename: "f.bin"}
	done := make(chan struct{})
	go func() {
		Serve(ctx, deps)
		close(done)
	}()

	buf := make([]byte, wire.MaxPacketSize)
	client.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Drop the first DATA entirely; expect a retransmit of the same block.
	n1, from, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("first DATA not received: %v", err)
	}
	n2, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("retransmitted DATA not received: %v", err)
	}
	if n1 != n2 {
		t.Fatalf("retransmit size mismatch: %d != %d", n1, n2)
	}

	ack := make([]byte, 4)
	ack[1] = byte(wire.OpACK)
	ack[3] = 1
	if _, err := client.WriteToUDP(ack, from); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestServeUnsafeFilenameNoAuditLine(t *testing.T) {
	root := t.TempDir()
	client := fakeClient(t)
	host, portStr, _ := net.SplitHostPort(client.LocalAddr().String())
	port := mustPort(t, portStr)

	ctx := Context{ListenAddr: "127.0.0.1", ClientIP: host, ClientPort: port, Filename: "../../etc/passwd"}
	Serve(ctx, testDeps(t, root))

	entries, _ := os.ReadDir(root)
	if len(entries) != 0 {
		t.Fatalf("expected no audit file for a rejected filename, found %v", entries)
	}
}

func TestServeMissingFileSendsErrorAndAudits(t *testing.T) {
	root := t.TempDir()
	client := fakeClient(t)
	host, portStr, _ := net.SplitHostPort(client.LocalAddr().String())
	port := mustPort(t, portStr)

	ctx := Context{ListenAddr: "127.0.0.1", ClientIP: host, ClientPort: port, Filename: "nope.txt"}
	done := make(chan struct{})
	go func() {
		Serve(ctx, testDeps(t, root))
		close(done)
	}()

	buf := make([]byte, wire.MaxPacketSize)
	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := client.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("expected ERROR packet: %v", err)
	}
	if op, _ := wire.ParseOpcode(buf[:n]); op != wire.OpERROR {
		t.Fatalf("expected ERROR opcode, got %v", op)
	}

	<-done
	if _, err := os.Stat(filepath.Join(root, "nope.txt.log")); err != nil {
		t.Fatalf("expected audit line for missing file: %v", err)
	}
}

func mustPort(t *testing.T, s string) int {
	t.Helper()
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			t.Fatalf("not a port number: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n
}
