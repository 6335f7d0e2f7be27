// Package listener implements the RRQ demultiplexer of spec.md §4.3: one
// bound UDP socket per configured endpoint, accepting only RRQ packets and
// spawning a fresh session worker for each.
//
// The read loop's shape — read, parse-or-drop, continue — is grounded on
// _examples/eenblam-protohackers/7/listener.go's listen(), adapted from that
// server's persistent per-peer session table to TFTP's one-shot-per-RRQ
// model: there is no session store here because a TFTP session owns its own
// ephemeral socket for the rest of the transfer (spec.md §4.2), so the
// listener never sees that session's packets again.
//
// The bind itself sets SO_REUSEADDR before binding (spec.md §4.3), via a
// net.ListenConfig.Control callback and golang.org/x/sys/unix.SetsockoptInt,
// matching the setsockopt(SO_REUSEADDR) call original_source/src/tftp.c
// makes ahead of its own bind().
package listener

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/seifzadeh/ctftp/internal/ctftplog"
	"github.com/seifzadeh/ctftp/internal/session"
	"github.com/seifzadeh/ctftp/internal/wire"
)

// Listener owns one bound UDP socket and dispatches RRQs off it.
type Listener struct {
	conn    *net.UDPConn
	addr    string
	log     *ctftplog.Logger
	deps    session.Deps
	serveFn func(session.Context, session.Deps) // swappable for tests
}

// Listen binds addr:port with SO_REUSEADDR set (spec.md §4.3) and returns a
// Listener ready to Serve.
func Listen(addr string, port int, log *ctftplog.Logger, deps session.Deps) (*Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			}); err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp4", net.JoinHostPort(addr, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)
	log.Infof("listening for RRQs on %s:%d", addr, port)

	return &Listener{conn: conn, addr: addr, log: log, deps: deps, serveFn: session.Serve}, nil
}

// Close stops accepting new RRQs. In-flight sessions, each on their own
// socket, are unaffected.
func (l *Listener) Close() error {
	return l.conn.Close()
}

// Serve runs the demux loop until the socket is closed. It never returns an
// error for a single bad datagram; only a closed socket ends the loop.
func (l *Listener) Serve() {
	buf := make([]byte, wire.MaxPacketSize)
	for {
		n, remote, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if isClosed(err) {
				return
			}
			l.log.Errorf("listener %s: read error: %v", l.addr, err)
			continue
		}

		op, err := wire.ParseOpcode(buf[:n])
		if err != nil {
			l.log.Debugf("listener %s: dropping malformed datagram from %s: %v", l.addr, remote, err)
			continue
		}
		if op != wire.OpRRQ {
			l.log.Debugf("listener %s: dropping non-RRQ opcode %d from %s", l.addr, op, remote)
			continue
		}

		rrq, err := wire.ParseRRQ(buf[:n])
		if err != nil {
			l.log.Debugf("listener %s: dropping malformed RRQ from %s: %v", l.addr, remote, err)
			continue
		}

		ctx := session.Context{
			ListenAddr: l.addr,
			ClientIP:   remote.IP.String(),
			ClientPort: remote.Port,
			Filename:   rrq.Filename,
		}
		go l.serveFn(ctx, l.deps)
	}
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
