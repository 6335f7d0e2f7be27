// Package session implements the per-transfer TFTP state machine of
// spec.md §4.2: SEND_BLOCK/WAIT_ACK stop-and-wait over a freshly bound
// per-session UDP socket, terminating in exactly one DONE or ERROR event.
//
// The core read/retransmit loop is grounded on
// _examples/eenblam-protohackers/7/session.go's writeWorker retransmission
// ticker and original_source/src/tftp.c's session_thread_main, adapted from
// a byte-stream session abstraction to TFTP's explicit block-numbered
// DATA/ACK exchange.
package session

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/seifzadeh/ctftp/internal/audit"
	"github.com/seifzadeh/ctftp/internal/ctftplog"
	"github.com/seifzadeh/ctftp/internal/events"
	"github.com/seifzadeh/ctftp/internal/safety"
	"github.com/seifzadeh/ctftp/internal/wire"
)

// Context is the per-transfer state a session owns for its whole lifetime
// (spec.md §3 "Session context"). It is created by the listener and owned
// exclusively by the session goroutine it's handed to.
type Context struct {
	ListenAddr string // the bind address of the listener that accepted this RRQ
	ClientIP   string
	ClientPort int
	Filename   string // as received on the wire, before path safety
}

// Deps are the server-wide collaborators a session needs. They are passed
// explicitly rather than referenced as globals (spec.md §9).
type Deps struct {
	RootDir    string
	TimeoutSec int
	MaxRetries int
	Pipeline   *events.Pipeline
	Logger     *ctftplog.Logger
}

const recvBufSize = 516 // 4-byte ACK header plus generous slack for stray oversized datagrams

// Serve runs one RRQ-driven transfer to completion. It always emits exactly
// one START event followed by exactly one terminal (DONE or ERROR) event,
// and — unless the filename was rejected by path safety — appends one audit
// line on exit.
func Serve(ctx Context, deps Deps) {
	id := uuid.NewString()
	log := deps.Logger.WithFields(map[string]interface{}{
		"session":     id,
		"client_ip":   ctx.ClientIP,
		"client_port": ctx.ClientPort,
		"filename":    ctx.Filename,
	})

	start := time.Now()
	startTS := events.ISOTimestamp(start)

	deps.Pipeline.Emit(events.Event{
		Type: events.KindStart, ClientIP: ctx.ClientIP, ClientPort: ctx.ClientPort,
		Filename: ctx.Filename, Status: "start", Message: "RRQ received",
		Start: startTS, End: startTS,
	})
	log.Debug("session started")

	safe, ok := safety.Sanitize(ctx.Filename)
	if !ok {
		log.Error("rejected unsafe filename")
		emitTerminal(deps, ctx, startTS, events.ISOTimestamp(time.Now()), 0, "error", "unsafe_filename")
		return // spec.md §4.6: no audit line for a rejected filename
	}

	path := filepath.Join(deps.RootDir, safe)
	f, err := os.Open(path)
	if err != nil {
		log.Errorf("failed to open file %s: %v", path, err)
		sendOneShotError(ctx, log)
		finish(deps, ctx, safe, startTS, 0, "error", "file_not_found")
		return
	}
	defer f.Close()

	listenIP := net.ParseIP(ctx.ListenAddr)
	if listenIP == nil {
		log.Errorf("invalid listener bind address %q", ctx.ListenAddr)
		finish(deps, ctx, safe, startTS, 0, "error", "bind_ip_invalid")
		return
	}
	clientIP := net.ParseIP(ctx.ClientIP)
	if clientIP == nil {
		log.Errorf("invalid client address %q", ctx.ClientIP)
		finish(deps, ctx, safe, startTS, 0, "error", "client_ip_invalid")
		return
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: listenIP, Port: 0})
	if err != nil {
		log.Errorf("failed to open session socket: %v", err)
		finish(deps, ctx, safe, startTS, 0, "error", "socket_failed")
		return
	}
	defer conn.Close()

	clientAddr := &net.UDPAddr{IP: clientIP, Port: ctx.ClientPort}

	bytesSent, status, message := transfer(conn, clientAddr, f, deps, log)
	finish(deps, ctx, safe, startTS, bytesSent, status, message)
}

// transfer runs the SEND_BLOCK/WAIT_ACK loop until the file is fully sent or
// the transfer fails, returning the total bytes acknowledged and the
// terminal status/message.
func transfer(conn *net.UDPConn, clientAddr *net.UDPAddr, f *os.File, deps Deps, log logFieldsEntry) (int64, string, string) {
	var (
		block     uint16 = 1
		totalSent int64
		payload   = make([]byte, wire.DataSize)
		recvBuf   = make([]byte, recvBufSize)
	)

	for {
		n, rerr := io.ReadFull(f, payload)
		if rerr != nil && rerr != io.EOF && rerr != io.ErrUnexpectedEOF {
			log.Errorf("read error: %v", rerr)
			_, _ = conn.WriteToUDP(wire.EncodeERROR(wire.ErrCodeUndefined, "Read error"), clientAddr)
			return totalSent, "error", "read_error"
		}

		pkt := wire.EncodeDATA(block, payload[:n])
		retries := 0

		for {
			if _, werr := conn.WriteToUDP(pkt, clientAddr); werr != nil {
				log.Errorf("sendto failed: %v", werr)
				return totalSent, "error", "transfer_failed"
			}

			if err := conn.SetReadDeadline(time.Now().Add(time.Duration(deps.TimeoutSec) * time.Second)); err != nil {
				return totalSent, "error", "transfer_failed"
			}

			rn, raddr, rerr2 := conn.ReadFromUDP(recvBuf)
			if rerr2 != nil {
				if isTimeout(rerr2) {
					if retries >= deps.MaxRetries {
						log.Errorf("max retries exceeded for block %d", block)
						return totalSent, "error", "transfer_failed"
					}
					retries++
					log.Debugf("timeout waiting for ACK(%d), retry %d", block, retries)
					continue
				}
				log.Errorf("recv error: %v", rerr2)
				return totalSent, "error", "transfer_failed"
			}

			// Drop (and silently resend, per spec.md §4.2 step 3/4) anything
			// that isn't a well-formed ACK(block) from the client's TID.
			if !sameUDPAddr(raddr, clientAddr) {
				log.Debugf("dropping datagram from unexpected source %s (expected %s)", raddr, clientAddr)
				continue
			}
			if rn < 4 {
				log.Debug("short datagram, retransmitting")
				continue
			}
			ack, aerr := wire.ParseACK(recvBuf[:rn])
			if aerr != nil || ack.Block != block {
				log.Debugf("unexpected packet (err=%v), retransmitting", aerr)
				continue
			}

			totalSent += int64(n)
			break
		}

		if n < wire.DataSize {
			return totalSent, "ok", "transfer_complete"
		}
		block++
		if block == 0 {
			block = 1 // spec.md §4.2: wrap to 1, not 0
		}
	}
}

func finish(deps Deps, ctx Context, safeFilename, startTS string, bytesSent int64, status, message string) {
	endTS := events.ISOTimestamp(time.Now())
	kind := events.KindDone
	if status != "ok" {
		kind = events.KindError
	}

	deps.Pipeline.Emit(events.Event{
		Type: kind, ClientIP: ctx.ClientIP, ClientPort: ctx.ClientPort,
		Filename: ctx.Filename, Bytes: bytesSent, Status: status, Message: message,
		Start: startTS, End: endTS,
	})

	audit.Write(deps.Logger, deps.RootDir, safeFilename, audit.Record{
		StartTS: startTS, EndTS: endTS, ClientIP: ctx.ClientIP, ClientPort: ctx.ClientPort,
		Bytes: bytesSent, Status: status, Message: message,
	})
}

// emitTerminal is finish's counterpart for the unsafe-filename path, which
// has no safe filename to audit-log against.
func emitTerminal(deps Deps, ctx Context, startTS, endTS string, bytesSent int64, status, message string) {
	deps.Pipeline.Emit(events.Event{
		Type: events.KindError, ClientIP: ctx.ClientIP, ClientPort: ctx.ClientPort,
		Filename: ctx.Filename, Bytes: bytesSent, Status: status, Message: message,
		Start: startTS, End: endTS,
	})
}

// sendOneShotError opens a transient UDP socket purely to deliver a single
// TFTP ERROR packet when no file handle was ever opened for a session
// socket (spec.md §4.2 "Pre-transfer failures" — file open fails).
func sendOneShotError(ctx Context, log logFieldsEntry) {
	listenIP := net.ParseIP(ctx.ListenAddr)
	if listenIP == nil {
		return
	}
	clientIP := net.ParseIP(ctx.ClientIP)
	if clientIP == nil {
		return
	}

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: listenIP, Port: 0})
	if err != nil {
		log.Errorf("failed to open transient error socket: %v", err)
		return
	}
	defer conn.Close()

	_, _ = conn.WriteToUDP(wire.EncodeERROR(wire.ErrCodeNotFound, "File not found"), &net.UDPAddr{IP: clientIP, Port: ctx.ClientPort})
}

func sameUDPAddr(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}

func isTimeout(err error) bool {
	ne, ok := err.(net.Error)
	return ok && ne.Timeout()
}

// logFieldsEntry is the minimal logging surface transfer/sendOneShotError
// need; *logrus.Entry satisfies it.
type logFieldsEntry interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})
	Error(args ...interface{})
	Errorf(format string, args ...interface{})
}
