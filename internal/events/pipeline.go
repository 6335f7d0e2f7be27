package events

import (
	"github.com/seifzadeh/ctftp/internal/ctftplog"
)

// Pipeline fans an Event out to the local log, plus the optional UDP and
// HTTP sinks (spec.md §4.5). It is constructed once at server startup and
// passed by reference to listeners and sessions, rather than referenced as a
// global (spec.md §9 "Global mutable state").
type Pipeline struct {
	log  *ctftplog.Logger
	udp  *udpSink
	http *httpSink
}

// Config controls which optional sinks a Pipeline wires up.
type Config struct {
	Log *ctftplog.Logger

	UDPHost string
	UDPPort int

	HTTPHost string
	HTTPPort int
	HTTPPath string
}

// NewPipeline constructs a Pipeline. The UDP sink is created iff UDPHost is
// set and UDPPort is positive; the HTTP sink (and its consumer goroutine) iff
// HTTPHost is set and HTTPPort is positive.
func NewPipeline(cfg Config) (*Pipeline, error) {
	p := &Pipeline{log: cfg.Log}

	if cfg.UDPHost != "" && cfg.UDPPort > 0 {
		sink, err := newUDPSink(cfg.UDPHost, cfg.UDPPort)
		if err != nil {
			cfg.Log.Errorf("events: failed to create UDP event socket: %v", err)
		} else {
			p.udp = sink
		}
	}

	if cfg.HTTPHost != "" && cfg.HTTPPort > 0 {
		p.http = newHTTPSink(cfg.HTTPHost, cfg.HTTPPort, cfg.HTTPPath)
	}

	return p, nil
}

// Emit logs ev synchronously, fires a best-effort UDP datagram synchronously,
// and enqueues ev onto the HTTP sink's ring buffer if configured. It never
// blocks on HTTP delivery.
func (p *Pipeline) Emit(ev Event) {
	p.log.WithFields(map[string]interface{}{
		"event":       ev.Type.String(),
		"client_ip":   ev.ClientIP,
		"client_port": ev.ClientPort,
		"filename":    ev.Filename,
		"bytes":       ev.Bytes,
		"status":      ev.Status,
	}).Info(ev.Message)

	if p.udp != nil {
		p.udp.send(ev)
	}
	if p.http != nil {
		p.http.enqueue(ev)
	}
}

// Shutdown closes the UDP socket and stops the HTTP consumer goroutine,
// waiting for it to return without draining pending events (spec.md §4.5.3,
// §5 "Cancellation").
func (p *Pipeline) Shutdown() {
	if p.http != nil {
		p.http.stop()
	}
	if p.udp != nil {
		_ = p.udp.close()
	}
}
