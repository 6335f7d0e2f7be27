// Package server wires configuration into a running set of listeners
// (spec.md §4.4): one goroutine per configured endpoint, sharing a single
// event Pipeline, running until every listener's socket is closed.
package server

import (
	"fmt"
	"sync"

	"github.com/seifzadeh/ctftp/internal/config"
	"github.com/seifzadeh/ctftp/internal/ctftplog"
	"github.com/seifzadeh/ctftp/internal/events"
	"github.com/seifzadeh/ctftp/internal/listener"
	"github.com/seifzadeh/ctftp/internal/session"
)

// Server supervises every bound listener and the shared event pipeline.
type Server struct {
	log       *ctftplog.Logger
	pipeline  *events.Pipeline
	listeners []*listener.Listener
}

// New binds every endpoint in cfg.Listeners and constructs the shared event
// pipeline. If any endpoint fails to bind, every listener already bound is
// closed and an error is returned (spec.md §4.4: a single listener failure
// fails startup).
func New(cfg config.Config, log *ctftplog.Logger) (*Server, error) {
	pipeline, err := events.NewPipeline(events.Config{
		Log:      log,
		UDPHost:  cfg.EventUDPHost,
		UDPPort:  cfg.EventUDPPort,
		HTTPHost: cfg.EventHTTPHost,
		HTTPPort: cfg.EventHTTPPort,
		HTTPPath: cfg.EventHTTPPath,
	})
	if err != nil {
		return nil, fmt.Errorf("server: failed to build event pipeline: %w", err)
	}

	deps := session.Deps{
		RootDir:    cfg.RootDir,
		TimeoutSec: cfg.TimeoutSec,
		MaxRetries: cfg.MaxRetries,
		Pipeline:   pipeline,
		Logger:     log,
	}

	s := &Server{log: log, pipeline: pipeline}
	for _, ep := range cfg.Listeners {
		l, err := listener.Listen(ep.Addr, ep.Port, log, deps)
		if err != nil {
			s.closeListeners()
			pipeline.Shutdown()
			return nil, fmt.Errorf("server: failed to bind %s:%d: %w", ep.Addr, ep.Port, err)
		}
		s.listeners = append(s.listeners, l)
	}

	return s, nil
}

// Run starts every listener's demux loop and blocks until all of them
// return (i.e. until every listener socket is closed).
func (s *Server) Run() {
	var wg sync.WaitGroup
	for _, l := range s.listeners {
		l := l
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Serve()
		}()
	}
	wg.Wait()
}

// Shutdown closes every listener socket and stops the event pipeline. It
// does not wait for in-flight sessions, each of which owns its own socket
// and terminates on its own schedule (spec.md §5 "Cancellation").
func (s *Server) Shutdown() {
	s.closeListeners()
	s.pipeline.Shutdown()
}

func (s *Server) closeListeners() {
	for _, l := range s.listeners {
		_ = l.Close()
	}
}
