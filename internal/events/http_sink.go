package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const httpQueueCapacity = 256
const httpSinkTimeout = 2 * time.Second

// httpSink asynchronously delivers events to an HTTP/1.1 endpoint through a
// bounded, overwrite-oldest ring buffer and a single consumer goroutine
// (spec.md §4.5.3). Failures are swallowed; there are no retries.
type httpSink struct {
	url    string
	host   string
	client *http.Client
	queue  *ring
	done   chan struct{}
}

func newHTTPSink(host string, port int, path string) *httpSink {
	if path == "" {
		path = "/"
	}
	s := &httpSink{
		url:  fmt.Sprintf("http://%s:%d%s", host, port, path),
		host: host,
		// DisableKeepAlives forces a fresh TCP connection per request, and the
		// client-wide Timeout bounds connect+send+receive together at 2s, per
		// spec.md §4.5.3's "fresh TCP connection ... 2-second send and receive
		// timeouts".
		client: &http.Client{
			Timeout:   httpSinkTimeout,
			Transport: &http.Transport{DisableKeepAlives: true},
		},
		queue: newRing(httpQueueCapacity),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

// enqueue pushes ev onto the ring buffer, overwriting the oldest event on
// overflow. Never blocks the calling session.
func (s *httpSink) enqueue(ev Event) {
	s.queue.push(ev)
}

func (s *httpSink) run() {
	defer close(s.done)
	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		// pop still hands back events queued before stop; once stopped, the
		// consumer returns instead of delivering them.
		s.queue.mu.Lock()
		stopped := s.queue.stopped
		s.queue.mu.Unlock()
		if stopped {
			return
		}
		s.deliver(ev)
	}
}

func (s *httpSink) deliver(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}

	req, err := http.NewRequest(http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Host", s.host)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Connection", "close")
	req.Close = true

	resp, err := s.client.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}

// stop wakes the consumer and waits for it to return. Per spec.md §4.5.3,
// this does not drain events still queued.
func (s *httpSink) stop() {
	s.queue.stop()
	<-s.done
}
