package events

import (
	"encoding/json"
	"net"
	"strconv"
)

// udpSink sends each event as a single JSON datagram, fire-and-forget
// (spec.md §4.5.2). Modeled on the teacher's fire-and-forget UDP write
// pattern (_examples/eenblam-protohackers/4's srv.WriteTo). Errors are
// swallowed; there is no retry.
type udpSink struct {
	conn *net.UDPConn
}

func newUDPSink(host string, port int) (*udpSink, error) {
	raddr, err := net.ResolveUDPAddr("udp4", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}
	conn, err := net.DialUDP("udp4", nil, raddr)
	if err != nil {
		return nil, err
	}
	return &udpSink{conn: conn}, nil
}

func (s *udpSink) send(ev Event) {
	body, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = s.conn.Write(body)
}

func (s *udpSink) close() error {
	return s.conn.Close()
}
