// Package config loads ctftp.conf: a line-oriented key=value file with
// '#'/';' comments (spec.md §6). A missing file is not an error — the server
// starts with defaults. This mirrors original_source/src/config.c closely:
// same keys, same defaults, same tolerant-skip-malformed-lines behavior.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/seifzadeh/ctftp/internal/ctftplog"
)

// MaxListeners bounds the listeners[] list (spec.md §3).
const MaxListeners = 8

// Endpoint is one bind address/port pair.
type Endpoint struct {
	Addr string
	Port int
}

// Config is the server's read-only configuration snapshot (spec.md §3).
type Config struct {
	RootDir   string
	LogDir    string
	Listeners []Endpoint

	EventUDPHost string
	EventUDPPort int

	EventHTTPHost string
	EventHTTPPort int
	EventHTTPPath string

	TimeoutSec int
	MaxRetries int
	LogLevel   ctftplog.Level
}

// Defaults returns the configuration a missing or empty config file yields.
func Defaults() Config {
	return Config{
		RootDir:    "/var/tftp",
		LogDir:     "/var/tftp/logs",
		Listeners:  []Endpoint{{Addr: "0.0.0.0", Port: 69}},
		TimeoutSec: 3,
		MaxRetries: 5,
		LogLevel:   ctftplog.LevelInfo,
	}
}

// Load reads path and overlays recognized keys onto Defaults(). A missing
// file is not an error: it returns Defaults() unchanged.
func Load(path string) (Config, error) {
	cfg := Defaults()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, val, ok := splitKV(line)
		if !ok {
			continue
		}
		applyKey(&cfg, key, val)
	}
	if err := scanner.Err(); err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}

	return cfg, nil
}

func splitKV(line string) (key, val string, ok bool) {
	i := strings.IndexByte(line, '=')
	if i < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func applyKey(cfg *Config, key, val string) {
	switch key {
	case "root_dir":
		cfg.RootDir = val
	case "log_dir":
		cfg.LogDir = val
	case "listeners":
		if eps := parseListeners(val); len(eps) > 0 {
			cfg.Listeners = eps
		}
	case "event_udp":
		if host, port, ok := parseHostPort(val); ok {
			cfg.EventUDPHost = host
			cfg.EventUDPPort = port
		}
	case "event_http_url":
		if host, port, path, ok := parseHTTPURL(val); ok {
			cfg.EventHTTPHost = host
			cfg.EventHTTPPort = port
			cfg.EventHTTPPath = path
		}
	case "timeout_sec":
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			cfg.TimeoutSec = v
		}
	case "max_retries":
		if v, err := strconv.Atoi(val); err == nil && v > 0 {
			cfg.MaxRetries = v
		}
	case "log_level":
		switch val {
		case "error", "info", "debug":
			cfg.LogLevel = ctftplog.ParseLevel(val)
		}
	}
}

// parseListeners parses "ip:port,ip:port,..." up to MaxListeners entries,
// silently skipping malformed tokens.
func parseListeners(val string) []Endpoint {
	var out []Endpoint
	for _, tok := range strings.Split(val, ",") {
		tok = strings.TrimSpace(tok)
		host, port, ok := parseHostPort(tok)
		if !ok {
			continue
		}
		out = append(out, Endpoint{Addr: host, Port: port})
		if len(out) >= MaxListeners {
			break
		}
	}
	return out
}

func parseHostPort(val string) (host string, port int, ok bool) {
	val = strings.TrimSpace(val)
	if val == "" {
		return "", 0, false
	}
	i := strings.LastIndexByte(val, ':')
	if i < 0 {
		return "", 0, false
	}
	p, err := strconv.Atoi(val[i+1:])
	if err != nil {
		return "", 0, false
	}
	return val[:i], p, true
}

// parseHTTPURL parses "http://host[:port]/path", rejecting any other
// scheme. port defaults to 80, path defaults to "/".
func parseHTTPURL(val string) (host string, port int, path string, ok bool) {
	val = strings.TrimSpace(val)
	const prefix = "http://"
	if !strings.HasPrefix(val, prefix) {
		return "", 0, "", false
	}
	rest := val[len(prefix):]

	hostport := rest
	path = "/"
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		hostport = rest[:i]
		if rest[i+1:] != "" {
			path = "/" + rest[i+1:]
		}
	}
	if hostport == "" {
		return "", 0, "", false
	}

	port = 80
	host = hostport
	if i := strings.LastIndexByte(hostport, ':'); i >= 0 {
		host = hostport[:i]
		if p, err := strconv.Atoi(hostport[i+1:]); err == nil {
			port = p
		}
	}
	return host, port, path, true
}
