// Package ctftplog is a small logrus-backed leveled logger for the server's
// own append-only log file (spec.md §6, "<log_dir>/ctftp.log"). It maps the
// three configured levels (error, info, debug) onto logrus levels and leaves
// file rotation to an external tool, matching spec.md §1's scoping of "the
// generic logger's file rotation/formatting" as an external collaborator.
package ctftplog

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Level is one of the three levels spec.md §6 recognizes for log_level.
type Level int

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

// ParseLevel maps the config file's string values onto a Level, defaulting
// to LevelInfo for anything unrecognized.
func ParseLevel(s string) Level {
	switch s {
	case "error":
		return LevelError
	case "debug":
		return LevelDebug
	default:
		return LevelInfo
	}
}

func (l Level) logrusLevel() logrus.Level {
	switch l {
	case LevelError:
		return logrus.ErrorLevel
	case LevelDebug:
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// Logger wraps a *logrus.Logger writing to <log_dir>/ctftp.log.
type Logger struct {
	lg *logrus.Logger
}

// New opens (creating if necessary) logDir/ctftp.log in append mode and
// returns a Logger at the given level. The file is never rotated by this
// process.
func New(logDir string, level Level) (*Logger, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(logDir, "ctftp.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	lg := logrus.New()
	lg.SetOutput(io.MultiWriter(f, os.Stderr))
	lg.SetLevel(level.logrusLevel())
	lg.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	return &Logger{lg: lg}, nil
}

// WithFields returns a structured field builder scoped to this logger.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.lg.WithFields(fields)
}

func (l *Logger) Errorf(format string, args ...interface{}) { l.lg.Errorf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.lg.Infof(format, args...) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.lg.Debugf(format, args...) }
