// Package audit appends the per-request audit line spec.md §4.6 describes.
// Note the deliberate quirk carried forward from original_source/src/tftp.c's
// write_request_log: the audit file lives under root_dir (the served tree),
// not log_dir.
package audit

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/seifzadeh/ctftp/internal/ctftplog"
)

// Record is one terminated session's outcome.
type Record struct {
	StartTS    string
	EndTS      string
	ClientIP   string
	ClientPort int
	Bytes      int64
	Status     string
	Message    string
}

// Write appends one semicolon-delimited line to rootDir/safeFilename.log in
// append mode. safeFilename must already have passed path safety — callers
// that rejected a filename never call Write (spec.md §4.6).
func Write(logger *ctftplog.Logger, rootDir, safeFilename string, rec Record) {
	path := filepath.Join(rootDir, safeFilename+".log")

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger.Errorf("audit: failed to open %s: %v", path, err)
		return
	}
	defer f.Close()

	_, _ = fmt.Fprintf(f, "%s;%s;%s;%d;%d;%s;%s\n",
		rec.StartTS, rec.EndTS, rec.ClientIP, rec.ClientPort, rec.Bytes, rec.Status, rec.Message)
}
