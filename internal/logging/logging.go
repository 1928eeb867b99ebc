// Package logging provides the package-level structured logger shared by
// every phase of the import pipeline.
package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Log is the shared logger. Callers attach fields with logrus.Fields rather
// than formatting strings by hand, so log lines stay greppable across
// phases and workers.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetOutput redirects the logger, mainly for tests that want quiet output.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

// ParseError logs one structured line for a per-row/per-field parse error
// that was swallowed under SKIP_ROW or SKIP_COLUMN atomicity, per spec
// §7's "one structured line per parse error: column index, file offset,
// declared type, raw bytes" contract.
func ParseError(column int, offset int64, declaredType, raw string) {
	if len(raw) > 64 {
		raw = raw[:64] + "..."
	}
	Log.WithFields(logrus.Fields{
		"column": column,
		"offset": offset,
		"type":   declaredType,
		"raw":    raw,
	}).Warn("parse error")
}
