// Package xlog is a thin wrapper around the standard log package,
// matching the plain log.Printf/log.Println style the teacher uses
// throughout indexer/, searcher/ and broker/ rather than adopting a
// structured logging library absent from the pack's own go.mod files.
package xlog

import (
	"fmt"
	"log"
	"os"
)

// Logger prefixes every line with a component name, the only
// structure the teacher's own logging carries (e.g. indexer/indexer.go's
// ad hoc "Creating new index at %s" style messages).
type Logger struct {
	*log.Logger
}

// New returns a Logger writing to stderr, prefixed with component.
func New(component string) *Logger {
	return &Logger{Logger: log.New(os.Stderr, "["+component+"] ", log.LstdFlags)}
}

func (l *Logger) Infof(format string, args ...interface{})  { l.Printf("INFO "+format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.Printf("WARN "+format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.Printf("ERROR "+format, args...) }

// WithErr formats err into a short suffix for log lines, mirroring the
// teacher's "%v" style inline error logging.
func WithErr(msg string, err error) string {
	if err == nil {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, err)
}
