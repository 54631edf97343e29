// Package logging is a trimmed leveled logger emitting RFC5424-framed
// messages to the system log, with an optional stderr mirror for
// foreground runs (SPEC_FULL.md "Logging").
package logging

import (
	"fmt"
	"io"
	"log/syslog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

// Level is a logging severity, ordered least to most severe.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Critical
)

func (l Level) priority() rfc5424.Priority {
	switch l {
	case Debug:
		return rfc5424.User | rfc5424.Debug
	case Info:
		return rfc5424.User | rfc5424.Info
	case Warn:
		return rfc5424.User | rfc5424.Warning
	case Error:
		return rfc5424.User | rfc5424.Error
	case Critical:
		return rfc5424.User | rfc5424.Crit
	}
	return rfc5424.User | rfc5424.Debug
}

// Tag is the fixed syslog application name every message is tagged with
// (spec.md §6 "under a fixed tag").
const Tag = "ldmd"

// Logger writes leveled, RFC5424-framed lines to one or more writers. The
// zero value is not usable; construct with New or NewDiscard.
type Logger struct {
	mtx      sync.Mutex
	wtrs     []io.Writer
	lvl      Level
	hostname string
	appname  string
}

// New opens the local syslog socket under Tag and, if foreground is true,
// mirrors every message to stderr as well (the -F flag, SPEC_FULL.md).
func New(foreground bool) (*Logger, error) {
	sw, err := syslog.New(syslog.LOG_DAEMON|syslog.LOG_INFO, Tag)
	if err != nil {
		return nil, err
	}
	l := &Logger{wtrs: []io.Writer{sw}, lvl: Info, appname: Tag}
	if hostname, err := os.Hostname(); err == nil {
		l.hostname = hostname
	}
	if foreground {
		l.wtrs = append(l.wtrs, os.Stderr)
	}
	return l, nil
}

// NewDiscard returns a Logger that drops every message; tests use it in
// place of a real syslog connection.
func NewDiscard() *Logger {
	return &Logger{wtrs: []io.Writer{io.Discard}, lvl: Info, appname: Tag}
}

// SetLevel changes the minimum severity that is emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	l.lvl = lvl
}

func (l *Logger) output(lvl Level, msg string) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if lvl < l.lvl {
		return nil
	}
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: time.Now(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		Message:   []byte(msg),
	}
	b, err := m.MarshalBinary()
	if err != nil {
		return err
	}
	line := strings.TrimRight(string(b), "\n") + "\n"
	var last error
	for _, w := range l.wtrs {
		if _, err := io.WriteString(w, line); err != nil {
			last = err
		}
	}
	return last
}

func (l *Logger) Debugf(f string, args ...interface{}) error {
	return l.output(Debug, fmt.Sprintf(f, args...))
}

func (l *Logger) Infof(f string, args ...interface{}) error {
	return l.output(Info, fmt.Sprintf(f, args...))
}

func (l *Logger) Warnf(f string, args ...interface{}) error {
	return l.output(Warn, fmt.Sprintf(f, args...))
}

func (l *Logger) Errorf(f string, args ...interface{}) error {
	return l.output(Error, fmt.Sprintf(f, args...))
}

func (l *Logger) Criticalf(f string, args ...interface{}) error {
	return l.output(Critical, fmt.Sprintf(f, args...))
}

// Fatalf logs at Critical and terminates the process with a non-zero exit
// status.
func (l *Logger) Fatalf(f string, args ...interface{}) {
	_ = l.output(Critical, fmt.Sprintf(f, args...))
	os.Exit(1)
}
