package logs

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// Logger writes leveled, subsystem-tagged messages to its Backend. Each
// subsystem's level is independently adjustable at runtime via SetLevel,
// so an operator can raise verbosity for one component (e.g. PEER)
// without touching the rest.
type Logger interface {
	Tracef(format string, args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Criticalf(format string, args ...interface{})

	Level() Level
	SetLevel(level Level)
}

// BackendWriter is one sink a Backend fans writes out to, filtered to only
// the levels it accepts.
type BackendWriter struct {
	w        io.Writer
	minLevel Level
}

// NewAllLevelsBackendWriter accepts every level, down to trace.
func NewAllLevelsBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelTrace}
}

// NewErrorBackendWriter accepts only error and critical messages, useful
// for a dedicated error log file alongside the main one.
func NewErrorBackendWriter(w io.Writer) *BackendWriter {
	return &BackendWriter{w: w, minLevel: LevelError}
}

// Backend fans formatted log lines out to every configured BackendWriter
// whose minLevel the message clears.
type Backend struct {
	writers []*BackendWriter
	mu      sync.Mutex
}

// NewBackend constructs a Backend writing to the given writers.
func NewBackend(writers []*BackendWriter) *Backend {
	return &Backend{writers: writers}
}

// Logger returns a tagged Logger backed by b, defaulting to LevelInfo.
func (b *Backend) Logger(tag string) Logger {
	l := &logger{backend: b, tag: tag}
	l.level.Store(uint32(LevelInfo))
	return l
}

func (b *Backend) write(level Level, tag, msg string) {
	line := fmt.Sprintf("%s [%s] %s: %s\n", time.Now().Format("2006-01-02 15:04:05.000"), level, tag, msg)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, w := range b.writers {
		if level < w.minLevel {
			continue
		}
		io.WriteString(w.w, line)
	}
}

// logger is the concrete Logger implementation. Its level is stored
// atomically so SetLevel from one goroutine is immediately visible to
// Infof/Debugf/etc. calls racing on another.
type logger struct {
	backend *Backend
	tag     string
	level   atomic.Uint32
}

func (l *logger) Level() Level {
	return Level(l.level.Load())
}

func (l *logger) SetLevel(level Level) {
	l.level.Store(uint32(level))
}

func (l *logger) log(level Level, format string, args ...interface{}) {
	if level < l.Level() {
		return
	}
	l.backend.write(level, l.tag, fmt.Sprintf(format, args...))
}

func (l *logger) Tracef(format string, args ...interface{})    { l.log(LevelTrace, format, args...) }
func (l *logger) Debugf(format string, args ...interface{})    { l.log(LevelDebug, format, args...) }
func (l *logger) Infof(format string, args ...interface{})     { l.log(LevelInfo, format, args...) }
func (l *logger) Warnf(format string, args ...interface{})     { l.log(LevelWarn, format, args...) }
func (l *logger) Errorf(format string, args ...interface{})    { l.log(LevelError, format, args...) }
func (l *logger) Criticalf(format string, args ...interface{}) { l.log(LevelCritical, format, args...) }
