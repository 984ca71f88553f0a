// Package testutil holds helpers shared by package tests.
package testutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-logr/logr"
)

// T is the part of testing.T the logger needs.
type T interface {
	Log(args ...interface{})
	Helper()
}

// Recorder keeps every message logged through the loggers it created.
type Recorder struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns the recorded messages in order.
func (r *Recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// Contains reports whether any recorded line contains substr.
func (r *Recorder) Contains(substr string) bool {
	for _, l := range r.Lines() {
		if strings.Contains(l, substr) {
			return true
		}
	}
	return false
}

func (r *Recorder) add(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

// NewLogger returns a logr.Logger that prints to t. Output only shows for
// failed tests or with -v.
func NewLogger(t T) logr.Logger {
	return logr.New(&sink{t: t})
}

// NewRecordingLogger is NewLogger that also records each line.
func NewRecordingLogger(t T) (logr.Logger, *Recorder) {
	r := &Recorder{}
	return logr.New(&sink{t: t, rec: r}), r
}

type sink struct {
	t      T
	rec    *Recorder
	name   string
	values []interface{}
}

var _ logr.LogSink = &sink{}

func (s *sink) Init(logr.RuntimeInfo) {}

func (s *sink) Enabled(int) bool { return true }

func (s *sink) Info(level int, msg string, kv ...interface{}) {
	s.t.Helper()
	s.emit(fmt.Sprintf("V(%d) ", level), msg, kv)
}

func (s *sink) Error(err error, msg string, kv ...interface{}) {
	s.t.Helper()
	s.emit("ERROR ", msg, append([]interface{}{"error", err}, kv...))
}

func (s *sink) emit(prefix, msg string, kv []interface{}) {
	s.t.Helper()
	var b strings.Builder
	b.WriteString(prefix)
	if s.name != "" {
		b.WriteString("[" + s.name + "] ")
	}
	b.WriteString(msg)

	all := append(append([]interface{}(nil), s.values...), kv...)
	for i := 0; i < len(all); i += 2 {
		var v interface{} = "(no-value)"
		if i+1 < len(all) {
			v = all[i+1]
		}
		fmt.Fprintf(&b, " %v=%+v", all[i], v)
	}

	line := b.String()
	if s.rec != nil {
		s.rec.add(line)
	}
	s.t.Log(line)
}

func (s *sink) WithValues(kv ...interface{}) logr.LogSink {
	c := s.clone()
	c.values = append(c.values, kv...)
	return c
}

func (s *sink) WithName(name string) logr.LogSink {
	c := s.clone()
	if c.name != "" {
		c.name += "." + name
	} else {
		c.name = name
	}
	return c
}

func (s *sink) clone() *sink {
	return &sink{
		t:      s.t,
		rec:    s.rec,
		name:   s.name,
		values: append([]interface{}(nil), s.values...),
	}
}
