// Package notice carries user-facing messages raised by the form
// controllers: validation warnings, remote failures and empty results.
package notice

import (
	"fmt"
	"io"
	"sync"
)

type Level string

const (
	Info    Level = "info"
	Success Level = "success"
	Warning Level = "warning"
	Error   Level = "error"
)

// Notice is one message shown to the user.
type Notice struct {
	Level   Level  `json:"level"`
	Title   string `json:"title,omitempty"`
	Message string `json:"message"`
}

func (n Notice) String() string {
	if n.Title == "" {
		return fmt.Sprintf("[%s] %s", n.Level, n.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", n.Level, n.Title, n.Message)
}

// Notifier receives notices as they are raised.
type Notifier interface {
	Notify(Notice)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notice)

func (f NotifierFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Notifier = NotifierFunc(func(Notice) {})

// Log buffers notices until they are drained. It is safe for concurrent use.
type Log struct {
	mu    sync.Mutex
	items []Notice
}

func (l *Log) Notify(n Notice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, n)
}

// All returns a copy of the buffered notices.
func (l *Log) All() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Notice(nil), l.items...)
}

// Drain returns the buffered notices and empties the buffer.
func (l *Log) Drain() []Notice {
	l.mu.Lock()
	defer l.mu.Unlock()
	items := l.items
	l.items = nil
	return items
}

// Printer writes each notice on its own line.
type Printer struct {
	mu sync.Mutex
	W  io.Writer
}

func (p *Printer) Notify(n Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.W, n.String())
}
