package clog

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/apex/log"
)

// Handler is an apex/log handler that writes one line per entry to every
// writer it holds:
//
//	2024-03-01 10:04:05 [INFO] message key=value ...
type Handler struct {
	mu      sync.Mutex
	Writers []io.Writer
	now     func() time.Time
}

var levelToStrings = [...]string{
	log.DebugLevel: "DEBUG",
	log.InfoLevel:  "INFO",
	log.WarnLevel:  "WARNING",
	log.ErrorLevel: "ERROR",
	log.FatalLevel: "FATAL",
}

// field used for sorting.
type field struct {
	Name  string
	Value interface{}
}

// by sorts fields by name.
type byName []field

func (a byName) Len() int           { return len(a) }
func (a byName) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byName) Less(i, j int) bool { return a[i].Name < a[j].Name }

func NewHandler(writers ...io.Writer) *Handler {
	return &Handler{Writers: writers, now: time.Now}
}

// Close closes every writer that is a file other than stdout or stderr.
func (h *Handler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for _, w := range h.Writers {
		if w == os.Stdout || w == os.Stderr {
			continue
		}

		if c, ok := w.(io.Closer); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}

	h.Writers = nil
	return firstErr
}

func (h *Handler) HandleLog(e *log.Entry) error {
	level := levelToStrings[e.Level]
	var fields []field

	for k, v := range e.Fields {
		fields = append(fields, field{k, v})
	}

	sort.Sort(byName(fields))

	var b bytes.Buffer
	_, _ = fmt.Fprintf(&b, "%s [%s] %s", h.now().Format(time.DateTime), level, e.Message)

	for _, f := range fields {
		_, _ = fmt.Fprintf(&b, " %s=%v", f.Name, f.Value)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, w := range h.Writers {
		_, _ = fmt.Fprintln(w, b.String())
	}

	return nil
}
