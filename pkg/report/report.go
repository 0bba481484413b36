// Package report records the outcome of every dataset migration. Rows are handed
// to a Writer as soon as a dataset finishes so that a crash part way through a
// batch keeps everything reported up to that point.
package report

import (
	"strconv"
	"sync"
)

type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// Header is the fixed first row of the tabular report.
var Header = []string{"Source DOI", "Target DOI", "Target ID", "Status", "Error"}

type Row struct {
	SourcePID string
	TargetPID string
	TargetID  int
	Status    Status
	Error     string
}

func Success(sourcePID, targetPID string, targetID int) Row {
	return Row{SourcePID: sourcePID, TargetPID: targetPID, TargetID: targetID, Status: StatusSuccess}
}

func Failed(sourcePID, targetPID string, targetID int, msg string) Row {
	return Row{SourcePID: sourcePID, TargetPID: targetPID, TargetID: targetID, Status: StatusFailed, Error: msg}
}

// Record renders the row in Header order. A zero target id is left blank.
func (r Row) Record() []string {
	targetID := ""
	if r.TargetID != 0 {
		targetID = strconv.Itoa(r.TargetID)
	}

	return []string{r.SourcePID, r.TargetPID, targetID, string(r.Status), r.Error}
}

type Writer interface {
	Append(row Row) error
	Flush() error
	Close() error
}

// InMemoryWriter keeps rows in memory.
type InMemoryWriter struct {
	mu   sync.Mutex
	rows []Row
}

func NewInMemoryWriter() *InMemoryWriter {
	return &InMemoryWriter{}
}

func (w *InMemoryWriter) Append(row Row) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows = append(w.rows, row)
	return nil
}

func (w *InMemoryWriter) Flush() error { return nil }

func (w *InMemoryWriter) Close() error { return nil }

func (w *InMemoryWriter) Rows() []Row {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Row(nil), w.rows...)
}
