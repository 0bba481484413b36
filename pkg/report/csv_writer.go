package report

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// CSVWriter writes the header when created and flushes after every row.
type CSVWriter struct {
	w      *csv.Writer
	closer io.Closer
}

// NewCSVWriter writes to w. When w is also an io.Closer, Close closes it.
func NewCSVWriter(w io.Writer) (*CSVWriter, error) {
	cw := &CSVWriter{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}

	if err := cw.write(Header); err != nil {
		return nil, err
	}

	return cw, nil
}

// CreateCSVFile truncates or creates path, and any missing parent directories.
func CreateCSVFile(path string) (*CSVWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "unable to create report directory %s", dir)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to create report %s", path)
	}

	cw, err := NewCSVWriter(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	return cw, nil
}

func (w *CSVWriter) Append(row Row) error {
	return w.write(row.Record())
}

func (w *CSVWriter) Flush() error {
	w.w.Flush()
	return w.w.Error()
}

func (w *CSVWriter) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}

	return err
}

func (w *CSVWriter) write(record []string) error {
	if err := w.w.Write(record); err != nil {
		return errors.Wrap(err, "unable to write report row")
	}

	return w.Flush()
}
