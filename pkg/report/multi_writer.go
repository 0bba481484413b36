package report

import "errors"

// MultiWriter hands each call to every writer, even when an earlier one fails.
// The returned error joins all failures.
type MultiWriter struct {
	writers []Writer
}

func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) Append(row Row) error {
	return m.each(func(w Writer) error { return w.Append(row) })
}

func (m *MultiWriter) Flush() error {
	return m.each(Writer.Flush)
}

func (m *MultiWriter) Close() error {
	return m.each(Writer.Close)
}

func (m *MultiWriter) each(fn func(w Writer) error) error {
	var errs []error
	for _, w := range m.writers {
		if err := fn(w); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
