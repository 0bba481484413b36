package report

import (
	"github.com/alexjakubow/multi-dataverse/pkg/ledger"
)

// LedgerWriter stores every row as a ledger record tagged with the run.
type LedgerWriter struct {
	stor ledger.RecordStor
	run  *ledger.Run
}

func NewLedgerWriter(stor ledger.RecordStor, run *ledger.Run) *LedgerWriter {
	return &LedgerWriter{stor: stor, run: run}
}

func (w *LedgerWriter) Append(row Row) error {
	_, err := w.stor.AddRecord(&ledger.MigrationRecord{
		RunUUID:   w.run.UUID,
		RunLabel:  w.run.Label,
		SourcePID: row.SourcePID,
		TargetPID: row.TargetPID,
		TargetID:  row.TargetID,
		Status:    string(row.Status),
		Error:     row.Error,
	})

	return err
}

func (w *LedgerWriter) Flush() error { return nil }

func (w *LedgerWriter) Close() error { return nil }
