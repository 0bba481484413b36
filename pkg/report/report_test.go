package report

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alexjakubow/multi-dataverse/pkg/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVWriterAppendsAsItGoes(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewCSVWriter(&buf)
	require.NoError(t, err)
	assert.Equal(t, "Source DOI,Target DOI,Target ID,Status,Error\n", buf.String())

	require.NoError(t, w.Append(Failed("doi:10.7910/DVN/AAAAA", "", 0, "Failed to retrieve dataset from source: not found")))
	// The row is visible before Close.
	assert.Contains(t, buf.String(), "doi:10.7910/DVN/AAAAA,,,Failed,Failed to retrieve dataset from source: not found\n")

	require.NoError(t, w.Append(Success("doi:10.7910/DVN/BBBBB", "doi:10.5072/FK2/X", 12)))
	require.NoError(t, w.Close())

	assert.Equal(t, "Source DOI,Target DOI,Target ID,Status,Error\n"+
		"doi:10.7910/DVN/AAAAA,,,Failed,Failed to retrieve dataset from source: not found\n"+
		"doi:10.7910/DVN/BBBBB,doi:10.5072/FK2/X,12,Success,\n", buf.String())
}

func TestCreateCSVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "results.csv")
	w, err := CreateCSVFile(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(Failed("doi:1", "doi:2", 3, `bad files: ["a.csv", "b,c.csv"]`)))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), `doi:1,doi:2,3,Failed,"bad files: [""a.csv"", ""b,c.csv""]"`)
	require.NoError(t, w.Close())
}

func TestLedgerWriter(t *testing.T) {
	stor := ledger.NewInMemoryRecordStor()
	run, err := ledger.NewRun("yls test", time.Now())
	require.NoError(t, err)

	w := NewLedgerWriter(stor, run)
	require.NoError(t, w.Append(Success("doi:1", "doi:2", 3)))

	records, err := stor.ListRecordsForRun(run.UUID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Success", records[0].Status)
	assert.Equal(t, 3, records[0].TargetID)
	assert.Equal(t, run.Label, records[0].RunLabel)
}

type failingWriter struct{ InMemoryWriter }

func (w *failingWriter) Append(Row) error { return errors.New("disk full") }

func TestMultiWriterKeepsGoing(t *testing.T) {
	mem := NewInMemoryWriter()
	m := NewMultiWriter(&failingWriter{}, mem)

	err := m.Append(Success("doi:1", "doi:2", 3))
	assert.EqualError(t, err, "disk full")
	assert.Len(t, mem.Rows(), 1)
	assert.NoError(t, m.Close())
}
