package ledger

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGormRecordStor(t *testing.T) {
	db, err := Open("sqlite://" + filepath.Join(t.TempDir(), "ledger", "ledger.db"))
	require.NoError(t, err)

	runRecordStorTests(t, NewGormRecordStor(db))
}

func TestInMemoryRecordStor(t *testing.T) {
	runRecordStorTests(t, NewInMemoryRecordStor())
}

func runRecordStorTests(t *testing.T, s RecordStor) {
	run, err := NewRun("yls production", time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "yls-production-2024-03-01-093000", run.Label)
	assert.NotEmpty(t, run.UUID)

	_, err = s.AddRecord(&MigrationRecord{RunUUID: run.UUID, RunLabel: run.Label, SourcePID: "doi:10.7910/DVN/AAAAA", Status: "Failed", Error: "not found"})
	require.NoError(t, err)
	r, err := s.AddRecord(&MigrationRecord{RunUUID: run.UUID, RunLabel: run.Label, SourcePID: "doi:10.7910/DVN/BBBBB", TargetPID: "doi:10.5072/FK2/X", TargetID: 12, Status: "Success"})
	require.NoError(t, err)
	assert.NotZero(t, r.ID)
	_, err = s.AddRecord(&MigrationRecord{RunUUID: "other-run", SourcePID: "doi:10.7910/DVN/AAAAA", Status: "Success"})
	require.NoError(t, err)

	records, err := s.ListRecordsForRun(run.UUID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "doi:10.7910/DVN/AAAAA", records[0].SourcePID)
	assert.Equal(t, 12, records[1].TargetID)

	records, err = s.ListRecordsForSource("doi:10.7910/DVN/AAAAA")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	successes, err := PreviousSuccesses(s, "doi:10.7910/DVN/AAAAA")
	require.NoError(t, err)
	require.Len(t, successes, 1)
	assert.Equal(t, "other-run", successes[0].RunUUID)

	successes, err = PreviousSuccesses(s, "doi:10.7910/DVN/CCCCC")
	require.NoError(t, err)
	assert.Empty(t, successes)
}

func TestOpenRejectsUnknownScheme(t *testing.T) {
	_, err := Open("postgres://localhost/ledger")
	assert.Error(t, err)

	_, err = Open("sqlite://")
	assert.Error(t, err)
}
