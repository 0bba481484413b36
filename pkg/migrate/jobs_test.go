package migrate

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadJobs(t *testing.T) {
	input := "10.7910/DVN/AAAAA\n\n  10.7910/DVN/BBBBB  \r\n# skipped\ndoi:10.7910/DVN/CCCCC\nDOI:10.7910/DVN/DDDDD\n"

	jobs, err := ReadJobs(strings.NewReader(input), "doi")
	require.NoError(t, err)
	assert.Equal(t, []Job{
		{SourcePID: "doi:10.7910/DVN/AAAAA"},
		{SourcePID: "doi:10.7910/DVN/BBBBB"},
		{SourcePID: "doi:10.7910/DVN/CCCCC"},
		{SourcePID: "doi:10.7910/DVN/DDDDD"},
	}, jobs)
}

func TestReadJobsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dois.txt")
	require.NoError(t, os.WriteFile(path, []byte("10.7910/DVN/AAAAA\n"), 0600))

	jobs, err := ReadJobsFile(path, "doi")
	require.NoError(t, err)
	assert.Equal(t, []Job{{SourcePID: "doi:10.7910/DVN/AAAAA"}}, jobs)

	_, err = ReadJobsFile(filepath.Join(t.TempDir(), "missing.txt"), "doi")
	assert.Error(t, err)
}
