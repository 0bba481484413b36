package migrate

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Job is one source dataset to migrate.
type Job struct {
	SourcePID string
}

// ReadJobs reads one identifier per line. Blank lines and lines starting with #
// are skipped. Every identifier is returned as "<scheme>:<id>"; a scheme already
// present in any case is rewritten as given.
func ReadJobs(r io.Reader, scheme string) ([]Job, error) {
	prefix := scheme + ":"
	var jobs []Job

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			line = line[len(prefix):]
		}
		line = prefix + line

		jobs = append(jobs, Job{SourcePID: line})
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to read dataset identifiers")
	}

	return jobs, nil
}

func ReadJobsFile(path, scheme string) ([]Job, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open dataset identifier list %s", path)
	}
	defer f.Close()

	return ReadJobs(f, scheme)
}
