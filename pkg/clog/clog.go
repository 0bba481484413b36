package clog

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

// Setup installs a Handler on the global apex logger that writes to stdout and,
// when logFile is not blank, appends to logFile. The parent directory of logFile
// is created if needed. The returned Handler should be closed at exit.
func Setup(logFile, level string) (*Handler, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid log level %s", level)
	}

	handler := NewHandler(os.Stdout)

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0755); err != nil {
			return nil, errors.Wrapf(err, "unable to create log directory for %s", logFile)
		}

		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to open log file %s", logFile)
		}

		handler.Writers = append(handler.Writers, f)
	}

	log.SetHandler(handler)
	log.SetLevel(lvl)

	return handler, nil
}

// ForDataset returns an entry that tags every line with the job position and the
// source identifier being migrated.
func ForDataset(index, total int, sourcePID string) *log.Entry {
	return log.WithFields(log.Fields{
		"job":     index,
		"of":      total,
		"dataset": sourcePID,
	})
}
