package transfer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/apex/log"
	"github.com/pkg/errors"
)

// SourceFiles downloads file bytes from the source installation.
type SourceFiles interface {
	DownloadOriginal(ctx context.Context, fileID int, destPath string) error
}

// TargetFiles lists and uploads files on the target installation.
type TargetFiles interface {
	ListFiles(ctx context.Context, pid string) ([]dataverse.FileDescriptor, error)
	UploadFile(ctx context.Context, datasetID int, path string, meta dataverse.FileMetadata) error
}

type Options struct {
	// FilesDir is the scratch root; each dataset gets a subdirectory named by
	// its numeric target id.
	FilesDir string

	// MaxAttempts bounds the number of passes over the file list in each phase.
	MaxAttempts int

	// RetryDelay is slept between passes.
	RetryDelay time.Duration
}

// Synchronizer moves the files of one dataset at a time from the source to
// local scratch storage and from there to the target. Both phases retry the
// whole set of outstanding files, never a single file in isolation.
type Synchronizer struct {
	source SourceFiles
	target TargetFiles
	opts   Options
}

func NewSynchronizer(source SourceFiles, target TargetFiles, opts Options) *Synchronizer {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}

	return &Synchronizer{source: source, target: target, opts: opts}
}

// DatasetDir returns the scratch directory for the target dataset id.
func (s *Synchronizer) DatasetDir(targetID int) string {
	return datasetDir(s.opts.FilesDir, targetID)
}

// Download fetches every file not yet present in the dataset's scratch directory.
// Files that fail are skipped for the pass and tried again on the next one. The
// returned files are those still missing locally after the last pass. The error
// is only set when the scratch directory can't be created or read, or ctx is done.
func (s *Synchronizer) Download(ctx context.Context, files []dataverse.FileDescriptor, targetID int) ([]dataverse.FileDescriptor, error) {
	logger := log.FromContext(ctx)
	dir := s.DatasetDir(targetID)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "unable to create dataset dir %s", dir)
	}

	missing, err := missingLocally(dir, files)
	if err != nil {
		return nil, err
	}

	if len(missing) == 0 {
		return nil, nil
	}

	logger.Infof("%d dataset files found in source dataset, %d to download", len(files), len(missing))

	for attempt := 1; attempt <= s.opts.MaxAttempts && len(missing) > 0; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, s.opts.RetryDelay); err != nil {
				return missing, err
			}
		}

		logger.Infof("Download attempt %d/%d", attempt, s.opts.MaxAttempts)
		for _, f := range missing {
			if !validFilename(f.Filename()) {
				logger.Errorf("Invalid filename %q. Skipping download.", f.Filename())
				continue
			}

			dest := filepath.Join(dir, f.Filename())
			if err := s.source.DownloadOriginal(ctx, f.ID(), dest); err != nil {
				logger.WithError(err).Warnf("Could not download file %s. Skipping.", f.Filename())
				continue
			}

			logger.Infof("Downloaded %s", dest)
		}

		if missing, err = missingLocally(dir, files); err != nil {
			return nil, err
		}
	}

	return missing, nil
}

// Upload adds to the target dataset every file whose name isn't already in its
// file list, using the copies in the scratch directory. A file found by name at
// the target is never uploaded again. The returned files are those that still
// failed after the last pass.
func (s *Synchronizer) Upload(ctx context.Context, files []dataverse.FileDescriptor, targetPID string, targetID int) ([]dataverse.FileDescriptor, error) {
	logger := log.FromContext(ctx)
	dir := s.DatasetDir(targetID)

	existing, err := s.target.ListFiles(ctx, targetPID)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to list files of target dataset %s", targetPID)
	}

	present := make(map[string]bool, len(existing))
	for _, f := range existing {
		present[f.Filename()] = true
	}

	var retry []dataverse.FileDescriptor

	logger.Infof("Upload attempt %d/%d", 1, s.opts.MaxAttempts)
	for _, f := range files {
		if present[f.Filename()] {
			logger.Infof("%s already found in dataset. Skipping", f.Filename())
			continue
		}

		if err := s.upload(ctx, dir, targetID, f); err != nil {
			logger.WithError(err).Warnf("Failed to upload file %s", f.Filename())
			retry = append(retry, f)
			continue
		}

		present[f.Filename()] = true
		logger.Infof("Uploaded file %s", f.Filename())
	}

	for attempt := 2; attempt <= s.opts.MaxAttempts && len(retry) > 0; attempt++ {
		if err := sleep(ctx, s.opts.RetryDelay); err != nil {
			return retry, err
		}

		logger.Infof("Upload attempt %d/%d, retrying %d files", attempt, s.opts.MaxAttempts, len(retry))

		var failed []dataverse.FileDescriptor
		for _, f := range retry {
			if err := s.upload(ctx, dir, targetID, f); err != nil {
				logger.WithError(err).Warnf("Failed to upload file %s", f.Filename())
				failed = append(failed, f)
				continue
			}

			logger.Infof("Uploaded file %s", f.Filename())
		}

		retry = failed
	}

	return retry, nil
}

func (s *Synchronizer) upload(ctx context.Context, dir string, targetID int, f dataverse.FileDescriptor) error {
	if !validFilename(f.Filename()) {
		return errors.Errorf("invalid filename %q", f.Filename())
	}

	meta := dataverse.FileMetadata{
		Description:    f.Description,
		DirectoryLabel: f.DirectoryLabel,
		Restrict:       f.Restricted,
		TabIngest:      false,
	}

	return s.target.UploadFile(ctx, targetID, filepath.Join(dir, f.Filename()), meta)
}

func missingLocally(dir string, files []dataverse.FileDescriptor) ([]dataverse.FileDescriptor, error) {
	present, err := localFiles(dir)
	if err != nil {
		return nil, err
	}

	var missing []dataverse.FileDescriptor
	for _, f := range files {
		if !present[f.Filename()] {
			missing = append(missing, f)
		}
	}

	return missing, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
