package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alexjakubow/multi-dataverse/pkg/clog"
	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/alexjakubow/multi-dataverse/pkg/metadata"
	"github.com/alexjakubow/multi-dataverse/pkg/report"
	"github.com/apex/log"
)

// SourceAPI reads datasets from the source installation.
type SourceAPI interface {
	GetDataset(ctx context.Context, pid string) (*dataverse.Dataset, error)
}

// TargetAPI creates and finalizes datasets on the target installation.
type TargetAPI interface {
	CreateDataset(ctx context.Context, collection string, payload interface{}) (*dataverse.CreatedDataset, error)
	EditMetadata(ctx context.Context, pid string, patch interface{}) error
	PublishDataset(ctx context.Context, pid, releaseType string) error
}

// FileSync moves a dataset's files through local scratch storage.
type FileSync interface {
	Download(ctx context.Context, files []dataverse.FileDescriptor, targetID int) ([]dataverse.FileDescriptor, error)
	Upload(ctx context.Context, files []dataverse.FileDescriptor, targetPID string, targetID int) ([]dataverse.FileDescriptor, error)
}

type Options struct {
	// Collection is the alias of the target collection datasets are created in.
	Collection  string
	Publish     bool
	ReleaseType string
	Provenance  metadata.Provenance

	// Now supplies the deposit date; time.Now when nil.
	Now func() time.Time
}

type Summary struct {
	Total     int
	Succeeded int
	Failed    int
}

// Migrator runs the per-dataset pipeline for a list of jobs, one at a time.
// A failing step ends that job only. Nothing created on the target is rolled
// back when a later step fails.
type Migrator struct {
	source SourceAPI
	target TargetAPI
	files  FileSync
	report report.Writer
	opts   Options
}

func NewMigrator(source SourceAPI, target TargetAPI, files FileSync, w report.Writer, opts Options) *Migrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}

	if opts.ReleaseType == "" {
		opts.ReleaseType = "major"
	}

	return &Migrator{source: source, target: target, files: files, report: w, opts: opts}
}

// transferRecord tracks one dataset while its job runs.
type transferRecord struct {
	sourcePID string
	targetPID string
	targetID  int
	files     []dataverse.FileDescriptor
}

func (t *transferRecord) failed(format string, args ...interface{}) report.Row {
	return report.Failed(t.sourcePID, t.targetPID, t.targetID, fmt.Sprintf(format, args...))
}

// Run migrates every job in order and appends each outcome to the report as soon
// as it is known. It stops early only when ctx is done.
func (m *Migrator) Run(ctx context.Context, jobs []Job) Summary {
	summary := Summary{Total: len(jobs)}

	for i, job := range jobs {
		if err := ctx.Err(); err != nil {
			log.WithError(err).Errorf("Stopping before dataset %d/%d", i+1, len(jobs))
			break
		}

		row := m.Migrate(ctx, i+1, len(jobs), job)
		switch row.Status {
		case report.StatusSuccess:
			summary.Succeeded++
		default:
			summary.Failed++
		}

		if err := m.report.Append(row); err != nil {
			log.WithError(err).Errorf("Unable to record result for %s", job.SourcePID)
		}
	}

	if err := m.report.Flush(); err != nil {
		log.WithError(err).Error("Unable to flush report")
	}

	return summary
}

// Migrate runs the pipeline for a single job and returns its report row.
func (m *Migrator) Migrate(ctx context.Context, index, total int, job Job) report.Row {
	logger := clog.ForDataset(index, total, job.SourcePID)
	ctx = log.NewContext(ctx, logger)
	rec := &transferRecord{sourcePID: job.SourcePID}

	logger.Infof("Dataset %d/%d - Source PID %s", index, total, job.SourcePID)

	row := m.migrate(ctx, logger, rec)
	if row.Status == report.StatusFailed {
		logger.Error(row.Error)
	} else {
		logger.Infof("Copied dataset %d/%d", index, total)
	}

	return row
}

func (m *Migrator) migrate(ctx context.Context, logger log.Interface, rec *transferRecord) report.Row {
	ds, err := m.source.GetDataset(ctx, rec.sourcePID)
	if err != nil {
		return rec.failed("Failed to retrieve dataset from source. Skipping. Error: %s", err)
	}
	rec.files = ds.LatestVersion.Files
	logger.Info("Dataset harvested from source.")

	payload, err := metadata.BuildCreatePayload(ds)
	if err != nil {
		return rec.failed("Failed to build target dataset from source metadata. Skipping. Error: %s", err)
	}

	created, err := m.target.CreateDataset(ctx, m.opts.Collection, payload)
	if err != nil {
		return rec.failed("Failed to create dataset at target. Skipping. Error: %s", err)
	}
	rec.targetID, rec.targetPID = created.ID, created.PersistentID
	logger.Infof("Target dataset %d created at %s", rec.targetID, rec.targetPID)

	patch := m.opts.Provenance.BuildProvenancePatch(rec.sourcePID, m.opts.Now())
	if err := m.target.EditMetadata(ctx, rec.targetPID, patch); err != nil {
		return rec.failed("Failed to update dataset metadata at target. Skipping. Error: %s", err)
	}
	logger.Info("Target dataset metadata updated.")

	unresolved, err := m.files.Download(ctx, rec.files, rec.targetID)
	if err != nil {
		return rec.failed("Failed to download files from source. Skipping. Error: %s", err)
	}
	if len(unresolved) > 0 {
		return rec.failed("Failed to download %d/%d files from source: %s - Skipping.",
			len(unresolved), len(rec.files), fileList(unresolved))
	}
	logger.Info("All files downloaded from source dataset.")

	unresolved, err = m.files.Upload(ctx, rec.files, rec.targetPID, rec.targetID)
	if err != nil {
		return rec.failed("Failed to upload files to target. Skipping. Error: %s", err)
	}
	if len(unresolved) > 0 {
		return rec.failed("Failed to upload %d/%d files to target: %s - Skipping.",
			len(unresolved), len(rec.files), fileList(unresolved))
	}
	logger.Info("All files uploaded to target dataset.")

	if m.opts.Publish {
		// The dataset is complete at this point, so a failed publish is only logged.
		if err := m.target.PublishDataset(ctx, rec.targetPID, m.opts.ReleaseType); err != nil {
			logger.WithError(err).Errorf("Failed to publish dataset %s", rec.targetPID)
		} else {
			logger.Infof("Published dataset %s", rec.targetPID)
		}
	}

	return report.Success(rec.sourcePID, rec.targetPID, rec.targetID)
}

func fileList(files []dataverse.FileDescriptor) string {
	return "[" + strings.Join(dataverse.Filenames(files), ", ") + "]"
}
