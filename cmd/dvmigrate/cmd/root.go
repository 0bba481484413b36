package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexjakubow/multi-dataverse/pkg/clog"
	"github.com/alexjakubow/multi-dataverse/pkg/config"
	"github.com/alexjakubow/multi-dataverse/pkg/dataverse"
	"github.com/alexjakubow/multi-dataverse/pkg/ledger"
	"github.com/alexjakubow/multi-dataverse/pkg/metadata"
	"github.com/alexjakubow/multi-dataverse/pkg/migrate"
	"github.com/alexjakubow/multi-dataverse/pkg/report"
	"github.com/alexjakubow/multi-dataverse/pkg/transfer"
	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagKeys maps each command line flag to the config key it overrides.
var flagKeys = map[string]string{
	"env":       config.KeyEnv,
	"dataverse": config.KeyTargetDataverse,
	"ids":       config.KeyIDsFile,
	"publish":   config.KeyPublish,
	"files-dir": config.KeyFilesDir,
	"purge":     config.KeyPurgeFiles,
	"dotenv":    config.KeyDotenvPath,
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dvmigrate",
	Short: "Copy datasets from one Dataverse installation to another",
	Long: `dvmigrate copies a list of datasets, identified by their persistent ids,
from a source Dataverse installation into a collection on a target installation.
Citation metadata is copied, provenance fields pointing back at the source are
added, and every file is downloaded in its original format and uploaded again.
One row per dataset is written to the results report.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		v := viper.New()
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok {
				v.Set(key, f.Value.String())
			}
		})

		c := config.NewViperConfig(v)
		if err := loadDotenv(c); err != nil {
			return err
		}

		mc, err := config.LoadMigrationConfig(c)
		if err != nil {
			return err
		}

		handler, err := clog.Setup(mc.LogFile, mc.LogLevel)
		if err != nil {
			return err
		}
		defer handler.Close()

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return run(ctx, mc)
	},
}

// loadDotenv loads the dotenv file into the environment without overriding
// variables that are already set. A missing file is only an error when it was
// asked for explicitly.
func loadDotenv(c config.Configer) error {
	path := c.GetKey(config.KeyDotenvPath)
	explicit := path != ""
	if !explicit {
		path = config.DefaultDotenvPath
	}

	if _, err := os.Stat(path); err != nil {
		if explicit {
			return errors.Wrapf(err, "unable to read dotenv file %s", path)
		}
		return nil
	}

	if err := config.NewDotenvConfig(path).Load(); err != nil {
		return errors.Wrapf(err, "failed loading configuration file %s", path)
	}

	return nil
}

func run(ctx context.Context, mc *config.MigrationConfig) error {
	jobs, err := migrate.ReadJobsFile(mc.IDsFile, mc.PIDScheme)
	if err != nil {
		return err
	}

	source := dataverse.NewClient(mc.Source.URL, mc.Source.Token, mc.HTTPTimeout)
	target := dataverse.NewClient(mc.Target.URL, mc.Target.Token, mc.HTTPTimeout)

	log.Infof("*** Copying %d datasets from %s to %s - Target dataverse: %s ***",
		len(jobs), source.BaseURL(), target.BaseURL(), mc.TargetDataverse)

	filesDir, err := transfer.PrepareScratch(mc.FilesDir, mc.PurgeFiles)
	if err != nil {
		return err
	}

	sink, err := openReport(mc)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.w.Close(); err != nil {
			log.WithError(err).Error("Unable to close report")
		}
	}()

	sync := transfer.NewSynchronizer(source, target, transfer.Options{
		FilesDir:    filesDir,
		MaxAttempts: mc.MaxAttempts,
		RetryDelay:  mc.RetryDelay,
	})

	m := migrate.NewMigrator(source, target, sync, sink.w, migrate.Options{
		Collection:  mc.TargetDataverse,
		Publish:     mc.Publish,
		ReleaseType: mc.ReleaseType,
		Provenance: metadata.Provenance{
			Agency:    mc.OtherIDAgency,
			Depositor: mc.Depositor,
		},
	})

	if sink.stor != nil {
		warnPreviouslyCopied(sink.stor, jobs)
	}

	summary := m.Run(ctx, jobs)
	log.Infof("*** Finished: %d datasets, %d copied, %d failed. Results in %s ***",
		summary.Total, summary.Succeeded, summary.Failed, mc.ReportFile)

	if sink.stor != nil {
		records, err := sink.stor.ListRecordsForRun(sink.run.UUID)
		switch {
		case err != nil:
			log.WithError(err).Warn("Unable to read back ledger records")
		case len(records) != summary.Succeeded+summary.Failed:
			log.Warnf("Ledger holds %d records for run %s, expected %d", len(records), sink.run.Label, summary.Succeeded+summary.Failed)
		}
	}

	return nil
}

// reportSink is where results go. stor and run are nil without a ledger.
type reportSink struct {
	w    report.Writer
	stor ledger.RecordStor
	run  *ledger.Run
}

// openReport opens the CSV report and, when a ledger DSN is configured, the
// ledger for this run.
func openReport(mc *config.MigrationConfig) (*reportSink, error) {
	csvWriter, err := report.CreateCSVFile(mc.ReportFile)
	if err != nil {
		return nil, err
	}

	if mc.LedgerDSN == "" {
		return &reportSink{w: csvWriter}, nil
	}

	db, err := ledger.Open(mc.LedgerDSN)
	if err != nil {
		_ = csvWriter.Close()
		return nil, err
	}

	r, err := ledger.NewRun(mc.TargetDataverse+" "+mc.Env, time.Now())
	if err != nil {
		_ = csvWriter.Close()
		return nil, err
	}

	log.Infof("Recording run %s (%s) in ledger", r.Label, r.UUID)

	stor := ledger.NewGormRecordStor(db)
	return &reportSink{
		w:    report.NewMultiWriter(csvWriter, report.NewLedgerWriter(stor, r)),
		stor: stor,
		run:  r,
	}, nil
}

// warnPreviouslyCopied logs every job the ledger shows as already copied by an
// earlier run. The jobs still run.
func warnPreviouslyCopied(stor ledger.RecordStor, jobs []migrate.Job) {
	for _, job := range jobs {
		successes, err := ledger.PreviousSuccesses(stor, job.SourcePID)
		if err != nil {
			log.WithError(err).Warnf("Unable to check ledger for %s", job.SourcePID)
			continue
		}

		for _, r := range successes {
			log.Warnf("%s was already copied to %s (id %d) by run %s", job.SourcePID, r.TargetPID, r.TargetID, r.RunLabel)
		}
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Errorf("%s", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().String("env", "", `target environment, "production" or "test"`)
	rootCmd.Flags().String("dataverse", "", "alias of the target collection")
	rootCmd.Flags().String("ids", "", "file listing the dataset identifiers to copy")
	rootCmd.Flags().Bool("publish", false, "publish each dataset once its files are uploaded")
	rootCmd.Flags().String("files-dir", "", "scratch directory for downloaded files")
	rootCmd.Flags().Bool("purge", true, "empty the scratch directory before starting")
	rootCmd.Flags().String("dotenv", "", "dotenv file to load (default .env when present)")
}
