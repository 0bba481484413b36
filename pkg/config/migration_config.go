package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

const (
	EnvProduction = "production"
	EnvTest       = "test"
)

// Configuration keys.
const (
	KeyEnv             = "DV_ENV"
	KeySourceURL       = "DV_SOURCE_URL"
	KeySourceToken     = "DV_SOURCE_API_TOKEN"
	KeyTargetURL       = "DV_TARGET_URL"
	KeyTargetToken     = "DV_TARGET_API_TOKEN"
	KeyTargetTestURL   = "DV_TARGET_TEST_URL"
	KeyTargetTestToken = "DV_TARGET_TEST_API_TOKEN"
	KeyTargetDataverse = "DV_TARGET_DATAVERSE"
	KeyIDsFile         = "DV_IDS_FILE"
	KeyPIDScheme       = "DV_PID_SCHEME"
	KeyFilesDir        = "DV_FILES_DIR"
	KeyPurgeFiles      = "DV_PURGE_FILES"
	KeyPublish         = "DV_PUBLISH"
	KeyReleaseType     = "DV_RELEASE_TYPE"
	KeyMaxAttempts     = "DV_MAX_ATTEMPTS"
	KeyRetryDelay      = "DV_RETRY_DELAY"
	KeyHTTPTimeout     = "DV_HTTP_TIMEOUT"
	KeyReportFile      = "DV_REPORT_FILE"
	KeyLogFile         = "DV_LOG_FILE"
	KeyLogLevel        = "DV_LOG_LEVEL"
	KeyLedgerDSN       = "DV_LEDGER_DSN"
	KeyOtherIDAgency   = "DV_OTHER_ID_AGENCY"
	KeyDepositor       = "DV_DEPOSITOR"
	KeyDotenvPath      = "DV_DOTENV_PATH"
)

const (
	defaultSourceURL       = "https://dataverse.harvard.edu"
	defaultTargetURL       = "https://dataverse.yale.edu"
	defaultTargetTestURL   = "https://dataverse-test.yale.edu"
	defaultTargetDataverse = "yls"
	defaultIDsFile         = "dois.txt"
	defaultPIDScheme       = "doi"
	defaultFilesDir        = "files"
	defaultReleaseType     = "major"
	defaultMaxAttempts     = 3
	defaultReportFile      = "bulk_migration_results.csv"
	defaultLogFile         = "logs/migration.log"
	defaultLogLevel        = "info"
	DefaultOtherIDAgency   = "Harvard Dataverse"
	DefaultDepositor       = "YLS Library Data Services"
	DefaultDotenvPath      = ".env"
)

// Endpoint is a Dataverse installation and the API token used against it.
type Endpoint struct {
	URL   string
	Token string
}

// MigrationConfig is built once at startup and handed to every component. Nothing
// modifies it afterwards.
type MigrationConfig struct {
	Env             string
	Source          Endpoint
	Target          Endpoint
	TargetDataverse string
	IDsFile         string
	PIDScheme       string
	FilesDir        string
	PurgeFiles      bool
	Publish         bool
	ReleaseType     string
	MaxAttempts     int
	RetryDelay      time.Duration
	HTTPTimeout     time.Duration
	ReportFile      string
	LogFile         string
	LogLevel        string
	LedgerDSN       string
	OtherIDAgency   string
	Depositor       string
}

// LoadMigrationConfig reads every setting from c, applying defaults and checking
// the environment mode. The target endpoint and token are chosen by the mode.
func LoadMigrationConfig(c Configer) (*MigrationConfig, error) {
	mc := &MigrationConfig{
		Env: c.GetKeyWithDefault(KeyEnv, EnvProduction),
		Source: Endpoint{
			URL:   c.GetKeyWithDefault(KeySourceURL, defaultSourceURL),
			Token: c.GetKey(KeySourceToken),
		},
		TargetDataverse: c.GetKeyWithDefault(KeyTargetDataverse, defaultTargetDataverse),
		IDsFile:         c.GetKeyWithDefault(KeyIDsFile, defaultIDsFile),
		PIDScheme:       c.GetKeyWithDefault(KeyPIDScheme, defaultPIDScheme),
		FilesDir:        c.GetKeyWithDefault(KeyFilesDir, defaultFilesDir),
		PurgeFiles:      c.GetBoolKeyWithDefault(KeyPurgeFiles, true),
		Publish:         c.GetBoolKeyWithDefault(KeyPublish, false),
		ReleaseType:     c.GetKeyWithDefault(KeyReleaseType, defaultReleaseType),
		MaxAttempts:     c.GetIntKeyWithDefault(KeyMaxAttempts, defaultMaxAttempts),
		RetryDelay:      c.GetDurationKeyWithDefault(KeyRetryDelay, 0),
		HTTPTimeout:     c.GetDurationKeyWithDefault(KeyHTTPTimeout, 0),
		ReportFile:      c.GetKeyWithDefault(KeyReportFile, defaultReportFile),
		LogFile:         c.GetKeyWithDefault(KeyLogFile, defaultLogFile),
		LogLevel:        c.GetKeyWithDefault(KeyLogLevel, defaultLogLevel),
		LedgerDSN:       c.GetKey(KeyLedgerDSN),
		OtherIDAgency:   c.GetKeyWithDefault(KeyOtherIDAgency, DefaultOtherIDAgency),
		Depositor:       c.GetKeyWithDefault(KeyDepositor, DefaultDepositor),
	}

	switch mc.Env {
	case EnvProduction:
		mc.Target = Endpoint{
			URL:   c.GetKeyWithDefault(KeyTargetURL, defaultTargetURL),
			Token: c.GetKey(KeyTargetToken),
		}
		if mc.Target.Token == "" {
			return nil, fmt.Errorf("%s must be set when %s is %q", KeyTargetToken, KeyEnv, EnvProduction)
		}
	case EnvTest:
		mc.Target = Endpoint{
			URL:   c.GetKeyWithDefault(KeyTargetTestURL, defaultTargetTestURL),
			Token: c.GetKey(KeyTargetTestToken),
		}
		if mc.Target.Token == "" {
			return nil, fmt.Errorf("%s must be set when %s is %q", KeyTargetTestToken, KeyEnv, EnvTest)
		}
	default:
		return nil, fmt.Errorf(`environment must be either "%s" or "%s", got %q`, EnvProduction, EnvTest, mc.Env)
	}

	if mc.MaxAttempts < 1 {
		return nil, fmt.Errorf("%s must be at least 1, got %d", KeyMaxAttempts, mc.MaxAttempts)
	}

	switch mc.ReleaseType {
	case "major", "minor":
	default:
		return nil, fmt.Errorf(`%s must be "major" or "minor", got %q`, KeyReleaseType, mc.ReleaseType)
	}

	var err error
	if mc.FilesDir, err = homedir.Expand(mc.FilesDir); err != nil {
		return nil, errors.Wrapf(err, "unable to expand %s", KeyFilesDir)
	}

	if mc.IDsFile, err = homedir.Expand(mc.IDsFile); err != nil {
		return nil, errors.Wrapf(err, "unable to expand %s", KeyIDsFile)
	}

	return mc, nil
}
