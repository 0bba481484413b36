package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	sqlitePrefix = "sqlite://"
	mysqlPrefix  = "mysql://"
)

const maxDBRetries = 5

var retryDelay = 3 * time.Second

// dialectorFor picks the gorm driver from the scheme of dsn:
//
//	sqlite://path/to/ledger.db
//	mysql://user:pw@tcp(host:3306)/db?parseTime=True
func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, sqlitePrefix):
		path := strings.TrimPrefix(dsn, sqlitePrefix)
		if path == "" {
			return nil, fmt.Errorf("no path in ledger dsn %q", dsn)
		}

		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, errors.Wrapf(err, "unable to create ledger directory %s", dir)
			}
		}

		return sqlite.Open(path), nil

	case strings.HasPrefix(dsn, mysqlPrefix):
		return mysql.Open(strings.TrimPrefix(dsn, mysqlPrefix)), nil

	default:
		return nil, fmt.Errorf("unsupported ledger dsn %q: must start with %s or %s", dsn, sqlitePrefix, mysqlPrefix)
	}
}

// Open connects to the ledger database and makes sure the tables exist. Connecting
// is attempted maxDBRetries times, sleeping between attempts.
func Open(dsn string) (*gorm.DB, error) {
	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	var db *gorm.DB
	retryCount := 1
	for {
		db, err = gorm.Open(dialector, gormConfig)
		if err == nil {
			break
		}

		if retryCount >= maxDBRetries {
			return nil, errors.Wrapf(err, "failed to open ledger db after %d attempts", retryCount)
		}

		log.WithError(err).Warnf("Unable to open ledger db, attempt %d/%d", retryCount, maxDBRetries)
		retryCount++
		time.Sleep(retryDelay)
	}

	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, errors.Wrap(err, "unable to create ledger tables")
	}

	return db, nil
}
