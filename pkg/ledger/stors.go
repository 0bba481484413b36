package ledger

import (
	"sync"
	"time"

	"gorm.io/gorm"
)

type RecordStor interface {
	AddRecord(record *MigrationRecord) (*MigrationRecord, error)
	ListRecordsForRun(runUUID string) ([]MigrationRecord, error)
	ListRecordsForSource(sourcePID string) ([]MigrationRecord, error)
}

type GormRecordStor struct {
	db *gorm.DB
}

func NewGormRecordStor(db *gorm.DB) *GormRecordStor {
	return &GormRecordStor{db: db}
}

func (s *GormRecordStor) AddRecord(record *MigrationRecord) (*MigrationRecord, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(record).Error
	})

	if err != nil {
		return nil, err
	}

	return record, nil
}

func (s *GormRecordStor) ListRecordsForRun(runUUID string) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := s.db.Where("run_uuid = ?", runUUID).Order("id").Find(&records).Error
	return records, err
}

func (s *GormRecordStor) ListRecordsForSource(sourcePID string) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := s.db.Where("source_pid = ?", sourcePID).Order("id").Find(&records).Error
	return records, err
}

type InMemoryRecordStor struct {
	mu      sync.Mutex
	nextID  int
	records []MigrationRecord
}

func NewInMemoryRecordStor() *InMemoryRecordStor {
	return &InMemoryRecordStor{nextID: 1}
}

func (s *InMemoryRecordStor) AddRecord(record *MigrationRecord) (*MigrationRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record.ID = s.nextID
	s.nextID++
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	s.records = append(s.records, *record)
	return record, nil
}

func (s *InMemoryRecordStor) ListRecordsForRun(runUUID string) ([]MigrationRecord, error) {
	return s.filter(func(r MigrationRecord) bool { return r.RunUUID == runUUID }), nil
}

func (s *InMemoryRecordStor) ListRecordsForSource(sourcePID string) ([]MigrationRecord, error) {
	return s.filter(func(r MigrationRecord) bool { return r.SourcePID == sourcePID }), nil
}

func (s *InMemoryRecordStor) filter(keep func(r MigrationRecord) bool) []MigrationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []MigrationRecord
	for _, r := range s.records {
		if keep(r) {
			records = append(records, r)
		}
	}

	return records
}

// PreviousSuccesses returns the records from earlier runs that copied sourcePID
// successfully, oldest first.
func PreviousSuccesses(s RecordStor, sourcePID string) ([]MigrationRecord, error) {
	records, err := s.ListRecordsForSource(sourcePID)
	if err != nil {
		return nil, err
	}

	var successes []MigrationRecord
	for _, r := range records {
		if r.Status == StatusSuccess {
			successes = append(successes, r)
		}
	}

	return successes, nil
}
