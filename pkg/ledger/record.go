package ledger

import (
	"time"

	"github.com/gosimple/slug"
	"github.com/hashicorp/go-uuid"
)

// StatusSuccess is the Status of a record for a dataset that was copied.
const StatusSuccess = "Success"

// MigrationRecord is one report row, stored as soon as the dataset's migration
// finishes.
type MigrationRecord struct {
	ID        int       `json:"id"`
	RunUUID   string    `json:"run_uuid" gorm:"index"`
	RunLabel  string    `json:"run_label"`
	SourcePID string    `json:"source_pid" gorm:"index"`
	TargetPID string    `json:"target_pid"`
	TargetID  int       `json:"target_id"`
	Status    string    `json:"status"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

func (MigrationRecord) TableName() string {
	return "migration_records"
}

// Run identifies one invocation of the migration. Every record written during the
// invocation carries its UUID and label.
type Run struct {
	UUID      string
	Label     string
	StartedAt time.Time
}

// NewRun creates a run whose label is a slug of name and the start time.
func NewRun(name string, startedAt time.Time) (*Run, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	return &Run{
		UUID:      id,
		Label:     slug.Make(name + " " + startedAt.Format("2006-01-02 150405")),
		StartedAt: startedAt,
	}, nil
}
