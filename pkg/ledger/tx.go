package ledger

import "gorm.io/gorm"

const txRetryCount = 3

// WithTxRetry runs fn in a transaction, retrying the whole transaction when it
// fails.
func WithTxRetry(db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error

	for i := 0; i < txRetryCount; i++ {
		err = db.Transaction(fn)
		if err == nil {
			break
		}
	}

	return err
}
