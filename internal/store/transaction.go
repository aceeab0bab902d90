package store

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// DoInTx runs fn inside a database transaction bound to ctx. The transaction
// is rolled back when fn returns an error or panics.
func DoInTx(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return errors.Wrap(tx.Error, "begin transaction")
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return errors.Wrap(tx.Commit().Error, "commit transaction")
}
