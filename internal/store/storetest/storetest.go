// Package storetest opens throwaway sqlite databases for tests.
package storetest

import (
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

// Open returns a migrated in-memory database and the func that closes it.
// Each call gets its own database.
func Open() (*gorm.DB, func(), error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=busy_timeout(5000)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "open sqlite")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, errors.Wrap(err, "sqlite handle")
	}
	sqlDB.SetMaxOpenConns(1)
	closeFn := func() { sqlDB.Close() }

	if err := db.AutoMigrate(&model.SettlementRecord{}, &model.Deposit{}); err != nil {
		closeFn()
		return nil, nil, errors.Wrap(err, "migrate")
	}

	return db, closeFn, nil
}

// NewDB is Open for plain tests; the database is closed on cleanup.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	db, closeFn, err := Open()
	if err != nil {
		t.Fatalf("%v", err)
	}
	t.Cleanup(closeFn)

	return db
}
