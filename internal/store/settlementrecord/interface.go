package settlementrecord

import (
	"time"

	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IStore interface {
	// InsertIfAbsent inserts record unless its deposit reference already
	// exists. It reports whether this call created the row.
	InsertIfAbsent(tx *gorm.DB, record *model.SettlementRecord) (bool, error)
	GetByReference(tx *gorm.DB, reference string) (*model.SettlementRecord, error)
	// UpdateStatus moves the record from one status to another only if it is
	// still in from. It reports whether a row changed.
	UpdateStatus(tx *gorm.DB, reference string, from, to model.SettlementStatus, fields map[string]interface{}) (bool, error)
	List(tx *gorm.DB, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error)
	ListStale(tx *gorm.DB, updatedBefore time.Time, limit int) ([]*model.SettlementRecord, error)
}
