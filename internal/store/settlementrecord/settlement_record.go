package settlementrecord

import (
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

func (s *store) InsertIfAbsent(tx *gorm.DB, record *model.SettlementRecord) (bool, error) {
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "deposit_reference"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "insert settlement record")
	}

	return res.RowsAffected == 1, nil
}

func (s *store) GetByReference(tx *gorm.DB, reference string) (*model.SettlementRecord, error) {
	var record model.SettlementRecord
	err := tx.Where("deposit_reference = ?", reference).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get settlement record")
	}

	return &record, nil
}

func (s *store) UpdateStatus(tx *gorm.DB, reference string, from, to model.SettlementStatus, fields map[string]interface{}) (bool, error) {
	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["status"] = to
	updates["updated_at"] = time.Now().UTC()

	res := tx.Model(&model.SettlementRecord{}).
		Where("deposit_reference = ? AND status = ?", reference, from).
		Updates(updates)
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "update settlement status")
	}

	return res.RowsAffected == 1, nil
}

func (s *store) List(tx *gorm.DB, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error) {
	q := tx.Model(&model.SettlementRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.Wallet != "" {
		q = q.Where("requesting_wallet = ?", filter.Wallet)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count settlement records")
	}

	var records []*model.SettlementRecord
	err := q.Order("created_at DESC").Order("id DESC").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Find(&records).Error
	if err != nil {
		return nil, 0, errors.Wrap(err, "list settlement records")
	}

	return records, total, nil
}

func (s *store) ListStale(tx *gorm.DB, updatedBefore time.Time, limit int) ([]*model.SettlementRecord, error) {
	var records []*model.SettlementRecord
	err := tx.Where("status IN ? AND updated_at < ?", model.InFlightSettlementStatuses(), updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(err, "list stale settlement records")
	}

	return records, nil
}
