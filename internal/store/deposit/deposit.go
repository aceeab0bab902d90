package deposit

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type store struct{}

func New() IStore {
	return &store{}
}

// Create is a no-op when the reference is already recorded; deposits never
// change once confirmed.
func (s *store) Create(tx *gorm.DB, deposit *model.Deposit) (*model.Deposit, error) {
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(deposit).Error
	if err != nil {
		return nil, errors.Wrap(err, "create deposit")
	}

	return deposit, nil
}

func (s *store) GetByReference(tx *gorm.DB, reference string) (*model.Deposit, error) {
	var deposit model.Deposit
	err := tx.Where("reference = ?", reference).First(&deposit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get deposit")
	}

	return &deposit, nil
}
