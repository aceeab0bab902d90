package deposit

import (
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IStore interface {
	Create(tx *gorm.DB, deposit *model.Deposit) (*model.Deposit, error)
	GetByReference(tx *gorm.DB, reference string) (*model.Deposit, error)
}
