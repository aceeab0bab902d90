package settlementledger

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/consts"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/store"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

// Fields are the columns a transition may set besides the status.
type Fields struct {
	DepositAmount *model.TokenAmount
	PayoutAmount  *model.TokenAmount
	PayoutTxID    string
	ErrorKind     apperror.Kind
	ErrorMessage  string
}

func (f Fields) columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if f.DepositAmount != nil {
		cols["deposit_amount"] = f.DepositAmount.Value
		cols["deposit_decimals"] = f.DepositAmount.Decimal
	}
	if f.PayoutAmount != nil {
		cols["payout_amount"] = f.PayoutAmount.Value
		cols["payout_decimals"] = f.PayoutAmount.Decimal
	}
	if f.PayoutTxID != "" {
		cols["payout_tx_id"] = f.PayoutTxID
	}
	if f.ErrorKind != "" {
		cols["error_kind"] = string(f.ErrorKind)
		cols["error_message"] = f.ErrorMessage
	}
	return cols
}

// FailureFields records err on a FAILED transition.
func FailureFields(err error) Fields {
	return Fields{
		ErrorKind:    apperror.KindOf(err),
		ErrorMessage: apperror.MessageOf(err),
	}
}

type ledger struct {
	db     *gorm.DB
	store  *store.Store
	logger *logger.Logger
}

func New(db *gorm.DB, s *store.Store, logger *logger.Logger) ILedger {
	return &ledger{
		db:     db,
		store:  s,
		logger: logger,
	}
}

func (l *ledger) BeginOrReuse(ctx context.Context, record *model.SettlementRecord) (*model.SettlementRecord, bool, error) {
	if record == nil || record.DepositReference == "" {
		return nil, false, apperror.New(apperror.KindInvalidRequest, "deposit reference is required")
	}
	record.Status = model.SettlementStatusPending

	tx := l.db.WithContext(ctx)
	created, err := l.store.SettlementRecord.InsertIfAbsent(tx, record)
	if err != nil {
		l.logger.Error("[SettlementLedger][BeginOrReuse][InsertIfAbsent]", map[string]string{
			"reference": record.DepositReference,
			"error":     err.Error(),
		})
		return nil, false, err
	}
	if created {
		return record, true, nil
	}

	existing, err := l.store.SettlementRecord.GetByReference(tx, record.DepositReference)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		// a conflicting row must exist for the insert to be skipped
		return nil, false, errors.Errorf("settlement record %s vanished after conflict", record.DepositReference)
	}

	return existing, false, nil
}

func (l *ledger) Advance(ctx context.Context, reference string, from, to model.SettlementStatus, fields Fields) (bool, error) {
	if !model.CanTransition(from, to) {
		l.logger.Warn("[SettlementLedger][Advance] illegal transition", map[string]string{
			"reference": reference,
			"from":      string(from),
			"to":        string(to),
		})
		return false, nil
	}

	changed, err := l.store.SettlementRecord.UpdateStatus(l.db.WithContext(ctx), reference, from, to, fields.columns())
	if err != nil {
		l.logger.Error("[SettlementLedger][Advance][UpdateStatus]", map[string]string{
			"reference": reference,
			"to":        string(to),
			"error":     err.Error(),
		})
		return false, err
	}

	return changed, nil
}

func (l *ledger) Confirm(ctx context.Context, reference string, deposit *model.Deposit) (bool, error) {
	amount := deposit.TokenAmount()
	fields := Fields{DepositAmount: &amount}

	var changed bool
	err := store.DoInTx(ctx, l.db, func(tx *gorm.DB) error {
		var err error
		changed, err = l.store.SettlementRecord.UpdateStatus(tx, reference,
			model.SettlementStatusPending, model.SettlementStatusConfirmed, fields.columns())
		if err != nil || !changed {
			return err
		}
		_, err = l.store.Deposit.Create(tx, deposit)
		return err
	})
	if err != nil {
		l.logger.Error("[SettlementLedger][Confirm]", map[string]string{
			"reference": reference,
			"error":     err.Error(),
		})
		return false, err
	}

	return changed, nil
}

func (l *ledger) Get(ctx context.Context, reference string) (*model.SettlementRecord, error) {
	return l.store.SettlementRecord.GetByReference(l.db.WithContext(ctx), reference)
}

func (l *ledger) GetDeposit(ctx context.Context, reference string) (*model.Deposit, error) {
	return l.store.Deposit.GetByReference(l.db.WithContext(ctx), reference)
}

func (l *ledger) List(ctx context.Context, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error) {
	if filter.Limit <= 0 {
		filter.Limit = consts.DefaultPageLimit
	}
	if filter.Limit > consts.MaxPageLimit {
		filter.Limit = consts.MaxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	return l.store.SettlementRecord.List(l.db.WithContext(ctx), filter)
}

func (l *ledger) ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.SettlementRecord, error) {
	if limit <= 0 {
		limit = consts.MaxPageLimit
	}
	return l.store.SettlementRecord.ListStale(l.db.WithContext(ctx), updatedBefore.UTC(), limit)
}
