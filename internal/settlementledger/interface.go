package settlementledger

import (
	"context"
	"time"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

// ILedger is the only writer of settlement records. Every mutation is a
// compare-and-set on the record status, so concurrent callers for the same
// deposit reference can never both win.
type ILedger interface {
	// BeginOrReuse creates a PENDING record for the reference, or returns the
	// record that already exists. isNew is true for exactly one caller.
	BeginOrReuse(ctx context.Context, record *model.SettlementRecord) (existing *model.SettlementRecord, isNew bool, err error)
	// Advance moves a record from one status to another. It returns false
	// without error when the transition is not allowed or the record is no
	// longer in from.
	Advance(ctx context.Context, reference string, from, to model.SettlementStatus, fields Fields) (bool, error)
	// Confirm stores the verified deposit and advances PENDING to CONFIRMED in
	// one transaction.
	Confirm(ctx context.Context, reference string, deposit *model.Deposit) (bool, error)
	Get(ctx context.Context, reference string) (*model.SettlementRecord, error)
	GetDeposit(ctx context.Context, reference string) (*model.Deposit, error)
	List(ctx context.Context, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error)
	ListStale(ctx context.Context, updatedBefore time.Time, limit int) ([]*model.SettlementRecord, error)
}
