package verifier

import (
	"context"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

type IVerifier interface {
	// Verify polls the ledger for reference until it is confirmed, the retry
	// budget runs out or it is found to be wrong. The amount of the returned
	// deposit is the balance change observed on the receiving account.
	Verify(ctx context.Context, reference, expectedDestination, expectedSender string) (*model.Deposit, error)
	// CheckClaim compares what the caller said they sent with what arrived.
	CheckClaim(deposit *model.Deposit, currency model.Currency, claimed model.TokenAmount) error
}
