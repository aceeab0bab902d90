package ledgerrpc

import (
	"math/big"

	"github.com/dwarvesf/settlement-backend/internal/model"
)

// TransactionView is what the verifier needs to know about a deposit
// transaction: who received, who sent, which token and how much.
type TransactionView struct {
	Reference   string
	Destination string
	Sender      string
	Mint        string
	PreBalance  *big.Int
	PostBalance *big.Int
	Decimals    int
	// Confirmations is the number of blocks built on top of the transaction.
	// Finalized transactions report FinalizedConfirmations.
	Confirmations int
	Finalized     bool
	// Failed is set when the transaction landed but its execution failed.
	Failed bool
}

// FinalizedConfirmations stands in for the confirmation count of finalized
// transactions, for which the chain no longer reports one.
const FinalizedConfirmations = 1 << 30

// Delta returns the balance change of the destination account.
func (v *TransactionView) Delta() *big.Int {
	pre := v.PreBalance
	if pre == nil {
		pre = new(big.Int)
	}
	post := v.PostBalance
	if post == nil {
		post = new(big.Int)
	}
	return new(big.Int).Sub(post, pre)
}

type PayoutRequest struct {
	// IdempotencyKey makes resubmission of the same payout a no-op at the
	// signer. The deposit reference is used.
	IdempotencyKey string
	Destination    string
	Currency       string
	Mint           string
	Amount         model.TokenAmount
}
