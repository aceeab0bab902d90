package verifier

import (
	"context"
	"strconv"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

// RetryPolicy bounds how long a deposit is polled for. RetryIf decides which
// failures are worth another attempt; by default the retryable error kinds.
type RetryPolicy struct {
	Attempts         uint
	Delay            time.Duration
	MinConfirmations int
	RetryIf          func(error) bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:         3,
		Delay:            2 * time.Second,
		MinConfirmations: 1,
	}
}

type verifier struct {
	ledger ledgerrpc.ILedgerClient
	policy RetryPolicy
	logger *logger.Logger
	now    func() time.Time
}

func New(ledger ledgerrpc.ILedgerClient, policy RetryPolicy, logger *logger.Logger) IVerifier {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	if policy.MinConfirmations < 1 {
		policy.MinConfirmations = 1
	}
	if policy.RetryIf == nil {
		policy.RetryIf = func(err error) bool {
			return apperror.KindOf(err).Retryable()
		}
	}

	return &verifier{
		ledger: ledger,
		policy: policy,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (v *verifier) Verify(ctx context.Context, reference, expectedDestination, expectedSender string) (*model.Deposit, error) {
	attempt := 0
	view, err := retry.DoWithData(
		func() (*ledgerrpc.TransactionView, error) {
			attempt++
			return v.check(ctx, reference, expectedDestination, expectedSender)
		},
		retry.Context(ctx),
		retry.Attempts(v.policy.Attempts),
		retry.Delay(v.policy.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(v.policy.RetryIf),
		retry.OnRetry(func(n uint, err error) {
			v.logger.Debug("[Verifier][Verify] retrying", map[string]string{
				"reference": reference,
				"attempt":   strconv.Itoa(int(n) + 1),
				"error":     err.Error(),
			})
		}),
	)
	if err != nil {
		if apperror.KindOf(err) == apperror.KindInternal {
			// context expiry while waiting between attempts
			err = apperror.Wrap(apperror.KindLedgerError, err, "deposit verification interrupted")
		}
		v.logger.Info("[Verifier][Verify] deposit not verified", map[string]string{
			"reference": reference,
			"attempts":  strconv.Itoa(attempt),
			"kind":      apperror.KindOf(err).String(),
			"error":     err.Error(),
		})
		return nil, err
	}

	return &model.Deposit{
		Reference:         reference,
		SourceWallet:      view.Sender,
		DestinationWallet: view.Destination,
		Mint:              view.Mint,
		Amount:            view.Delta().String(),
		Decimals:          view.Decimals,
		ConfirmedAt:       v.now(),
	}, nil
}

func (v *verifier) check(ctx context.Context, reference, expectedDestination, expectedSender string) (*ledgerrpc.TransactionView, error) {
	view, err := v.ledger.GetTransaction(ctx, reference)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindLedgerError, err, "ledger lookup failed")
	}
	if view == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "transaction %s not found", reference)
	}
	if view.Failed {
		return nil, apperror.New(apperror.KindMismatch, "transaction failed on chain")
	}
	if view.Destination != expectedDestination {
		return nil, apperror.New(apperror.KindMismatch, "deposit was not sent to the receiving wallet")
	}
	if view.Sender != expectedSender {
		return nil, apperror.New(apperror.KindMismatch, "deposit was not sent by the requesting wallet")
	}
	if view.Confirmations < v.policy.MinConfirmations {
		return nil, apperror.Newf(apperror.KindNotConfirmed, "transaction has %d of %d confirmations",
			view.Confirmations, v.policy.MinConfirmations)
	}
	if view.Delta().Sign() <= 0 {
		return nil, apperror.New(apperror.KindMismatch, "deposit did not increase the receiving balance")
	}

	return view, nil
}

func (v *verifier) CheckClaim(deposit *model.Deposit, currency model.Currency, claimed model.TokenAmount) error {
	if deposit.Mint != currency.Mint {
		return apperror.Newf(apperror.KindMismatch, "deposit token is not %s", currency.Code)
	}
	if deposit.Decimals != currency.Decimals {
		return apperror.Newf(apperror.KindMismatch, "deposit token decimals %d do not match %s", deposit.Decimals, currency.Code)
	}
	if deposit.TokenAmount().Cmp(claimed) != 0 {
		return apperror.Newf(apperror.KindMismatch, "claimed amount %s differs from deposited %s",
			claimed.String(), deposit.TokenAmount().String())
	}
	return nil
}
