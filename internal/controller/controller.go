package controller

import (
	"context"
	"strings"
	"time"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/consts"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/monitoring"
	"github.com/dwarvesf/settlement-backend/internal/quote"
	"github.com/dwarvesf/settlement-backend/internal/settlementledger"
	"github.com/dwarvesf/settlement-backend/internal/utils/address"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/utils/webhook"
	"github.com/dwarvesf/settlement-backend/internal/verifier"
)

// failureWriteTimeout bounds the write that records a failure. It runs on a
// fresh context so a settlement that ran out of time can still end FAILED.
const failureWriteTimeout = 10 * time.Second

type SettleRequest struct {
	Wallet           string
	DepositReference string
	ClaimedCurrency  string
	// ClaimedAmount is in minor units of ClaimedCurrency.
	ClaimedAmount  string
	PayoutCurrency string
}

type SettleResult struct {
	DepositReference string
	Status           model.SettlementStatus
	PayoutCurrency   string
	PayoutAmount     model.TokenAmount
	PayoutTxID       string
	// Replayed is set when the payout happened on an earlier request.
	Replayed bool
}

type Controller struct {
	ledger   settlementledger.ILedger
	verifier verifier.IVerifier
	quotes   quote.IEngine
	payouts  ledgerrpc.ILedgerClient
	notifier webhook.INotifier
	metrics  *monitoring.BusinessMetricsRecorder
	logger   *logger.Logger
	config   *config.AppConfig
}

func New(
	ledger settlementledger.ILedger,
	verifier verifier.IVerifier,
	quotes quote.IEngine,
	payouts ledgerrpc.ILedgerClient,
	notifier webhook.INotifier,
	metrics *monitoring.BusinessMetricsRecorder,
	logger *logger.Logger,
	config *config.AppConfig,
) IController {
	return &Controller{
		ledger:   ledger,
		verifier: verifier,
		quotes:   quotes,
		payouts:  payouts,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		config:   config,
	}
}

func (c *Controller) Settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	start := time.Now()
	res, err := c.settle(ctx, req)

	outcome := string(model.SettlementStatusPaid)
	if err != nil {
		outcome = apperror.KindOf(err).String()
	}
	c.metrics.RecordSettlement(strings.ToUpper(req.PayoutCurrency), outcome, time.Since(start).Seconds())

	return res, err
}

func (c *Controller) settle(ctx context.Context, req SettleRequest) (*SettleResult, error) {
	source, payout, claimed, err := c.validate(req)
	if err != nil {
		return nil, err
	}

	rec, isNew, err := c.ledger.BeginOrReuse(ctx, &model.SettlementRecord{
		DepositReference: req.DepositReference,
		RequestingWallet: req.Wallet,
		SourceCurrency:   source.Code,
		ClaimedAmount:    claimed.Value,
		PayoutCurrency:   payout.Code,
	})
	if err != nil {
		return nil, err
	}
	if !isNew {
		return c.replay(rec, req.Wallet, payout.Code)
	}

	// the client may hang up; the record still has to reach a terminal status
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.config.Settlement.Timeout)
	defer cancel()

	log := c.logger.With(map[string]string{
		"reference": rec.DepositReference,
		"wallet":    rec.RequestingWallet,
	})

	deposit, err := c.verify(ctx, rec, source, claimed)
	if err != nil {
		return c.fail(ctx, log, rec, model.SettlementStatusPending, err)
	}
	ok, err := c.ledger.Confirm(ctx, rec.DepositReference, deposit)
	if err != nil {
		return c.fail(ctx, log, rec, model.SettlementStatusPending, err)
	}
	if !ok {
		return c.outcome(ctx, rec.DepositReference)
	}

	amount, err := c.quotes.Convert(ctx, deposit.TokenAmount(), source.Code, payout.Code)
	if err != nil {
		return c.fail(ctx, log, rec, model.SettlementStatusConfirmed, err)
	}
	if amount.Sign() <= 0 {
		err = apperror.Newf(apperror.KindMismatch, "deposit is worth less than one unit of %s", payout.Code)
		return c.fail(ctx, log, rec, model.SettlementStatusConfirmed, err)
	}
	ok, err = c.ledger.Advance(ctx, rec.DepositReference, model.SettlementStatusConfirmed, model.SettlementStatusQuoted,
		settlementledger.Fields{PayoutAmount: &amount})
	if err != nil {
		return c.fail(ctx, log, rec, model.SettlementStatusConfirmed, err)
	}
	if !ok {
		return c.outcome(ctx, rec.DepositReference)
	}

	txID, err := c.pay(ctx, rec, payout, amount)
	if err != nil {
		c.notifier.NotifyOperator(ctx, webhook.Alert{
			Event:            webhook.EventPayoutFailed,
			DepositReference: rec.DepositReference,
			RequestingWallet: rec.RequestingWallet,
			PayoutCurrency:   payout.Code,
			PayoutAmount:     amount.String(),
			ErrorKind:        apperror.KindOf(err).String(),
			Message:          apperror.MessageOf(err),
		})
		return c.fail(ctx, log, rec, model.SettlementStatusQuoted, err)
	}

	ok, err = c.ledger.Advance(ctx, rec.DepositReference, model.SettlementStatusQuoted, model.SettlementStatusPaid,
		settlementledger.Fields{PayoutTxID: txID})
	if err != nil || !ok {
		// the payout went out; only the record is behind
		log.Error("[Controller][Settle] payout sent but record not advanced", map[string]string{
			"txID":  txID,
			"error": errString(err),
		})
		c.notifier.NotifyOperator(ctx, webhook.Alert{
			Event:            webhook.EventSettlementFailed,
			DepositReference: rec.DepositReference,
			RequestingWallet: rec.RequestingWallet,
			PayoutCurrency:   payout.Code,
			PayoutAmount:     amount.String(),
			Message:          "payout " + txID + " sent but the settlement record could not be marked PAID",
		})
		if err != nil {
			return nil, err
		}
		return c.outcome(ctx, rec.DepositReference)
	}

	log.Info("[Controller][Settle] settlement paid", map[string]string{
		"amount":   amount.String(),
		"currency": payout.Code,
		"txID":     txID,
	})

	return &SettleResult{
		DepositReference: rec.DepositReference,
		Status:           model.SettlementStatusPaid,
		PayoutCurrency:   payout.Code,
		PayoutAmount:     amount,
		PayoutTxID:       txID,
	}, nil
}

func (c *Controller) validate(req SettleRequest) (model.Currency, model.Currency, model.TokenAmount, error) {
	var none model.TokenAmount
	if req.DepositReference == "" {
		return model.Currency{}, model.Currency{}, none, apperror.New(apperror.KindInvalidRequest, "deposit reference is required")
	}
	if len(req.DepositReference) > consts.MaxDepositReferenceLength {
		return model.Currency{}, model.Currency{}, none, apperror.Newf(apperror.KindInvalidRequest,
			"deposit reference exceeds %d characters", consts.MaxDepositReferenceLength)
	}
	if !address.IsValidPublicKey(req.Wallet) {
		return model.Currency{}, model.Currency{}, none, apperror.New(apperror.KindInvalidRequest, "wallet is not a valid address")
	}

	source, err := c.quotes.Currency(req.ClaimedCurrency)
	if err != nil {
		return model.Currency{}, model.Currency{}, none, err
	}
	payout, err := c.quotes.Currency(req.PayoutCurrency)
	if err != nil {
		return model.Currency{}, model.Currency{}, none, err
	}

	if len(req.ClaimedAmount) > consts.MaxAmountDigits {
		return model.Currency{}, model.Currency{}, none, apperror.Newf(apperror.KindInvalidRequest,
			"claimed amount exceeds %d digits", consts.MaxAmountDigits)
	}
	claimed, err := model.ParseTokenAmount(req.ClaimedAmount, source.Decimals)
	if err != nil || claimed.Sign() <= 0 {
		return model.Currency{}, model.Currency{}, none, apperror.New(apperror.KindInvalidRequest,
			"claimed amount must be a positive integer in minor units")
	}

	return source, payout, claimed, nil
}

// replay answers a request for a reference that already has a record.
func (c *Controller) replay(rec *model.SettlementRecord, wallet, payoutCurrency string) (*SettleResult, error) {
	if !rec.Status.IsTerminal() {
		return nil, inProgress(rec)
	}
	if rec.Status == model.SettlementStatusFailed {
		return nil, storedFailure(rec)
	}
	if rec.RequestingWallet != wallet || rec.PayoutCurrency != payoutCurrency {
		return nil, apperror.Newf(apperror.KindAlreadySettled,
			"deposit %s was already paid out in %s", rec.DepositReference, rec.PayoutCurrency)
	}
	res := resultOf(rec)
	res.Replayed = true
	return res, nil
}

// outcome re-reads a record after losing a transition race.
func (c *Controller) outcome(ctx context.Context, reference string) (*SettleResult, error) {
	rec, err := c.ledger.Get(ctx, reference)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperror.Newf(apperror.KindInternal, "settlement record %s disappeared", reference)
	}

	if !rec.Status.IsTerminal() {
		return nil, inProgress(rec)
	}
	if rec.Status == model.SettlementStatusFailed {
		return nil, storedFailure(rec)
	}
	return resultOf(rec), nil
}

func (c *Controller) verify(ctx context.Context, rec *model.SettlementRecord, source model.Currency, claimed model.TokenAmount) (*model.Deposit, error) {
	deposit, err := c.verifier.Verify(ctx, rec.DepositReference, c.config.Solana.ReceivingWallet, rec.RequestingWallet)
	if err != nil {
		return nil, err
	}
	if err := c.verifier.CheckClaim(deposit, source, claimed); err != nil {
		return nil, err
	}
	deposit.Currency = source.Code

	return deposit, nil
}

func (c *Controller) pay(ctx context.Context, rec *model.SettlementRecord, payout model.Currency, amount model.TokenAmount) (string, error) {
	start := time.Now()

	balance, err := c.payouts.PayoutBalance(ctx, payout.Code)
	if err != nil {
		c.metrics.RecordPayout(payout.Code, "balance_error", time.Since(start).Seconds())
		return "", apperror.Wrap(apperror.KindSubmitError, err, "could not read payout wallet balance")
	}
	if balance.Cmp(amount) < 0 {
		c.metrics.RecordPayout(payout.Code, "insufficient_funds", time.Since(start).Seconds())
		return "", apperror.Newf(apperror.KindInsufficientFunds, "payout wallet is %s %s short of %s",
			amount.Sub(balance).String(), payout.Code, amount.String())
	}

	txID, err := c.payouts.SubmitPayout(ctx, ledgerrpc.PayoutRequest{
		IdempotencyKey: rec.DepositReference,
		Destination:    rec.RequestingWallet,
		Currency:       payout.Code,
		Mint:           payout.Mint,
		Amount:         amount,
	})
	if err != nil {
		c.metrics.RecordPayout(payout.Code, "error", time.Since(start).Seconds())
		return "", apperror.Wrap(apperror.KindSubmitError, err, "payout submission failed")
	}
	c.metrics.RecordPayout(payout.Code, "success", time.Since(start).Seconds())

	return txID, nil
}

// fail moves rec from the given status to FAILED and returns cause, marked
// final once the FAILED write lands. When another writer moved the record
// first, its stored outcome is returned instead.
func (c *Controller) fail(ctx context.Context, log *logger.Logger, rec *model.SettlementRecord, from model.SettlementStatus, cause error) (*SettleResult, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), failureWriteTimeout)
	defer cancel()

	log.Info("[Controller][Settle] settlement failed", map[string]string{
		"from":  string(from),
		"kind":  apperror.KindOf(cause).String(),
		"error": cause.Error(),
	})

	ok, err := c.ledger.Advance(ctx, rec.DepositReference, from, model.SettlementStatusFailed, settlementledger.FailureFields(cause))
	if err != nil {
		log.Error("[Controller][fail][Advance]", map[string]string{
			"error": err.Error(),
		})
		return nil, cause
	}
	if !ok {
		return c.outcome(ctx, rec.DepositReference)
	}

	return nil, apperror.Finalize(cause)
}

func (c *Controller) GetSettlement(ctx context.Context, reference string) (*model.SettlementRecord, error) {
	rec, err := c.ledger.Get(ctx, reference)
	if err != nil {
		c.logger.Error("[Controller][GetSettlement][Get]", map[string]string{
			"reference": reference,
			"error":     err.Error(),
		})
		return nil, err
	}
	if rec == nil {
		return nil, apperror.Newf(apperror.KindNotFound, "no settlement for %s", reference)
	}
	return rec, nil
}

func (c *Controller) ListSettlements(ctx context.Context, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperror.Newf(apperror.KindInvalidRequest, "unknown status %s", filter.Status)
	}
	return c.ledger.List(ctx, filter)
}

func resultOf(rec *model.SettlementRecord) *SettleResult {
	res := &SettleResult{
		DepositReference: rec.DepositReference,
		Status:           rec.Status,
		PayoutCurrency:   rec.PayoutCurrency,
		PayoutAmount:     rec.PayoutTokenAmount(),
	}
	if rec.PayoutTxID != nil {
		res.PayoutTxID = *rec.PayoutTxID
	}
	return res
}

func inProgress(rec *model.SettlementRecord) error {
	return apperror.Newf(apperror.KindInProgress, "settlement for %s is %s", rec.DepositReference, rec.Status)
}

func storedFailure(rec *model.SettlementRecord) error {
	msg := rec.ErrorMessage
	if msg == "" {
		msg = "settlement failed"
	}
	return apperror.Finalize(apperror.New(apperror.ParseKind(rec.ErrorKind), msg))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
