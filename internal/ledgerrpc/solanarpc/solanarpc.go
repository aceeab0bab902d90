package solanarpc

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

const (
	commitmentConfirmed = "confirmed"
	statusFinalized     = "finalized"
)

type Config struct {
	RPCURL string
	// ReceivingWallet owns the token account deposits are sent to.
	ReceivingWallet string
	Timeout         time.Duration
}

type solanaRPC struct {
	cfg    Config
	client *resty.Client
	logger *logger.Logger
	nextID int64
}

func New(cfg Config, logger *logger.Logger) ledgerrpc.IChainReader {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &solanaRPC{
		cfg: cfg,
		client: resty.New().
			SetTimeout(cfg.Timeout).
			SetHeader("Content-Type", "application/json"),
		logger: logger,
	}
}

// GetTransaction loads a transaction with confirmed commitment and pairs it
// with its signature status, since a finalized transaction no longer reports
// a confirmation count in the transaction itself.
func (s *solanaRPC) GetTransaction(ctx context.Context, reference string) (*ledgerrpc.TransactionView, error) {
	var tx *transactionResult
	err := s.call(ctx, "getTransaction", []interface{}{
		reference,
		map[string]interface{}{
			"encoding":                       "jsonParsed",
			"commitment":                     commitmentConfirmed,
			"maxSupportedTransactionVersion": 0,
		},
	}, &tx)
	if err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, nil
	}

	var statuses signatureStatusesResult
	err = s.call(ctx, "getSignatureStatuses", []interface{}{
		[]string{reference},
		map[string]interface{}{"searchTransactionHistory": true},
	}, &statuses)
	if err != nil {
		return nil, err
	}

	view := buildView(reference, s.cfg.ReceivingWallet, tx)
	if len(statuses.Value) > 0 && statuses.Value[0] != nil {
		st := statuses.Value[0]
		switch {
		case st.ConfirmationStatus == statusFinalized:
			view.Finalized = true
			view.Confirmations = ledgerrpc.FinalizedConfirmations
		case st.Confirmations != nil:
			view.Confirmations = *st.Confirmations
		}
	}

	return view, nil
}

func (s *solanaRPC) Ping(ctx context.Context) error {
	var health string
	return s.call(ctx, "getHealth", []interface{}{}, &health)
}

func (s *solanaRPC) call(ctx context.Context, method string, params []interface{}, out interface{}) error {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      int(atomic.AddInt64(&s.nextID, 1)),
		Method:  method,
		Params:  params,
	}

	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		Post(s.cfg.RPCURL)
	if err != nil {
		s.logger.Error("[SolanaRPC]["+method+"][Post]", map[string]string{
			"error": err.Error(),
		})
		return errors.Wrapf(err, "%s request", method)
	}
	if resp.StatusCode() != 200 {
		s.logger.Error("[SolanaRPC]["+method+"] unexpected status", map[string]string{
			"statusCode": strconv.Itoa(resp.StatusCode()),
			"body":       string(resp.Body()),
		})
		return fmt.Errorf("status code: %d, %s failed", resp.StatusCode(), method)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(resp.Body(), &rpcResp); err != nil {
		return errors.Wrapf(err, "decode %s response", method)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("%s rpc error %d: %s", method, rpcResp.Error.Code, rpcResp.Error.Message)
	}
	if len(rpcResp.Result) == 0 {
		return nil
	}

	return errors.Wrapf(json.Unmarshal(rpcResp.Result, out), "decode %s result", method)
}

// buildView picks the token account that gained funds. An account owned by
// the receiving wallet wins; otherwise the first account that gained is
// reported so the verifier can flag the destination mismatch.
func buildView(reference, receivingWallet string, tx *transactionResult) *ledgerrpc.TransactionView {
	view := &ledgerrpc.TransactionView{Reference: reference}
	if tx.Meta == nil {
		return view
	}
	view.Failed = len(tx.Meta.Err) > 0 && string(tx.Meta.Err) != "null"

	pre := map[int]tokenBalance{}
	for _, b := range tx.Meta.PreTokenBalances {
		pre[b.AccountIndex] = b
	}

	type change struct {
		balance tokenBalance
		before  *big.Int
		after   *big.Int
		delta   *big.Int
	}
	var gains, losses []change
	for _, post := range tx.Meta.PostTokenBalances {
		after := parseAmount(post.UITokenAmount.Amount)
		before := new(big.Int)
		if b, ok := pre[post.AccountIndex]; ok {
			before = parseAmount(b.UITokenAmount.Amount)
		}
		delta := new(big.Int).Sub(after, before)
		c := change{balance: post, before: before, after: after, delta: delta}
		switch delta.Sign() {
		case 1:
			gains = append(gains, c)
		case -1:
			losses = append(losses, c)
		}
	}

	if len(gains) == 0 {
		return view
	}
	dest := gains[0]
	for _, g := range gains {
		if g.balance.Owner == receivingWallet {
			dest = g
			break
		}
	}

	view.Destination = dest.balance.Owner
	view.Mint = dest.balance.Mint
	view.Decimals = dest.balance.UITokenAmount.Decimals
	view.PreBalance = dest.before
	view.PostBalance = dest.after
	for _, l := range losses {
		if l.balance.Mint == dest.balance.Mint {
			view.Sender = l.balance.Owner
			break
		}
	}

	return view
}

func parseAmount(s string) *big.Int {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}
