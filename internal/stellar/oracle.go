// Package stellar integrates with the Stellar network via Horizon. It is the
// platform's only source of truth for whether an on-chain payment happened.
package stellar

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/protocols/horizon/operations"

	"splittab/internal/metrics"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/logger"
)

// VerifiedTransaction carries the on-chain facts about a payment.
type VerifiedTransaction struct {
	Valid       bool
	Hash        string
	Amount      decimal.Decimal
	AssetCode   string
	AssetIssuer string
	Sender      string
	Receiver    string
	Timestamp   time.Time
	Memo        string
}

// Oracle verifies a transaction hash against the payment network. A nil
// result never occurs: "cannot confirm" is expressed as Valid=false, and
// transport failures come back as a retryable error so callers may resubmit
// the same hash.
type Oracle interface {
	VerifyTransaction(ctx context.Context, hash string) (*VerifiedTransaction, error)
}

// HorizonOracle implements Oracle against a Horizon instance. It is
// constructed once and injected; there is no package-level client.
type HorizonOracle struct {
	client  *horizonclient.Client
	logger  logger.Logger
	timeout time.Duration
}

func NewHorizonOracle(horizonURL string, timeout time.Duration, log logger.Logger) *HorizonOracle {
	return &HorizonOracle{
		client: &horizonclient.Client{
			HorizonURL: horizonURL,
			HTTP:       &http.Client{Timeout: timeout},
		},
		logger:  log,
		timeout: timeout,
	}
}

// VerifyTransaction looks up the transaction and its first payment operation.
// Horizon 404s and failed transactions yield Valid=false; network errors
// yield ErrOracleUnavailable.
func (o *HorizonOracle) VerifyTransaction(ctx context.Context, hash string) (*VerifiedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, pkgerrors.Wrap(err, "verification cancelled")
	}

	start := time.Now()
	tx, err := o.client.TransactionDetail(hash)
	metrics.OracleLookupLatency.WithLabelValues(lookupResult(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		if isNotFound(err) {
			o.logger.Warn("Transaction not found on network", map[string]interface{}{
				"tx_hash": hash,
			})
			return &VerifiedTransaction{Valid: false, Hash: hash}, nil
		}
		o.logger.Error("Horizon transaction lookup failed", map[string]interface{}{
			"tx_hash": hash,
			"error":   err.Error(),
		})
		return nil, pkgerrors.Wrap(pkgerrors.ErrOracleUnavailable, err.Error())
	}

	if !tx.Successful {
		return &VerifiedTransaction{Valid: false, Hash: hash}, nil
	}

	opsPage, err := o.client.Operations(horizonclient.OperationRequest{
		ForTransaction: hash,
	})
	if err != nil {
		if isNotFound(err) {
			return &VerifiedTransaction{Valid: false, Hash: hash}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrOracleUnavailable, err.Error())
	}

	for _, record := range opsPage.Embedded.Records {
		payment, ok := record.(operations.Payment)
		if !ok {
			continue
		}

		amount, err := decimal.NewFromString(payment.Amount)
		if err != nil {
			return &VerifiedTransaction{Valid: false, Hash: hash}, nil
		}

		assetCode := payment.Asset.Code
		if payment.Asset.Type == "native" {
			assetCode = "XLM"
		}

		return &VerifiedTransaction{
			Valid:       true,
			Hash:        hash,
			Amount:      amount,
			AssetCode:   assetCode,
			AssetIssuer: payment.Asset.Issuer,
			Sender:      payment.From,
			Receiver:    payment.To,
			Timestamp:   tx.LedgerCloseTime,
			Memo:        tx.Memo,
		}, nil
	}

	// Successful transaction without a payment operation settles nothing.
	return &VerifiedTransaction{Valid: false, Hash: hash}, nil
}

func lookupResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case isNotFound(err):
		return "not_found"
	default:
		return "error"
	}
}

func isNotFound(err error) bool {
	if herr, ok := err.(*horizonclient.Error); ok {
		return herr.Problem.Status == http.StatusNotFound
	}
	return false
}
