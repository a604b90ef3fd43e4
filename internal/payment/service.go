// Package payment implements the reconciliation pipeline: a submitted
// transaction hash is verified against the network, classified, and applied
// to the debt ledger atomically.
package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"splittab/internal/domain"
	"splittab/internal/ledger"
	"splittab/internal/metrics"
	"splittab/internal/notification"
	"splittab/internal/stellar"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/logger"
)

type Service struct {
	payments     PaymentRepository
	participants ParticipantRepository
	ledger       LedgerService
	oracle       stellar.Oracle
	notifier     notification.Emitter
	logger       logger.Logger
}

func NewService(
	payments PaymentRepository,
	participants ParticipantRepository,
	ledgerService LedgerService,
	oracle stellar.Oracle,
	notifier notification.Emitter,
	log logger.Logger,
) *Service {
	return &Service{
		payments:     payments,
		participants: participants,
		ledger:       ledgerService,
		oracle:       oracle,
		notifier:     notifier,
		logger:       log,
	}
}

type SubmitPaymentRequest struct {
	SplitID       uuid.UUID `json:"split_id" validate:"required"`
	ParticipantID uuid.UUID `json:"participant_id" validate:"required"`
	TxHash        string    `json:"tx_hash" validate:"required,len=64,hexadecimal"`
}

type SubmitPaymentResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	PaymentID uuid.UUID `json:"payment_id"`
}

// Submit runs the reconciliation pipeline. Each stage short-circuits: a
// failure before ApplyPayment leaves the ledger untouched, and ApplyPayment
// itself is a single transaction, so state is never partially applied.
// Oracle transport failures surface as retryable errors — the duplicate
// check makes resubmitting the same hash safe.
func (s *Service) Submit(ctx context.Context, req *SubmitPaymentRequest) (*SubmitPaymentResponse, error) {
	existing, err := s.payments.FindByTxHash(ctx, req.TxHash)
	if err == nil && existing != nil {
		s.logger.Info("Duplicate transaction submission", map[string]interface{}{
			"tx_hash":    req.TxHash,
			"payment_id": existing.ID,
		})
		metrics.PaymentsSubmitted.WithLabelValues(metrics.OutcomeDuplicate).Inc()
		return nil, pkgerrors.Wrap(pkgerrors.ErrDuplicateTransaction,
			fmt.Sprintf("payment %s already recorded this transaction", existing.ID))
	}
	if err != nil && err != pkgerrors.ErrPaymentNotFound {
		return nil, pkgerrors.Wrap(err, "duplicate check failed")
	}

	verified, err := s.oracle.VerifyTransaction(ctx, req.TxHash)
	if err != nil {
		s.logger.Error("Oracle verification failed", map[string]interface{}{
			"tx_hash": req.TxHash,
			"error":   err.Error(),
		})
		if pkgerrors.IsRetryable(err) {
			metrics.PaymentsSubmitted.WithLabelValues(metrics.OutcomeUnavailable).Inc()
		} else {
			metrics.PaymentsSubmitted.WithLabelValues(metrics.OutcomeError).Inc()
		}
		return nil, err
	}
	if verified == nil || !verified.Valid {
		metrics.PaymentsSubmitted.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return nil, pkgerrors.ErrInvalidTransaction
	}

	participant, err := s.participants.FindByID(ctx, req.ParticipantID, req.SplitID)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.ApplyPayment(ctx, ledger.ApplyPaymentInput{
		SplitID:        req.SplitID,
		ParticipantID:  req.ParticipantID,
		TxHash:         req.TxHash,
		VerifiedAmount: verified.Amount,
		AssetCode:      verified.AssetCode,
	})
	if err != nil {
		s.logger.Error("Ledger application failed", map[string]interface{}{
			"tx_hash":        req.TxHash,
			"split_id":       req.SplitID,
			"participant_id": req.ParticipantID,
			"error":          err.Error(),
		})
		return nil, err
	}

	s.logger.Info("Payment reconciled", map[string]interface{}{
		"payment_id":     result.Payment.ID,
		"tx_hash":        req.TxHash,
		"split_id":       req.SplitID,
		"classification": result.Classification,
		"split_status":   result.SplitStatus,
	})

	metrics.PaymentsSubmitted.WithLabelValues(metrics.OutcomeConfirmed).Inc()
	metrics.PaymentsClassified.WithLabelValues(string(result.Classification)).Inc()

	go s.emitEvents(req.SplitID, participant.Wallet, verified, result)

	return &SubmitPaymentResponse{
		Success:   true,
		Message:   s.resultMessage(participant, verified, result),
		PaymentID: result.Payment.ID,
	}, nil
}

func (s *Service) resultMessage(p *domain.Participant, verified *stellar.VerifiedTransaction, result *ledger.ApplyPaymentResult) string {
	switch result.Classification {
	case ledger.ClassificationPartial:
		return fmt.Sprintf("Partial payment received: %s of %s %s",
			verified.Amount.String(), p.AmountOwed.String(), verified.AssetCode)
	case ledger.ClassificationOver:
		surplus := verified.Amount.Sub(p.AmountOwed)
		return fmt.Sprintf("Payment confirmed; %s %s over the %s owed",
			surplus.String(), verified.AssetCode, p.AmountOwed.String())
	default:
		return "Payment confirmed"
	}
}

func (s *Service) emitEvents(splitID uuid.UUID, wallet string, verified *stellar.VerifiedTransaction, result *ledger.ApplyPaymentResult) {
	s.notifier.EmitToSplit(splitID, notification.EventPaymentReceived, map[string]interface{}{
		"participant_id": result.Participant.ID.String(),
		"wallet":         wallet,
		"amount":         verified.Amount.String(),
		"asset_code":     verified.AssetCode,
		"status":         string(result.Participant.Status),
	})
	s.notifier.EmitToWallet(wallet, notification.EventPaymentReceived, map[string]interface{}{
		"split_id": splitID.String(),
		"amount":   verified.Amount.String(),
		"status":   string(result.Participant.Status),
	})

	if result.SplitCompleted {
		s.notifier.EmitToSplit(splitID, notification.EventSplitCompleted, map[string]interface{}{
			"split_id": splitID.String(),
		})
	} else {
		s.notifier.EmitToSplit(splitID, notification.EventSplitUpdated, map[string]interface{}{
			"split_id": splitID.String(),
			"status":   string(result.SplitStatus),
		})
	}
}

// Repository interfaces

type PaymentRepository interface {
	FindByTxHash(ctx context.Context, txHash string) (*domain.Payment, error)
}

type ParticipantRepository interface {
	FindByID(ctx context.Context, id, splitID uuid.UUID) (*domain.Participant, error)
}

type LedgerService interface {
	ApplyPayment(ctx context.Context, in ledger.ApplyPaymentInput) (*ledger.ApplyPaymentResult, error)
}
