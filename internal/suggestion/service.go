// Package suggestion computes time-boxed settlement recommendations: which
// transfers a wallet should make to clear its debts across splits.
package suggestion

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"splittab/internal/domain"
	"splittab/internal/ledger"
	"splittab/internal/metrics"
	"splittab/internal/notification"
	"splittab/internal/stellar"
	"splittab/pkg/config"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/logger"
)

type Service struct {
	repo       Repository
	debtLedger DebtLedger
	settler    StepSettler
	oracle     stellar.Oracle
	notifier   notification.Emitter
	cache      Cache
	logger     logger.Logger
	cfg        config.SettlementConfig

	stop chan struct{}
}

func NewService(
	repo Repository,
	debtLedger DebtLedger,
	settler StepSettler,
	oracle stellar.Oracle,
	notifier notification.Emitter,
	cache Cache,
	log logger.Logger,
	cfg config.SettlementConfig,
) *Service {
	s := &Service{
		repo:       repo,
		debtLedger: debtLedger,
		settler:    settler,
		oracle:     oracle,
		notifier:   notifier,
		cache:      cache,
		logger:     log,
		cfg:        cfg,
		stop:       make(chan struct{}),
	}

	if cfg.CleanupInterval > 0 {
		go s.runCleanupWorker()
	}

	return s
}

// Refresh recomputes the wallet's suggestion from the debt ledger and
// persists it, superseding any prior one. Persistence is a single cascading
// save: a failed ledger query means no suggestion is written at all.
func (s *Service) Refresh(ctx context.Context, userID uuid.UUID, wallet string) (*domain.Suggestion, error) {
	debts, err := s.debtLedger.Debts(ctx, wallet)
	if err != nil {
		return nil, err
	}
	credits, err := s.debtLedger.Credits(ctx, wallet)
	if err != nil {
		return nil, err
	}

	totalOwed := decimal.Zero
	for _, d := range debts {
		totalOwed = totalOwed.Add(d.Remaining())
	}
	totalOwedTo := decimal.Zero
	for _, c := range credits {
		totalOwedTo = totalOwedTo.Add(c.Remaining())
	}

	// Largest debt first; stable so equal remainders keep query order.
	sort.SliceStable(debts, func(i, j int) bool {
		return debts[i].Remaining().GreaterThan(debts[j].Remaining())
	})

	now := time.Now()
	suggestion := &domain.Suggestion{
		ID:          uuid.New(),
		UserID:      userID,
		Wallet:      wallet,
		TotalOwed:   totalOwed,
		TotalOwedTo: totalOwedTo,
		NetPosition: totalOwedTo.Sub(totalOwed),
		AssetCode:   suggestedAsset(debts),
		ExpiresAt:   now.Add(s.cfg.SuggestionTTL),
		CreatedAt:   now,
	}

	for i, d := range debts {
		amount := d.Remaining()
		suggestion.Steps = append(suggestion.Steps, &domain.SettlementStep{
			ID:              uuid.New(),
			SuggestionID:    suggestion.ID,
			Position:        i + 1,
			FromAddress:     wallet,
			ToAddress:       d.CreatorWallet,
			Amount:          amount,
			AssetCode:       d.AssetCode,
			AssetIssuer:     d.AssetIssuer,
			RelatedSplitIDs: domain.UUIDList{d.SplitID},
			PaymentURI: stellar.BuildPaymentURI(s.cfg.PaymentURIScheme, stellar.PaymentURIParams{
				Destination: d.CreatorWallet,
				Amount:      amount,
				AssetCode:   d.AssetCode,
				AssetIssuer: d.AssetIssuer,
				Memo:        d.Description,
			}),
			Status:    domain.StepStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		})
	}

	if err := s.repo.Save(ctx, suggestion); err != nil {
		return nil, err
	}

	metrics.SuggestionsRefreshed.Inc()
	s.logger.Info("Settlement suggestion refreshed", map[string]interface{}{
		"suggestion_id": suggestion.ID,
		"wallet":        wallet,
		"steps":         len(suggestion.Steps),
		"total_owed":    totalOwed.String(),
		"total_owed_to": totalOwedTo.String(),
	})

	return suggestion, nil
}

// Latest returns the newest unexpired suggestion for the wallet.
func (s *Service) Latest(ctx context.Context, wallet string) (*domain.Suggestion, error) {
	return s.repo.FindLatestByWallet(ctx, wallet, time.Now())
}

// NetPositionResult is the lightweight polling aggregate, re-derived from
// the debt ledger independent of any stored suggestion.
type NetPositionResult struct {
	Wallet      string          `json:"wallet"`
	TotalOwed   decimal.Decimal `json:"total_owed"`
	TotalOwedTo decimal.Decimal `json:"total_owed_to"`
	NetPosition decimal.Decimal `json:"net_position"`
}

func (s *Service) NetPosition(ctx context.Context, wallet string) (*NetPositionResult, error) {
	cacheKey := "net_position:" + wallet
	if s.cache != nil {
		var cached NetPositionResult
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			return &cached, nil
		}
	}

	debts, err := s.debtLedger.Debts(ctx, wallet)
	if err != nil {
		return nil, err
	}
	credits, err := s.debtLedger.Credits(ctx, wallet)
	if err != nil {
		return nil, err
	}

	result := &NetPositionResult{
		Wallet:      wallet,
		TotalOwed:   decimal.Zero,
		TotalOwedTo: decimal.Zero,
	}
	for _, d := range debts {
		result.TotalOwed = result.TotalOwed.Add(d.Remaining())
	}
	for _, c := range credits {
		result.TotalOwedTo = result.TotalOwedTo.Add(c.Remaining())
	}
	result.NetPosition = result.TotalOwedTo.Sub(result.TotalOwed)

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cfg.NetPositionCache); err != nil {
			s.logger.Warn("Failed to cache net position", map[string]interface{}{
				"wallet": wallet,
				"error":  err.Error(),
			})
		}
	}

	return result, nil
}

// Snooze dismisses the suggestion: it is flagged acted-on and expires now.
func (s *Service) Snooze(ctx context.Context, wallet string, suggestionID uuid.UUID) error {
	return s.repo.MarkActedOn(ctx, suggestionID, wallet)
}

// CompleteStep verifies that the proposed transfer actually happened on-chain
// and marks the step done. Only the step's payer may complete it, and the
// verified transaction must match the step's receiver and carry at least the
// step's amount — an unrelated transaction cannot complete a step.
// Re-submitting an already completed step is a no-op.
func (s *Service) CompleteStep(ctx context.Context, stepID uuid.UUID, wallet, txHash string) (*domain.SettlementStep, error) {
	step, err := s.repo.FindStepForWallet(ctx, stepID, wallet)
	if err != nil {
		return nil, err
	}

	if step.Status == domain.StepStatusCompleted {
		return step, nil
	}

	verified, err := s.oracle.VerifyTransaction(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if verified == nil || !verified.Valid {
		return nil, pkgerrors.ErrInvalidTransaction
	}

	if verified.Sender != wallet {
		return nil, pkgerrors.Wrap(pkgerrors.ErrTransactionMismatch,
			fmt.Sprintf("transaction sender %s is not the step payer", verified.Sender))
	}
	if verified.Receiver != step.ToAddress {
		return nil, pkgerrors.Wrap(pkgerrors.ErrTransactionMismatch,
			fmt.Sprintf("transaction receiver %s does not match step destination %s", verified.Receiver, step.ToAddress))
	}
	if verified.Amount.LessThan(step.Amount) {
		return nil, pkgerrors.Wrap(pkgerrors.ErrTransactionMismatch,
			fmt.Sprintf("transaction amount %s is below the step amount %s", verified.Amount.String(), step.Amount.String()))
	}

	if len(step.RelatedSplitIDs) == 0 {
		return nil, pkgerrors.Wrap(pkgerrors.ErrStepNotFound, "step has no related split")
	}

	// Only the first related split is settled; suggestion generation emits
	// singleton lists, the slice form is forward-compatible modeling.
	result, err := s.settler.ApplyStepSettlement(ctx, ledger.ApplyStepSettlementInput{
		SplitID:        step.RelatedSplitIDs[0],
		Wallet:         wallet,
		TxHash:         txHash,
		VerifiedAmount: verified.Amount,
		AssetCode:      verified.AssetCode,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.UpdateStepStatus(ctx, stepID, domain.StepStatusCompleted); err != nil {
		return nil, err
	}
	step.Status = domain.StepStatusCompleted

	if err := s.repo.FlagActedOn(ctx, step.SuggestionID); err != nil {
		s.logger.Warn("Failed to flag suggestion acted on", map[string]interface{}{
			"suggestion_id": step.SuggestionID,
			"error":         err.Error(),
		})
	}

	metrics.SuggestionStepsCompleted.Inc()
	s.logger.Info("Settlement step completed", map[string]interface{}{
		"step_id":  stepID,
		"wallet":   wallet,
		"tx_hash":  txHash,
		"split_id": step.RelatedSplitIDs[0],
	})

	go s.emitStepEvents(step.RelatedSplitIDs[0], wallet, verified, result)

	return step, nil
}

func (s *Service) emitStepEvents(splitID uuid.UUID, wallet string, verified *stellar.VerifiedTransaction, result *ledger.ApplyStepSettlementResult) {
	s.notifier.EmitToSplit(splitID, notification.EventPaymentReceived, map[string]interface{}{
		"wallet":     wallet,
		"amount":     verified.Amount.String(),
		"asset_code": verified.AssetCode,
		"status":     string(result.Participant.Status),
	})
	if result.SplitCompleted {
		s.notifier.EmitToSplit(splitID, notification.EventSplitCompleted, map[string]interface{}{
			"split_id": splitID.String(),
		})
	}
}

// Stop terminates the cleanup worker.
func (s *Service) Stop() {
	close(s.stop)
}

func (s *Service) runCleanupWorker() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			deleted, err := s.repo.DeleteExpired(context.Background(), time.Now())
			if err != nil {
				s.logger.Error("Suggestion cleanup failed", map[string]interface{}{
					"error": err.Error(),
				})
				continue
			}
			if deleted > 0 {
				metrics.SuggestionsExpired.Add(float64(deleted))
				s.logger.Info("Expired suggestions removed", map[string]interface{}{
					"count": deleted,
				})
			}
		case <-s.stop:
			return
		}
	}
}

func suggestedAsset(debts []*ledger.DebtItem) string {
	if len(debts) > 0 {
		return debts[0].AssetCode
	}
	return domain.AssetNative
}

// Interfaces

type Repository interface {
	Save(ctx context.Context, suggestion *domain.Suggestion) error
	FindLatestByWallet(ctx context.Context, wallet string, now time.Time) (*domain.Suggestion, error)
	MarkActedOn(ctx context.Context, id uuid.UUID, wallet string) error
	FlagActedOn(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
	FindStepForWallet(ctx context.Context, stepID uuid.UUID, wallet string) (*domain.SettlementStep, error)
	UpdateStepStatus(ctx context.Context, stepID uuid.UUID, status domain.StepStatus) error
}

type DebtLedger interface {
	Debts(ctx context.Context, wallet string) ([]*ledger.DebtItem, error)
	Credits(ctx context.Context, wallet string) ([]*ledger.DebtItem, error)
}

type StepSettler interface {
	ApplyStepSettlement(ctx context.Context, in ledger.ApplyStepSettlementInput) (*ledger.ApplyStepSettlementResult, error)
}

type Cache interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string, dest interface{}) error
}
