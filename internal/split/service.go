// Package split manages bill splits and their participants.
package split

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"splittab/internal/domain"
	"splittab/internal/notification"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/logger"
)

type Service struct {
	splits       SplitRepository
	participants ParticipantRepository
	notifier     notification.Emitter
	logger       logger.Logger
}

func NewService(splits SplitRepository, participants ParticipantRepository, notifier notification.Emitter, log logger.Logger) *Service {
	return &Service{
		splits:       splits,
		participants: participants,
		notifier:     notifier,
		logger:       log,
	}
}

type ParticipantShare struct {
	Wallet string          `json:"wallet" validate:"required,stellar_address"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type CreateSplitRequest struct {
	CreatorWallet string             `json:"creator_wallet" validate:"required,stellar_address"`
	Description   string             `json:"description" validate:"required,max=255"`
	TotalAmount   decimal.Decimal    `json:"total_amount" validate:"required"`
	AssetCode     string             `json:"asset_code" validate:"omitempty,min=1,max=12"`
	AssetIssuer   string             `json:"asset_issuer" validate:"omitempty,stellar_address"`
	Participants  []ParticipantShare `json:"participants" validate:"required,min=1,dive"`
	Metadata      domain.Metadata    `json:"metadata"`
}

// SplitDetail is a split together with its participant rows.
type SplitDetail struct {
	*domain.Split
	Participants []*domain.Participant `json:"participants"`
}

// Create validates the share breakdown and persists the split with its
// participants in one transaction. The shares must cover the total exactly;
// a split whose participants cannot ever pay it off is rejected up front.
func (s *Service) Create(ctx context.Context, req *CreateSplitRequest) (*SplitDetail, error) {
	if !req.TotalAmount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	shareSum := decimal.Zero
	for _, share := range req.Participants {
		if !share.Amount.IsPositive() {
			return nil, pkgerrors.Wrap(pkgerrors.ErrInvalidAmount,
				fmt.Sprintf("share for %s must be greater than zero", share.Wallet))
		}
		shareSum = shareSum.Add(share.Amount)
	}
	if !shareSum.Equal(req.TotalAmount) {
		return nil, pkgerrors.Wrap(pkgerrors.ErrSharesMismatch,
			fmt.Sprintf("shares sum to %s, split total is %s", shareSum.String(), req.TotalAmount.String()))
	}

	assetCode := req.AssetCode
	if assetCode == "" {
		assetCode = domain.AssetNative
	}

	now := time.Now()
	split := &domain.Split{
		ID:            uuid.New(),
		CreatorWallet: req.CreatorWallet,
		Description:   req.Description,
		TotalAmount:   req.TotalAmount,
		AmountPaid:    decimal.Zero,
		AssetCode:     assetCode,
		AssetIssuer:   req.AssetIssuer,
		Status:        domain.SplitStatusActive,
		Metadata:      req.Metadata,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	participants := make([]*domain.Participant, 0, len(req.Participants))
	for _, share := range req.Participants {
		participants = append(participants, &domain.Participant{
			ID:         uuid.New(),
			SplitID:    split.ID,
			Wallet:     share.Wallet,
			AmountOwed: share.Amount,
			AmountPaid: decimal.Zero,
			Status:     domain.ParticipantStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	if err := s.splits.Create(ctx, split, participants); err != nil {
		return nil, err
	}

	s.logger.Info("Split created", map[string]interface{}{
		"split_id":     split.ID,
		"creator":      split.CreatorWallet,
		"total_amount": split.TotalAmount.String(),
		"participants": len(participants),
	})

	return &SplitDetail{Split: split, Participants: participants}, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*SplitDetail, error) {
	split, err := s.splits.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	participants, err := s.participants.FindBySplit(ctx, id)
	if err != nil {
		return nil, err
	}
	return &SplitDetail{Split: split, Participants: participants}, nil
}

// ListForWallet returns splits the wallet created or participates in.
func (s *Service) ListForWallet(ctx context.Context, wallet string, limit, offset int) ([]*domain.Split, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.splits.FindByParticipant(ctx, wallet, limit, offset)
}

type JoinSplitRequest struct {
	Wallet string          `json:"wallet" validate:"required,stellar_address"`
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

// Join adds a wallet to an existing split with its owed share. Joining a
// completed split or joining twice is rejected.
func (s *Service) Join(ctx context.Context, splitID uuid.UUID, req *JoinSplitRequest) (*domain.Participant, error) {
	if !req.Amount.IsPositive() {
		return nil, pkgerrors.ErrInvalidAmount
	}

	split, err := s.splits.FindByID(ctx, splitID)
	if err != nil {
		return nil, err
	}
	if split.Status == domain.SplitStatusCompleted {
		return nil, pkgerrors.Wrap(pkgerrors.ErrDuplicateJoin, "split is already settled")
	}

	now := time.Now()
	participant := &domain.Participant{
		ID:         uuid.New(),
		SplitID:    splitID,
		Wallet:     req.Wallet,
		AmountOwed: req.Amount,
		AmountPaid: decimal.Zero,
		Status:     domain.ParticipantStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.participants.Add(ctx, participant); err != nil {
		return nil, err
	}

	s.notifier.EmitToSplit(splitID, notification.EventParticipantJoined, map[string]interface{}{
		"participant_id": participant.ID.String(),
		"wallet":         participant.Wallet,
		"amount_owed":    participant.AmountOwed.String(),
	})

	return participant, nil
}

// Repository interfaces

type SplitRepository interface {
	Create(ctx context.Context, split *domain.Split, participants []*domain.Participant) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Split, error)
	FindByParticipant(ctx context.Context, wallet string, limit, offset int) ([]*domain.Split, error)
}

type ParticipantRepository interface {
	Add(ctx context.Context, p *domain.Participant) error
	FindBySplit(ctx context.Context, splitID uuid.UUID) ([]*domain.Participant, error)
}
