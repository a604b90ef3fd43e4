// Package ledger is the debt ledger: the computed view of outstanding
// obligations across splits and participants, and the single writer for
// payment application. There is no ledger table — debts and credits are
// derived from participant and split rows.
package ledger

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"splittab/internal/domain"
	"splittab/pkg/errors"
	"splittab/pkg/logger"
)

type Service struct {
	db     *sqlx.DB
	logger logger.Logger
}

func NewService(db *sqlx.DB, log logger.Logger) *Service {
	return &Service{db: db, logger: log}
}

// DebtItem is one outstanding obligation of a wallet, joined to its split.
type DebtItem struct {
	ParticipantID uuid.UUID       `db:"participant_id"`
	SplitID       uuid.UUID       `db:"split_id"`
	Wallet        string          `db:"wallet"`
	AmountOwed    decimal.Decimal `db:"amount_owed"`
	AmountPaid    decimal.Decimal `db:"amount_paid"`
	CreatorWallet string          `db:"creator_wallet"`
	Description   string          `db:"description"`
	AssetCode     string          `db:"asset_code"`
	AssetIssuer   string          `db:"asset_issuer"`
}

// Remaining returns the unpaid portion of the obligation.
func (d *DebtItem) Remaining() decimal.Decimal {
	return d.AmountOwed.Sub(d.AmountPaid)
}

const debtColumns = `
	p.id AS participant_id, p.split_id, p.wallet, p.amount_owed, p.amount_paid,
	s.creator_wallet, s.description, s.asset_code, s.asset_issuer`

// Debts returns what the wallet still owes to other splits' creators.
func (s *Service) Debts(ctx context.Context, wallet string) ([]*DebtItem, error) {
	var items []*DebtItem
	query := `
		SELECT ` + debtColumns + `
		FROM participants p
		JOIN splits s ON s.id = p.split_id
		WHERE p.wallet = $1
		  AND p.status IN ('pending', 'partial')
		  AND p.amount_owed > p.amount_paid
		  AND s.creator_wallet <> p.wallet
		ORDER BY p.created_at
	`
	if err := s.db.SelectContext(ctx, &items, query, wallet); err != nil {
		return nil, errors.Wrap(err, "failed to query debts")
	}
	return items, nil
}

// Credits returns what other participants still owe to splits this wallet
// created. The creator's own participant row is excluded.
func (s *Service) Credits(ctx context.Context, wallet string) ([]*DebtItem, error) {
	var items []*DebtItem
	query := `
		SELECT ` + debtColumns + `
		FROM participants p
		JOIN splits s ON s.id = p.split_id
		WHERE s.creator_wallet = $1
		  AND p.wallet <> $1
		  AND p.status IN ('pending', 'partial')
		  AND p.amount_owed > p.amount_paid
		ORDER BY p.created_at
	`
	if err := s.db.SelectContext(ctx, &items, query, wallet); err != nil {
		return nil, errors.Wrap(err, "failed to query credits")
	}
	return items, nil
}

// Classification describes how a verified amount compares to the obligation.
type Classification string

const (
	ClassificationPartial Classification = "partial"
	ClassificationExact   Classification = "exact"
	ClassificationOver    Classification = "over"
)

type ApplyPaymentInput struct {
	SplitID        uuid.UUID
	ParticipantID  uuid.UUID
	TxHash         string
	VerifiedAmount decimal.Decimal
	AssetCode      string
}

type ApplyPaymentResult struct {
	Payment        *domain.Payment
	Participant    *domain.Participant
	Classification Classification
	SplitStatus    domain.SplitStatus
	SplitCompleted bool // true only on the transition into completed
}

// ApplyPayment applies a verified on-chain payment to the ledger in one
// serializable transaction. The split row is locked first, so concurrent
// payments against the same split serialize; the unique tx_hash constraint
// is the backstop against duplicate submissions racing the pipeline's
// duplicate check.
func (s *Service) ApplyPayment(ctx context.Context, in ApplyPaymentInput) (*ApplyPaymentResult, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	split, err := lockSplit(ctx, tx, in.SplitID)
	if err != nil {
		return nil, err
	}

	participant := &domain.Participant{}
	err = tx.GetContext(ctx, participant, `
		SELECT id, split_id, wallet, amount_owed, amount_paid, status, created_at, updated_at
		FROM participants
		WHERE id = $1 AND split_id = $2
		FOR UPDATE
	`, in.ParticipantID, in.SplitID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrParticipantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock participant")
	}

	var classification Classification
	switch {
	case in.VerifiedAmount.LessThan(participant.AmountOwed):
		classification = ClassificationPartial
		participant.AmountPaid = in.VerifiedAmount
		participant.Status = domain.ParticipantStatusPartial
	case in.VerifiedAmount.Equal(participant.AmountOwed):
		classification = ClassificationExact
		participant.AmountPaid = participant.AmountOwed
		participant.Status = domain.ParticipantStatusPaid
	default:
		// Over-payment: the creditor received enough. The surplus is kept on
		// the payment record, not in participant state.
		classification = ClassificationOver
		participant.AmountPaid = participant.AmountOwed
		participant.Status = domain.ParticipantStatusPaid
	}
	participant.UpdatedAt = time.Now()

	if err := updateParticipant(ctx, tx, participant); err != nil {
		return nil, err
	}

	prevStatus := split.Status
	newStatus, err := recomputeSplit(ctx, tx, split)
	if err != nil {
		return nil, err
	}

	paymentStatus := domain.PaymentStatusConfirmed
	if classification == ClassificationPartial {
		paymentStatus = domain.PaymentStatusPartial
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		SplitID:       in.SplitID,
		ParticipantID: in.ParticipantID,
		TxHash:        in.TxHash,
		Amount:        in.VerifiedAmount,
		AssetCode:     in.AssetCode,
		Status:        paymentStatus,
		CreatedAt:     time.Now(),
	}

	if err := insertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit payment")
	}

	return &ApplyPaymentResult{
		Payment:        payment,
		Participant:    participant,
		Classification: classification,
		SplitStatus:    newStatus,
		SplitCompleted: newStatus == domain.SplitStatusCompleted && prevStatus != domain.SplitStatusCompleted,
	}, nil
}

type ApplyStepSettlementInput struct {
	SplitID        uuid.UUID
	Wallet         string
	TxHash         string
	VerifiedAmount decimal.Decimal
	AssetCode      string
}

type ApplyStepSettlementResult struct {
	Participant    *domain.Participant
	SplitStatus    domain.SplitStatus
	SplitCompleted bool
}

// ApplyStepSettlement marks a wallet's obligation in a split as paid after a
// settlement step was verified on-chain. The paid amount is incremented
// additively: a payer settling several obligations through one transfer gets
// the full verified amount recorded against the step's split. A confirmed
// payment row is written under the same lock so the same hash cannot later
// be replayed through the reconciliation pipeline.
func (s *Service) ApplyStepSettlement(ctx context.Context, in ApplyStepSettlementInput) (*ApplyStepSettlementResult, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	split, err := lockSplit(ctx, tx, in.SplitID)
	if err != nil {
		return nil, err
	}

	participant := &domain.Participant{}
	err = tx.GetContext(ctx, participant, `
		SELECT id, split_id, wallet, amount_owed, amount_paid, status, created_at, updated_at
		FROM participants
		WHERE split_id = $1 AND wallet = $2
		FOR UPDATE
	`, in.SplitID, in.Wallet)
	if err == sql.ErrNoRows {
		return nil, errors.ErrParticipantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock participant")
	}

	participant.AmountPaid = participant.AmountPaid.Add(in.VerifiedAmount)
	participant.Status = domain.ParticipantStatusPaid
	participant.UpdatedAt = time.Now()

	if err := updateParticipant(ctx, tx, participant); err != nil {
		return nil, err
	}

	prevStatus := split.Status
	newStatus, err := recomputeSplit(ctx, tx, split)
	if err != nil {
		return nil, err
	}

	payment := &domain.Payment{
		ID:            uuid.New(),
		SplitID:       in.SplitID,
		ParticipantID: participant.ID,
		TxHash:        in.TxHash,
		Amount:        in.VerifiedAmount,
		AssetCode:     in.AssetCode,
		Status:        domain.PaymentStatusConfirmed,
		CreatedAt:     time.Now(),
	}
	if err := insertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit step settlement")
	}

	return &ApplyStepSettlementResult{
		Participant:    participant,
		SplitStatus:    newStatus,
		SplitCompleted: newStatus == domain.SplitStatusCompleted && prevStatus != domain.SplitStatusCompleted,
	}, nil
}

func lockSplit(ctx context.Context, tx *sqlx.Tx, splitID uuid.UUID) (*domain.Split, error) {
	split := &domain.Split{}
	err := tx.GetContext(ctx, split, `
		SELECT id, creator_wallet, description, total_amount, amount_paid,
		       asset_code, asset_issuer, status, metadata, created_at, updated_at
		FROM splits
		WHERE id = $1
		FOR UPDATE
	`, splitID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSplitNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to lock split")
	}
	return split, nil
}

func updateParticipant(ctx context.Context, tx *sqlx.Tx, p *domain.Participant) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE participants
		SET amount_paid = $1, status = $2, updated_at = $3
		WHERE id = $4
	`, p.AmountPaid, p.Status, p.UpdatedAt, p.ID)
	return errors.Wrap(err, "failed to update participant")
}

// recomputeSplit derives the split aggregate from its participants inside the
// caller's transaction, keeping split.amount_paid equal to the participant sum.
func recomputeSplit(ctx context.Context, tx *sqlx.Tx, split *domain.Split) (domain.SplitStatus, error) {
	var totalPaid decimal.Decimal
	err := tx.GetContext(ctx, &totalPaid, `
		SELECT COALESCE(SUM(amount_paid), 0) FROM participants WHERE split_id = $1
	`, split.ID)
	if err != nil {
		return "", errors.Wrap(err, "failed to sum participant payments")
	}

	newStatus := domain.DeriveSplitStatus(totalPaid, split.TotalAmount)
	_, err = tx.ExecContext(ctx, `
		UPDATE splits SET amount_paid = $1, status = $2, updated_at = NOW() WHERE id = $3
	`, totalPaid, newStatus, split.ID)
	if err != nil {
		return "", errors.Wrap(err, "failed to update split aggregate")
	}

	split.AmountPaid = totalPaid
	split.Status = newStatus
	return newStatus, nil
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, payment *domain.Payment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO payments (id, split_id, participant_id, tx_hash, amount, asset_code, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, payment.ID, payment.SplitID, payment.ParticipantID, payment.TxHash,
		payment.Amount, payment.AssetCode, payment.Status, payment.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "tx_hash") || strings.Contains(pqErr.Message, "tx_hash") {
				return errors.ErrDuplicateTransaction
			}
		}
		return errors.Wrap(err, "failed to insert payment")
	}
	return nil
}
