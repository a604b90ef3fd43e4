package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splittab/internal/domain"
	"splittab/pkg/errors"
)

type PaymentRepository struct {
	db *sqlx.DB
}

func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, split_id, participant_id, tx_hash, amount, asset_code, status, created_at`

// FindByTxHash is the reconciliation pipeline's duplicate check. Payment rows
// themselves are written by the ledger service inside its transaction.
func (r *PaymentRepository) FindByTxHash(ctx context.Context, txHash string) (*domain.Payment, error) {
	payment := &domain.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE tx_hash = $1`
	err := r.db.GetContext(ctx, payment, query, txHash)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment by tx hash")
	}
	return payment, nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	payment := &domain.Payment{}
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	err := r.db.GetContext(ctx, payment, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPaymentNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payment")
	}
	return payment, nil
}

func (r *PaymentRepository) FindBySplit(ctx context.Context, splitID uuid.UUID) ([]*domain.Payment, error) {
	var payments []*domain.Payment
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE split_id = $1 ORDER BY created_at DESC`
	err := r.db.SelectContext(ctx, &payments, query, splitID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find payments by split")
	}
	return payments, nil
}
