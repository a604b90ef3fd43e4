package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"splittab/internal/domain"
	"splittab/pkg/errors"
)

type SplitRepository struct {
	db *sqlx.DB
}

func NewSplitRepository(db *sqlx.DB) *SplitRepository {
	return &SplitRepository{db: db}
}

// Create persists a split together with its participant rows atomically.
// A split with no participants is never visible.
func (r *SplitRepository) Create(ctx context.Context, split *domain.Split, participants []*domain.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO splits (
			id, creator_wallet, description, total_amount, amount_paid,
			asset_code, asset_issuer, status, metadata, created_at, updated_at
		) VALUES (
			:id, :creator_wallet, :description, :total_amount, :amount_paid,
			:asset_code, :asset_issuer, :status, :metadata, :created_at, :updated_at
		)
	`, split)
	if err != nil {
		return errors.Wrap(err, "failed to create split")
	}

	for _, p := range participants {
		if err := insertParticipant(ctx, tx, p); err != nil {
			return err
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit split")
}

func (r *SplitRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Split, error) {
	split := &domain.Split{}
	query := `
		SELECT id, creator_wallet, description, total_amount, amount_paid,
		       asset_code, asset_issuer, status, metadata, created_at, updated_at
		FROM splits WHERE id = $1
	`
	err := r.db.GetContext(ctx, split, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSplitNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find split")
	}
	return split, nil
}

func (r *SplitRepository) FindByCreator(ctx context.Context, wallet string, limit, offset int) ([]*domain.Split, error) {
	var splits []*domain.Split
	query := `
		SELECT id, creator_wallet, description, total_amount, amount_paid,
		       asset_code, asset_issuer, status, metadata, created_at, updated_at
		FROM splits
		WHERE creator_wallet = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &splits, query, wallet, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find splits by creator")
	}
	return splits, nil
}

// FindByParticipant returns splits the wallet takes part in, newest first.
func (r *SplitRepository) FindByParticipant(ctx context.Context, wallet string, limit, offset int) ([]*domain.Split, error) {
	var splits []*domain.Split
	query := `
		SELECT s.id, s.creator_wallet, s.description, s.total_amount, s.amount_paid,
		       s.asset_code, s.asset_issuer, s.status, s.metadata, s.created_at, s.updated_at
		FROM splits s
		JOIN participants p ON p.split_id = s.id
		WHERE p.wallet = $1
		ORDER BY s.created_at DESC
		LIMIT $2 OFFSET $3
	`
	err := r.db.SelectContext(ctx, &splits, query, wallet, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find splits by participant")
	}
	return splits, nil
}

func insertParticipant(ctx context.Context, tx *sqlx.Tx, p *domain.Participant) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
		p.UpdatedAt = p.CreatedAt
	}
	_, err := tx.NamedExecContext(ctx, `
		INSERT INTO participants (
			id, split_id, wallet, amount_owed, amount_paid, status, created_at, updated_at
		) VALUES (
			:id, :split_id, :wallet, :amount_owed, :amount_paid, :status, :created_at, :updated_at
		)
	`, p)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if strings.Contains(pqErr.Constraint, "wallet") {
				return errors.ErrDuplicateJoin
			}
		}
		return errors.Wrap(err, "failed to create participant")
	}
	return nil
}
