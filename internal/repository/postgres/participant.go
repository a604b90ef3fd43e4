package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splittab/internal/domain"
	"splittab/pkg/errors"
)

type ParticipantRepository struct {
	db *sqlx.DB
}

func NewParticipantRepository(db *sqlx.DB) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `id, split_id, wallet, amount_owed, amount_paid, status, created_at, updated_at`

// Add joins a wallet to an existing split outside of split creation.
func (r *ParticipantRepository) Add(ctx context.Context, p *domain.Participant) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := insertParticipant(ctx, tx, p); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(), "failed to commit participant")
}

func (r *ParticipantRepository) FindByID(ctx context.Context, id, splitID uuid.UUID) (*domain.Participant, error) {
	p := &domain.Participant{}
	query := `SELECT ` + participantColumns + ` FROM participants WHERE id = $1 AND split_id = $2`
	err := r.db.GetContext(ctx, p, query, id, splitID)
	if err == sql.ErrNoRows {
		return nil, errors.ErrParticipantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find participant")
	}
	return p, nil
}

func (r *ParticipantRepository) FindBySplit(ctx context.Context, splitID uuid.UUID) ([]*domain.Participant, error) {
	var participants []*domain.Participant
	query := `SELECT ` + participantColumns + ` FROM participants WHERE split_id = $1 ORDER BY created_at`
	err := r.db.SelectContext(ctx, &participants, query, splitID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find participants by split")
	}
	return participants, nil
}

func (r *ParticipantRepository) FindByWallet(ctx context.Context, splitID uuid.UUID, wallet string) (*domain.Participant, error) {
	p := &domain.Participant{}
	query := `SELECT ` + participantColumns + ` FROM participants WHERE split_id = $1 AND wallet = $2`
	err := r.db.GetContext(ctx, p, query, splitID, wallet)
	if err == sql.ErrNoRows {
		return nil, errors.ErrParticipantNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find participant by wallet")
	}
	return p, nil
}
