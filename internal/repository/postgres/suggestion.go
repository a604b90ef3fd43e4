package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"splittab/internal/domain"
	"splittab/pkg/errors"
)

type SuggestionRepository struct {
	db *sqlx.DB
}

func NewSuggestionRepository(db *sqlx.DB) *SuggestionRepository {
	return &SuggestionRepository{db: db}
}

const suggestionColumns = `id, user_id, wallet, total_owed, total_owed_to, net_position,
	asset_code, was_acted_on, expires_at, created_at`

const stepColumns = `id, suggestion_id, position, from_address, to_address, amount,
	asset_code, asset_issuer, related_split_ids, payment_uri, status, created_at, updated_at`

// Save persists a suggestion and its steps in one transaction, superseding
// any prior suggestion for the same wallet. Either everything lands or
// nothing does — a partial suggestion is never visible.
func (r *SuggestionRepository) Save(ctx context.Context, suggestion *domain.Suggestion) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	// Steps go with their suggestion via ON DELETE CASCADE.
	_, err = tx.ExecContext(ctx, `DELETE FROM suggestions WHERE wallet = $1`, suggestion.Wallet)
	if err != nil {
		return errors.Wrap(err, "failed to supersede prior suggestions")
	}

	_, err = tx.NamedExecContext(ctx, `
		INSERT INTO suggestions (
			id, user_id, wallet, total_owed, total_owed_to, net_position,
			asset_code, was_acted_on, expires_at, created_at
		) VALUES (
			:id, :user_id, :wallet, :total_owed, :total_owed_to, :net_position,
			:asset_code, :was_acted_on, :expires_at, :created_at
		)
	`, suggestion)
	if err != nil {
		return errors.Wrap(err, "failed to create suggestion")
	}

	for _, step := range suggestion.Steps {
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO settlement_steps (
				id, suggestion_id, position, from_address, to_address, amount,
				asset_code, asset_issuer, related_split_ids, payment_uri, status,
				created_at, updated_at
			) VALUES (
				:id, :suggestion_id, :position, :from_address, :to_address, :amount,
				:asset_code, :asset_issuer, :related_split_ids, :payment_uri, :status,
				:created_at, :updated_at
			)
		`, step)
		if err != nil {
			return errors.Wrap(err, "failed to create settlement step")
		}
	}

	return errors.Wrap(tx.Commit(), "failed to commit suggestion")
}

// FindLatestByWallet returns the newest unexpired suggestion with its steps.
// Expired suggestions are treated as absent.
func (r *SuggestionRepository) FindLatestByWallet(ctx context.Context, wallet string, now time.Time) (*domain.Suggestion, error) {
	suggestion := &domain.Suggestion{}
	query := `
		SELECT ` + suggestionColumns + `
		FROM suggestions
		WHERE wallet = $1 AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	err := r.db.GetContext(ctx, suggestion, query, wallet, now)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find suggestion")
	}

	if err := r.loadSteps(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

func (r *SuggestionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Suggestion, error) {
	suggestion := &domain.Suggestion{}
	query := `SELECT ` + suggestionColumns + ` FROM suggestions WHERE id = $1`
	err := r.db.GetContext(ctx, suggestion, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSuggestionNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find suggestion")
	}

	if err := r.loadSteps(ctx, suggestion); err != nil {
		return nil, err
	}
	return suggestion, nil
}

// MarkActedOn flags the suggestion and expires it immediately.
func (r *SuggestionRepository) MarkActedOn(ctx context.Context, id uuid.UUID, wallet string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE suggestions
		SET was_acted_on = TRUE, expires_at = NOW()
		WHERE id = $1 AND wallet = $2
	`, id, wallet)
	if err != nil {
		return errors.Wrap(err, "failed to mark suggestion acted on")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read update result")
	}
	if rows == 0 {
		return errors.ErrSuggestionNotFound
	}
	return nil
}

// FlagActedOn records that the user acted on the suggestion without
// expiring it, so remaining steps stay completable until the TTL.
func (r *SuggestionRepository) FlagActedOn(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE suggestions SET was_acted_on = TRUE WHERE id = $1
	`, id)
	return errors.Wrap(err, "failed to flag suggestion acted on")
}

// DeleteExpired garbage-collects stale, unacted suggestions. Steps cascade.
func (r *SuggestionRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM suggestions WHERE expires_at < $1 AND was_acted_on = FALSE
	`, before)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete expired suggestions")
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read delete result")
	}
	return rows, nil
}

// FindStepForWallet fetches a step constrained to its from-address, so a
// caller can only ever load their own steps.
func (r *SuggestionRepository) FindStepForWallet(ctx context.Context, stepID uuid.UUID, wallet string) (*domain.SettlementStep, error) {
	step := &domain.SettlementStep{}
	query := `SELECT ` + stepColumns + ` FROM settlement_steps WHERE id = $1 AND from_address = $2`
	err := r.db.GetContext(ctx, step, query, stepID, wallet)
	if err == sql.ErrNoRows {
		return nil, errors.ErrStepNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find settlement step")
	}
	return step, nil
}

func (r *SuggestionRepository) UpdateStepStatus(ctx context.Context, stepID uuid.UUID, status domain.StepStatus) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settlement_steps SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, stepID)
	return errors.Wrap(err, "failed to update step status")
}

func (r *SuggestionRepository) loadSteps(ctx context.Context, suggestion *domain.Suggestion) error {
	var steps []*domain.SettlementStep
	query := `SELECT ` + stepColumns + ` FROM settlement_steps WHERE suggestion_id = $1 ORDER BY position`
	if err := r.db.SelectContext(ctx, &steps, query, suggestion.ID); err != nil {
		return errors.Wrap(err, "failed to load settlement steps")
	}
	suggestion.Steps = steps
	return nil
}
