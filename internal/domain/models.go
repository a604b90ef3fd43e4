// Package domain defines the core entities of the bill-splitting platform.
package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AssetNative is the code used for lumens; native transfers carry no issuer.
const AssetNative = "XLM"

// Split represents a shared expense divided among participants.
type Split struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	CreatorWallet string          `json:"creator_wallet" db:"creator_wallet"`
	Description   string          `json:"description" db:"description"`
	TotalAmount   decimal.Decimal `json:"total_amount" db:"total_amount"`
	AmountPaid    decimal.Decimal `json:"amount_paid" db:"amount_paid"`
	AssetCode     string          `json:"asset_code" db:"asset_code"`
	AssetIssuer   string          `json:"asset_issuer" db:"asset_issuer"`
	Status        SplitStatus     `json:"status" db:"status"`
	Metadata      Metadata        `json:"metadata" db:"metadata"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

type SplitStatus string

const (
	SplitStatusActive    SplitStatus = "active"
	SplitStatusPartial   SplitStatus = "partial"
	SplitStatusCompleted SplitStatus = "completed"
)

// DeriveSplitStatus recomputes a split's status from its paid aggregate.
// Status is never stored as independent truth that can drift.
func DeriveSplitStatus(totalPaid, totalAmount decimal.Decimal) SplitStatus {
	switch {
	case totalPaid.GreaterThanOrEqual(totalAmount):
		return SplitStatusCompleted
	case totalPaid.GreaterThan(decimal.Zero):
		return SplitStatusPartial
	default:
		return SplitStatusActive
	}
}

// Participant represents one wallet's stake in a split.
type Participant struct {
	ID         uuid.UUID         `json:"id" db:"id"`
	SplitID    uuid.UUID         `json:"split_id" db:"split_id"`
	Wallet     string            `json:"wallet" db:"wallet"`
	AmountOwed decimal.Decimal   `json:"amount_owed" db:"amount_owed"`
	AmountPaid decimal.Decimal   `json:"amount_paid" db:"amount_paid"`
	Status     ParticipantStatus `json:"status" db:"status"`
	CreatedAt  time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at" db:"updated_at"`
}

// Remaining returns the unpaid portion of the obligation.
func (p *Participant) Remaining() decimal.Decimal {
	return p.AmountOwed.Sub(p.AmountPaid)
}

type ParticipantStatus string

const (
	ParticipantStatusPending ParticipantStatus = "pending"
	ParticipantStatusPartial ParticipantStatus = "partial"
	ParticipantStatusPaid    ParticipantStatus = "paid"
)

// Payment is an immutable record of a verified on-chain transaction.
// The transaction hash is globally unique; a second submission with the same
// hash is rejected, never double-applied.
type Payment struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SplitID       uuid.UUID       `json:"split_id" db:"split_id"`
	ParticipantID uuid.UUID       `json:"participant_id" db:"participant_id"`
	TxHash        string          `json:"tx_hash" db:"tx_hash"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	AssetCode     string          `json:"asset_code" db:"asset_code"`
	Status        PaymentStatus   `json:"status" db:"status"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPartial   PaymentStatus = "partial"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Suggestion is an expiring settlement recommendation computed for one wallet.
type Suggestion struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	UserID      uuid.UUID         `json:"user_id" db:"user_id"`
	Wallet      string            `json:"wallet" db:"wallet"`
	TotalOwed   decimal.Decimal   `json:"total_owed" db:"total_owed"`
	TotalOwedTo decimal.Decimal   `json:"total_owed_to" db:"total_owed_to"`
	NetPosition decimal.Decimal   `json:"net_position" db:"net_position"`
	AssetCode   string            `json:"asset_code" db:"asset_code"`
	WasActedOn  bool              `json:"was_acted_on" db:"was_acted_on"`
	ExpiresAt   time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	Steps       []*SettlementStep `json:"steps" db:"-"`
}

// Expired reports whether the suggestion is stale at the given instant.
func (s *Suggestion) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SettlementStep is one proposed transfer within a suggestion. Steps are
// cascade-deleted with their suggestion.
type SettlementStep struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	SuggestionID    uuid.UUID       `json:"suggestion_id" db:"suggestion_id"`
	Position        int             `json:"position" db:"position"`
	FromAddress     string          `json:"from_address" db:"from_address"`
	ToAddress       string          `json:"to_address" db:"to_address"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	AssetCode       string          `json:"asset_code" db:"asset_code"`
	AssetIssuer     string          `json:"asset_issuer" db:"asset_issuer"`
	RelatedSplitIDs UUIDList        `json:"related_split_ids" db:"related_split_ids"`
	PaymentURI      string          `json:"payment_uri" db:"payment_uri"`
	Status          StepStatus      `json:"status" db:"status"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusCompleted StepStatus = "completed"
	StepStatusSkipped   StepStatus = "skipped"
)

// Metadata is a JSONB column holding free-form attributes.
type Metadata map[string]interface{}

func (m Metadata) Value() (driver.Value, error) {
	return json.Marshal(m)
}

func (m *Metadata) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &m)
}

// UUIDList is a JSONB column holding an ordered list of identifiers.
type UUIDList []uuid.UUID

func (l UUIDList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

func (l *UUIDList) Scan(value interface{}) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &l)
}
