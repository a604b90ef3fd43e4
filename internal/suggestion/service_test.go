package suggestion

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"splittab/internal/domain"
	"splittab/internal/ledger"
	"splittab/internal/notification"
	"splittab/internal/stellar"
	"splittab/pkg/config"
	"splittab/pkg/errors"
	"splittab/pkg/logger"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) Save(ctx context.Context, suggestion *domain.Suggestion) error {
	args := m.Called(ctx, suggestion)
	return args.Error(0)
}

func (m *mockRepository) FindLatestByWallet(ctx context.Context, wallet string, now time.Time) (*domain.Suggestion, error) {
	args := m.Called(ctx, wallet, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Suggestion), args.Error(1)
}

func (m *mockRepository) MarkActedOn(ctx context.Context, id uuid.UUID, wallet string) error {
	args := m.Called(ctx, id, wallet)
	return args.Error(0)
}

func (m *mockRepository) FlagActedOn(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *mockRepository) FindStepForWallet(ctx context.Context, stepID uuid.UUID, wallet string) (*domain.SettlementStep, error) {
	args := m.Called(ctx, stepID, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettlementStep), args.Error(1)
}

func (m *mockRepository) UpdateStepStatus(ctx context.Context, stepID uuid.UUID, status domain.StepStatus) error {
	args := m.Called(ctx, stepID, status)
	return args.Error(0)
}

type mockDebtLedger struct {
	mock.Mock
}

func (m *mockDebtLedger) Debts(ctx context.Context, wallet string) ([]*ledger.DebtItem, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.DebtItem), args.Error(1)
}

func (m *mockDebtLedger) Credits(ctx context.Context, wallet string) ([]*ledger.DebtItem, error) {
	args := m.Called(ctx, wallet)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ledger.DebtItem), args.Error(1)
}

type mockSettler struct {
	mock.Mock
}

func (m *mockSettler) ApplyStepSettlement(ctx context.Context, in ledger.ApplyStepSettlementInput) (*ledger.ApplyStepSettlementResult, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.ApplyStepSettlementResult), args.Error(1)
}

type mockOracle struct {
	mock.Mock
}

func (m *mockOracle) VerifyTransaction(ctx context.Context, hash string) (*stellar.VerifiedTransaction, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*stellar.VerifiedTransaction), args.Error(1)
}

const (
	testWallet  = "GAIUIQNMSXTTR4TGZETSQCGBTIF32G2L5P4AML4LFTMTHKM44UHIN6XQ"
	testCreator = "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"
	testHash    = "3389e9f0f1a65f19736cacf544c2e825313e8447f569233bb8db39aa607c8889"
)

func newTestService(repo Repository, dl DebtLedger, settler StepSettler, oracle stellar.Oracle) *Service {
	return NewService(repo, dl, settler, oracle, notification.NopEmitter{}, nil, logger.NewNop(), config.SettlementConfig{
		SuggestionTTL:    time.Hour,
		NetPositionCache: 30 * time.Second,
		PaymentURIScheme: "web+stellar",
	})
}

func debtItem(creator string, owed, paid int64) *ledger.DebtItem {
	return &ledger.DebtItem{
		ParticipantID: uuid.New(),
		SplitID:       uuid.New(),
		Wallet:        testWallet,
		AmountOwed:    decimal.NewFromInt(owed),
		AmountPaid:    decimal.NewFromInt(paid),
		CreatorWallet: creator,
		Description:   "dinner",
		AssetCode:     domain.AssetNative,
	}
}

func TestRefreshOrdersStepsByLargestDebt(t *testing.T) {
	repo := new(mockRepository)
	dl := new(mockDebtLedger)

	debts := []*ledger.DebtItem{
		debtItem(testCreator, 40, 0),
		debtItem(testCreator, 100, 0),
		debtItem(testCreator, 25, 0),
	}
	dl.On("Debts", mock.Anything, testWallet).Return(debts, nil)
	dl.On("Credits", mock.Anything, testWallet).Return([]*ledger.DebtItem{}, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(repo, dl, new(mockSettler), new(mockOracle))
	suggestion, err := svc.Refresh(context.Background(), uuid.New(), testWallet)

	assert.NoError(t, err)
	assert.Len(t, suggestion.Steps, 3)
	assert.True(t, suggestion.Steps[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.True(t, suggestion.Steps[1].Amount.Equal(decimal.NewFromInt(40)))
	assert.True(t, suggestion.Steps[2].Amount.Equal(decimal.NewFromInt(25)))
	assert.Equal(t, 1, suggestion.Steps[0].Position)
	assert.Equal(t, 3, suggestion.Steps[2].Position)
	for _, step := range suggestion.Steps {
		assert.Equal(t, testWallet, step.FromAddress)
		assert.Equal(t, testCreator, step.ToAddress)
		assert.Len(t, step.RelatedSplitIDs, 1)
		assert.Contains(t, step.PaymentURI, "web+stellar:pay?destination="+testCreator)
		assert.Equal(t, domain.StepStatusPending, step.Status)
	}
	repo.AssertExpectations(t)
}

func TestRefreshComputesNetPosition(t *testing.T) {
	repo := new(mockRepository)
	dl := new(mockDebtLedger)

	dl.On("Debts", mock.Anything, testWallet).Return([]*ledger.DebtItem{
		debtItem(testCreator, 100, 30),
		debtItem(testCreator, 50, 0),
	}, nil)
	dl.On("Credits", mock.Anything, testWallet).Return([]*ledger.DebtItem{
		debtItem(testWallet, 200, 0),
		debtItem(testWallet, 150, 50),
	}, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(repo, dl, new(mockSettler), new(mockOracle))
	suggestion, err := svc.Refresh(context.Background(), uuid.New(), testWallet)

	assert.NoError(t, err)
	assert.True(t, suggestion.TotalOwed.Equal(decimal.NewFromInt(120)))
	assert.True(t, suggestion.TotalOwedTo.Equal(decimal.NewFromInt(300)))
	assert.True(t, suggestion.NetPosition.Equal(decimal.NewFromInt(180)))
	assert.WithinDuration(t, time.Now().Add(time.Hour), suggestion.ExpiresAt, 5*time.Second)
}

func TestRefreshWithNoDebts(t *testing.T) {
	repo := new(mockRepository)
	dl := new(mockDebtLedger)

	dl.On("Debts", mock.Anything, testWallet).Return([]*ledger.DebtItem{}, nil)
	dl.On("Credits", mock.Anything, testWallet).Return([]*ledger.DebtItem{}, nil)
	repo.On("Save", mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(repo, dl, new(mockSettler), new(mockOracle))
	suggestion, err := svc.Refresh(context.Background(), uuid.New(), testWallet)

	assert.NoError(t, err)
	assert.Empty(t, suggestion.Steps)
	assert.Equal(t, domain.AssetNative, suggestion.AssetCode)
	assert.True(t, suggestion.NetPosition.IsZero())
}

func TestNetPositionDerivedFromLedger(t *testing.T) {
	dl := new(mockDebtLedger)
	dl.On("Debts", mock.Anything, testWallet).Return([]*ledger.DebtItem{
		debtItem(testCreator, 100, 40),
	}, nil)
	dl.On("Credits", mock.Anything, testWallet).Return([]*ledger.DebtItem{
		debtItem(testWallet, 80, 0),
	}, nil)

	svc := newTestService(new(mockRepository), dl, new(mockSettler), new(mockOracle))
	result, err := svc.NetPosition(context.Background(), testWallet)

	assert.NoError(t, err)
	assert.True(t, result.TotalOwed.Equal(decimal.NewFromInt(60)))
	assert.True(t, result.TotalOwedTo.Equal(decimal.NewFromInt(80)))
	assert.True(t, result.NetPosition.Equal(decimal.NewFromInt(20)))
}

func TestSnoozeMarksActedOn(t *testing.T) {
	repo := new(mockRepository)
	suggestionID := uuid.New()
	repo.On("MarkActedOn", mock.Anything, suggestionID, testWallet).Return(nil)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), new(mockOracle))
	err := svc.Snooze(context.Background(), testWallet, suggestionID)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func pendingStep(splitID uuid.UUID) *domain.SettlementStep {
	return &domain.SettlementStep{
		ID:              uuid.New(),
		SuggestionID:    uuid.New(),
		Position:        1,
		FromAddress:     testWallet,
		ToAddress:       testCreator,
		Amount:          decimal.NewFromInt(50),
		AssetCode:       domain.AssetNative,
		RelatedSplitIDs: domain.UUIDList{splitID},
		Status:          domain.StepStatusPending,
	}
}

func TestCompleteStepSuccess(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)
	settler := new(mockSettler)

	splitID := uuid.New()
	step := pendingStep(splitID)

	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)
	oracle.On("VerifyTransaction", mock.Anything, testHash).Return(&stellar.VerifiedTransaction{
		Valid:     true,
		Hash:      testHash,
		Amount:    decimal.NewFromInt(50),
		AssetCode: domain.AssetNative,
		Sender:    testWallet,
		Receiver:  testCreator,
	}, nil)
	settler.On("ApplyStepSettlement", mock.Anything, mock.MatchedBy(func(in ledger.ApplyStepSettlementInput) bool {
		return in.SplitID == splitID && in.Wallet == testWallet && in.TxHash == testHash
	})).Return(&ledger.ApplyStepSettlementResult{
		Participant: &domain.Participant{Status: domain.ParticipantStatusPaid},
		SplitStatus: domain.SplitStatusCompleted,
	}, nil)
	repo.On("UpdateStepStatus", mock.Anything, step.ID, domain.StepStatusCompleted).Return(nil)
	repo.On("FlagActedOn", mock.Anything, step.SuggestionID).Return(nil)

	svc := newTestService(repo, new(mockDebtLedger), settler, oracle)
	completed, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.NoError(t, err)
	assert.Equal(t, domain.StepStatusCompleted, completed.Status)
	repo.AssertExpectations(t)
	settler.AssertExpectations(t)
}

func TestCompleteStepAlreadyCompleted(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)

	step := pendingStep(uuid.New())
	step.Status = domain.StepStatusCompleted
	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), oracle)
	completed, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.NoError(t, err)
	assert.Equal(t, domain.StepStatusCompleted, completed.Status)
	oracle.AssertNotCalled(t, "VerifyTransaction", mock.Anything, mock.Anything)
}

func TestCompleteStepSenderMismatch(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)
	settler := new(mockSettler)

	step := pendingStep(uuid.New())
	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)
	oracle.On("VerifyTransaction", mock.Anything, testHash).Return(&stellar.VerifiedTransaction{
		Valid:    true,
		Amount:   decimal.NewFromInt(50),
		Sender:   "GB7NLVMVC6NWTIFK7ULLEQDF5CBCI2TDCO3OZWWSFXQCT7OPU5P4S4Z4",
		Receiver: testCreator,
	}, nil)

	svc := newTestService(repo, new(mockDebtLedger), settler, oracle)
	_, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.ErrorIs(t, err, errors.ErrTransactionMismatch)
	settler.AssertNotCalled(t, "ApplyStepSettlement", mock.Anything, mock.Anything)
}

func TestCompleteStepAmountBelowStep(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)

	step := pendingStep(uuid.New())
	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)
	oracle.On("VerifyTransaction", mock.Anything, testHash).Return(&stellar.VerifiedTransaction{
		Valid:    true,
		Amount:   decimal.NewFromInt(10),
		Sender:   testWallet,
		Receiver: testCreator,
	}, nil)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), oracle)
	_, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.ErrorIs(t, err, errors.ErrTransactionMismatch)
}

func TestCompleteStepInvalidTransaction(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)

	step := pendingStep(uuid.New())
	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)
	oracle.On("VerifyTransaction", mock.Anything, testHash).Return(&stellar.VerifiedTransaction{Valid: false}, nil)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), oracle)
	_, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.ErrorIs(t, err, errors.ErrInvalidTransaction)
}

func TestCompleteStepOracleUnavailable(t *testing.T) {
	repo := new(mockRepository)
	oracle := new(mockOracle)

	step := pendingStep(uuid.New())
	repo.On("FindStepForWallet", mock.Anything, step.ID, testWallet).Return(step, nil)
	oracle.On("VerifyTransaction", mock.Anything, testHash).Return(nil, errors.ErrOracleUnavailable)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), oracle)
	_, err := svc.CompleteStep(context.Background(), step.ID, testWallet, testHash)

	assert.ErrorIs(t, err, errors.ErrOracleUnavailable)
	assert.True(t, errors.IsRetryable(err))
}

func TestCompleteStepNotOwned(t *testing.T) {
	repo := new(mockRepository)
	stepID := uuid.New()
	repo.On("FindStepForWallet", mock.Anything, stepID, testWallet).Return(nil, errors.ErrStepNotFound)

	svc := newTestService(repo, new(mockDebtLedger), new(mockSettler), new(mockOracle))
	_, err := svc.CompleteStep(context.Background(), stepID, testWallet, testHash)

	assert.ErrorIs(t, err, errors.ErrStepNotFound)
}
