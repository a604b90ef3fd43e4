package split

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"splittab/internal/domain"
	"splittab/internal/notification"
	pkgerrors "splittab/pkg/errors"
	"splittab/pkg/logger"
)

type mockSplitRepo struct {
	mock.Mock
}

func (m *mockSplitRepo) Create(ctx context.Context, split *domain.Split, participants []*domain.Participant) error {
	args := m.Called(ctx, split, participants)
	return args.Error(0)
}

func (m *mockSplitRepo) FindByID(ctx context.Context, id uuid.UUID) (*domain.Split, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Split), args.Error(1)
}

func (m *mockSplitRepo) FindByParticipant(ctx context.Context, wallet string, limit, offset int) ([]*domain.Split, error) {
	args := m.Called(ctx, wallet, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Split), args.Error(1)
}

type mockParticipantRepo struct {
	mock.Mock
}

func (m *mockParticipantRepo) Add(ctx context.Context, p *domain.Participant) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *mockParticipantRepo) FindBySplit(ctx context.Context, splitID uuid.UUID) ([]*domain.Participant, error) {
	args := m.Called(ctx, splitID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Participant), args.Error(1)
}

const (
	creatorWallet = "GDQNY3PBOJOKYZSRMK2S7LHHGWZIUISD4QORETLMXEWXBI7KFZZMKTL3"
	memberWallet  = "GAIUIQNMSXTTR4TGZETSQCGBTIF32G2L5P4AML4LFTMTHKM44UHIN6XQ"
	thirdWallet   = "GB7NLVMVC6NWTIFK7ULLEQDF5CBCI2TDCO3OZWWSFXQCT7OPU5P4S4Z4"
)

func newTestService(splits SplitRepository, participants ParticipantRepository) *Service {
	return NewService(splits, participants, notification.NopEmitter{}, logger.NewNop())
}

func createRequest(total int64, shares ...int64) *CreateSplitRequest {
	req := &CreateSplitRequest{
		CreatorWallet: creatorWallet,
		Description:   "team dinner",
		TotalAmount:   decimal.NewFromInt(total),
	}
	wallets := []string{memberWallet, thirdWallet}
	for i, share := range shares {
		req.Participants = append(req.Participants, ParticipantShare{
			Wallet: wallets[i%len(wallets)],
			Amount: decimal.NewFromInt(share),
		})
	}
	return req
}

func TestCreateSplit(t *testing.T) {
	splits := new(mockSplitRepo)
	splits.On("Create", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc := newTestService(splits, new(mockParticipantRepo))
	detail, err := svc.Create(context.Background(), createRequest(100, 60, 40))

	assert.NoError(t, err)
	assert.Equal(t, domain.SplitStatusActive, detail.Status)
	assert.Equal(t, domain.AssetNative, detail.AssetCode)
	assert.True(t, detail.AmountPaid.IsZero())
	assert.Len(t, detail.Participants, 2)
	for _, p := range detail.Participants {
		assert.Equal(t, detail.ID, p.SplitID)
		assert.Equal(t, domain.ParticipantStatusPending, p.Status)
	}
	splits.AssertExpectations(t)
}

func TestCreateSplitSharesMismatch(t *testing.T) {
	splits := new(mockSplitRepo)

	svc := newTestService(splits, new(mockParticipantRepo))
	_, err := svc.Create(context.Background(), createRequest(100, 60, 30))

	assert.ErrorIs(t, err, pkgerrors.ErrSharesMismatch)
	splits.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSplitRejectsNonPositiveAmounts(t *testing.T) {
	svc := newTestService(new(mockSplitRepo), new(mockParticipantRepo))

	_, err := svc.Create(context.Background(), createRequest(0))
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)

	req := createRequest(100, 100)
	req.Participants[0].Amount = decimal.NewFromInt(-100)
	_, err = svc.Create(context.Background(), req)
	assert.ErrorIs(t, err, pkgerrors.ErrInvalidAmount)
}

func TestGetSplitWithParticipants(t *testing.T) {
	splits := new(mockSplitRepo)
	participants := new(mockParticipantRepo)

	splitID := uuid.New()
	splits.On("FindByID", mock.Anything, splitID).Return(&domain.Split{
		ID:          splitID,
		TotalAmount: decimal.NewFromInt(100),
		Status:      domain.SplitStatusActive,
	}, nil)
	participants.On("FindBySplit", mock.Anything, splitID).Return([]*domain.Participant{
		{ID: uuid.New(), SplitID: splitID, Wallet: memberWallet},
	}, nil)

	svc := newTestService(splits, participants)
	detail, err := svc.Get(context.Background(), splitID)

	assert.NoError(t, err)
	assert.Equal(t, splitID, detail.ID)
	assert.Len(t, detail.Participants, 1)
}

func TestGetSplitNotFound(t *testing.T) {
	splits := new(mockSplitRepo)
	splits.On("FindByID", mock.Anything, mock.Anything).Return(nil, pkgerrors.ErrSplitNotFound)

	svc := newTestService(splits, new(mockParticipantRepo))
	_, err := svc.Get(context.Background(), uuid.New())

	assert.ErrorIs(t, err, pkgerrors.ErrSplitNotFound)
}

func TestJoinSplit(t *testing.T) {
	splits := new(mockSplitRepo)
	participants := new(mockParticipantRepo)

	splitID := uuid.New()
	splits.On("FindByID", mock.Anything, splitID).Return(&domain.Split{
		ID:     splitID,
		Status: domain.SplitStatusActive,
	}, nil)
	participants.On("Add", mock.Anything, mock.MatchedBy(func(p *domain.Participant) bool {
		return p.SplitID == splitID && p.Wallet == memberWallet && p.AmountPaid.IsZero()
	})).Return(nil)

	svc := newTestService(splits, participants)
	participant, err := svc.Join(context.Background(), splitID, &JoinSplitRequest{
		Wallet: memberWallet,
		Amount: decimal.NewFromInt(25),
	})

	assert.NoError(t, err)
	assert.Equal(t, domain.ParticipantStatusPending, participant.Status)
	participants.AssertExpectations(t)
}

func TestJoinCompletedSplitRejected(t *testing.T) {
	splits := new(mockSplitRepo)
	participants := new(mockParticipantRepo)

	splitID := uuid.New()
	splits.On("FindByID", mock.Anything, splitID).Return(&domain.Split{
		ID:     splitID,
		Status: domain.SplitStatusCompleted,
	}, nil)

	svc := newTestService(splits, participants)
	_, err := svc.Join(context.Background(), splitID, &JoinSplitRequest{
		Wallet: memberWallet,
		Amount: decimal.NewFromInt(25),
	})

	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateJoin)
	participants.AssertNotCalled(t, "Add", mock.Anything, mock.Anything)
}

func TestJoinDuplicateWallet(t *testing.T) {
	splits := new(mockSplitRepo)
	participants := new(mockParticipantRepo)

	splitID := uuid.New()
	splits.On("FindByID", mock.Anything, splitID).Return(&domain.Split{
		ID:     splitID,
		Status: domain.SplitStatusActive,
	}, nil)
	participants.On("Add", mock.Anything, mock.Anything).Return(pkgerrors.ErrDuplicateJoin)

	svc := newTestService(splits, participants)
	_, err := svc.Join(context.Background(), splitID, &JoinSplitRequest{
		Wallet: memberWallet,
		Amount: decimal.NewFromInt(25),
	})

	assert.ErrorIs(t, err, pkgerrors.ErrDuplicateJoin)
}
