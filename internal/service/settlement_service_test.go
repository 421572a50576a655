package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/paypal"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

type mockEscrowRepo struct {
	mock.Mock
}

func (m *mockEscrowRepo) Insert(ctx context.Context, t *models.EscrowTransaction) error {
	args := m.Called(ctx, t)
	return args.Error(0)
}

func (m *mockEscrowRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowRepo) List(ctx context.Context, limit, offset int) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

func (m *mockEscrowRepo) ListDue(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error) {
	args := m.Called(ctx, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.EscrowTransaction), args.Error(1)
}

// Refund повторяет контракт репозитория: строка из мока передаётся в
// callback, ошибка callback-а прерывает возврат.
func (m *mockEscrowRepo) Refund(ctx context.Context, id uuid.UUID, reason string, refund func(t models.EscrowTransaction) error) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, id, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	t := *args.Get(0).(*models.EscrowTransaction)
	if err := refund(t); err != nil {
		return nil, err
	}
	now := time.Now()
	t.Status = models.EscrowStatusRefunded
	t.RefundedAt = &now
	t.RefundReason = &reason
	return &t, nil
}

// Payout повторяет контракт репозитория: ошибка disburse фиксируется на
// строке и возвращается вместе с ней.
func (m *mockEscrowRepo) Payout(ctx context.Context, id uuid.UUID, allowRetry bool, disburse func(t models.EscrowTransaction) (string, error)) (*models.EscrowTransaction, error) {
	args := m.Called(ctx, id, allowRetry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	t := *args.Get(0).(*models.EscrowTransaction)
	batchID, err := disburse(t)
	if err != nil {
		msg := err.Error()
		t.Status = models.EscrowStatusPayoutFailed
		t.PayoutError = &msg
		return &t, err
	}
	now := time.Now()
	t.Status = models.EscrowStatusPaidOut
	t.PayoutBatchID = &batchID
	t.PaidOutAt = &now
	return &t, nil
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) CreateOrder(ctx context.Context, amount float64, currency string) (*paypal.OrderResult, error) {
	args := m.Called(ctx, amount, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.OrderResult), args.Error(1)
}

func (m *mockGateway) CaptureOrder(ctx context.Context, orderID string) (*paypal.OrderResult, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paypal.OrderResult), args.Error(1)
}

func (m *mockGateway) RefundCapture(ctx context.Context, captureID string, amount *float64, currency, reason string) error {
	args := m.Called(ctx, captureID, amount, currency, reason)
	return args.Error(0)
}

func (m *mockGateway) CreatePayout(ctx context.Context, batchID, receiverEmail string, amount float64, currency string) (string, error) {
	args := m.Called(ctx, batchID, receiverEmail, amount, currency)
	return args.String(0), args.Error(1)
}

func (m *mockGateway) GetOrder(ctx context.Context, orderID string) (json.RawMessage, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

func (m *mockGateway) GetPayoutStatus(ctx context.Context, payoutBatchID string) (json.RawMessage, error) {
	args := m.Called(ctx, payoutBatchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(json.RawMessage), args.Error(1)
}

var fixedNow = time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

func newSettlement(repo *mockEscrowRepo, gateway *mockGateway) *SettlementService {
	svc := NewSettlementService(repo, gateway, "EUR", 14, 30*time.Second)
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func heldTransaction() *models.EscrowTransaction {
	return &models.EscrowTransaction{
		ID:              uuid.New(),
		BookingID:       uuid.New(),
		PaypalOrderID:   "ORDER-1",
		PaypalCaptureID: "CAPTURE-1",
		Status:          models.EscrowStatusHeldInEscrow,
		TotalAmount:     400,
		ProPayoutAmount: 340,
		PlatformFee:     60,
		ProPaypalEmail:  "pro@example.com",
		ReleaseDate:     fixedNow.Add(-time.Hour),
	}
}

func TestSettlementService_CreateOrder_DefaultCurrency(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()

	gateway.On("CreateOrder", ctx, 400.0, "EUR").Return(&paypal.OrderResult{ID: "ORDER-1", Status: "CREATED"}, nil)

	order, err := svc.CreateOrder(ctx, 400, "")
	assert.NoError(t, err)
	assert.Equal(t, "ORDER-1", order.ID)
	gateway.AssertExpectations(t)
}

func TestSettlementService_CreateOrder_RejectsNonPositiveAmount(t *testing.T) {
	svc := newSettlement(new(mockEscrowRepo), new(mockGateway))

	_, err := svc.CreateOrder(context.Background(), 0, "EUR")
	assert.True(t, apperror.IsValidation(err))
}

func TestSettlementService_Capture_Success(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()
	bookingID := uuid.New()

	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").
		Return(&paypal.OrderResult{ID: "ORDER-1", Status: "COMPLETED", CaptureID: "CAPTURE-1"}, nil)
	repo.On("Insert", ctx, mock.AnythingOfType("*models.EscrowTransaction")).Return(nil)

	transaction, order, err := svc.Capture(ctx, CaptureInput{
		OrderID:        "ORDER-1",
		BookingID:      bookingID,
		ProPaypalEmail: "pro@example.com",
		ProAmount:      340,
		TotalAmount:    400,
	})
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusHeldInEscrow, transaction.Status)
	assert.Equal(t, 60.0, transaction.PlatformFee)
	assert.Equal(t, fixedNow.Add(14*24*time.Hour), transaction.ReleaseDate)
	assert.Equal(t, "CAPTURE-1", transaction.PaypalCaptureID)
	assert.Equal(t, "CAPTURE-1", order.CaptureID)
	repo.AssertExpectations(t)
}

func TestSettlementService_Capture_InvalidAmounts(t *testing.T) {
	gateway := new(mockGateway)
	svc := newSettlement(new(mockEscrowRepo), gateway)

	_, _, err := svc.Capture(context.Background(), CaptureInput{
		OrderID:     "ORDER-1",
		ProAmount:   500,
		TotalAmount: 400,
	})
	assert.True(t, apperror.IsValidation(err))
	gateway.AssertNotCalled(t, "CaptureOrder", mock.Anything, mock.Anything)
}

func TestSettlementService_Capture_GatewayFailureLeavesNoLedgerRow(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)

	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").
		Return(nil, apperror.New(apperror.ErrCodeGateway, "шлюз недоступен"))

	_, _, err := svc.Capture(context.Background(), CaptureInput{
		OrderID:        "ORDER-1",
		BookingID:      uuid.New(),
		ProPaypalEmail: "pro@example.com",
		ProAmount:      340,
		TotalAmount:    400,
	})
	assert.True(t, apperror.IsGateway(err))
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestSettlementService_Capture_InsertFailureReportedForReconciliation(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()

	gateway.On("CaptureOrder", mock.Anything, "ORDER-1").
		Return(&paypal.OrderResult{ID: "ORDER-1", CaptureID: "CAPTURE-1"}, nil)
	repo.On("Insert", ctx, mock.Anything).Return(errors.New("db down"))

	_, _, err := svc.Capture(ctx, CaptureInput{
		OrderID:        "ORDER-1",
		BookingID:      uuid.New(),
		ProPaypalEmail: "pro@example.com",
		ProAmount:      340,
		TotalAmount:    400,
	})
	assert.Error(t, err)
	var appErr *apperror.AppError
	assert.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodeDatabaseError, appErr.Code)
}

func TestSettlementService_Refund_Success(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()
	held := heldTransaction()

	repo.On("Refund", ctx, held.ID, "клиент отменил заказ").Return(held, nil)
	gateway.On("RefundCapture", mock.Anything, "CAPTURE-1", (*float64)(nil), "EUR", "клиент отменил заказ").Return(nil)

	refunded, err := svc.Refund(ctx, held.ID, nil, "клиент отменил заказ")
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusRefunded, refunded.Status)
	gateway.AssertExpectations(t)
}

func TestSettlementService_Refund_AmountOutOfRange(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()
	held := heldTransaction()

	repo.On("Refund", ctx, held.ID, "частичный возврат").Return(held, nil)

	amount := 500.0
	_, err := svc.Refund(ctx, held.ID, &amount, "частичный возврат")
	assert.True(t, apperror.IsValidation(err))
	gateway.AssertNotCalled(t, "RefundCapture", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSettlementService_Refund_NotInEscrow(t *testing.T) {
	repo := new(mockEscrowRepo)
	svc := newSettlement(repo, new(mockGateway))
	ctx := context.Background()
	id := uuid.New()

	repo.On("Refund", ctx, id, "возврат").Return(nil, apperror.ErrNotInEscrow)

	_, err := svc.Refund(ctx, id, nil, "возврат")
	assert.ErrorIs(t, err, apperror.ErrNotInEscrow)
}

func TestSettlementService_Payout_Success(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()
	held := heldTransaction()

	expectedBatchID := fmt.Sprintf("payout_%s_%d", held.ID, fixedNow.Unix())
	repo.On("Payout", ctx, held.ID, false).Return(held, nil)
	gateway.On("CreatePayout", mock.Anything, expectedBatchID, "pro@example.com", 340.0, "EUR").
		Return(expectedBatchID, nil)

	paid, err := svc.Payout(ctx, held.ID, false)
	assert.NoError(t, err)
	assert.Equal(t, models.EscrowStatusPaidOut, paid.Status)
	assert.Equal(t, expectedBatchID, *paid.PayoutBatchID)
	gateway.AssertExpectations(t)
}

func TestSettlementService_Payout_GatewayFailureRecordedOnRow(t *testing.T) {
	repo := new(mockEscrowRepo)
	gateway := new(mockGateway)
	svc := newSettlement(repo, gateway)
	ctx := context.Background()
	held := heldTransaction()

	repo.On("Payout", ctx, held.ID, true).Return(held, nil)
	gateway.On("CreatePayout", mock.Anything, mock.Anything, "pro@example.com", 340.0, "EUR").
		Return("", apperror.New(apperror.ErrCodeGateway, "получатель не подтверждён"))

	failed, err := svc.Payout(ctx, held.ID, true)
	assert.Error(t, err)
	assert.NotNil(t, failed)
	assert.Equal(t, models.EscrowStatusPayoutFailed, failed.Status)
	assert.NotNil(t, failed.PayoutError)
}

func TestSettlementService_ListTransactions_ClampsLimit(t *testing.T) {
	repo := new(mockEscrowRepo)
	svc := newSettlement(repo, new(mockGateway))
	ctx := context.Background()

	repo.On("List", ctx, 20, 0).Return([]models.EscrowTransaction{}, nil)

	_, err := svc.ListTransactions(ctx, 1000, 0)
	assert.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestSettlementService_GatewayPayoutStatus_RequiresBatchID(t *testing.T) {
	repo := new(mockEscrowRepo)
	svc := newSettlement(repo, new(mockGateway))
	ctx := context.Background()
	held := heldTransaction()

	repo.On("GetByID", ctx, held.ID).Return(held, nil)

	_, err := svc.GatewayPayoutStatus(ctx, held.ID)
	assert.True(t, apperror.IsConflict(err))
}
