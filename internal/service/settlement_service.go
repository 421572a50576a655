package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
	"github.com/ignatzorin/homemaster-backend/internal/paypal"
)

// EscrowRepository описывает работу сервиса расчётов с леджером.
type EscrowRepository interface {
	Insert(ctx context.Context, t *models.EscrowTransaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error)
	List(ctx context.Context, limit, offset int) ([]models.EscrowTransaction, error)
	ListDue(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error)
	Refund(ctx context.Context, id uuid.UUID, reason string, refund func(t models.EscrowTransaction) error) (*models.EscrowTransaction, error)
	Payout(ctx context.Context, id uuid.UUID, allowRetry bool, disburse func(t models.EscrowTransaction) (string, error)) (*models.EscrowTransaction, error)
}

// PaymentGateway описывает контракт платёжного шлюза.
type PaymentGateway interface {
	CreateOrder(ctx context.Context, amount float64, currency string) (*paypal.OrderResult, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.OrderResult, error)
	RefundCapture(ctx context.Context, captureID string, amount *float64, currency, reason string) error
	CreatePayout(ctx context.Context, batchID, receiverEmail string, amount float64, currency string) (string, error)
	GetOrder(ctx context.Context, orderID string) (json.RawMessage, error)
	GetPayoutStatus(ctx context.Context, payoutBatchID string) (json.RawMessage, error)
}

// SettlementService двигает строки эскроу-леджера:
// capture → HELD_IN_ESCROW → PAID_OUT / REFUNDED / PAYOUT_FAILED.
type SettlementService struct {
	repo           EscrowRepository
	gateway        PaymentGateway
	currency       string
	holdPeriod     time.Duration
	gatewayTimeout time.Duration
	now            func() time.Time
}

// NewSettlementService создаёт сервис расчётов. holdDays — период
// удержания средств в эскроу после capture.
func NewSettlementService(repo EscrowRepository, gateway PaymentGateway, currency string, holdDays int, gatewayTimeout time.Duration) *SettlementService {
	return &SettlementService{
		repo:           repo,
		gateway:        gateway,
		currency:       currency,
		holdPeriod:     time.Duration(holdDays) * 24 * time.Hour,
		gatewayTimeout: gatewayTimeout,
		now:            time.Now,
	}
}

// CreateOrder создаёт ордер шлюза для чекаута.
func (s *SettlementService) CreateOrder(ctx context.Context, amount float64, currency string) (*paypal.OrderResult, error) {
	if amount <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "сумма должна быть положительной")
	}
	if currency == "" {
		currency = s.currency
	}
	return s.gateway.CreateOrder(ctx, amount, currency)
}

// CaptureInput параметры capture по ордеру шлюза.
type CaptureInput struct {
	OrderID        string
	BookingID      uuid.UUID
	ProPaypalEmail string
	ProAmount      float64
	TotalAmount    float64
}

// Capture захватывает платёж и создаёт строку леджера в HELD_IN_ESCROW
// со сроком освобождения now + период удержания. Неудачный capture не
// оставляет следов в леджере.
func (s *SettlementService) Capture(ctx context.Context, input CaptureInput) (*models.EscrowTransaction, *paypal.OrderResult, error) {
	if input.TotalAmount <= 0 || input.ProAmount <= 0 || input.ProAmount > input.TotalAmount {
		return nil, nil, apperror.New(apperror.ErrCodeValidation, "некорректные суммы платежа")
	}

	captureCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	result, err := s.gateway.CaptureOrder(captureCtx, input.OrderID)
	if err != nil {
		return nil, nil, err
	}

	capturedAt := s.now()
	t := &models.EscrowTransaction{
		BookingID:       input.BookingID,
		PaypalOrderID:   input.OrderID,
		PaypalCaptureID: result.CaptureID,
		Status:          models.EscrowStatusHeldInEscrow,
		TotalAmount:     input.TotalAmount,
		ProPayoutAmount: input.ProAmount,
		PlatformFee:     input.TotalAmount - input.ProAmount,
		ProPaypalEmail:  input.ProPaypalEmail,
		ReleaseDate:     capturedAt.Add(s.holdPeriod),
	}
	if err := s.repo.Insert(ctx, t); err != nil {
		// Capture прошёл, а строка не записана: деньги захвачены без
		// леджера. Логируем capture id для ручной сверки.
		if logger.Log != nil {
			logger.Log.WithFields(logrus.Fields{
				"booking_id":        input.BookingID,
				"paypal_order_id":   input.OrderID,
				"paypal_capture_id": result.CaptureID,
			}).Error("Reconciliation needed: capture succeeded, ledger insert failed")
		}
		return nil, nil, apperror.Wrap(err, apperror.ErrCodeDatabaseError, "платёж захвачен, но не записан в леджер")
	}

	return t, result, nil
}

// Refund возвращает средства клиенту. Законен только пока строка в
// HELD_IN_ESCROW; после выплаты деньги уже покинули эскроу.
func (s *SettlementService) Refund(ctx context.Context, id uuid.UUID, amount *float64, reason string) (*models.EscrowTransaction, error) {
	return s.repo.Refund(ctx, id, reason, func(t models.EscrowTransaction) error {
		if amount != nil && (*amount <= 0 || *amount > t.TotalAmount) {
			return apperror.New(apperror.ErrCodeValidation, "сумма возврата вне допустимого диапазона")
		}
		refundCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		return s.gateway.RefundCapture(refundCtx, t.PaypalCaptureID, amount, s.currency, reason)
	})
}

// Payout выплачивает мастеру строку с истёкшим сроком удержания.
// Идемпотентный batch id строится из id транзакции и момента попытки:
// повтор после падения процесса не может привести к двойной выплате.
// Ошибка шлюза фиксируется на строке (PAYOUT_FAILED) и возвращается
// вызывающему, не прерывая свип.
func (s *SettlementService) Payout(ctx context.Context, id uuid.UUID, allowRetry bool) (*models.EscrowTransaction, error) {
	return s.repo.Payout(ctx, id, allowRetry, func(t models.EscrowTransaction) (string, error) {
		batchID := fmt.Sprintf("payout_%s_%d", t.ID, s.now().Unix())
		payoutCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
		defer cancel()
		return s.gateway.CreatePayout(payoutCtx, batchID, t.ProPaypalEmail, t.ProPayoutAmount, s.currency)
	})
}

// GetTransaction возвращает строку леджера.
func (s *SettlementService) GetTransaction(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	return s.repo.GetByID(ctx, id)
}

// ListTransactions возвращает леджер постранично.
func (s *SettlementService) ListTransactions(ctx context.Context, limit, offset int) ([]models.EscrowTransaction, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.List(ctx, limit, offset)
}

// ListDue возвращает строки, готовые к выплате.
func (s *SettlementService) ListDue(ctx context.Context) ([]models.EscrowTransaction, error) {
	return s.repo.ListDue(ctx, s.now())
}

// GatewayOrder проксирует чтение ордера со стороны шлюза.
func (s *SettlementService) GatewayOrder(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.gateway.GetOrder(ctx, t.PaypalOrderID)
}

// GatewayPayoutStatus проксирует чтение статуса выплаты со стороны шлюза.
func (s *SettlementService) GatewayPayoutStatus(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.PayoutBatchID == nil {
		return nil, apperror.New(apperror.ErrCodeConflict, "по транзакции ещё не было выплаты")
	}
	return s.gateway.GetPayoutStatus(ctx, *t.PayoutBatchID)
}
