package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

type EscrowRepository struct {
	db *sqlx.DB
}

func NewEscrowRepository(db *sqlx.DB) *EscrowRepository {
	return &EscrowRepository{db: db}
}

const transactionColumns = `
	id, booking_id, paypal_order_id, paypal_capture_id, status,
	total_amount, pro_payout_amount, platform_fee, pro_paypal_email,
	release_date, payout_batch_id, paid_out_at, refund_reason, refunded_at,
	payout_error, created_at`

// Insert создаёт строку леджера. Вызывается ровно один раз на успешный
// capture; при ошибке вставки capture id обязан остаться в логах выше.
func (r *EscrowRepository) Insert(ctx context.Context, t *models.EscrowTransaction) error {
	err := r.db.GetContext(ctx, t, `
		INSERT INTO transactions (
			booking_id, paypal_order_id, paypal_capture_id, status,
			total_amount, pro_payout_amount, platform_fee, pro_paypal_email, release_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+transactionColumns,
		t.BookingID, t.PaypalOrderID, t.PaypalCaptureID, t.Status,
		t.TotalAmount, t.ProPayoutAmount, t.PlatformFee, t.ProPaypalEmail, t.ReleaseDate)
	if err != nil {
		return fmt.Errorf("escrow repository: insert %w", err)
	}
	return nil
}

// GetByID возвращает транзакцию леджера.
func (r *EscrowRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	err := r.db.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("escrow repository: get by id %w", err)
	}
	return &t, nil
}

// List возвращает транзакции леджера, новые первыми.
func (r *EscrowRepository) List(ctx context.Context, limit, offset int) ([]models.EscrowTransaction, error) {
	var list []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &list, `
		SELECT `+transactionColumns+` FROM transactions
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list %w", err)
	}
	return list, nil
}

// ListDue возвращает строки, готовые к выплате: только HELD_IN_ESCROW с
// истёкшим сроком удержания. Уже выплаченные строки предикат исключает,
// поэтому повторный запуск свипа для них — no-op.
func (r *EscrowRepository) ListDue(ctx context.Context, now time.Time) ([]models.EscrowTransaction, error) {
	var list []models.EscrowTransaction
	err := r.db.SelectContext(ctx, &list, `
		SELECT `+transactionColumns+` FROM transactions
		WHERE status = $1 AND release_date <= $2
		ORDER BY release_date`, models.EscrowStatusHeldInEscrow, now)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: list due %w", err)
	}
	return list, nil
}

// Refund в одной транзакции проверяет, что средства ещё в эскроу,
// выполняет возврат через шлюз и помечает строку REFUNDED. Возврат после
// выплаты невозможен — деньги уже ушли из эскроу.
func (r *EscrowRepository) Refund(ctx context.Context, id uuid.UUID, reason string, refund func(t models.EscrowTransaction) error) (*models.EscrowTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := lockTransaction(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.EscrowStatusHeldInEscrow {
		return nil, apperror.ErrNotInEscrow
	}

	if err := refund(*t); err != nil {
		return nil, err
	}

	err = tx.GetContext(ctx, t, `
		UPDATE transactions SET status = $2, refund_reason = $3, refunded_at = NOW()
		WHERE id = $1
		RETURNING `+transactionColumns, id, models.EscrowStatusRefunded, reason)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: refund %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

// Payout удерживает строку под блокировкой, перепроверяет статус прямо
// перед обращением к шлюзу и фиксирует исход: PAID_OUT с batch id либо
// PAYOUT_FAILED с текстом ошибки. allowRetry разрешает повторную выплату
// строки в статусе PAYOUT_FAILED (ручной перезапуск).
func (r *EscrowRepository) Payout(ctx context.Context, id uuid.UUID, allowRetry bool, disburse func(t models.EscrowTransaction) (batchID string, err error)) (*models.EscrowTransaction, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	t, err := lockTransaction(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case models.EscrowStatusHeldInEscrow:
	case models.EscrowStatusPayoutFailed:
		if !allowRetry {
			return nil, apperror.ErrNotInEscrow
		}
	default:
		return nil, apperror.ErrNotInEscrow
	}
	if t.ReleaseDate.After(time.Now()) {
		return nil, apperror.ErrReleaseDateNotDue
	}

	batchID, disburseErr := disburse(*t)
	if disburseErr != nil {
		// Ошибка выплаты фиксируется на строке, чтобы свип мог
		// продолжить обработку остальных строк.
		err = tx.GetContext(ctx, t, `
			UPDATE transactions SET status = $2, payout_error = $3
			WHERE id = $1
			RETURNING `+transactionColumns, id, models.EscrowStatusPayoutFailed, disburseErr.Error())
		if err != nil {
			return nil, fmt.Errorf("escrow repository: payout record failure %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return t, disburseErr
	}

	err = tx.GetContext(ctx, t, `
		UPDATE transactions SET status = $2, payout_batch_id = $3, paid_out_at = NOW(), payout_error = NULL
		WHERE id = $1
		RETURNING `+transactionColumns, id, models.EscrowStatusPaidOut, batchID)
	if err != nil {
		return nil, fmt.Errorf("escrow repository: payout %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return t, nil
}

func lockTransaction(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.EscrowTransaction, error) {
	var t models.EscrowTransaction
	err := tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrTransactionNotFound
		}
		return nil, fmt.Errorf("escrow repository: lock transaction %w", err)
	}
	return &t, nil
}
