package models

import (
	"time"

	"github.com/google/uuid"
)

// EscrowTransaction строка эскроу-леджера. Создаётся ровно один раз на
// успешный capture платежа; статусы меняются только вперёд, кроме
// PAYOUT_FAILED, который может быть повторно доведён до PAID_OUT.
type EscrowTransaction struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	BookingID       uuid.UUID  `db:"booking_id" json:"booking_id"`
	PaypalOrderID   string     `db:"paypal_order_id" json:"paypal_order_id"`
	PaypalCaptureID string     `db:"paypal_capture_id" json:"paypal_capture_id"`
	Status          string     `db:"status" json:"status"`
	TotalAmount     float64    `db:"total_amount" json:"total_amount"`
	ProPayoutAmount float64    `db:"pro_payout_amount" json:"pro_payout_amount"`
	PlatformFee     float64    `db:"platform_fee" json:"platform_fee"`
	ProPaypalEmail  string     `db:"pro_paypal_email" json:"pro_paypal_email"`
	ReleaseDate     time.Time  `db:"release_date" json:"release_date"`
	PayoutBatchID   *string    `db:"payout_batch_id" json:"payout_batch_id,omitempty"`
	PaidOutAt       *time.Time `db:"paid_out_at" json:"paid_out_at,omitempty"`
	RefundReason    *string    `db:"refund_reason" json:"refund_reason,omitempty"`
	RefundedAt      *time.Time `db:"refunded_at" json:"refunded_at,omitempty"`
	PayoutError     *string    `db:"payout_error" json:"payout_error,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

// IsReleasable истинно, когда срок удержания вышел и деньги ещё в эскроу.
func (t *EscrowTransaction) IsReleasable(now time.Time) bool {
	return t.Status == EscrowStatusHeldInEscrow && !t.ReleaseDate.After(now)
}
