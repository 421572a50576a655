package models

// JobStatus константы статусов заявок
const (
	JobStatusSearching         = "searching"
	JobStatusPendingAcceptance = "pending_acceptance"
	JobStatusAccepted          = "accepted"
	JobStatusEnRoute           = "en_route"
	JobStatusArrived           = "arrived"
	JobStatusInProgress        = "in_progress"
	JobStatusPaymentPending    = "payment_pending"
	JobStatusCompleted         = "completed"
	JobStatusCancelled         = "cancelled"
)

// JobStatusFlow задаёт единственный допустимый порядок прохождения статусов.
// Переходы разрешены только на соседний следующий элемент; cancelled достижим
// из любого нетерминального статуса.
var JobStatusFlow = []string{
	JobStatusSearching,
	JobStatusPendingAcceptance,
	JobStatusAccepted,
	JobStatusEnRoute,
	JobStatusArrived,
	JobStatusInProgress,
	JobStatusPaymentPending,
	JobStatusCompleted,
}

// LiveTrackingStatuses статусы, в которых заявка принимает breadcrumb-точки.
var LiveTrackingStatuses = map[string]struct{}{
	JobStatusEnRoute:    {},
	JobStatusArrived:    {},
	JobStatusInProgress: {},
}

// OfferStatus константы статусов предложений мастеров
const (
	OfferStatusPending  = "pending"
	OfferStatusAccepted = "accepted"
	OfferStatusDeclined = "declined"
	OfferStatusExpired  = "expired"
)

// Complexity уровни сложности работ
const (
	ComplexityStandard = "standard"
	ComplexityComplex  = "complex"
	ComplexityCritical = "critical"
)

// Urgency срочность заявки
const (
	UrgencyImmediate = "immediate"
	UrgencyPlanned   = "planned"
)

// Proficiency уровни владения навыком
const (
	ProficiencyBasic        = "basic"
	ProficiencyIntermediate = "intermediate"
	ProficiencyExpert       = "expert"
)

// EscrowStatus константы статусов эскроу-транзакций
const (
	EscrowStatusHeldInEscrow = "HELD_IN_ESCROW"
	EscrowStatusPaidOut      = "PAID_OUT"
	EscrowStatusPayoutFailed = "PAYOUT_FAILED"
	EscrowStatusRefunded     = "REFUNDED"
)

// Актор, инициировавший отмену или переход статуса
const (
	ActorClient   = "client"
	ActorProvider = "provider"
	ActorSystem   = "system"
)

// ValidJobStatuses список валидных статусов заявок
var ValidJobStatuses = map[string]struct{}{
	JobStatusSearching:         {},
	JobStatusPendingAcceptance: {},
	JobStatusAccepted:          {},
	JobStatusEnRoute:           {},
	JobStatusArrived:           {},
	JobStatusInProgress:        {},
	JobStatusPaymentPending:    {},
	JobStatusCompleted:         {},
	JobStatusCancelled:         {},
}

// ValidComplexities список валидных уровней сложности
var ValidComplexities = map[string]struct{}{
	ComplexityStandard: {},
	ComplexityComplex:  {},
	ComplexityCritical: {},
}

// ValidUrgencies список валидных значений срочности
var ValidUrgencies = map[string]struct{}{
	UrgencyImmediate: {},
	UrgencyPlanned:   {},
}

// ValidProficiencies список валидных уровней владения навыком
var ValidProficiencies = map[string]struct{}{
	ProficiencyBasic:        {},
	ProficiencyIntermediate: {},
	ProficiencyExpert:       {},
}

// IsTerminalJobStatus проверяет, терминальный ли статус.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusCancelled
}

// NextJobStatus возвращает следующий по порядку статус или пустую строку
// для терминальных и неизвестных статусов.
func NextJobStatus(current string) string {
	for i, s := range JobStatusFlow {
		if s == current && i+1 < len(JobStatusFlow) {
			return JobStatusFlow[i+1]
		}
	}
	return ""
}
