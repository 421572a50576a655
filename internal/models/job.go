package models

import (
	"time"

	"github.com/google/uuid"
)

// Job описывает заявку на бытовую услугу, прослеживаемую от создания
// до завершения или отмены.
type Job struct {
	ID                 uuid.UUID         `db:"id" json:"id"`
	ClientID           uuid.UUID         `db:"client_id" json:"client_id"`
	Client             ClientSnapshot    `db:"-" json:"client"`
	Status             string            `db:"status" json:"status"`
	Service            ServiceData       `db:"-" json:"service"`
	Location           Location          `db:"-" json:"location"`
	ProviderID         *uuid.UUID        `db:"provider_id" json:"provider_id,omitempty"`
	Provider           *ProviderSnapshot `db:"-" json:"provider,omitempty"`
	SecurityCode       string            `db:"security_code" json:"security_code"`
	PriceEstimate      *float64          `db:"price_estimate" json:"price_estimate,omitempty"`
	FinalPrice         *float64          `db:"final_price" json:"final_price,omitempty"`
	Currency           string            `db:"currency" json:"currency"`
	CreatedAt          time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time         `db:"updated_at" json:"updated_at"`
	AcceptedAt         *time.Time        `db:"accepted_at" json:"accepted_at,omitempty"`
	ArrivedAt          *time.Time        `db:"arrived_at" json:"arrived_at,omitempty"`
	StartedAt          *time.Time        `db:"started_at" json:"started_at,omitempty"`
	CompletedAt        *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt        *time.Time        `db:"cancelled_at" json:"cancelled_at,omitempty"`
	CancellationReason *string           `db:"cancellation_reason" json:"cancellation_reason,omitempty"`
	CancelledBy        *string           `db:"cancelled_by" json:"cancelled_by,omitempty"`
	Breadcrumbs        []Breadcrumb      `db:"-" json:"breadcrumbs,omitempty"`
}

// ServiceData хранит описание самой услуги внутри заявки.
type ServiceData struct {
	Category          string   `db:"category" json:"category"`
	SubProblem        *string  `db:"sub_problem" json:"sub_problem,omitempty"`
	Complexity        string   `db:"complexity" json:"complexity"`
	Description       string   `db:"description" json:"description"`
	MediaIDs          []uuid.UUID `db:"-" json:"media_ids,omitempty"`
	Urgency           string   `db:"urgency" json:"urgency"`
	EstimatedDuration *int     `db:"estimated_duration" json:"estimated_duration,omitempty"`
}

// Location адрес выполнения работ.
type Location struct {
	Latitude  float64 `db:"latitude" json:"latitude"`
	Longitude float64 `db:"longitude" json:"longitude"`
	Address   string  `db:"address" json:"address"`
	Floor     *string `db:"floor" json:"floor,omitempty"`
	Apartment *string `db:"apartment" json:"apartment,omitempty"`
	Notes     *string `db:"location_notes" json:"notes,omitempty"`
}

// Breadcrumb точка трека мастера, пишется только в «живых» статусах.
type Breadcrumb struct {
	ID         int64     `db:"id" json:"id"`
	JobID      uuid.UUID `db:"job_id" json:"job_id"`
	Latitude   float64   `db:"latitude" json:"latitude"`
	Longitude  float64   `db:"longitude" json:"longitude"`
	RecordedAt time.Time `db:"recorded_at" json:"recorded_at"`
}

// ClientSnapshot денормализованный снимок клиента для списков заявок.
type ClientSnapshot struct {
	Name   string  `db:"client_name" json:"name"`
	Phone  string  `db:"client_phone" json:"phone"`
	Rating *float64 `db:"client_rating" json:"rating,omitempty"`
}

// ProviderSnapshot денормализованный снимок мастера. Обновляется при
// назначении на заявку, источником правды остаётся реестр мастеров.
type ProviderSnapshot struct {
	Name       string   `db:"provider_name" json:"name"`
	Phone      string   `db:"provider_phone" json:"phone"`
	Rating     *float64 `db:"provider_rating" json:"rating,omitempty"`
	JobsDone   int      `db:"provider_jobs_done" json:"jobs_done"`
	AvatarURL  *string  `db:"provider_avatar_url" json:"avatar_url,omitempty"`
}

// JobOffer ценовое предложение мастера на заявку в статусе searching.
type JobOffer struct {
	ID               uuid.UUID         `db:"id" json:"id"`
	JobID            uuid.UUID         `db:"job_id" json:"job_id"`
	ProviderID       uuid.UUID         `db:"provider_id" json:"provider_id"`
	Price            float64           `db:"price" json:"price"`
	EstimatedArrival int               `db:"estimated_arrival_minutes" json:"estimated_arrival_minutes"`
	Message          *string           `db:"message" json:"message,omitempty"`
	Status           string            `db:"status" json:"status"`
	CreatedAt        time.Time         `db:"created_at" json:"created_at"`
	ExpiresAt        time.Time         `db:"expires_at" json:"expires_at"`
	Provider         *ProviderSnapshot `db:"-" json:"provider,omitempty"`
}

// IsExpired лениво определяет просроченность предложения: активной
// чистки просроченных офферов нет, статус пересчитывается при чтении.
func (o *JobOffer) IsExpired(now time.Time) bool {
	return o.Status == OfferStatusPending && now.After(o.ExpiresAt)
}

// EffectiveStatus возвращает статус с учётом ленивого истечения.
func (o *JobOffer) EffectiveStatus(now time.Time) string {
	if o.IsExpired(now) {
		return OfferStatusExpired
	}
	return o.Status
}
