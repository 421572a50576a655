package models

import (
	"time"

	"github.com/google/uuid"
)

// Provider мастер из реестра: источник правды по навыкам и рейтингу.
type Provider struct {
	ID           uuid.UUID    `db:"id" json:"id"`
	Name         string       `db:"name" json:"name"`
	Phone        string       `db:"phone" json:"phone"`
	PaypalEmail  string       `db:"paypal_email" json:"paypal_email"`
	Rating       *float64     `db:"rating" json:"rating,omitempty"`
	JobsDone     int          `db:"jobs_done" json:"jobs_done"`
	AvatarURL    *string      `db:"avatar_url" json:"avatar_url,omitempty"`
	IsActive     bool         `db:"is_active" json:"is_active"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
	Capabilities []Capability `db:"-" json:"capabilities,omitempty"`
}

// Capability навык мастера: ключ из каталога, категория и уровень владения.
type Capability struct {
	ID          string `db:"capability_id" json:"id"`
	Category    string `db:"category" json:"category"`
	Proficiency string `db:"proficiency" json:"proficiency"`
	IsFavorite  bool   `db:"is_favorite" json:"is_favorite"`
}

// Snapshot строит денормализованный снимок мастера для заявки и оффера.
func (p *Provider) Snapshot() ProviderSnapshot {
	return ProviderSnapshot{
		Name:      p.Name,
		Phone:     p.Phone,
		Rating:    p.Rating,
		JobsDone:  p.JobsDone,
		AvatarURL: p.AvatarURL,
	}
}

// ServiceRequirement транзиентное требование для матчинга, собирается
// из сервисных данных заявки в момент подбора.
type ServiceRequirement struct {
	Category    string  `json:"category"`
	SubProblem  *string `json:"sub_problem,omitempty"`
	Complexity  string  `json:"complexity"`
	Urgency     string  `json:"urgency"`
	Description string  `json:"description"`
}

// RequirementFromJob собирает требование для матчинга из заявки.
func RequirementFromJob(job *Job) ServiceRequirement {
	return ServiceRequirement{
		Category:    job.Service.Category,
		SubProblem:  job.Service.SubProblem,
		Complexity:  job.Service.Complexity,
		Urgency:     job.Service.Urgency,
		Description: job.Service.Description,
	}
}
