package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

type ProviderRepository struct {
	db *sqlx.DB
}

func NewProviderRepository(db *sqlx.DB) *ProviderRepository {
	return &ProviderRepository{db: db}
}

// Create сохраняет мастера вместе с его навыками.
func (r *ProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	err = tx.GetContext(ctx, provider, `
		INSERT INTO providers (name, phone, paypal_email, rating, jobs_done, avatar_url, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, name, phone, paypal_email, rating, jobs_done, avatar_url, is_active, created_at`,
		provider.Name, provider.Phone, provider.PaypalEmail, provider.Rating,
		provider.JobsDone, provider.AvatarURL, provider.IsActive)
	if err != nil {
		return fmt.Errorf("provider repository: create %w", err)
	}

	for _, c := range provider.Capabilities {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO provider_capabilities (provider_id, capability_id, category, proficiency, is_favorite)
			VALUES ($1, $2, $3, $4, $5)`,
			provider.ID, c.ID, c.Category, c.Proficiency, c.IsFavorite); err != nil {
			return fmt.Errorf("provider repository: create capability %w", err)
		}
	}

	return tx.Commit()
}

// GetByID возвращает мастера вместе с навыками.
func (r *ProviderRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error) {
	var provider models.Provider
	err := r.db.GetContext(ctx, &provider, `
		SELECT id, name, phone, paypal_email, rating, jobs_done, avatar_url, is_active, created_at
		FROM providers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrProviderNotFound
		}
		return nil, fmt.Errorf("provider repository: get by id %w", err)
	}

	caps, err := r.ListCapabilities(ctx, id)
	if err != nil {
		return nil, err
	}
	provider.Capabilities = caps
	return &provider, nil
}

// ListCapabilities возвращает навыки мастера.
func (r *ProviderRepository) ListCapabilities(ctx context.Context, providerID uuid.UUID) ([]models.Capability, error) {
	var caps []models.Capability
	err := r.db.SelectContext(ctx, &caps, `
		SELECT capability_id, category, proficiency, is_favorite
		FROM provider_capabilities WHERE provider_id = $1 ORDER BY capability_id`, providerID)
	if err != nil {
		return nil, fmt.Errorf("provider repository: list capabilities %w", err)
	}
	return caps, nil
}

// ListActive возвращает активных мастеров без навыков (для списков).
func (r *ProviderRepository) ListActive(ctx context.Context, limit, offset int) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.db.SelectContext(ctx, &providers, `
		SELECT id, name, phone, paypal_email, rating, jobs_done, avatar_url, is_active, created_at
		FROM providers WHERE is_active ORDER BY created_at LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("provider repository: list active %w", err)
	}
	return providers, nil
}
