package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

type JobRepository struct {
	db *sqlx.DB
}

func NewJobRepository(db *sqlx.DB) *JobRepository {
	return &JobRepository{db: db}
}

// jobRow плоское представление строки jobs для сканирования sqlx.
type jobRow struct {
	ID                 uuid.UUID  `db:"id"`
	ClientID           uuid.UUID  `db:"client_id"`
	ClientName         string     `db:"client_name"`
	ClientPhone        string     `db:"client_phone"`
	ClientRating       *float64   `db:"client_rating"`
	Status             string     `db:"status"`
	Category           string     `db:"category"`
	SubProblem         *string    `db:"sub_problem"`
	Complexity         string     `db:"complexity"`
	Description        string     `db:"description"`
	Urgency            string     `db:"urgency"`
	EstimatedDuration  *int       `db:"estimated_duration"`
	Latitude           float64    `db:"latitude"`
	Longitude          float64    `db:"longitude"`
	Address            string     `db:"address"`
	Floor              *string    `db:"floor"`
	Apartment          *string    `db:"apartment"`
	LocationNotes      *string    `db:"location_notes"`
	ProviderID         *uuid.UUID `db:"provider_id"`
	ProviderName       *string    `db:"provider_name"`
	ProviderPhone      *string    `db:"provider_phone"`
	ProviderRating     *float64   `db:"provider_rating"`
	ProviderJobsDone   *int       `db:"provider_jobs_done"`
	ProviderAvatarURL  *string    `db:"provider_avatar_url"`
	SecurityCode       string     `db:"security_code"`
	PriceEstimate      *float64   `db:"price_estimate"`
	FinalPrice         *float64   `db:"final_price"`
	Currency           string     `db:"currency"`
	CreatedAt          time.Time  `db:"created_at"`
	UpdatedAt          time.Time  `db:"updated_at"`
	AcceptedAt         *time.Time `db:"accepted_at"`
	ArrivedAt          *time.Time `db:"arrived_at"`
	StartedAt          *time.Time `db:"started_at"`
	CompletedAt        *time.Time `db:"completed_at"`
	CancelledAt        *time.Time `db:"cancelled_at"`
	CancellationReason *string    `db:"cancellation_reason"`
	CancelledBy        *string    `db:"cancelled_by"`
}

const jobColumns = `
	id, client_id, client_name, client_phone, client_rating, status,
	category, sub_problem, complexity, description, urgency, estimated_duration,
	latitude, longitude, address, floor, apartment, location_notes,
	provider_id, provider_name, provider_phone, provider_rating, provider_jobs_done, provider_avatar_url,
	security_code, price_estimate, final_price, currency,
	created_at, updated_at, accepted_at, arrived_at, started_at, completed_at,
	cancelled_at, cancellation_reason, cancelled_by`

func (r *jobRow) toModel() *models.Job {
	job := &models.Job{
		ID:       r.ID,
		ClientID: r.ClientID,
		Client: models.ClientSnapshot{
			Name:   r.ClientName,
			Phone:  r.ClientPhone,
			Rating: r.ClientRating,
		},
		Status: r.Status,
		Service: models.ServiceData{
			Category:          r.Category,
			SubProblem:        r.SubProblem,
			Complexity:        r.Complexity,
			Description:       r.Description,
			Urgency:           r.Urgency,
			EstimatedDuration: r.EstimatedDuration,
		},
		Location: models.Location{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Address:   r.Address,
			Floor:     r.Floor,
			Apartment: r.Apartment,
			Notes:     r.LocationNotes,
		},
		ProviderID:         r.ProviderID,
		SecurityCode:       r.SecurityCode,
		PriceEstimate:      r.PriceEstimate,
		FinalPrice:         r.FinalPrice,
		Currency:           r.Currency,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
		AcceptedAt:         r.AcceptedAt,
		ArrivedAt:          r.ArrivedAt,
		StartedAt:          r.StartedAt,
		CompletedAt:        r.CompletedAt,
		CancelledAt:        r.CancelledAt,
		CancellationReason: r.CancellationReason,
		CancelledBy:        r.CancelledBy,
	}
	if r.ProviderID != nil && r.ProviderName != nil {
		jobsDone := 0
		if r.ProviderJobsDone != nil {
			jobsDone = *r.ProviderJobsDone
		}
		phone := ""
		if r.ProviderPhone != nil {
			phone = *r.ProviderPhone
		}
		job.Provider = &models.ProviderSnapshot{
			Name:      *r.ProviderName,
			Phone:     phone,
			Rating:    r.ProviderRating,
			JobsDone:  jobsDone,
			AvatarURL: r.ProviderAvatarURL,
		}
	}
	return job
}

// Create сохраняет новую заявку в статусе searching вместе со ссылками на медиа.
func (r *JobRepository) Create(ctx context.Context, job *models.Job) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var row jobRow
	err = tx.GetContext(ctx, &row, `
		INSERT INTO jobs (
			client_id, client_name, client_phone, client_rating, status,
			category, sub_problem, complexity, description, urgency, estimated_duration,
			latitude, longitude, address, floor, apartment, location_notes,
			security_code, price_estimate, currency
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		RETURNING `+jobColumns,
		job.ClientID, job.Client.Name, job.Client.Phone, job.Client.Rating, models.JobStatusSearching,
		job.Service.Category, job.Service.SubProblem, job.Service.Complexity, job.Service.Description,
		job.Service.Urgency, job.Service.EstimatedDuration,
		job.Location.Latitude, job.Location.Longitude, job.Location.Address,
		job.Location.Floor, job.Location.Apartment, job.Location.Notes,
		job.SecurityCode, job.PriceEstimate, job.Currency,
	)
	if err != nil {
		return fmt.Errorf("job repository: create %w", err)
	}

	for _, mediaID := range job.Service.MediaIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO job_media (job_id, media_id) VALUES ($1, $2)`, row.ID, mediaID); err != nil {
			return fmt.Errorf("job repository: create media link %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	mediaIDs := job.Service.MediaIDs
	*job = *row.toModel()
	job.Service.MediaIDs = mediaIDs
	return nil
}

// GetByID возвращает заявку вместе с breadcrumb-точками.
func (r *JobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var row jobRow
	err := r.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: get by id %w", err)
	}
	job := row.toModel()

	if err := r.db.SelectContext(ctx, &job.Breadcrumbs, `
		SELECT id, job_id, latitude, longitude, recorded_at
		FROM job_breadcrumbs WHERE job_id = $1 ORDER BY recorded_at`, id); err != nil {
		return nil, fmt.Errorf("job repository: get breadcrumbs %w", err)
	}

	if err := r.db.SelectContext(ctx, &job.Service.MediaIDs, `
		SELECT media_id FROM job_media WHERE job_id = $1 ORDER BY media_id`, id); err != nil {
		return nil, fmt.Errorf("job repository: get media %w", err)
	}
	return job, nil
}

// ListByStatus возвращает заявки в заданном статусе, старые первыми.
func (r *JobRepository) ListByStatus(ctx context.Context, status string) ([]*models.Job, error) {
	var rows []jobRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at`, status)
	if err != nil {
		return nil, fmt.Errorf("job repository: list by status %w", err)
	}
	jobs := make([]*models.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toModel())
	}
	return jobs, nil
}

// ListByClient возвращает заявки клиента, новые первыми.
func (r *JobRepository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	var rows []jobRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+jobColumns+` FROM jobs WHERE client_id = $1 ORDER BY created_at DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("job repository: list by client %w", err)
	}
	jobs := make([]*models.Job, 0, len(rows))
	for i := range rows {
		jobs = append(jobs, rows[i].toModel())
	}
	return jobs, nil
}

// SubmitBid в одной транзакции создаёт предложение и переводит заявку из
// searching в pending_acceptance. Первая успешная ставка двигает статус,
// последующие ставки на ту же заявку сохраняются как офферы без смены
// статуса — конкурирующие ставки не отклоняются.
func (r *JobRepository) SubmitBid(ctx context.Context, offer *models.JobOffer) (*models.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, offer.JobID)
	if err != nil {
		return nil, err
	}
	if row.Status != models.JobStatusSearching && row.Status != models.JobStatusPendingAcceptance {
		return nil, apperror.New(apperror.ErrCodeConflict, "заявка больше не принимает предложения")
	}

	err = tx.GetContext(ctx, offer, `
		INSERT INTO job_offers (job_id, provider_id, price, estimated_arrival_minutes, message, status, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, job_id, provider_id, price, estimated_arrival_minutes, message, status, created_at, expires_at`,
		offer.JobID, offer.ProviderID, offer.Price, offer.EstimatedArrival, offer.Message,
		models.OfferStatusPending, offer.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, apperror.New(apperror.ErrCodeConflict, "мастер уже оставил предложение на эту заявку")
		}
		return nil, fmt.Errorf("job repository: submit bid %w", err)
	}

	if row.Status == models.JobStatusSearching {
		err = tx.GetContext(ctx, row, `
			UPDATE jobs SET status = $2, updated_at = NOW() WHERE id = $1
			RETURNING `+jobColumns, offer.JobID, models.JobStatusPendingAcceptance)
		if err != nil {
			return nil, fmt.Errorf("job repository: submit bid flip status %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// AcceptBid атомарно принимает предложение: оффер становится accepted,
// остальные офферы заявки — declined, заявка переходит в accepted со
// снимком мастера и согласованной ценой.
func (r *JobRepository) AcceptBid(ctx context.Context, jobID, offerID uuid.UUID) (*models.Job, *models.JobOffer, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, nil, err
	}
	if row.Status != models.JobStatusPendingAcceptance {
		return nil, nil, apperror.ErrInvalidTransition
	}

	var offer models.JobOffer
	err = tx.GetContext(ctx, &offer, `
		SELECT id, job_id, provider_id, price, estimated_arrival_minutes, message, status, created_at, expires_at
		FROM job_offers WHERE id = $1 AND job_id = $2 FOR UPDATE`, offerID, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperror.ErrOfferNotFound
		}
		return nil, nil, fmt.Errorf("job repository: accept bid get offer %w", err)
	}
	if offer.Status != models.OfferStatusPending {
		return nil, nil, apperror.ErrOfferNotPending
	}
	// Просроченный pending-оффер принять нельзя: истечение ленивое и
	// проверяется в момент принятия.
	if offer.IsExpired(time.Now()) {
		return nil, nil, apperror.ErrOfferExpired
	}

	var provider models.Provider
	err = tx.GetContext(ctx, &provider, `
		SELECT id, name, phone, paypal_email, rating, jobs_done, avatar_url, is_active, created_at
		FROM providers WHERE id = $1`, offer.ProviderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperror.ErrProviderNotFound
		}
		return nil, nil, fmt.Errorf("job repository: accept bid get provider %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE job_offers SET status = $2 WHERE id = $1`, offerID, models.OfferStatusAccepted); err != nil {
		return nil, nil, fmt.Errorf("job repository: accept bid update offer %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE job_offers SET status = $3 WHERE job_id = $1 AND id <> $2 AND status = $4`,
		jobID, offerID, models.OfferStatusDeclined, models.OfferStatusPending); err != nil {
		return nil, nil, fmt.Errorf("job repository: accept bid decline siblings %w", err)
	}

	snapshot := provider.Snapshot()
	err = tx.GetContext(ctx, row, `
		UPDATE jobs SET
			status = $2, provider_id = $3, provider_name = $4, provider_phone = $5,
			provider_rating = $6, provider_jobs_done = $7, provider_avatar_url = $8,
			final_price = $9, accepted_at = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+jobColumns,
		jobID, models.JobStatusAccepted, provider.ID, snapshot.Name, snapshot.Phone,
		snapshot.Rating, snapshot.JobsDone, snapshot.AvatarURL, offer.Price)
	if err != nil {
		return nil, nil, fmt.Errorf("job repository: accept bid update job %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	offer.Status = models.OfferStatusAccepted
	offer.Provider = &snapshot
	return row.toModel(), &offer, nil
}

// UpdateStatus переводит заявку строго на следующий статус потока и
// проставляет соответствующий timestamp ровно один раз.
func (r *JobRepository) UpdateStatus(ctx context.Context, jobID uuid.UUID, next string) (*models.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalJobStatus(row.Status) {
		return nil, apperror.ErrJobTerminal
	}
	if models.NextJobStatus(row.Status) != next {
		return nil, apperror.ErrInvalidTransition
	}

	stampColumn := ""
	switch next {
	case models.JobStatusArrived:
		stampColumn = ", arrived_at = NOW()"
	case models.JobStatusInProgress:
		stampColumn = ", started_at = NOW()"
	case models.JobStatusCompleted:
		stampColumn = ", completed_at = NOW()"
	}

	err = tx.GetContext(ctx, row, `
		UPDATE jobs SET status = $2, updated_at = NOW()`+stampColumn+`
		WHERE id = $1
		RETURNING `+jobColumns, jobID, next)
	if err != nil {
		return nil, fmt.Errorf("job repository: update status %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Cancel отменяет заявку из любого нетерминального статуса и переводит
// все ещё pending офферы заявки в expired.
func (r *JobRepository) Cancel(ctx context.Context, jobID uuid.UUID, reason, actor string) (*models.Job, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalJobStatus(row.Status) {
		return nil, apperror.ErrJobTerminal
	}

	err = tx.GetContext(ctx, row, `
		UPDATE jobs SET status = $2, cancelled_at = NOW(), cancellation_reason = $3,
			cancelled_by = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING `+jobColumns, jobID, models.JobStatusCancelled, reason, actor)
	if err != nil {
		return nil, fmt.Errorf("job repository: cancel %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE job_offers SET status = $2 WHERE job_id = $1 AND status = $3`,
		jobID, models.OfferStatusExpired, models.OfferStatusPending); err != nil {
		return nil, fmt.Errorf("job repository: cancel expire offers %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// AppendBreadcrumb пишет точку трека; допускается только в «живых» статусах.
func (r *JobRepository) AppendBreadcrumb(ctx context.Context, jobID uuid.UUID, lat, lng float64) (*models.Breadcrumb, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return nil, err
	}
	if _, live := models.LiveTrackingStatuses[row.Status]; !live {
		return nil, apperror.New(apperror.ErrCodeConflict, "трек пишется только во время выполнения заявки")
	}

	var crumb models.Breadcrumb
	err = tx.GetContext(ctx, &crumb, `
		INSERT INTO job_breadcrumbs (job_id, latitude, longitude)
		VALUES ($1, $2, $3)
		RETURNING id, job_id, latitude, longitude, recorded_at`, jobID, lat, lng)
	if err != nil {
		return nil, fmt.Errorf("job repository: append breadcrumb %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &crumb, nil
}

// AttachMedia привязывает загруженный файл к заявке. Терминальные
// заявки фотографии не принимают.
func (r *JobRepository) AttachMedia(ctx context.Context, jobID, mediaID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	row, err := lockJob(ctx, tx, jobID)
	if err != nil {
		return err
	}
	if models.IsTerminalJobStatus(row.Status) {
		return apperror.ErrJobTerminal
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_media (job_id, media_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		jobID, mediaID); err != nil {
		return fmt.Errorf("job repository: attach media %w", err)
	}
	return tx.Commit()
}

// ListOffers возвращает предложения по заявке, новые первыми.
func (r *JobRepository) ListOffers(ctx context.Context, jobID uuid.UUID) ([]models.JobOffer, error) {
	var offers []models.JobOffer
	err := r.db.SelectContext(ctx, &offers, `
		SELECT id, job_id, provider_id, price, estimated_arrival_minutes, message, status, created_at, expires_at
		FROM job_offers WHERE job_id = $1 ORDER BY created_at DESC`, jobID)
	if err != nil {
		return nil, fmt.Errorf("job repository: list offers %w", err)
	}
	return offers, nil
}

// lockJob блокирует строку заявки FOR UPDATE на время транзакции.
func lockJob(ctx context.Context, tx *sqlx.Tx, jobID uuid.UUID) (*jobRow, error) {
	var row jobRow
	err := tx.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE id = $1 FOR UPDATE`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrJobNotFound
		}
		return nil, fmt.Errorf("job repository: lock job %w", err)
	}
	return &row, nil
}
