//go:build integration

package repository

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/homemaster-backend/internal/db"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

// Интеграционные тесты гоняются против реального Postgres:
//
//	TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/repository/
//
// Каждый тест работает со своими строками, чистка базы не требуется.
func testDB(t *testing.T) *sqlx.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан, пропускаем интеграционные тесты")
	}

	ctx := context.Background()
	conn, err := db.NewPostgres(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations(ctx, conn, "../../migrations"))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func seedProvider(t *testing.T, repo *ProviderRepository, name string) *models.Provider {
	t.Helper()

	provider := &models.Provider{
		Name:        name,
		Phone:       "+4915112345678",
		PaypalEmail: fmt.Sprintf("%s@example.com", uuid.New()),
		IsActive:    true,
		Capabilities: []models.Capability{
			{ID: "leak_repair", Category: "plumbing", Proficiency: models.ProficiencyExpert},
		},
	}
	require.NoError(t, repo.Create(context.Background(), provider))
	return provider
}

func seedJob(t *testing.T, repo *JobRepository) *models.Job {
	t.Helper()

	job := &models.Job{
		ClientID:     uuid.New(),
		SecurityCode: "4821",
		Currency:     "EUR",
	}
	job.Client.Name = "Анна Петрова"
	job.Client.Phone = "+79161234567"
	job.Service.Category = "plumbing"
	job.Service.Complexity = models.ComplexityStandard
	job.Service.Description = "Течёт труба под раковиной"
	job.Service.Urgency = models.UrgencyPlanned
	job.Location.Address = "ул. Ленина, д. 5"
	require.NoError(t, repo.Create(context.Background(), job))
	return job
}

func seedBid(t *testing.T, repo *JobRepository, jobID, providerID uuid.UUID, price float64) *models.JobOffer {
	t.Helper()

	offer := &models.JobOffer{
		JobID:            jobID,
		ProviderID:       providerID,
		Price:            price,
		EstimatedArrival: 30,
		ExpiresAt:        time.Now().Add(30 * time.Minute),
	}
	_, err := repo.SubmitBid(context.Background(), offer)
	require.NoError(t, err)
	return offer
}

func offerStatuses(t *testing.T, repo *JobRepository, jobID uuid.UUID) map[uuid.UUID]string {
	t.Helper()

	offers, err := repo.ListOffers(context.Background(), jobID)
	require.NoError(t, err)
	statuses := make(map[uuid.UUID]string, len(offers))
	for _, o := range offers {
		statuses[o.ID] = o.Status
	}
	return statuses
}

func TestJobRepository_AcceptBid_DeclinesSiblings(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	jobs := NewJobRepository(conn)
	providers := NewProviderRepository(conn)

	job := seedJob(t, jobs)
	first := seedProvider(t, providers, "Иван Сантехников")
	second := seedProvider(t, providers, "Пётр Трубников")
	winning := seedBid(t, jobs, job.ID, first.ID, 350)
	losing := seedBid(t, jobs, job.ID, second.ID, 300)

	updated, accepted, err := jobs.AcceptBid(ctx, job.ID, winning.ID)
	require.NoError(t, err)

	assert.Equal(t, models.JobStatusAccepted, updated.Status)
	require.NotNil(t, updated.AcceptedAt)
	require.NotNil(t, updated.ProviderID)
	assert.Equal(t, first.ID, *updated.ProviderID)
	require.NotNil(t, updated.FinalPrice)
	assert.Equal(t, 350.0, *updated.FinalPrice)
	assert.Equal(t, models.OfferStatusAccepted, accepted.Status)

	statuses := offerStatuses(t, jobs, job.ID)
	assert.Equal(t, models.OfferStatusAccepted, statuses[winning.ID])
	assert.Equal(t, models.OfferStatusDeclined, statuses[losing.ID])

	acceptedCount := 0
	for _, status := range statuses {
		if status == models.OfferStatusAccepted {
			acceptedCount++
		}
	}
	assert.Equal(t, 1, acceptedCount)

	// Повторное принятие невозможно, accepted_at не перештамповывается.
	_, _, err = jobs.AcceptBid(ctx, job.ID, losing.ID)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	reread, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, reread.AcceptedAt)
	assert.True(t, updated.AcceptedAt.Equal(*reread.AcceptedAt))
}

func TestJobRepository_Cancel_ExpiresPendingOffers(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	jobs := NewJobRepository(conn)
	providers := NewProviderRepository(conn)

	job := seedJob(t, jobs)
	first := seedProvider(t, providers, "Иван Сантехников")
	second := seedProvider(t, providers, "Пётр Трубников")
	bidOne := seedBid(t, jobs, job.ID, first.ID, 350)
	bidTwo := seedBid(t, jobs, job.ID, second.ID, 300)

	cancelled, err := jobs.Cancel(ctx, job.ID, "клиент передумал", models.ActorClient)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "клиент передумал", *cancelled.CancellationReason)

	statuses := offerStatuses(t, jobs, job.ID)
	assert.Equal(t, models.OfferStatusExpired, statuses[bidOne.ID])
	assert.Equal(t, models.OfferStatusExpired, statuses[bidTwo.ID])

	// Повторная отмена — ошибка, cancelled_at не перештамповывается.
	_, err = jobs.Cancel(ctx, job.ID, "ещё раз", models.ActorClient)
	assert.ErrorIs(t, err, apperror.ErrJobTerminal)

	reread, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, reread.CancelledAt)
	assert.True(t, cancelled.CancelledAt.Equal(*reread.CancelledAt))
}

func TestJobRepository_Cancel_LeavesDecidedOffersAlone(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	jobs := NewJobRepository(conn)
	providers := NewProviderRepository(conn)

	job := seedJob(t, jobs)
	first := seedProvider(t, providers, "Иван Сантехников")
	second := seedProvider(t, providers, "Пётр Трубников")
	winning := seedBid(t, jobs, job.ID, first.ID, 350)
	losing := seedBid(t, jobs, job.ID, second.ID, 300)

	_, _, err := jobs.AcceptBid(ctx, job.ID, winning.ID)
	require.NoError(t, err)

	_, err = jobs.Cancel(ctx, job.ID, "мастер не вышел на связь", models.ActorClient)
	require.NoError(t, err)

	// В expired переводятся только pending: принятые и отклонённые
	// офферы хранят историю решения.
	statuses := offerStatuses(t, jobs, job.ID)
	assert.Equal(t, models.OfferStatusAccepted, statuses[winning.ID])
	assert.Equal(t, models.OfferStatusDeclined, statuses[losing.ID])
}

func TestJobRepository_UpdateStatus_StampsTimestampsOnce(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	jobs := NewJobRepository(conn)
	providers := NewProviderRepository(conn)

	job := seedJob(t, jobs)
	provider := seedProvider(t, providers, "Иван Сантехников")
	bid := seedBid(t, jobs, job.ID, provider.ID, 350)
	_, _, err := jobs.AcceptBid(ctx, job.ID, bid.ID)
	require.NoError(t, err)

	// Пропуск шага запрещён.
	_, err = jobs.UpdateStatus(ctx, job.ID, models.JobStatusArrived)
	assert.ErrorIs(t, err, apperror.ErrInvalidTransition)

	enRoute, err := jobs.UpdateStatus(ctx, job.ID, models.JobStatusEnRoute)
	require.NoError(t, err)
	assert.Nil(t, enRoute.ArrivedAt)

	arrived, err := jobs.UpdateStatus(ctx, job.ID, models.JobStatusArrived)
	require.NoError(t, err)
	require.NotNil(t, arrived.ArrivedAt)

	inProgress, err := jobs.UpdateStatus(ctx, job.ID, models.JobStatusInProgress)
	require.NoError(t, err)
	require.NotNil(t, inProgress.StartedAt)
	require.NotNil(t, inProgress.ArrivedAt)
	assert.True(t, arrived.ArrivedAt.Equal(*inProgress.ArrivedAt))

	_, err = jobs.UpdateStatus(ctx, job.ID, models.JobStatusPaymentPending)
	require.NoError(t, err)

	completed, err := jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)
	require.NoError(t, err)
	require.NotNil(t, completed.CompletedAt)
	assert.True(t, arrived.ArrivedAt.Equal(*completed.ArrivedAt))
	assert.True(t, inProgress.StartedAt.Equal(*completed.StartedAt))

	_, err = jobs.UpdateStatus(ctx, job.ID, models.JobStatusCompleted)
	assert.ErrorIs(t, err, apperror.ErrJobTerminal)
}

func TestJobRepository_MediaSurvivesReads(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	jobs := NewJobRepository(conn)

	createdWith := uuid.New()
	job := &models.Job{
		ClientID:     uuid.New(),
		SecurityCode: "4821",
		Currency:     "EUR",
	}
	job.Client.Name = "Анна Петрова"
	job.Client.Phone = "+79161234567"
	job.Service.Category = "plumbing"
	job.Service.Complexity = models.ComplexityStandard
	job.Service.Description = "Течёт труба под раковиной"
	job.Service.Urgency = models.UrgencyPlanned
	job.Service.MediaIDs = []uuid.UUID{createdWith}
	require.NoError(t, jobs.Create(ctx, job))

	attached := uuid.New()
	require.NoError(t, jobs.AttachMedia(ctx, job.ID, attached))
	// Повторная привязка того же файла — no-op.
	require.NoError(t, jobs.AttachMedia(ctx, job.ID, attached))

	reread, err := jobs.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{createdWith, attached}, reread.Service.MediaIDs)

	_, err = jobs.Cancel(ctx, job.ID, "клиент передумал", models.ActorClient)
	require.NoError(t, err)
	assert.ErrorIs(t, jobs.AttachMedia(ctx, job.ID, uuid.New()), apperror.ErrJobTerminal)
}

func seedTransaction(t *testing.T, repo *EscrowRepository, status string, releaseDate time.Time) *models.EscrowTransaction {
	t.Helper()

	tr := &models.EscrowTransaction{
		BookingID:       uuid.New(),
		PaypalOrderID:   fmt.Sprintf("ORDER-%s", uuid.New()),
		PaypalCaptureID: fmt.Sprintf("CAPTURE-%s", uuid.New()),
		Status:          status,
		TotalAmount:     400,
		ProPayoutAmount: 340,
		PlatformFee:     60,
		ProPaypalEmail:  "master@example.com",
		ReleaseDate:     releaseDate,
	}
	require.NoError(t, repo.Insert(context.Background(), tr))
	return tr
}

func TestEscrowRepository_ListDue_SelectsOnlyHeldAndDue(t *testing.T) {
	ctx := context.Background()
	conn := testDB(t)
	escrow := NewEscrowRepository(conn)

	now := time.Now()
	heldDue := seedTransaction(t, escrow, models.EscrowStatusHeldInEscrow, now.Add(-time.Hour))
	heldFuture := seedTransaction(t, escrow, models.EscrowStatusHeldInEscrow, now.Add(24*time.Hour))
	paidOut := seedTransaction(t, escrow, models.EscrowStatusPaidOut, now.Add(-time.Hour))
	refunded := seedTransaction(t, escrow, models.EscrowStatusRefunded, now.Add(-time.Hour))
	failed := seedTransaction(t, escrow, models.EscrowStatusPayoutFailed, now.Add(-time.Hour))

	due, err := escrow.ListDue(ctx, now)
	require.NoError(t, err)

	dueIDs := make(map[uuid.UUID]struct{}, len(due))
	for _, tr := range due {
		dueIDs[tr.ID] = struct{}{}
	}

	assert.Contains(t, dueIDs, heldDue.ID)
	assert.NotContains(t, dueIDs, heldFuture.ID)
	assert.NotContains(t, dueIDs, paidOut.ID)
	assert.NotContains(t, dueIDs, refunded.ID)
	assert.NotContains(t, dueIDs, failed.ID)
}
