package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/homemaster-backend/internal/catalog"
	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/matching"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
)

// JobRepository описывает взаимодействие сервиса с хранилищем заявок.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListByStatus(ctx context.Context, status string) ([]*models.Job, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error)
	SubmitBid(ctx context.Context, offer *models.JobOffer) (*models.Job, error)
	AcceptBid(ctx context.Context, jobID, offerID uuid.UUID) (*models.Job, *models.JobOffer, error)
	UpdateStatus(ctx context.Context, jobID uuid.UUID, next string) (*models.Job, error)
	Cancel(ctx context.Context, jobID uuid.UUID, reason, actor string) (*models.Job, error)
	AppendBreadcrumb(ctx context.Context, jobID uuid.UUID, lat, lng float64) (*models.Breadcrumb, error)
	ListOffers(ctx context.Context, jobID uuid.UUID) ([]models.JobOffer, error)
}

// ProviderReader описывает доступ к реестру мастеров.
type ProviderReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Provider, error)
	ListCapabilities(ctx context.Context, providerID uuid.UUID) ([]models.Capability, error)
}

// JobNotifier интерфейс для рассылки уведомлений об изменениях заявок.
type JobNotifier interface {
	BroadcastJobUpdate(event string, job *models.Job)
}

// JobService владеет жизненным циклом заявок: единственная точка записи
// статусов, ставок и отмен. Мутации одной заявки сериализуются замком по
// её id поверх транзакционных записей репозитория.
type JobService struct {
	repo      JobRepository
	providers ProviderReader
	hub       JobNotifier
	currency  string
	offerTTL  time.Duration

	mu       sync.Mutex
	jobLocks map[uuid.UUID]*sync.Mutex
}

// NewJobService создаёт сервис заявок.
func NewJobService(repo JobRepository, providers ProviderReader, currency string, offerTTL time.Duration) *JobService {
	return &JobService{
		repo:      repo,
		providers: providers,
		currency:  currency,
		offerTTL:  offerTTL,
		jobLocks:  make(map[uuid.UUID]*sync.Mutex),
	}
}

// SetHub устанавливает hub для отправки уведомлений об изменениях.
func (s *JobService) SetHub(hub JobNotifier) {
	s.hub = hub
}

// lockFor возвращает замок конкретной заявки, создавая его при первом
// обращении. Замки не освобождаются: заявок за время жизни процесса
// конечное число, а терминальные мутации редки.
func (s *JobService) lockFor(jobID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.jobLocks[jobID]
	if !ok {
		l = &sync.Mutex{}
		s.jobLocks[jobID] = l
	}
	return l
}

// CreateJobInput описывает входные данные бронирования.
type CreateJobInput struct {
	ClientID      uuid.UUID
	Client        models.ClientSnapshot
	Service       models.ServiceData
	Location      models.Location
	PriceEstimate *float64
}

// CreateJob создаёт заявку в статусе searching с четырёхзначным кодом
// подтверждения присутствия мастера.
func (s *JobService) CreateJob(ctx context.Context, input CreateJobInput) (*models.Job, error) {
	if !catalog.KnownCategory(input.Service.Category) {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная категория услуг")
	}
	if input.Service.Complexity == "" {
		input.Service.Complexity = models.ComplexityStandard
	}
	if _, ok := models.ValidComplexities[input.Service.Complexity]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный уровень сложности")
	}
	if input.Service.Urgency == "" {
		input.Service.Urgency = models.UrgencyPlanned
	}
	if _, ok := models.ValidUrgencies[input.Service.Urgency]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестная срочность")
	}

	code, err := securityCode()
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		ClientID:      input.ClientID,
		Client:        input.Client,
		Service:       input.Service,
		Location:      input.Location,
		PriceEstimate: input.PriceEstimate,
		SecurityCode:  code,
		Currency:      s.currency,
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, err
	}

	s.notify("job_created", job)
	return job, nil
}

// SubmitBid создаёт предложение мастера на заявку. Законно только пока
// заявка ищет исполнителя; первая успешная ставка переводит её в
// pending_acceptance, гонящиеся ставки сохраняются как офферы.
func (s *JobService) SubmitBid(ctx context.Context, jobID, providerID uuid.UUID, price float64, etaMinutes int, message *string) (*models.JobOffer, error) {
	if price <= 0 {
		return nil, apperror.New(apperror.ErrCodeValidation, "цена должна быть положительной")
	}
	provider, err := s.providers.GetByID(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if !provider.IsActive {
		return nil, apperror.New(apperror.ErrCodeConflict, "мастер деактивирован")
	}

	offer := &models.JobOffer{
		JobID:            jobID,
		ProviderID:       providerID,
		Price:            price,
		EstimatedArrival: etaMinutes,
		Message:          message,
		ExpiresAt:        time.Now().Add(s.offerTTL),
	}

	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.repo.SubmitBid(ctx, offer)
	if err != nil {
		return nil, err
	}
	snapshot := provider.Snapshot()
	offer.Provider = &snapshot

	s.notify("offer_submitted", job)
	return offer, nil
}

// AcceptBid принимает предложение: ровно один оффер становится accepted,
// остальные — declined, заявка получает мастера и согласованную цену.
func (s *JobService) AcceptBid(ctx context.Context, jobID, offerID uuid.UUID) (*models.Job, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, _, err := s.repo.AcceptBid(ctx, jobID, offerID)
	if err != nil {
		return nil, err
	}

	s.notify("offer_accepted", job)
	return job, nil
}

// UpdateStatus продвигает заявку строго на следующий статус потока.
// Пропуск промежуточного статуса отклоняется с ошибкой недопустимого
// перехода; cancelled достижим только через Cancel.
func (s *JobService) UpdateStatus(ctx context.Context, jobID uuid.UUID, next, actor string) (*models.Job, error) {
	if _, ok := models.ValidJobStatuses[next]; !ok {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный статус")
	}
	if next == models.JobStatusCancelled {
		return nil, apperror.New(apperror.ErrCodeValidation, "отмена выполняется отдельной операцией")
	}

	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.repo.UpdateStatus(ctx, jobID, next)
	if err != nil {
		return nil, err
	}

	if logger.Log != nil {
		logger.Log.WithField("job_id", jobID).WithField("status", next).
			WithField("actor", actor).Info("Job status advanced")
	}
	s.notify("status_changed", job)
	return job, nil
}

// Cancel отменяет заявку из любого нетерминального статуса; повторная
// отмена возвращает конфликт, а не повторный штамп.
func (s *JobService) Cancel(ctx context.Context, jobID uuid.UUID, reason, actor string) (*models.Job, error) {
	if actor != models.ActorClient && actor != models.ActorProvider && actor != models.ActorSystem {
		return nil, apperror.New(apperror.ErrCodeValidation, "неизвестный инициатор отмены")
	}

	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	job, err := s.repo.Cancel(ctx, jobID, reason, actor)
	if err != nil {
		return nil, err
	}

	s.notify("job_cancelled", job)
	return job, nil
}

// AppendBreadcrumb добавляет точку трека мастера к живой заявке.
func (s *JobService) AppendBreadcrumb(ctx context.Context, jobID uuid.UUID, lat, lng float64) (*models.Breadcrumb, error) {
	lock := s.lockFor(jobID)
	lock.Lock()
	defer lock.Unlock()

	return s.repo.AppendBreadcrumb(ctx, jobID, lat, lng)
}

// GetJob возвращает заявку по id.
func (s *JobService) GetJob(ctx context.Context, jobID uuid.UUID) (*models.Job, error) {
	return s.repo.GetByID(ctx, jobID)
}

// ListClientJobs возвращает заявки клиента.
func (s *JobService) ListClientJobs(ctx context.Context, clientID uuid.UUID) ([]*models.Job, error) {
	return s.repo.ListByClient(ctx, clientID)
}

// ListOffers возвращает предложения по заявке с ленивым пересчётом
// просроченных статусов.
func (s *JobService) ListOffers(ctx context.Context, jobID uuid.UUID) ([]models.JobOffer, error) {
	offers, err := s.repo.ListOffers(ctx, jobID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	for i := range offers {
		offers[i].Status = offers[i].EffectiveStatus(now)
	}
	return offers, nil
}

// FeedForProvider возвращает ленту заявок в поиске, отранжированную
// матчингом под навыки мастера.
func (s *JobService) FeedForProvider(ctx context.Context, providerID uuid.UUID) ([]matching.RankedJob, error) {
	caps, err := s.providers.ListCapabilities(ctx, providerID)
	if err != nil {
		return nil, err
	}
	jobs, err := s.repo.ListByStatus(ctx, models.JobStatusSearching)
	if err != nil {
		return nil, err
	}
	return matching.RankJobsForProvider(jobs, caps), nil
}

// ScoreForProvider диагностический скоринг требования против мастера.
func (s *JobService) ScoreForProvider(ctx context.Context, req models.ServiceRequirement, providerID uuid.UUID) (matching.MatchResult, error) {
	caps, err := s.providers.ListCapabilities(ctx, providerID)
	if err != nil {
		return matching.MatchResult{}, err
	}
	return matching.CalculateMatchScore(req, caps), nil
}

func (s *JobService) notify(event string, job *models.Job) {
	if s.hub != nil {
		s.hub.BroadcastJobUpdate(event, job)
	}
}

// securityCode генерирует четырёхзначный код подтверждения присутствия.
func securityCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", fmt.Errorf("job service: security code %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
