package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/homemaster-backend/internal/http/handlers/common"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/service"
)

type JobHandler struct {
	jobs *service.JobService
}

func NewJobHandler(jobs *service.JobService) *JobHandler {
	return &JobHandler{jobs: jobs}
}

// CreateJob POST /api/jobs
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req struct {
		ClientID    string   `json:"client_id" binding:"required"`
		ClientName  string   `json:"client_name" binding:"required"`
		ClientPhone string   `json:"client_phone" binding:"required"`
		Category    string   `json:"category" binding:"required"`
		SubProblem  *string  `json:"sub_problem"`
		Complexity  string   `json:"complexity"`
		Description string   `json:"description"`
		Urgency     string   `json:"urgency"`
		MediaIDs    []string `json:"media_ids"`
		Duration    *int     `json:"estimated_duration"`
		Latitude    float64  `json:"latitude"`
		Longitude   float64  `json:"longitude"`
		Address     string   `json:"address" binding:"required"`
		Floor       *string  `json:"floor"`
		Apartment   *string  `json:"apartment"`
		Notes       *string  `json:"notes"`
		Estimate    *float64 `json:"price_estimate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	clientID, err := uuid.Parse(req.ClientID)
	if err != nil {
		common.RespondBadRequest(c, "неверный client_id")
		return
	}
	mediaIDs := make([]uuid.UUID, 0, len(req.MediaIDs))
	for _, raw := range req.MediaIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.RespondBadRequest(c, "неверный media_id")
			return
		}
		mediaIDs = append(mediaIDs, id)
	}

	job, err := h.jobs.CreateJob(c.Request.Context(), service.CreateJobInput{
		ClientID: clientID,
		Client:   models.ClientSnapshot{Name: req.ClientName, Phone: req.ClientPhone},
		Service: models.ServiceData{
			Category:          req.Category,
			SubProblem:        req.SubProblem,
			Complexity:        req.Complexity,
			Description:       req.Description,
			Urgency:           req.Urgency,
			MediaIDs:          mediaIDs,
			EstimatedDuration: req.Duration,
		},
		Location: models.Location{
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Address:   req.Address,
			Floor:     req.Floor,
			Apartment: req.Apartment,
			Notes:     req.Notes,
		},
		PriceEstimate: req.Estimate,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, job)
}

// GetJob GET /api/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.GetJob(c.Request.Context(), jobID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListClientJobs GET /api/clients/:id/jobs
func (h *JobHandler) ListClientJobs(c *gin.Context) {
	clientID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	jobs, err := h.jobs.ListClientJobs(c.Request.Context(), clientID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs})
}

// SubmitBid POST /api/jobs/:id/bids
func (h *JobHandler) SubmitBid(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		ProviderID string  `json:"provider_id" binding:"required"`
		Price      float64 `json:"price" binding:"required,gt=0"`
		ETAMinutes int     `json:"estimated_arrival_minutes"`
		Message    *string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	providerID, err := uuid.Parse(req.ProviderID)
	if err != nil {
		common.RespondBadRequest(c, "неверный provider_id")
		return
	}

	offer, err := h.jobs.SubmitBid(c.Request.Context(), jobID, providerID, req.Price, req.ETAMinutes, req.Message)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, offer)
}

// ListOffers GET /api/jobs/:id/offers
func (h *JobHandler) ListOffers(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	offers, err := h.jobs.ListOffers(c.Request.Context(), jobID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"offers": offers})
}

// AcceptOffer POST /api/jobs/:id/offers/:offerId/accept
func (h *JobHandler) AcceptOffer(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	offerID, err := common.ParseUUIDParam(c, "offerId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.AcceptBid(c.Request.Context(), jobID, offerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// UpdateStatus PATCH /api/jobs/:id/status
func (h *JobHandler) UpdateStatus(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Actor  string `json:"actor"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if req.Actor == "" {
		req.Actor = models.ActorSystem
	}

	job, err := h.jobs.UpdateStatus(c.Request.Context(), jobID, req.Status, req.Actor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel POST /api/jobs/:id/cancel
func (h *JobHandler) Cancel(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
		Actor  string `json:"actor" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	job, err := h.jobs.Cancel(c.Request.Context(), jobID, req.Reason, req.Actor)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// AppendBreadcrumb POST /api/jobs/:id/breadcrumbs
func (h *JobHandler) AppendBreadcrumb(c *gin.Context) {
	jobID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	// Координаты через указатели: 0.0 — допустимое значение.
	var req struct {
		Latitude  *float64 `json:"latitude" binding:"required"`
		Longitude *float64 `json:"longitude" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	crumb, err := h.jobs.AppendBreadcrumb(c.Request.Context(), jobID, *req.Latitude, *req.Longitude)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, crumb)
}
