package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/homemaster-backend/internal/http/handlers/common"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/repository"
	"github.com/ignatzorin/homemaster-backend/internal/service"
)

type ProviderHandler struct {
	providers *repository.ProviderRepository
	jobs      *service.JobService
}

func NewProviderHandler(providers *repository.ProviderRepository, jobs *service.JobService) *ProviderHandler {
	return &ProviderHandler{providers: providers, jobs: jobs}
}

// CreateProvider POST /api/providers
func (h *ProviderHandler) CreateProvider(c *gin.Context) {
	var req struct {
		Name         string  `json:"name" binding:"required"`
		Phone        string  `json:"phone" binding:"required"`
		PaypalEmail  string  `json:"paypal_email" binding:"required,email"`
		AvatarURL    *string `json:"avatar_url"`
		Capabilities []struct {
			ID          string `json:"id"`
			Category    string `json:"category" binding:"required"`
			Proficiency string `json:"proficiency" binding:"required"`
			IsFavorite  bool   `json:"is_favorite"`
		} `json:"capabilities"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	provider := &models.Provider{
		Name:        req.Name,
		Phone:       req.Phone,
		PaypalEmail: req.PaypalEmail,
		AvatarURL:   req.AvatarURL,
		IsActive:    true,
	}
	for _, pc := range req.Capabilities {
		if _, ok := models.ValidProficiencies[pc.Proficiency]; !ok {
			common.RespondBadRequest(c, "неверный уровень квалификации: "+pc.Proficiency)
			return
		}
		capID := pc.ID
		if capID == "" {
			capID = pc.Category
		}
		provider.Capabilities = append(provider.Capabilities, models.Capability{
			ID:          capID,
			Category:    pc.Category,
			Proficiency: pc.Proficiency,
			IsFavorite:  pc.IsFavorite,
		})
	}

	if err := h.providers.Create(c.Request.Context(), provider); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, provider)
}

// GetProvider GET /api/providers/:id
func (h *ProviderHandler) GetProvider(c *gin.Context) {
	providerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	provider, err := h.providers.GetByID(c.Request.Context(), providerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, provider)
}

// Feed GET /api/providers/:id/feed — лента заявок в поиске,
// отранжированная под навыки мастера.
func (h *ProviderHandler) Feed(c *gin.Context) {
	providerID, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	feed, err := h.jobs.FeedForProvider(c.Request.Context(), providerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": feed})
}

// Score POST /api/match/score — диагностический скоринг требования
// против мастера.
func (h *ProviderHandler) Score(c *gin.Context) {
	var req struct {
		ProviderID  string  `json:"provider_id" binding:"required"`
		Category    string  `json:"category" binding:"required"`
		SubProblem  *string `json:"sub_problem"`
		Complexity  string  `json:"complexity"`
		Urgency     string  `json:"urgency"`
		Description string  `json:"description"`
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

	result, err := h.jobs.ScoreForProvider(c.Request.Context(), models.ServiceRequirement{
		Category:    req.Category,
		SubProblem:  req.SubProblem,
		Complexity:  req.Complexity,
		Urgency:     req.Urgency,
		Description: req.Description,
	}, providerID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, result)
}
