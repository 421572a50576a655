package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/homemaster-backend/internal/http/handlers/common"
	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/pkg/apperror"
	"github.com/ignatzorin/homemaster-backend/internal/scheduler"
	"github.com/ignatzorin/homemaster-backend/internal/service"
)

// AdminHandler операционная панель: вход, ручные refund/payout,
// просмотр леджера и сверка с платёжным шлюзом.
type AdminHandler struct {
	settlement   *service.SettlementService
	tokens       *service.TokenManager
	sweeper      *scheduler.PayoutSweeper
	passwordHash string
}

func NewAdminHandler(settlement *service.SettlementService, tokens *service.TokenManager, sweeper *scheduler.PayoutSweeper, passwordHash string) *AdminHandler {
	return &AdminHandler{
		settlement:   settlement,
		tokens:       tokens,
		sweeper:      sweeper,
		passwordHash: passwordHash,
	}
}

// Login POST /admin/login
func (h *AdminHandler) Login(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if h.passwordHash == "" {
		common.RespondUnauthorized(c, "вход администратора не настроен")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(h.passwordHash), []byte(req.Password)); err != nil {
		logger.Log.Warn("Неудачная попытка входа администратора")
		common.RespondUnauthorized(c, "неверный пароль")
		return
	}

	token, expiresAt, err := h.tokens.Generate("admin")
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token, "expires_at": expiresAt})
}

// ListTransactions GET /admin/transactions
func (h *AdminHandler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	transactions, err := h.settlement.ListTransactions(c.Request.Context(), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}

// GetTransaction GET /admin/transactions/:transactionId
func (h *AdminHandler) GetTransaction(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "transactionId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	transaction, err := h.settlement.GetTransaction(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

// Refund POST /admin/refund/:transactionId
func (h *AdminHandler) Refund(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "transactionId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Amount *float64 `json:"amount"`
		Reason string   `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if req.Reason == "" {
		req.Reason = "возврат по решению администратора"
	}

	transaction, err := h.settlement.Refund(c.Request.Context(), id, req.Amount, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, transaction)
}

// Payout POST /admin/payout/:transactionId — ручная выплата. В отличие
// от планировщика допускает повтор после PAYOUT_FAILED.
func (h *AdminHandler) Payout(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "transactionId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	transaction, err := h.settlement.Payout(c.Request.Context(), id, true)
	if err != nil {
		if apperror.IsNotFound(err) {
			c.Error(err)
			return
		}
		// Неудачная ручная выплата отвечает 400 с текстом ошибки расчётов.
		common.RespondBadRequest(c, err.Error())
		return
	}
	c.JSON(http.StatusOK, transaction)
}

// GetPaypalOrder GET /admin/transactions/:transactionId/paypal-order
func (h *AdminHandler) GetPaypalOrder(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "transactionId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	raw, err := h.settlement.GatewayOrder(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// GetPayoutStatus GET /admin/transactions/:transactionId/payout-status
func (h *AdminHandler) GetPayoutStatus(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "transactionId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	raw, err := h.settlement.GatewayPayoutStatus(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

// RunPayoutSweep POST /admin/payouts/sweep — ручной запуск прохода
// выплат, минуя расписание.
func (h *AdminHandler) RunPayoutSweep(c *gin.Context) {
	report := h.sweeper.RunOnce(c.Request.Context())
	status := http.StatusOK
	if report.ListError != nil {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{
		"eligible":  report.Eligible,
		"attempted": report.Attempted,
		"failed":    report.Failed,
		"skipped":   report.Skipped,
	})
}
