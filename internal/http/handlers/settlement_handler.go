package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/homemaster-backend/internal/http/handlers/common"
	"github.com/ignatzorin/homemaster-backend/internal/logger"
	"github.com/ignatzorin/homemaster-backend/internal/models"
	"github.com/ignatzorin/homemaster-backend/internal/service"
	"github.com/sirupsen/logrus"
)

// SettlementHandler публичная поверхность оплаты: выдача client id,
// создание заказа и capture с постановкой средств в эскроу.
type SettlementHandler struct {
	settlement *service.SettlementService
	jobs       *service.JobService
	clientID   string
	currency   string
}

func NewSettlementHandler(settlement *service.SettlementService, jobs *service.JobService, clientID, currency string) *SettlementHandler {
	return &SettlementHandler{
		settlement: settlement,
		jobs:       jobs,
		clientID:   clientID,
		currency:   currency,
	}
}

// Setup GET /setup — параметры для инициализации платёжного SDK на клиенте.
func (h *SettlementHandler) Setup(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"client_id": h.clientID,
		"currency":  h.currency,
		"intent":    "capture",
	})
}

// CreateOrder POST /order
func (h *SettlementHandler) CreateOrder(c *gin.Context) {
	var req struct {
		Amount   float64 `json:"amount" binding:"required,gt=0"`
		Currency string  `json:"currency"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = h.currency
	}

	order, err := h.settlement.CreateOrder(c.Request.Context(), req.Amount, currency)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": order.ID, "status": order.Status})
}

// CaptureOrder POST /order/:orderID/capture — захват платежа с записью
// в леджер. После успешного capture заявка переводится из
// payment_pending в completed.
func (h *SettlementHandler) CaptureOrder(c *gin.Context) {
	orderID := c.Param("orderID")
	if orderID == "" {
		common.RespondBadRequest(c, "orderID обязателен")
		return
	}

	var req struct {
		BookingID      string  `json:"booking_id" binding:"required"`
		ProPaypalEmail string  `json:"pro_paypal_email" binding:"required,email"`
		ProAmount      float64 `json:"pro_amount" binding:"required,gt=0"`
		Amount         float64 `json:"amount" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	bookingID, err := uuid.Parse(req.BookingID)
	if err != nil {
		common.RespondBadRequest(c, "неверный booking_id")
		return
	}

	transaction, order, err := h.settlement.Capture(c.Request.Context(), service.CaptureInput{
		OrderID:        orderID,
		BookingID:      bookingID,
		ProPaypalEmail: req.ProPaypalEmail,
		ProAmount:      req.ProAmount,
		TotalAmount:    req.Amount,
	})
	if err != nil {
		c.Error(err)
		return
	}

	// Деньги уже в эскроу, откатывать нечего: неудачный перевод статуса
	// заявки только логируется.
	if _, err := h.jobs.UpdateStatus(c.Request.Context(), bookingID, models.JobStatusCompleted, models.ActorSystem); err != nil {
		logger.Log.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"order_id":   orderID,
		}).Warn("Платёж захвачен, но заявку не удалось перевести в completed")
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction":  transaction,
		"order_id":     order.ID,
		"capture_id":   order.CaptureID,
		"order_status": order.Status,
	})
}
