package payment

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"templeseva/internal/domain"
	"templeseva/internal/gateway"
	"templeseva/internal/pkg/response"
	"templeseva/internal/pkg/validator"
)

type Handler struct {
	service *Service
	webhook *WebhookProcessor
	hub     *StatusHub
	loggerf func(format string, args ...interface{})
}

func NewHandler(service *Service, webhook *WebhookProcessor, hub *StatusHub, loggerf func(format string, args ...interface{})) *Handler {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &Handler{service: service, webhook: webhook, hub: hub, loggerf: loggerf}
}

func (h *Handler) RegisterProtectedRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/checkout", h.BeginCheckout)
	rg.POST("/payments/:id/cancel", h.CancelCheckout)
	rg.GET("/payments/:id", h.Status)
	rg.GET("/payments/:id/events", h.Events)
}

func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/payments/callback", h.Callback)
	rg.POST("/payments/webhook", h.Webhook)
	rg.GET("/payments/:id/ws", h.StatusWebSocket)
}

// BeginCheckout godoc
// @Summary      Begin a payment checkout
// @Description  Creates a local payment record and a gateway order for the client-side checkout UI
// @Tags         Payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        body body BeginCheckoutRequest true "Checkout payload"
// @Success      200 {object} BeginCheckoutResponse
// @Failure      400 {object} ErrorResponse
// @Failure      422 {object} ErrorResponse
// @Failure      502 {object} ErrorResponse
// @Router       /payments/checkout [post]
func (h *Handler) BeginCheckout(c *gin.Context) {
	var req BeginCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	if fields := validator.Validate(req); fields != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "INVALID_REQUEST", "validation failed", fields)
		return
	}

	resp, err := h.service.BeginCheckout(c.Request.Context(), req)
	if err != nil {
		h.loggerf("level=error msg=checkout failed purpose=%s subject_ref=%s err=%v", req.Purpose, req.SubjectRef, err)
		switch {
		case errors.Is(err, ErrInvalidRequest):
			response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		case errors.Is(err, gateway.ErrRejected):
			response.Error(c, http.StatusUnprocessableEntity, "GATEWAY_REJECTED", "the payment gateway rejected the order")
		case errors.Is(err, gateway.ErrUnavailable):
			response.Error(c, http.StatusBadGateway, "GATEWAY_UNAVAILABLE", "the payment gateway is unavailable, try again")
		default:
			response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		}
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// CancelCheckout godoc
// @Summary      Cancel a checkout before payment
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payment record ID"
// @Success      200 {object} StatusResponse
// @Failure      404 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /payments/{id}/cancel [post]
func (h *Handler) CancelCheckout(c *gin.Context) {
	id := c.Param("id")
	err := h.service.CancelCheckout(c.Request.Context(), id)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"record_id": id, "status": string(domain.PaymentStatusCancelled)})
	case errors.Is(err, gorm.ErrRecordNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", "payment record not found")
	case errors.Is(err, ErrNotCancellable):
		response.Error(c, http.StatusConflict, "NOT_CANCELLABLE", err.Error())
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// Status godoc
// @Summary      Current payment record state
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payment record ID"
// @Success      200 {object} StatusResponse
// @Failure      404 {object} ErrorResponse
// @Router       /payments/{id} [get]
func (h *Handler) Status(c *gin.Context) {
	resp, err := h.service.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "payment record not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// Events godoc
// @Summary      Raw gateway notification log for a payment record
// @Tags         Payments
// @Security     BearerAuth
// @Produce      json
// @Param        id path string true "Payment record ID"
// @Success      200 {array} domain.GatewayEvent
// @Failure      404 {object} ErrorResponse
// @Router       /payments/{id}/events [get]
func (h *Handler) Events(c *gin.Context) {
	events, err := h.service.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "payment record not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	response.Success(c, http.StatusOK, events)
}

// Callback godoc
// @Summary      Synchronous gateway completion callback
// @Description  Verifies the order|payment signature and applies the captured transition
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        body body CallbackRequest true "Callback payload"
// @Success      200 {object} StatusResponse
// @Failure      400 {object} ErrorResponse
// @Failure      401 {object} ErrorResponse
// @Router       /payments/callback [post]
func (h *Handler) Callback(c *gin.Context) {
	var req CallbackRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "malformed callback")
		return
	}

	err := h.service.HandleCallback(c.Request.Context(), req)
	switch {
	case err == nil:
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	case errors.Is(err, ErrInvalidSignature), errors.Is(err, ErrUnknownOrder),
		errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrPaymentRefConflict):
		// Generic rejection; no diagnostic detail for verification failures.
		response.Error(c, http.StatusUnauthorized, "REJECTED", "callback rejected")
	default:
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
}

// Webhook godoc
// @Summary      Asynchronous gateway webhook
// @Description  Verifies the body signature and applies an idempotent state transition
// @Tags         Payments
// @Accept       json
// @Produce      json
// @Param        X-Gateway-Signature header string true "HMAC-SHA256 over the raw body"
// @Success      200 {object} StatusResponse
// @Failure      401 {object} ErrorResponse
// @Router       /payments/webhook [post]
func (h *Handler) Webhook(c *gin.Context) {
	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "unreadable body")
		return
	}

	outcome, err := h.webhook.HandleNotification(c.Request.Context(), rawBody, c.GetHeader("X-Gateway-Signature"))
	switch {
	case errors.Is(err, ErrInvalidSignature):
		response.Error(c, http.StatusUnauthorized, "REJECTED", "webhook rejected")
	case errors.Is(err, domain.ErrAmountMismatch), errors.Is(err, domain.ErrPaymentRefConflict):
		// Flagged for review server-side; the gateway gets no oracle.
		response.Error(c, http.StatusUnauthorized, "REJECTED", "webhook rejected")
	case err != nil:
		// Transient processing failure: let the gateway retry.
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
	default:
		// Applied, duplicate and unknown-order outcomes are all final;
		// acknowledge so the gateway stops redelivering.
		response.Success(c, http.StatusOK, gin.H{"outcome": string(outcome)})
	}
}

// StatusWebSocket godoc
// @Summary      Live payment status stream
// @Description  Pushes status transitions for one payment record over a websocket
// @Tags         Payments
// @Param        id path string true "Payment record ID"
// @Router       /payments/{id}/ws [get]
func (h *Handler) StatusWebSocket(c *gin.Context) {
	id := c.Param("id")
	rec, err := h.service.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.Error(c, http.StatusNotFound, "NOT_FOUND", "payment record not found")
			return
		}
		response.Error(c, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	if err := h.hub.Serve(c.Writer, c.Request, id, domain.PaymentStatus(rec.Status)); err != nil {
		h.loggerf("level=error msg=websocket upgrade failed record_id=%s err=%v", id, err)
	}
}
