package handler

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/service"
)

const maxWebhookBody = 64 << 10

type PaymentHandler struct {
	svc service.PaymentService
}

func NewPaymentHandler(svc service.PaymentService) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

type PaymentIntentResponse struct {
	OrderID       uint64 `json:"orderId"`
	IntentID      string `json:"paymentIntentId"`
	ClientSecret  string `json:"clientSecret,omitempty"`
	PaymentStatus string `json:"paymentStatus"`
	Reused        bool   `json:"reused"`
}

func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	res, err := h.svc.CreateIntent(c.Request().Context(), uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, PaymentIntentResponse{
		OrderID:       res.OrderID,
		IntentID:      res.IntentID,
		ClientSecret:  res.ClientSecret,
		PaymentStatus: string(res.PaymentStatus),
		Reused:        res.Reused,
	})
}

func (h *PaymentHandler) Confirm(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	o, err := h.svc.ConfirmFromProvider(c.Request().Context(), uid, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

// Webhook is unauthenticated; the provider signature is verified by the service.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	if err := h.svc.HandleWebhook(c.Request().Context(), payload, c.Request().Header.Get("Stripe-Signature")); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"received": true})
}
