package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	svc service.OrderService
}

func NewOrderHandler(svc service.OrderService) *OrderHandler {
	return &OrderHandler{svc: svc}
}

type OrderHistoryResponse struct {
	Kind      string `json:"kind"`
	Status    string `json:"status"`
	Notes     string `json:"notes,omitempty"`
	ActorUID  string `json:"actorUid,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type OrderResponse struct {
	ID                    uint64                 `json:"id"`
	ProductID             uint64                 `json:"productId"`
	BuyerUID              string                 `json:"buyerUid"`
	FarmerUID             string                 `json:"farmerUid"`
	Quantity              int                    `json:"quantity"`
	UnitPrice             decimal.Decimal        `json:"unitPrice"`
	DeliveryCost          decimal.Decimal        `json:"deliveryCost"`
	TotalPrice            decimal.Decimal        `json:"totalPrice"`
	Status                string                 `json:"status"`
	PaymentStatus         string                 `json:"paymentStatus"`
	PaymentMethod         string                 `json:"paymentMethod,omitempty"`
	DeliveryStatus        string                 `json:"deliveryStatus"`
	DeliveryAddress       string                 `json:"deliveryAddress"`
	Notes                 string                 `json:"notes,omitempty"`
	TrackingNumber        string                 `json:"trackingNumber,omitempty"`
	Carrier               string                 `json:"carrier,omitempty"`
	CancelledBy           *string                `json:"cancelledBy,omitempty"`
	CancelReason          string                 `json:"cancelReason,omitempty"`
	PaidAt                *string                `json:"paidAt,omitempty"`
	ConfirmedAt           *string                `json:"confirmedAt,omitempty"`
	CompletedAt           *string                `json:"completedAt,omitempty"`
	CancelledAt           *string                `json:"cancelledAt,omitempty"`
	EstimatedDeliveryDate *string                `json:"estimatedDeliveryDate,omitempty"`
	ActualDeliveryDate    *string                `json:"actualDeliveryDate,omitempty"`
	History               []OrderHistoryResponse `json:"history,omitempty"`
	CreatedAt             string                 `json:"createdAt"`
	UpdatedAt             string                 `json:"updatedAt"`
}

type OrderListResponse struct {
	Orders []OrderResponse `json:"orders"`
	Total  int64           `json:"total"`
}

func toOrderResponse(o *model.Order) OrderResponse {
	var cancelledBy *string
	if o.CancelledBy != nil {
		v := string(*o.CancelledBy)
		cancelledBy = &v
	}
	resp := OrderResponse{
		ID:                    o.ID,
		ProductID:             o.ProductID,
		BuyerUID:              o.BuyerUID,
		FarmerUID:             o.FarmerUID,
		Quantity:              o.Quantity,
		UnitPrice:             o.UnitPrice,
		DeliveryCost:          o.DeliveryCost,
		TotalPrice:            o.TotalPrice,
		Status:                string(o.Status),
		PaymentStatus:         string(o.PaymentStatus),
		PaymentMethod:         o.PaymentMethod,
		DeliveryStatus:        string(o.DeliveryStatus),
		DeliveryAddress:       o.DeliveryAddress,
		Notes:                 o.Notes,
		TrackingNumber:        o.TrackingNumber,
		Carrier:               o.Carrier,
		CancelledBy:           cancelledBy,
		CancelReason:          o.CancelReason,
		PaidAt:                formatTime(o.PaidAt),
		ConfirmedAt:           formatTime(o.ConfirmedAt),
		CompletedAt:           formatTime(o.CompletedAt),
		CancelledAt:           formatTime(o.CancelledAt),
		EstimatedDeliveryDate: formatTime(o.EstimatedDeliveryDate),
		ActualDeliveryDate:    formatTime(o.ActualDeliveryDate),
		CreatedAt:             o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:             o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	for _, h := range o.StatusHistory {
		resp.History = append(resp.History, OrderHistoryResponse{
			Kind:      string(h.Kind),
			Status:    h.Status,
			Notes:     h.Notes,
			ActorUID:  h.ActorUID,
			CreatedAt: h.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

type PlaceOrderRequest struct {
	ProductID       uint64          `json:"productId"`
	Quantity        int             `json:"quantity"`
	DeliveryAddress string          `json:"deliveryAddress"`
	DeliveryCost    decimal.Decimal `json:"deliveryCost"`
	Notes           string          `json:"notes"`
}

func (h *OrderHandler) Place(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	o, err := h.svc.Place(c.Request().Context(), uid, service.PlaceOrderInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		DeliveryAddress: req.DeliveryAddress,
		DeliveryCost:    req.DeliveryCost,
		Notes:           req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) List(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	limit, offset := pagination(c)
	list, total, err := h.svc.List(c.Request().Context(), uid, service.OrderListFilter{
		Role:   model.UserRole(c.QueryParam("role")),
		Status: model.OrderStatus(c.QueryParam("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return writeError(c, err)
	}
	resp := OrderListResponse{Orders: make([]OrderResponse, 0, len(list)), Total: total}
	for i := range list {
		resp.Orders = append(resp.Orders, toOrderResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *OrderHandler) Get(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	o, err := h.svc.Get(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

type confirmRequest struct {
	Notes                 string     `json:"notes"`
	EstimatedDeliveryDate *time.Time `json:"estimatedDeliveryDate"`
}

func (h *OrderHandler) Confirm(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	o, err := h.svc.Confirm(c.Request().Context(), uid, id, service.ConfirmInput{
		Notes:                 req.Notes,
		EstimatedDeliveryDate: req.EstimatedDeliveryDate,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

type notesRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

func (h *OrderHandler) Decline(c echo.Context) error {
	return h.withNotes(c, func(uid string, id uint64, req notesRequest) (*model.Order, error) {
		return h.svc.Decline(c.Request().Context(), uid, id, req.Notes)
	})
}

func (h *OrderHandler) Cancel(c echo.Context) error {
	return h.withNotes(c, func(uid string, id uint64, req notesRequest) (*model.Order, error) {
		reason := req.Reason
		if reason == "" {
			reason = req.Notes
		}
		return h.svc.Cancel(c.Request().Context(), uid, id, reason)
	})
}

func (h *OrderHandler) Complete(c echo.Context) error {
	return h.withNotes(c, func(uid string, id uint64, req notesRequest) (*model.Order, error) {
		return h.svc.Complete(c.Request().Context(), uid, id, req.Notes)
	})
}

func (h *OrderHandler) withNotes(c echo.Context, fn func(uid string, id uint64, req notesRequest) (*model.Order, error)) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req notesRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	o, err := fn(uid, id, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}

type deliveryRequest struct {
	Status         string     `json:"status"`
	TrackingNumber *string    `json:"trackingNumber"`
	Carrier        *string    `json:"carrier"`
	EstimatedDate  *time.Time `json:"estimatedDate"`
	Notes          string     `json:"notes"`
}

func (h *OrderHandler) UpdateDelivery(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req deliveryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	o, err := h.svc.UpdateDelivery(c.Request().Context(), actor, id, service.DeliveryUpdate{
		Status:         model.DeliveryStatus(req.Status),
		TrackingNumber: req.TrackingNumber,
		Carrier:        req.Carrier,
		EstimatedDate:  req.EstimatedDate,
		Notes:          req.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderResponse(o))
}
