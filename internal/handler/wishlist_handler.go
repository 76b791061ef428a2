package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/shopspring/decimal"
)

type WishlistHandler struct {
	svc service.WishlistService
}

func NewWishlistHandler(svc service.WishlistService) *WishlistHandler {
	return &WishlistHandler{svc: svc}
}

type WishlistItemResponse struct {
	ProductID      uint64           `json:"productId"`
	RecordedPrice  decimal.Decimal  `json:"recordedPrice"`
	PriceDropAlert bool             `json:"priceDropAlert"`
	Product        *ProductResponse `json:"product,omitempty"`
	CreatedAt      string           `json:"createdAt"`
}

func (h *WishlistHandler) List(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	entries, err := h.svc.List(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]WishlistItemResponse, 0, len(entries))
	for _, e := range entries {
		item := WishlistItemResponse{
			ProductID:      e.Item.ProductID,
			RecordedPrice:  e.Item.RecordedPrice,
			PriceDropAlert: e.Item.PriceDropAlert,
			CreatedAt:      e.Item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if e.Product != nil {
			p := toProductResponse(e.Product)
			item.Product = &p
		}
		resp = append(resp, item)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *WishlistHandler) Add(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req struct {
		ProductID uint64 `json:"productId"`
	}
	if err := c.Bind(&req); err != nil || req.ProductID == 0 {
		return badRequest(c, "productId is required")
	}
	it, err := h.svc.Add(c.Request().Context(), uid, req.ProductID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, WishlistItemResponse{
		ProductID:      it.ProductID,
		RecordedPrice:  it.RecordedPrice,
		PriceDropAlert: it.PriceDropAlert,
		CreatedAt:      it.CreatedAt.UTC().Format(time.RFC3339),
	})
}

func (h *WishlistHandler) Remove(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "productId")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	if err := h.svc.Remove(c.Request().Context(), uid, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *WishlistHandler) SetAlert(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "productId")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil || req.Enabled == nil {
		return badRequest(c, "enabled is required")
	}
	if err := h.svc.SetAlert(c.Request().Context(), uid, id, *req.Enabled); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"priceDropAlert": *req.Enabled})
}
