package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"github.com/shopspring/decimal"
)

const maxImageSize = 10 << 20

type ProductHandler struct {
	svc service.ProductService
}

func NewProductHandler(svc service.ProductService) *ProductHandler {
	return &ProductHandler{svc: svc}
}

type ProductResponse struct {
	ID          uint64          `json:"id"`
	FarmerUID   string          `json:"farmerUid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Status      string          `json:"status"`
	Approved    bool            `json:"approved"`
	Organic     bool            `json:"organic"`
	HarvestDate *string         `json:"harvestDate,omitempty"`
	Location    string          `json:"location,omitempty"`
	ImageURL    *string         `json:"imageUrl,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

type ProductListResponse struct {
	Products []ProductResponse `json:"products"`
	Total    int64             `json:"total"`
}

func toProductResponse(p *model.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		FarmerUID:   p.FarmerUID,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		Unit:        p.Unit,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Status:      string(p.Status),
		Approved:    p.Approved,
		Organic:     p.Organic,
		HarvestDate: formatTime(p.HarvestDate),
		Location:    p.Location,
		ImageURL:    p.ImageURL,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:   p.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type CreateProductRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Unit        string          `json:"unit"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int             `json:"quantity"`
	Organic     bool            `json:"organic"`
	HarvestDate *time.Time      `json:"harvestDate"`
	Location    string          `json:"location"`
}

type UpdateProductRequest struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Category    *string          `json:"category"`
	Unit        *string          `json:"unit"`
	Price       *decimal.Decimal `json:"price"`
	Quantity    *int             `json:"quantity"`
	Organic     *bool            `json:"organic"`
	HarvestDate *time.Time       `json:"harvestDate"`
	Location    *string          `json:"location"`
	Active      *bool            `json:"active"`
}

func (h *ProductHandler) Create(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	var req CreateProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	p, err := h.svc.Create(c.Request().Context(), actor, service.ProductInput{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Unit:        req.Unit,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Organic:     req.Organic,
		HarvestDate: req.HarvestDate,
		Location:    req.Location,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toProductResponse(p))
}

func (h *ProductHandler) Update(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	var req UpdateProductRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	p, err := h.svc.Update(c.Request().Context(), actor, id, service.ProductPatch{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Unit:        req.Unit,
		Price:       req.Price,
		Quantity:    req.Quantity,
		Organic:     req.Organic,
		HarvestDate: req.HarvestDate,
		Location:    req.Location,
		Active:      req.Active,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) Delete(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	if err := h.svc.Delete(c.Request().Context(), actor, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ProductHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	p, err := h.svc.Get(c.Request().Context(), currentActor(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(p))
}

func (h *ProductHandler) List(c echo.Context) error {
	limit, offset := pagination(c)
	f := repository.ProductFilter{
		Query:         c.QueryParam("q"),
		Category:      c.QueryParam("category"),
		FarmerUID:     c.QueryParam("farmer"),
		InStockOnly:   c.QueryParam("inStock") == "true",
		IncludeHidden: c.QueryParam("includeHidden") == "true",
		Sort:          c.QueryParam("sort"),
		Limit:         limit,
		Offset:        offset,
	}
	if v := c.QueryParam("organic"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return badRequest(c, "invalid organic flag")
		}
		f.Organic = &b
	}
	for param, dst := range map[string]**decimal.Decimal{"minPrice": &f.MinPrice, "maxPrice": &f.MaxPrice} {
		if v := c.QueryParam(param); v != "" {
			d, err := decimal.NewFromString(v)
			if err != nil {
				return badRequest(c, "invalid "+param)
			}
			*dst = &d
		}
	}
	items, total, err := h.svc.List(c.Request().Context(), currentActor(c), f)
	if err != nil {
		return writeError(c, err)
	}
	resp := ProductListResponse{Products: make([]ProductResponse, 0, len(items)), Total: total}
	for i := range items {
		resp.Products = append(resp.Products, toProductResponse(&items[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *ProductHandler) Approve(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	p, err := h.svc.Approve(c.Request().Context(), actor, id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(p))
}

// UploadImage accepts a multipart "image" field.
func (h *ProductHandler) UploadImage(c echo.Context) error {
	actor := currentActor(c)
	if actor.UID == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	fh, err := c.FormFile("image")
	if err != nil {
		return badRequest(c, "image file is required")
	}
	if fh.Size > maxImageSize {
		return badRequest(c, "image too large")
	}
	f, err := fh.Open()
	if err != nil {
		return badRequest(c, "unreadable image")
	}
	defer f.Close()

	p, err := h.svc.UploadImage(c.Request().Context(), actor, id, fh.Filename, fh.Header.Get("Content-Type"), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toProductResponse(p))
}
