package handler

import (
	"context"
	"net/http"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/service"
)

// AccountLookup reads the Firebase account record; *auth.Client satisfies it.
type AccountLookup interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
}

type UserHandler struct {
	svc      service.UserService
	accounts AccountLookup
}

func NewUserHandler(svc service.UserService, accounts AccountLookup) *UserHandler {
	return &UserHandler{svc: svc, accounts: accounts}
}

type UserResponse struct {
	UID       string `json:"uid"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Address   string `json:"address,omitempty"`
	Role      string `json:"role"`
	FarmName  string `json:"farmName,omitempty"`
	Bio       string `json:"bio,omitempty"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type PublicUserResponse struct {
	UID           string  `json:"uid"`
	DisplayName   string  `json:"displayName"`
	Role          string  `json:"role"`
	FarmName      string  `json:"farmName,omitempty"`
	Bio           string  `json:"bio,omitempty"`
	PhotoURL      *string `json:"photoURL"`
	Followers     int64   `json:"followers"`
	AverageRating float64 `json:"averageRating"`
	ReviewCount   int64   `json:"reviewCount"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		UID:       u.UID,
		Name:      u.Name,
		Email:     u.Email,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      string(u.Role),
		FarmName:  u.FarmName,
		Bio:       u.Bio,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

type UpsertMeRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	Role     string `json:"role"`
	FarmName string `json:"farmName"`
	Bio      string `json:"bio"`
}

func (h *UserHandler) GetMe(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	u, err := h.svc.Get(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) UpsertMe(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req UpsertMeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	tokenEmail, _ := c.Get("email").(string)
	u, err := h.svc.UpsertMe(c.Request().Context(), uid, tokenEmail, service.ProfileInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     model.UserRole(req.Role),
		FarmName: req.FarmName,
		Bio:      req.Bio,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

func (h *UserHandler) GetPublic(c echo.Context) error {
	uid := c.Param("uid")
	if uid == "" {
		return badRequest(c, "invalid uid")
	}
	p, err := h.svc.Public(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := PublicUserResponse{
		UID:           p.User.UID,
		DisplayName:   p.User.DisplayName(),
		Role:          string(p.User.Role),
		FarmName:      p.User.FarmName,
		Bio:           p.User.Bio,
		Followers:     p.Followers,
		AverageRating: p.Rating.Average,
		ReviewCount:   p.Rating.Count,
	}
	// the photo lives on the Firebase account only
	if h.accounts != nil {
		if rec, err := h.accounts.GetUser(c.Request().Context(), uid); err == nil && rec.UserInfo != nil {
			resp.PhotoURL = strPtrOrNil(rec.PhotoURL)
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
