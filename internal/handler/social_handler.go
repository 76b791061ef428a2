package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/repository"
	"github.com/shinyyama/farm-market-backend/internal/service"
)

type FollowHandler struct {
	svc service.FollowService
}

func NewFollowHandler(svc service.FollowService) *FollowHandler {
	return &FollowHandler{svc: svc}
}

type FollowResponse struct {
	FarmerUID string `json:"farmerUid"`
	CreatedAt string `json:"createdAt"`
}

func (h *FollowHandler) Follow(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	if err := h.svc.Follow(c.Request().Context(), uid, c.Param("uid")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FollowHandler) Unfollow(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	if err := h.svc.Unfollow(c.Request().Context(), uid, c.Param("uid")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *FollowHandler) Following(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.Following(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]FollowResponse, 0, len(list))
	for _, f := range list {
		resp = append(resp, FollowResponse{FarmerUID: f.FarmerUID, CreatedAt: f.CreatedAt.UTC().Format(time.RFC3339)})
	}
	return c.JSON(http.StatusOK, resp)
}

type ReviewHandler struct {
	svc service.ReviewService
}

func NewReviewHandler(svc service.ReviewService) *ReviewHandler {
	return &ReviewHandler{svc: svc}
}

type ReviewResponse struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"orderId"`
	ProductID uint64 `json:"productId"`
	FarmerUID string `json:"farmerUid"`
	BuyerUID  string `json:"buyerUid"`
	Rating    int    `json:"rating"`
	Comment   string `json:"comment,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type ReviewListResponse struct {
	Reviews       []ReviewResponse `json:"reviews"`
	AverageRating float64          `json:"averageRating"`
	Count         int64            `json:"count"`
}

func toReviewResponse(r *model.Review) ReviewResponse {
	return ReviewResponse{
		ID:        r.ID,
		OrderID:   r.OrderID,
		ProductID: r.ProductID,
		FarmerUID: r.FarmerUID,
		BuyerUID:  r.BuyerUID,
		Rating:    r.Rating,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toReviewList(list []model.Review, sum repository.RatingSummary) ReviewListResponse {
	resp := ReviewListResponse{Reviews: make([]ReviewResponse, 0, len(list)), AverageRating: sum.Average, Count: sum.Count}
	for i := range list {
		resp.Reviews = append(resp.Reviews, toReviewResponse(&list[i]))
	}
	return resp
}

func (h *ReviewHandler) Create(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid order id")
	}
	var req struct {
		Rating  int    `json:"rating"`
		Comment string `json:"comment"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	r, err := h.svc.Create(c.Request().Context(), uid, id, req.Rating, req.Comment)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toReviewResponse(r))
}

func (h *ReviewHandler) ListByProduct(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid product id")
	}
	limit, offset := pagination(c)
	list, sum, err := h.svc.ListByProduct(c.Request().Context(), id, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReviewList(list, sum))
}

func (h *ReviewHandler) ListByFarmer(c echo.Context) error {
	limit, offset := pagination(c)
	list, sum, err := h.svc.ListByFarmer(c.Request().Context(), c.Param("uid"), limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toReviewList(list, sum))
}

type MessageHandler struct {
	svc service.MessageService
}

func NewMessageHandler(svc service.MessageService) *MessageHandler {
	return &MessageHandler{svc: svc}
}

type MessageResponse struct {
	ID           uint64  `json:"id"`
	SenderUID    string  `json:"senderUid"`
	RecipientUID string  `json:"recipientUid"`
	OrderID      *uint64 `json:"orderId,omitempty"`
	ProductID    *uint64 `json:"productId,omitempty"`
	Body         string  `json:"body"`
	ReadAt       *string `json:"readAt,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}

type ConversationResponse struct {
	PartnerUID  string          `json:"partnerUid"`
	LastMessage MessageResponse `json:"lastMessage"`
	UnreadCount int64           `json:"unreadCount"`
}

func toMessageResponse(m *model.Message) MessageResponse {
	return MessageResponse{
		ID:           m.ID,
		SenderUID:    m.SenderUID,
		RecipientUID: m.RecipientUID,
		OrderID:      m.OrderID,
		ProductID:    m.ProductID,
		Body:         m.Body,
		ReadAt:       formatTime(m.ReadAt),
		CreatedAt:    m.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *MessageHandler) Conversations(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	list, err := h.svc.Conversations(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]ConversationResponse, 0, len(list))
	for i := range list {
		resp = append(resp, ConversationResponse{
			PartnerUID:  list[i].PartnerUID,
			LastMessage: toMessageResponse(&list[i].LastMessage),
			UnreadCount: list[i].UnreadCount,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) Conversation(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	limit, _ := pagination(c)
	var before uint64
	if v := c.QueryParam("before"); v != "" {
		b, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return badRequest(c, "invalid before id")
		}
		before = b
	}
	list, err := h.svc.Conversation(c.Request().Context(), uid, c.Param("uid"), limit, before)
	if err != nil {
		return writeError(c, err)
	}
	resp := make([]MessageResponse, 0, len(list))
	for i := range list {
		resp = append(resp, toMessageResponse(&list[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *MessageHandler) Send(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req struct {
		Body      string  `json:"body"`
		OrderID   *uint64 `json:"orderId"`
		ProductID *uint64 `json:"productId"`
	}
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	m, err := h.svc.Send(c.Request().Context(), uid, c.Param("uid"), service.SendMessageInput{
		Body:      req.Body,
		OrderID:   req.OrderID,
		ProductID: req.ProductID,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toMessageResponse(m))
}

func (h *MessageHandler) MarkRead(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	n, err := h.svc.MarkRead(c.Request().Context(), uid, c.Param("uid"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": n})
}
