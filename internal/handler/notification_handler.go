package handler

import (
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shinyyama/farm-market-backend/internal/model"
	"github.com/shinyyama/farm-market-backend/internal/service"
	"gorm.io/datatypes"
)

type NotificationHandler struct {
	svc service.NotificationService
}

func NewNotificationHandler(svc service.NotificationService) *NotificationHandler {
	return &NotificationHandler{svc: svc}
}

type NotificationResponse struct {
	ID        uint64            `json:"id"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      datatypes.JSONMap `json:"data,omitempty"`
	Read      bool              `json:"read"`
	ReadAt    *string           `json:"readAt,omitempty"`
	CreatedAt string            `json:"createdAt"`
}

type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	UnreadCount   int64                  `json:"unreadCount"`
}

func toNotificationResponse(n model.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Type:      string(n.Type),
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Read:      n.IsRead,
		ReadAt:    formatTime(n.ReadAt),
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (h *NotificationHandler) List(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	unreadOnly := c.QueryParam("unreadOnly") == "true"
	limit, offset := pagination(c)
	list, unread, err := h.svc.List(c.Request().Context(), uid, unreadOnly, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	resp := NotificationListResponse{Notifications: make([]NotificationResponse, 0, len(list)), UnreadCount: unread}
	for _, n := range list {
		resp.Notifications = append(resp.Notifications, toNotificationResponse(n))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *NotificationHandler) MarkRead(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid notification id")
	}
	if err := h.svc.MarkRead(c.Request().Context(), uid, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *NotificationHandler) MarkAllRead(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	n, err := h.svc.MarkAllRead(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"updated": n})
}

func (h *NotificationHandler) Delete(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid notification id")
	}
	if err := h.svc.Delete(c.Request().Context(), uid, id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type channelFlags struct {
	Email *bool `json:"email,omitempty"`
	Push  *bool `json:"push,omitempty"`
}

// PreferencesResponse maps a notification type to its channel flags.
type PreferencesResponse map[string]channelFlags

func toPreferencesResponse(p *model.NotificationPreference) PreferencesResponse {
	resp := make(PreferencesResponse, len(model.PreferenceTypes))
	for _, t := range model.PreferenceTypes {
		email, push := p.Allows(t, model.ChannelEmail), p.Allows(t, model.ChannelPush)
		resp[string(t)] = channelFlags{Email: &email, Push: &push}
	}
	return resp
}

func (h *NotificationHandler) GetPreferences(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	p, err := h.svc.GetPreferences(c.Request().Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPreferencesResponse(p))
}

// UpdatePreferences takes the same shape it returns; omitted flags are unchanged.
func (h *NotificationHandler) UpdatePreferences(c echo.Context) error {
	uid := currentUID(c)
	if uid == "" {
		return unauthorized(c)
	}
	var req map[string]channelFlags
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid json")
	}
	types := make([]string, 0, len(req))
	for t := range req {
		types = append(types, t)
	}
	sort.Strings(types)

	var patch []service.PreferencePatch
	for _, t := range types {
		flags := req[t]
		if flags.Email != nil {
			patch = append(patch, service.PreferencePatch{Type: model.NotificationType(t), Channel: model.ChannelEmail, Enabled: *flags.Email})
		}
		if flags.Push != nil {
			patch = append(patch, service.PreferencePatch{Type: model.NotificationType(t), Channel: model.ChannelPush, Enabled: *flags.Push})
		}
	}
	p, err := h.svc.UpdatePreferences(c.Request().Context(), uid, patch)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toPreferencesResponse(p))
}
