package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/waveline/notify-server/internal/cache"
	"github.com/waveline/notify-server/internal/models"
	"github.com/waveline/notify-server/internal/repositories"
)

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	notificationRepository repositories.NotificationRepository
	userRepository         repositories.UserRepository
	unreadCache            *cache.UnreadCountCache
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(
	notifRepo repositories.NotificationRepository,
	userRepo repositories.UserRepository,
	unreadCache *cache.UnreadCountCache,
) *NotificationHandler {
	return &NotificationHandler{
		notificationRepository: notifRepo,
		userRepository:         userRepo,
		unreadCache:            unreadCache,
	}
}

// RegisterNotificationRoutes registers notification routes
func (h *NotificationHandler) RegisterNotificationRoutes(g *echo.Group) {
	g.GET("/notifications", h.GetNotifications)
	g.GET("/notifications/unread-count", h.GetUnreadCount)
	g.GET("/notifications/stats", h.GetStats)
	g.GET("/notifications/:id", h.GetNotification)
	g.PUT("/notifications/:id/read", h.MarkAsRead)
	g.PUT("/notifications/:id/unread", h.MarkAsUnread)
	g.PUT("/notifications/read-all", h.MarkAllAsRead)
	g.POST("/notifications/bulk", h.BulkAction)
	g.DELETE("/notifications/:id", h.DeleteNotification)
}

// EnrichedNotification includes sender info
type EnrichedNotification struct {
	models.Notification
	Sender *models.UserCompact `json:"sender,omitempty"`
}

func (h *NotificationHandler) enrichNotifications(c echo.Context, notifications []models.Notification) []EnrichedNotification {
	ctx := c.Request().Context()
	enriched := make([]EnrichedNotification, len(notifications))
	userCache := make(map[uint]models.UserCompact)

	for i, n := range notifications {
		enriched[i] = EnrichedNotification{Notification: n}
		if n.SenderID == nil {
			continue
		}
		if sender, ok := userCache[*n.SenderID]; ok {
			enriched[i].Sender = &sender
			continue
		}
		user, err := h.userRepository.GetUserByID(ctx, *n.SenderID)
		if err == nil {
			compact := user.ToCompact()
			userCache[*n.SenderID] = compact
			enriched[i].Sender = &compact
		}
	}
	return enriched
}

// GetNotifications returns paginated notifications with optional type and
// read-state filters.
func (h *NotificationHandler) GetNotifications(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 50 {
		limit = 20
	}

	var filter repositories.NotificationFilter
	if typeParam := c.QueryParam("type"); typeParam != "" {
		t := models.NotificationType(typeParam)
		if !t.Valid() {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification type")
		}
		filter.Type = &t
	}
	if readParam := c.QueryParam("is_read"); readParam != "" {
		isRead, err := strconv.ParseBool(readParam)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid is_read value")
		}
		filter.IsRead = &isRead
	}

	notifications, total, err := h.notificationRepository.GetByRecipient(c.Request().Context(), currentUserID, filter, page, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	totalPages := int(math.Ceil(float64(total) / float64(limit)))
	enriched := h.enrichNotifications(c, notifications)

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data": echo.Map{
			"notifications": enriched,
		},
		"meta": echo.Map{
			"currentPage":     page,
			"totalPages":      totalPages,
			"totalItems":      total,
			"itemsPerPage":    limit,
			"hasNextPage":     page < totalPages,
			"hasPreviousPage": page > 1,
		},
	})
}

// GetNotification returns a single notification and marks it read.
func (h *NotificationHandler) GetNotification(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	ctx := c.Request().Context()
	notification, err := h.notificationRepository.GetByID(ctx, currentUserID, uint(notifID))
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	if !notification.IsRead {
		if _, err := h.notificationRepository.MarkRead(ctx, currentUserID, []uint{notification.ID}); err == nil {
			h.unreadCache.Invalidate(ctx, currentUserID)
			// Re-read so the response carries the read_at the store assigned.
			if fresh, err := h.notificationRepository.GetByID(ctx, currentUserID, notification.ID); err == nil {
				notification = fresh
			}
		}
	}

	enriched := h.enrichNotifications(c, []models.Notification{*notification})
	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"notification": enriched[0]}})
}

// GetUnreadCount returns the unread notification count with a per-type
// breakdown.
func (h *NotificationHandler) GetUnreadCount(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ctx := c.Request().Context()
	count, err := h.unreadCache.Get(ctx, currentUserID, func(ctx context.Context) (int64, error) {
		return h.notificationRepository.UnreadCount(ctx, currentUserID)
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	byType, err := h.notificationRepository.UnreadCountByType(ctx, currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"count": count, "by_type": byType},
	})
}

// GetStats returns notification totals for the current user.
func (h *NotificationHandler) GetStats(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	stats, err := h.notificationRepository.Stats(c.Request().Context(), currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"stats": stats}})
}

// MarkAsRead marks a notification as read.
func (h *NotificationHandler) MarkAsRead(c echo.Context) error {
	return h.markOne(c, true)
}

// MarkAsUnread marks a notification as unread.
func (h *NotificationHandler) MarkAsUnread(c echo.Context) error {
	return h.markOne(c, false)
}

func (h *NotificationHandler) markOne(c echo.Context, read bool) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	ctx := c.Request().Context()
	var updated int64
	if read {
		updated, err = h.notificationRepository.MarkRead(ctx, currentUserID, []uint{uint(notifID)})
	} else {
		updated, err = h.notificationRepository.MarkUnread(ctx, currentUserID, []uint{uint(notifID)})
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if updated > 0 {
		h.unreadCache.Invalidate(ctx, currentUserID)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated_count": updated}})
}

// MarkAllAsRead marks all of the user's notifications as read.
func (h *NotificationHandler) MarkAllAsRead(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	ctx := c.Request().Context()
	updated, err := h.notificationRepository.MarkAllRead(ctx, currentUserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if updated > 0 {
		h.unreadCache.Invalidate(ctx, currentUserID)
	}

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"updated_count": updated}})
}

// BulkAction applies mark_read, mark_unread or delete to a batch of
// notification ids.
func (h *NotificationHandler) BulkAction(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.BulkNotificationActionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	var updated int64
	var err error
	switch req.Action {
	case "mark_read":
		updated, err = h.notificationRepository.MarkRead(ctx, currentUserID, req.NotificationIDs)
	case "mark_unread":
		updated, err = h.notificationRepository.MarkUnread(ctx, currentUserID, req.NotificationIDs)
	case "delete":
		updated, err = h.notificationRepository.SoftDelete(ctx, currentUserID, req.NotificationIDs)
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if updated > 0 {
		h.unreadCache.Invalidate(ctx, currentUserID)
	}

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"data":    echo.Map{"action": req.Action, "updated_count": updated},
	})
}

// DeleteNotification soft-deletes a notification.
func (h *NotificationHandler) DeleteNotification(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	notifID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid notification ID")
	}

	ctx := c.Request().Context()
	deleted, err := h.notificationRepository.SoftDelete(ctx, currentUserID, []uint{uint(notifID)})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if deleted == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "Notification not found")
	}
	h.unreadCache.Invalidate(ctx, currentUserID)

	return c.JSON(http.StatusOK, echo.Map{"success": true, "data": echo.Map{"deleted_count": deleted}})
}
