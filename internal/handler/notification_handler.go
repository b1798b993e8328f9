package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"urbansprout/internal/middleware"
	"urbansprout/internal/service/notify"
	"urbansprout/pkg/utils"
)

// NotificationHandler notification endpoints
type NotificationHandler struct {
	dispatcher notify.Dispatcher
}

// NewNotificationHandler creates a notification handler
func NewNotificationHandler(dispatcher notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{dispatcher: dispatcher}
}

// List returns a newest-first page of the caller's notifications
func (h *NotificationHandler) List(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	unreadOnly := c.Query("unread_only") == "true"

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	notifications, total, unread, err := h.dispatcher.List(c.Request.Context(), userID, page, limit, unreadOnly)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))

	utils.Success(c, gin.H{
		"notifications":       notifications,
		"total_notifications": total,
		"unread_count":        unread,
		"current_page":        page,
		"total_pages":         totalPages,
	})
}

// UnreadCount returns the caller's unread count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	count, err := h.dispatcher.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, gin.H{"unread_count": count})
}

// MarkRead marks one notification read
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || notificationID == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid notification id")
		return
	}

	if err := h.dispatcher.MarkRead(c.Request.Context(), userID, notificationID); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, nil)
}

// MarkAllRead marks every unread notification read
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	if err := h.dispatcher.MarkAllRead(c.Request.Context(), userID); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, nil)
}

// Delete removes one notification
func (h *NotificationHandler) Delete(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	notificationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || notificationID == 0 {
		utils.Error(c, utils.CodeInvalidParam, "invalid notification id")
		return
	}

	if err := h.dispatcher.Delete(c.Request.Context(), userID, notificationID); err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, nil)
}

// ClearAll removes all of the caller's notifications
func (h *NotificationHandler) ClearAll(c *gin.Context) {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		utils.Error(c, utils.CodeUnauthorized, "unauthorized")
		return
	}

	deleted, err := h.dispatcher.DeleteAll(c.Request.Context(), userID)
	if err != nil {
		utils.ErrorFromErr(c, err)
		return
	}

	utils.Success(c, gin.H{"deleted_count": deleted})
}
