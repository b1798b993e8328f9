package ws

import "urbansprout/internal/model"

// Event types pushed to clients
const (
	EventNewNotification      = "new_notification"
	EventUnreadCountUpdate    = "unread_count_update"
	EventNotificationRead     = "notification_read"
	EventAllNotificationsRead = "all_notifications_read"
	EventAdminActivity        = "admin_activity"
	EventError                = "error"
)

// Inbound message types accepted from clients
const (
	ActionMarkNotificationRead = "mark_notification_read"
	ActionMarkAllRead          = "mark_all_read"
)

// Event outbound websocket frame
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewNotificationEvent payload for new_notification
type NewNotificationEvent struct {
	Notification *model.Notification `json:"notification"`
	UnreadCount  int64               `json:"unread_count"`
}

// UnreadCountEvent payload for unread_count_update
type UnreadCountEvent struct {
	UnreadCount int64 `json:"unread_count"`
}

// NotificationReadEvent payload for notification_read
type NotificationReadEvent struct {
	NotificationID uint64 `json:"notification_id"`
	UnreadCount    int64  `json:"unread_count"`
}

// AllReadEvent payload for all_notifications_read
type AllReadEvent struct {
	MarkedCount int64 `json:"marked_count"`
	UnreadCount int64 `json:"unread_count"`
}

// ErrorEvent payload for error
type ErrorEvent struct {
	Message string `json:"message"`
}
