package model

import (
	"time"
)

// Notification durable per-recipient notification record.
// Immutable after creation except for the read flag and deletion.
type Notification struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"type:bigint unsigned;not null;index:idx_notifications_user_created" json:"user_id"`
	Kind      string    `gorm:"type:varchar(50);not null;index" json:"kind"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Body      string    `gorm:"type:text" json:"body"`
	IsRead    bool      `gorm:"not null;default:false;index" json:"is_read"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;index:idx_notifications_user_created" json:"created_at"`
}

// TableName set name
func (Notification) TableName() string {
	return "notifications"
}

// Notification kinds
const (
	NotificationKindOrderPlaced        = "order_placed"
	NotificationKindOrderStatusChanged = "order_status_changed"
	NotificationKindBlogApproved       = "blog_approved"
	NotificationKindBlogRejected       = "blog_rejected"
	NotificationKindBlogDeleted        = "blog_deleted"
	NotificationKindCommentApproved    = "comment_approved"
	NotificationKindCommentRejected    = "comment_rejected"
	NotificationKindLike               = "like"
	NotificationKindComment            = "comment"
	NotificationKindDiscountApplied    = "discount_applied"
	NotificationKindGeneric            = "generic"
)

var notificationKinds = map[string]bool{
	NotificationKindOrderPlaced:        true,
	NotificationKindOrderStatusChanged: true,
	NotificationKindBlogApproved:       true,
	NotificationKindBlogRejected:       true,
	NotificationKindBlogDeleted:        true,
	NotificationKindCommentApproved:    true,
	NotificationKindCommentRejected:    true,
	NotificationKindLike:               true,
	NotificationKindComment:            true,
	NotificationKindDiscountApplied:    true,
	NotificationKindGeneric:            true,
}

// IsValidNotificationKind check if kind is a known notification kind
func IsValidNotificationKind(kind string) bool {
	return notificationKinds[kind]
}

// AdminActivity describes an audited admin action broadcast to connected
// admin clients. It is an event payload only, never persisted here.
type AdminActivity struct {
	AdminName   string    `json:"admin_name"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
	Icon        string    `json:"icon"`
}
