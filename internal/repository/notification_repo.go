package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"urbansprout/internal/model"
	"urbansprout/pkg/utils"
)

// NotificationRepository durable notification store interface
type NotificationRepository interface {
	// Create a new unread notification
	Create(ctx context.Context, n *model.Notification) error

	// List a newest-first page; unread count is always computed fresh
	List(ctx context.Context, userID uint64, page, pageSize int, unreadOnly bool) ([]*model.Notification, int64, int64, error)

	// UnreadCount for a recipient
	UnreadCount(ctx context.Context, userID uint64) (int64, error)

	// MarkRead one notification, ownership-checked, idempotent
	MarkRead(ctx context.Context, userID, notificationID uint64) error

	// MarkAllRead for a recipient, returns affected count
	MarkAllRead(ctx context.Context, userID uint64) (int64, error)

	// Delete one notification, ownership-checked
	Delete(ctx context.Context, userID, notificationID uint64) error

	// DeleteAll of a recipient's notifications, returns deleted count
	DeleteAll(ctx context.Context, userID uint64) (int64, error)
}

// notificationRepository notification repository implementation
type notificationRepository struct {
	db *gorm.DB
}

// NewNotificationRepository creates a notification repository
func NewNotificationRepository(db *gorm.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

// Create creates a notification
func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) error {
	if n.UserID == 0 {
		return utils.NewError(utils.CodeInvalidParam, "recipient is required")
	}
	if !model.IsValidNotificationKind(n.Kind) {
		return utils.NewError(utils.CodeInvalidParam, "unknown notification kind")
	}
	return r.db.WithContext(ctx).Create(n).Error
}

// List lists notifications newest first
func (r *notificationRepository) List(ctx context.Context, userID uint64, page, pageSize int, unreadOnly bool) ([]*model.Notification, int64, int64, error) {
	var notifications []*model.Notification
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, 0, err
	}

	// The id tiebreak keeps pagination stable for rows created within
	// the same second.
	offset := (page - 1) * pageSize
	err := query.Order("created_at DESC, id DESC").
		Offset(offset).
		Limit(pageSize).
		Find(&notifications).Error
	if err != nil {
		return nil, 0, 0, err
	}

	unread, err := r.UnreadCount(ctx, userID)
	if err != nil {
		return nil, 0, 0, err
	}

	return notifications, total, unread, nil
}

// UnreadCount counts unread notifications for a recipient
func (r *notificationRepository) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead marks one notification read. Idempotent: marking an already
// read notification succeeds without effect.
func (r *notificationRepository) MarkRead(ctx context.Context, userID, notificationID uint64) error {
	var n model.Notification
	err := r.db.WithContext(ctx).Where("id = ?", notificationID).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrNotificationNotFound
		}
		return err
	}

	if n.UserID != userID {
		return utils.ErrForbidden
	}

	if n.IsRead {
		return nil
	}

	return r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("id = ?", notificationID).
		Update("is_read", true).Error
}

// MarkAllRead marks every unread notification read in one update
func (r *notificationRepository) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Update("is_read", true)
	return result.RowsAffected, result.Error
}

// Delete deletes one notification, ownership-checked
func (r *notificationRepository) Delete(ctx context.Context, userID, notificationID uint64) error {
	var n model.Notification
	err := r.db.WithContext(ctx).Where("id = ?", notificationID).First(&n).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrNotificationNotFound
		}
		return err
	}

	if n.UserID != userID {
		return utils.ErrForbidden
	}

	return r.db.WithContext(ctx).Delete(&model.Notification{}, notificationID).Error
}

// DeleteAll deletes all of a recipient's notifications
func (r *notificationRepository) DeleteAll(ctx context.Context, userID uint64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.Notification{})
	return result.RowsAffected, result.Error
}
