package notify

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"

	"urbansprout/internal/model"
	"urbansprout/internal/monitor"
	"urbansprout/internal/repository"
	"urbansprout/internal/ws"
	"urbansprout/pkg/log"
)

// LivePusher pushes events to live connections
type LivePusher interface {
	Push(userID uint64, event ws.Event) bool
	PushToAdmins(event ws.Event) int
}

// Dispatcher persists notifications and mirrors them to live
// connections. Persistence is the source of truth: a storage failure
// fails the dispatch, a push failure never does.
type Dispatcher interface {
	// Send persists a notification and pushes it if the user is online
	Send(ctx context.Context, userID uint64, kind, title, body string) (*model.Notification, error)

	// List returns a page of a user's notifications with counts
	List(ctx context.Context, userID uint64, page, pageSize int, unreadOnly bool) ([]*model.Notification, int64, int64, error)

	// UnreadCount returns the unread count, served from cache when warm
	UnreadCount(ctx context.Context, userID uint64) (int64, error)

	// MarkRead marks one notification read and echoes the new count
	MarkRead(ctx context.Context, userID, notificationID uint64) error

	// MarkAllRead marks everything read and echoes the new count
	MarkAllRead(ctx context.Context, userID uint64) error

	// Delete removes one notification
	Delete(ctx context.Context, userID, notificationID uint64) error

	// DeleteAll removes all of a user's notifications
	DeleteAll(ctx context.Context, userID uint64) (int64, error)

	// BroadcastAdminActivity pushes an activity event to online admins
	BroadcastAdminActivity(activity *model.AdminActivity)
}

// dispatcher dispatcher implementation
type dispatcher struct {
	notifRepo repository.NotificationRepository
	pusher    LivePusher
	redis     *redis.Client
	metrics   *monitor.MetricsCollector
	tracer    *monitor.Tracer
	cacheTTL  time.Duration
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	notifRepo repository.NotificationRepository,
	pusher LivePusher,
	redisClient *redis.Client,
	metrics *monitor.MetricsCollector,
	tracer *monitor.Tracer,
	cacheTTL time.Duration,
) Dispatcher {
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &dispatcher{
		notifRepo: notifRepo,
		pusher:    pusher,
		redis:     redisClient,
		metrics:   metrics,
		tracer:    tracer,
		cacheTTL:  cacheTTL,
	}
}

// Send persists a notification, then attempts a live push
func (d *dispatcher) Send(ctx context.Context, userID uint64, kind, title, body string) (*model.Notification, error) {
	var span trace.Span
	if d.tracer != nil {
		ctx, span = d.tracer.StartDispatchSpan(ctx, userID, kind)
		defer span.End()
	}

	notification := &model.Notification{
		UserID: userID,
		Kind:   kind,
		Title:  title,
		Body:   body,
	}

	if err := d.notifRepo.Create(ctx, notification); err != nil {
		fields := map[string]interface{}{
			"user_id": userID,
			"kind":    kind,
			"error":   err.Error(),
		}
		if d.tracer != nil {
			d.tracer.RecordError(span, err)
			if traceID := d.tracer.TraceID(ctx); traceID != "" {
				fields["trace_id"] = traceID
			}
		}
		log.WithFields(fields).Error("Failed to persist notification")
		return nil, err
	}

	if d.metrics != nil {
		d.metrics.RecordNotificationDispatched(kind)
	}

	d.invalidateUnreadCache(ctx, userID)

	// The durable copy is already committed. A failed push only means
	// the user reads it on their next fetch.
	count, err := d.UnreadCount(ctx, userID)
	if err != nil {
		count = 0
	}

	delivered := d.pusher.Push(userID, ws.Event{
		Type: ws.EventNewNotification,
		Data: ws.NewNotificationEvent{
			Notification: notification,
			UnreadCount:  count,
		},
	})

	if delivered && d.metrics != nil {
		d.metrics.RecordNotificationDelivered(kind)
	}

	// Badge listeners subscribe to the count event alone, so the
	// notification payload is followed by a standalone count update.
	d.pusher.Push(userID, ws.Event{
		Type: ws.EventUnreadCountUpdate,
		Data: ws.UnreadCountEvent{UnreadCount: count},
	})

	return notification, nil
}

// List returns a page of notifications
func (d *dispatcher) List(ctx context.Context, userID uint64, page, pageSize int, unreadOnly bool) ([]*model.Notification, int64, int64, error) {
	if d.tracer != nil {
		var span trace.Span
		ctx, span = d.tracer.StartDBSpan(ctx, "select", "notifications")
		defer span.End()
	}
	return d.notifRepo.List(ctx, userID, page, pageSize, unreadOnly)
}

// UnreadCount returns the unread count, cache first
func (d *dispatcher) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	key := unreadCacheKey(userID)

	if cached, err := d.redis.Get(ctx, key).Result(); err == nil {
		if count, err := strconv.ParseInt(cached, 10, 64); err == nil {
			return count, nil
		}
	}

	count, err := d.notifRepo.UnreadCount(ctx, userID)
	if err != nil {
		return 0, err
	}

	d.redis.Set(ctx, key, strconv.FormatInt(count, 10), d.cacheTTL)
	return count, nil
}

// MarkRead marks one notification read and echoes the new count
func (d *dispatcher) MarkRead(ctx context.Context, userID, notificationID uint64) error {
	if err := d.notifRepo.MarkRead(ctx, userID, notificationID); err != nil {
		return err
	}

	d.invalidateUnreadCache(ctx, userID)

	count, err := d.UnreadCount(ctx, userID)
	if err != nil {
		return nil
	}

	d.pusher.Push(userID, ws.Event{
		Type: ws.EventNotificationRead,
		Data: ws.NotificationReadEvent{
			NotificationID: notificationID,
			UnreadCount:    count,
		},
	})
	return nil
}

// MarkAllRead marks everything read and echoes the new count
func (d *dispatcher) MarkAllRead(ctx context.Context, userID uint64) error {
	marked, err := d.notifRepo.MarkAllRead(ctx, userID)
	if err != nil {
		return err
	}

	d.invalidateUnreadCache(ctx, userID)

	d.pusher.Push(userID, ws.Event{
		Type: ws.EventAllNotificationsRead,
		Data: ws.AllReadEvent{
			MarkedCount: marked,
			UnreadCount: 0,
		},
	})
	return nil
}

// Delete removes one notification
func (d *dispatcher) Delete(ctx context.Context, userID, notificationID uint64) error {
	if err := d.notifRepo.Delete(ctx, userID, notificationID); err != nil {
		return err
	}

	d.invalidateUnreadCache(ctx, userID)

	if count, err := d.UnreadCount(ctx, userID); err == nil {
		d.pusher.Push(userID, ws.Event{
			Type: ws.EventUnreadCountUpdate,
			Data: ws.UnreadCountEvent{UnreadCount: count},
		})
	}
	return nil
}

// DeleteAll removes all of a user's notifications
func (d *dispatcher) DeleteAll(ctx context.Context, userID uint64) (int64, error) {
	deleted, err := d.notifRepo.DeleteAll(ctx, userID)
	if err != nil {
		return 0, err
	}

	d.invalidateUnreadCache(ctx, userID)

	d.pusher.Push(userID, ws.Event{
		Type: ws.EventUnreadCountUpdate,
		Data: ws.UnreadCountEvent{UnreadCount: 0},
	})
	return deleted, nil
}

// BroadcastAdminActivity pushes an activity event to online admins
func (d *dispatcher) BroadcastAdminActivity(activity *model.AdminActivity) {
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	delivered := d.pusher.PushToAdmins(ws.Event{
		Type: ws.EventAdminActivity,
		Data: activity,
	})

	log.WithFields(map[string]interface{}{
		"action":    activity.Action,
		"admin":     activity.AdminName,
		"delivered": delivered,
	}).Debug("Admin activity broadcast")
}

func (d *dispatcher) invalidateUnreadCache(ctx context.Context, userID uint64) {
	d.redis.Del(ctx, unreadCacheKey(userID))
}

func unreadCacheKey(userID uint64) string {
	return fmt.Sprintf("notify:unread:%d", userID)
}
