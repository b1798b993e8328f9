package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urbansprout/internal/model"
	"urbansprout/internal/ws"
)

type fakeNotifRepo struct {
	createErr   error
	created     []*model.Notification
	unread      int64
	unreadCalls int
	markedRead  []uint64
	markedAll   bool
}

func (f *fakeNotifRepo) Create(ctx context.Context, n *model.Notification) error {
	if f.createErr != nil {
		return f.createErr
	}
	n.ID = uint64(len(f.created) + 1)
	f.created = append(f.created, n)
	return nil
}

func (f *fakeNotifRepo) List(ctx context.Context, userID uint64, page, pageSize int, unreadOnly bool) ([]*model.Notification, int64, int64, error) {
	return f.created, int64(len(f.created)), f.unread, nil
}

func (f *fakeNotifRepo) UnreadCount(ctx context.Context, userID uint64) (int64, error) {
	f.unreadCalls++
	return f.unread, nil
}

func (f *fakeNotifRepo) MarkRead(ctx context.Context, userID, notificationID uint64) error {
	f.markedRead = append(f.markedRead, notificationID)
	return nil
}

func (f *fakeNotifRepo) MarkAllRead(ctx context.Context, userID uint64) (int64, error) {
	f.markedAll = true
	marked := f.unread
	f.unread = 0
	return marked, nil
}

func (f *fakeNotifRepo) Delete(ctx context.Context, userID, notificationID uint64) error {
	return nil
}

func (f *fakeNotifRepo) DeleteAll(ctx context.Context, userID uint64) (int64, error) {
	deleted := int64(len(f.created))
	f.created = nil
	f.unread = 0
	return deleted, nil
}

type fakePusher struct {
	events      []ws.Event
	adminEvents []ws.Event
	online      bool
}

func (f *fakePusher) Push(userID uint64, event ws.Event) bool {
	f.events = append(f.events, event)
	return f.online
}

func (f *fakePusher) PushToAdmins(event ws.Event) int {
	f.adminEvents = append(f.adminEvents, event)
	return 1
}

func setupDispatcher(t *testing.T, repo *fakeNotifRepo, pusher *fakePusher) Dispatcher {
	s, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() {
		client.Close()
		s.Close()
	})

	return NewDispatcher(repo, pusher, client, nil, nil, time.Minute)
}

func TestDispatcher_Send(t *testing.T) {
	repo := &fakeNotifRepo{unread: 1}
	pusher := &fakePusher{online: true}
	d := setupDispatcher(t, repo, pusher)

	n, err := d.Send(context.Background(), 42, model.NotificationKindOrderPlaced, "Order placed", "Order #1001")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, uint64(42), n.UserID)

	require.Len(t, repo.created, 1)
	require.Len(t, pusher.events, 2)
	assert.Equal(t, ws.EventNewNotification, pusher.events[0].Type)

	payload, ok := pusher.events[0].Data.(ws.NewNotificationEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), payload.UnreadCount)
	assert.Equal(t, n, payload.Notification)

	// The badge update arrives as its own event after the notification.
	assert.Equal(t, ws.EventUnreadCountUpdate, pusher.events[1].Type)
	count, ok := pusher.events[1].Data.(ws.UnreadCountEvent)
	require.True(t, ok)
	assert.Equal(t, int64(1), count.UnreadCount)
}

func TestDispatcher_Send_StorageErrorPropagates(t *testing.T) {
	repo := &fakeNotifRepo{createErr: errors.New("db down")}
	pusher := &fakePusher{online: true}
	d := setupDispatcher(t, repo, pusher)

	_, err := d.Send(context.Background(), 42, model.NotificationKindGeneric, "t", "b")
	require.Error(t, err)
	assert.Empty(t, pusher.events)
}

func TestDispatcher_Send_PushFailureSwallowed(t *testing.T) {
	repo := &fakeNotifRepo{}
	pusher := &fakePusher{online: false}
	d := setupDispatcher(t, repo, pusher)

	n, err := d.Send(context.Background(), 42, model.NotificationKindGeneric, "t", "b")
	assert.NoError(t, err)
	assert.NotNil(t, n)
	assert.Len(t, repo.created, 1)
}

func TestDispatcher_UnreadCountCached(t *testing.T) {
	repo := &fakeNotifRepo{unread: 7}
	pusher := &fakePusher{}
	d := setupDispatcher(t, repo, pusher)

	ctx := context.Background()

	count, err := d.UnreadCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)

	// Stale storage value, cache still answers.
	repo.unread = 99
	count, err = d.UnreadCount(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	assert.Equal(t, 1, repo.unreadCalls)
}

func TestDispatcher_MarkRead(t *testing.T) {
	repo := &fakeNotifRepo{unread: 2}
	pusher := &fakePusher{online: true}
	d := setupDispatcher(t, repo, pusher)

	err := d.MarkRead(context.Background(), 42, 9)
	require.NoError(t, err)
	assert.Equal(t, []uint64{9}, repo.markedRead)

	require.Len(t, pusher.events, 1)
	assert.Equal(t, ws.EventNotificationRead, pusher.events[0].Type)

	payload, ok := pusher.events[0].Data.(ws.NotificationReadEvent)
	require.True(t, ok)
	assert.Equal(t, uint64(9), payload.NotificationID)
}

func TestDispatcher_MarkAllRead(t *testing.T) {
	repo := &fakeNotifRepo{unread: 5}
	pusher := &fakePusher{online: true}
	d := setupDispatcher(t, repo, pusher)

	err := d.MarkAllRead(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, repo.markedAll)

	require.Len(t, pusher.events, 1)
	assert.Equal(t, ws.EventAllNotificationsRead, pusher.events[0].Type)

	payload, ok := pusher.events[0].Data.(ws.AllReadEvent)
	require.True(t, ok)
	assert.Equal(t, int64(5), payload.MarkedCount)
	assert.Equal(t, int64(0), payload.UnreadCount)
}

func TestDispatcher_DeleteAll(t *testing.T) {
	repo := &fakeNotifRepo{}
	repo.created = []*model.Notification{{ID: 1, UserID: 42}, {ID: 2, UserID: 42}}
	pusher := &fakePusher{online: true}
	d := setupDispatcher(t, repo, pusher)

	deleted, err := d.DeleteAll(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	require.Len(t, pusher.events, 1)
	assert.Equal(t, ws.EventUnreadCountUpdate, pusher.events[0].Type)
}

func TestDispatcher_BroadcastAdminActivity(t *testing.T) {
	repo := &fakeNotifRepo{}
	pusher := &fakePusher{}
	d := setupDispatcher(t, repo, pusher)

	d.BroadcastAdminActivity(&model.AdminActivity{
		AdminName:   "iris",
		Action:      "discount_created",
		Description: "Created discount \"Summer Sale\"",
	})

	require.Len(t, pusher.adminEvents, 1)
	assert.Equal(t, ws.EventAdminActivity, pusher.adminEvents[0].Type)

	payload, ok := pusher.adminEvents[0].Data.(*model.AdminActivity)
	require.True(t, ok)
	assert.False(t, payload.Timestamp.IsZero())
}
