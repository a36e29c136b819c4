package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/observability"
)

// NotificationStore is what the notifier needs from storage.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetProfile(ctx context.Context, id string) (*models.Profile, error)
}

// PushPublisher hands a push message to the delivery worker.
type PushPublisher interface {
	PublishPush(ctx context.Context, msg models.PushMessage) error
}

// Notifier writes the notification row, fans it out to realtime sessions and
// forwards it to push delivery when the profile has a device token. Only the
// row write can fail the call; realtime and push are best-effort.
type Notifier struct {
	Store    NotificationStore
	Realtime *WSRegistry
	Queue    PushPublisher // preferred when set
	Push     PushSender    // direct delivery when no queue is configured
	Log      *zap.SugaredLogger
}

func (n *Notifier) Notify(ctx context.Context, profileID, title, body string, data map[string]string) (*models.Notification, error) {
	note := &models.Notification{ProfileID: profileID, Title: title, Body: body, Data: models.StringMap(data)}
	if err := n.Store.CreateNotification(ctx, note); err != nil {
		return nil, fmt.Errorf("store notification: %w", err)
	}
	observability.NotificationsSent.Inc()

	if n.Realtime != nil {
		n.Realtime.Publish(*note)
	}

	profile, err := n.Store.GetProfile(ctx, profileID)
	if err != nil {
		n.logger().Warnw("push skipped: profile lookup failed", "profile_id", profileID, "error", err)
		return note, nil
	}
	if profile.PushToken == "" {
		return note, nil
	}
	msg := models.PushMessage{
		NotificationID: note.ID,
		ProfileID:      profileID,
		Token:          profile.PushToken,
		Title:          title,
		Body:           body,
		Data:           data,
	}
	switch {
	case n.Queue != nil:
		err = n.Queue.PublishPush(ctx, msg)
	case n.Push != nil:
		err = n.Push.Send(ctx, msg)
		if err == nil {
			observability.PushDeliveries.WithLabelValues("delivered").Inc()
		}
	}
	if err != nil {
		observability.PushDeliveries.WithLabelValues("failed").Inc()
		n.logger().Warnw("push forward failed", "profile_id", profileID, "notification_id", note.ID, "error", err)
	}
	return note, nil
}

func (n *Notifier) logger() *zap.SugaredLogger {
	if n.Log == nil {
		return zap.NewNop().Sugar()
	}
	return n.Log
}
