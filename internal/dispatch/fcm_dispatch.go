package dispatch

import (
	"context"
	"net/http"
	"time"

	"github.com/example/van-transfers/internal/models"
)

// FCMDispatcher posts JSON to the FCM HTTP v1 endpoint using an OAuth token.
// It is selected with PUSH_PROVIDER=fcm for devices registered with raw FCM
// tokens instead of Expo tokens.
type FCMDispatcher struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewFCMDispatcher(endpoint, key string) *FCMDispatcher {
	return &FCMDispatcher{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMDispatcher) Send(ctx context.Context, msg models.PushMessage) error {
	body := map[string]any{
		"message": map[string]any{
			"token":        msg.Token,
			"notification": map[string]string{"title": msg.Title, "body": msg.Body},
			"data":         msg.Data,
		},
	}
	return postJSON(ctx, f.Client, f.Endpoint, f.Key, body)
}
