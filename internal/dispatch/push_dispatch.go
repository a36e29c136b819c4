package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/example/van-transfers/internal/models"
)

// PushSender delivers one push message to a device.
type PushSender interface {
	Send(ctx context.Context, msg models.PushMessage) error
}

// PushDispatcher posts to an Expo-style push endpoint:
// {"to": token, "title": ..., "body": ..., "data": {...}}.
type PushDispatcher struct {
	Endpoint    string
	AccessToken string
	Client      *http.Client
}

func NewPushDispatcher(endpoint, accessToken string) *PushDispatcher {
	return &PushDispatcher{Endpoint: endpoint, AccessToken: accessToken, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (p *PushDispatcher) Send(ctx context.Context, msg models.PushMessage) error {
	body := map[string]any{
		"to":    msg.Token,
		"title": msg.Title,
		"body":  msg.Body,
		"sound": "default",
		"data":  msg.Data,
	}
	return postJSON(ctx, p.Client, p.Endpoint, p.AccessToken, body)
}

func postJSON(ctx context.Context, client *http.Client, endpoint, bearer string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("push endpoint returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
