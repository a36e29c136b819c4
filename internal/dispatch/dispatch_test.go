package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/van-transfers/internal/models"
	"github.com/example/van-transfers/internal/storage"
)

type fakeConn struct {
	mu      sync.Mutex
	written []any
	fail    bool
	closed  bool
}

func (f *fakeConn) WriteJSON(v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("broken pipe")
	}
	f.written = append(f.written, v)
	return nil
}

func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeConn) Close() error { f.closed = true; return nil }

type fakeQueue struct{ msgs []models.PushMessage }

func (q *fakeQueue) PublishPush(ctx context.Context, msg models.PushMessage) error {
	q.msgs = append(q.msgs, msg)
	return nil
}

func TestRegistryDropsBrokenSessions(t *testing.T) {
	r := NewWSRegistry()
	good := &fakeConn{}
	bad := &fakeConn{fail: true}
	r.Add("u1", good)
	r.Add("u1", bad)

	n := r.Publish(models.Notification{ID: "n1", ProfileID: "u1"})
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Count("u1"))
	assert.True(t, bad.closed)
	assert.Len(t, good.written, 1)
}

func TestNotifyWritesRowPublishesAndQueuesPush(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProfile(ctx, &models.Profile{ID: "u1", PushToken: "ExponentPushToken[abc]"}))

	reg := NewWSRegistry()
	conn := &fakeConn{}
	reg.Add("u1", conn)
	q := &fakeQueue{}
	n := &Notifier{Store: store, Realtime: reg, Queue: q}

	note, err := n.Notify(ctx, "u1", "Reserva confirmada", "2 assentos", map[string]string{"route": "/transfers/t1"})
	require.NoError(t, err)

	list, _ := store.ListNotifications(ctx, "u1", 10)
	require.Len(t, list, 1)
	assert.Equal(t, note.ID, list[0].ID)
	assert.Len(t, conn.written, 1)
	require.Len(t, q.msgs, 1)
	assert.Equal(t, "ExponentPushToken[abc]", q.msgs[0].Token)
	assert.Equal(t, "/transfers/t1", q.msgs[0].Data["route"])
}

func TestNotifySkipsPushWithoutToken(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.CreateProfile(ctx, &models.Profile{ID: "u1"}))
	q := &fakeQueue{}
	n := &Notifier{Store: store, Queue: q}

	_, err := n.Notify(ctx, "u1", "t", "b", nil)
	require.NoError(t, err)
	assert.Empty(t, q.msgs)
}

func TestPushDispatcherPostsExpoPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := NewPushDispatcher(srv.URL, "tok")
	err := p.Send(context.Background(), models.PushMessage{Token: "ExponentPushToken[x]", Title: "Hi", Body: "there", Data: map[string]string{"k": "v"}})
	require.NoError(t, err)
	assert.Equal(t, "ExponentPushToken[x]", got["to"])
	assert.Equal(t, "Hi", got["title"])
}

func TestPushDispatcherReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad token", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewPushDispatcher(srv.URL, "").Send(context.Background(), models.PushMessage{Token: "x"})
	assert.Error(t, err)
}

func TestFCMDispatcherWrapsMessage(t *testing.T) {
	var got struct {
		Message struct {
			Token        string            `json:"token"`
			Notification map[string]string `json:"notification"`
		} `json:"message"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
	}))
	defer srv.Close()

	require.NoError(t, NewFCMDispatcher(srv.URL, "k").Send(context.Background(), models.PushMessage{Token: "fcm-1", Title: "T", Body: "B"}))
	assert.Equal(t, "fcm-1", got.Message.Token)
	assert.Equal(t, "T", got.Message.Notification["title"])
}
