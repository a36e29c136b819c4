package ingest

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/van-transfers/internal/models"
)

func TestDecodePush(t *testing.T) {
	in := models.PushMessage{NotificationID: "n1", ProfileID: "u1", Token: "tok", Title: "T", Data: map[string]string{"a": "b"}}
	b, err := json.Marshal(in)
	require.NoError(t, err)

	out, err := DecodePush(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestDecodePushRejectsMissingToken(t *testing.T) {
	_, err := DecodePush([]byte(`{"notification_id":"n1"}`))
	assert.Error(t, err)

	_, err = DecodePush([]byte(`not json`))
	assert.Error(t, err)
}
