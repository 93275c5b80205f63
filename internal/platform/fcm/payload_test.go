package fcm_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch-service/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-dispatch-service/pkg/dispatch"
)

// decodeMessage round-trips the envelope through JSON the way the provider sees it.
func decodeMessage(t *testing.T, env fcm.Envelope) map[string]any {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	var out map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out["message"]
}

func TestBuildMessage(t *testing.T) {
	t.Run("No title or body omits the notification block", func(t *testing.T) {
		msg := decodeMessage(t, fcm.BuildMessage(dispatch.Request{Token: "device-1"}))

		_, present := msg["notification"]
		assert.False(t, present)
		assert.Equal(t, "device-1", msg["token"])
		assert.Equal(t, map[string]any{}, msg["data"])
	})

	t.Run("Title only yields an empty body", func(t *testing.T) {
		msg := decodeMessage(t, fcm.BuildMessage(dispatch.Request{Token: "device-1", Title: "Alert"}))

		assert.Equal(t, map[string]any{"title": "Alert", "body": ""}, msg["notification"])
	})

	t.Run("Body only yields an empty title", func(t *testing.T) {
		msg := decodeMessage(t, fcm.BuildMessage(dispatch.Request{Token: "device-1", Body: "Hi"}))

		assert.Equal(t, map[string]any{"title": "", "body": "Hi"}, msg["notification"])
	})

	t.Run("Android hints and data are fixed and passed through", func(t *testing.T) {
		msg := decodeMessage(t, fcm.BuildMessage(dispatch.Request{
			Token: "device-1",
			Data:  map[string]string{"zone": "north", "level": "3"},
		}))

		assert.Equal(t, map[string]any{
			"priority": "HIGH",
			"notification": map[string]any{
				"channel_id": "default",
				"sound":      "default",
			},
		}, msg["android"])
		assert.Equal(t, map[string]any{"zone": "north", "level": "3"}, msg["data"])
	})
}
