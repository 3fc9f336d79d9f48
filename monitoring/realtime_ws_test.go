package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"heartrisk/predict"
)

func startFeed(t *testing.T) (*PredictionFeed, string) {
	t.Helper()
	feed := NewPredictionFeed(zap.NewNop(), []string{"*"})
	go feed.Run()
	t.Cleanup(feed.Stop)

	srv := httptest.NewServer(http.HandlerFunc(feed.HandleWebSocket))
	t.Cleanup(srv.Close)
	return feed, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestPredictionFeedBroadcastsPredictions(t *testing.T) {
	feed, url := startFeed(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return feed.Stats().ConnectedClients == 1
	}, 2*time.Second, 10*time.Millisecond)

	feed.Publish(&predict.Result{
		ModelUsed:      "Logistic Regression",
		PredictedClass: 1,
		Label:          "At Risk of Heart Disease",
		Probability:    0.81,
		PredictionID:   "pred-42",
		RequestID:      "req-42",
		Model:          "logistic_regression",
		CreatedAt:      time.Now(),
	})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, PredictionEvent, msg.Type)
	assert.Equal(t, "pred-42", msg.ID)

	var payload PredictionMessage
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "logistic_regression", payload.Model)
	assert.Equal(t, "req-42", payload.RequestID)
	assert.Equal(t, 1, payload.PredictedClass)
	assert.InDelta(t, 0.81, payload.Probability, 1e-12)

	require.Eventually(t, func() bool {
		return feed.Stats().MessagesSent == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPredictionFeedUnregistersClosedClients(t *testing.T) {
	feed, url := startFeed(t)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return feed.Stats().ConnectedClients == 1
	}, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return feed.Stats().ConnectedClients == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subscriptions: make(map[string]bool)}
	assert.True(t, c.wants("knn"))

	c.handle(ClientMessage{Type: "subscribe", Topic: "Logistic Regression"})
	assert.True(t, c.wants("logistic_regression"))
	assert.False(t, c.wants("knn"))

	c.handle(ClientMessage{Type: "unsubscribe", Topic: "logistic_regression"})
	assert.True(t, c.wants("knn"))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://clinic.example"})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://clinic.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://elsewhere.example")
	assert.False(t, check(req))
}
