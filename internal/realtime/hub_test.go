package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/incident-radar/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func waitForSubscribers(t *testing.T, h *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Count() == n }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_DeliversEventsToAllSubscribers(t *testing.T) {
	hub := NewHub(Config{})
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	first := dial(t, server)
	second := dial(t, server)
	waitForSubscribers(t, hub, 2)

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	hub.Publish(domain.NewDataSourceSyncEvent(at, "ds-1", true, ""))

	for _, conn := range []*websocket.Conn{first, second} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)

		var got struct {
			Type string         `json:"type"`
			Data map[string]any `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &got))
		assert.Equal(t, "data_source_sync", got.Type)
		assert.Equal(t, "ds-1", got.Data["dataSourceId"])
		assert.Equal(t, "2024-01-01T12:00:00Z", got.Data["timestamp"])
	}
}

func TestHub_PublishWithoutSubscribers(t *testing.T) {
	hub := NewHub(Config{})
	assert.NotPanics(t, func() {
		hub.Publish(domain.NewSyncStartedEvent(time.Now(), "schedule"))
	})
}

func TestHub_DropsSlowSubscriber(t *testing.T) {
	hub := NewHub(Config{SendBuffer: 1})
	slow := &client{hub: hub, send: make(chan []byte, 1)}
	hub.clients[slow] = struct{}{}

	hub.Publish(domain.NewSyncStartedEvent(time.Now(), "schedule"))
	assert.Equal(t, 1, hub.Count())

	hub.Publish(domain.NewSyncStartedEvent(time.Now(), "schedule"))
	assert.Zero(t, hub.Count())

	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "send queue is closed once the subscriber is dropped")

	assert.NotPanics(t, func() {
		hub.Publish(domain.NewSyncStartedEvent(time.Now(), "schedule"))
	})
}

func TestHub_DisconnectedSubscriberIsPruned(t *testing.T) {
	hub := NewHub(Config{})
	server := httptest.NewServer(hub)
	defer server.Close()
	defer hub.Close()

	conn := dial(t, server)
	waitForSubscribers(t, hub, 1)

	require.NoError(t, conn.Close())
	waitForSubscribers(t, hub, 0)

	assert.NotPanics(t, func() {
		hub.Publish(domain.NewSystemSyncEvent(time.Now(), "node-1", 1, 0))
	})
}

func TestHub_CloseRejectsNewSubscribers(t *testing.T) {
	hub := NewHub(Config{})
	server := httptest.NewServer(hub)
	defer server.Close()

	dial(t, server)
	waitForSubscribers(t, hub, 1)

	hub.Close()
	assert.Zero(t, hub.Count())

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))
	assert.Zero(t, hub.Count())
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://status.example.com"})

	allowed, _ := http.NewRequest(http.MethodGet, "/", nil)
	allowed.Header.Set("Origin", "https://status.example.com")
	assert.True(t, check(allowed))

	denied, _ := http.NewRequest(http.MethodGet, "/", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(denied))

	assert.True(t, originChecker(nil)(denied))
	assert.True(t, originChecker([]string{"*"})(denied))
}
