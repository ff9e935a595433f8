package realtime

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/velsoria/argus/internal/events"
)

const testSecret = "test-secret"

type testEnv struct {
	registry *events.Registry
	hub      *events.Hub
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry := events.NewRegistry()
	gateway := New(log, registry, testSecret, 8, time.Minute, nil)

	router := gin.New()
	router.GET("/ws", gateway.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testEnv{
		registry: registry,
		hub:      events.NewHub(registry, log),
		server:   srv,
	}
}

func (e *testEnv) wsURL(token string) string {
	url := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	return url
}

func signToken(t *testing.T, secret string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, e *testEnv) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(e.wsURL(signToken(t, testSecret)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func subscribe(t *testing.T, conn *websocket.Conn, cameraID string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "subscribe", "cameraId": cameraID}))
	ack := readFrame(t, conn)
	require.Equal(t, "subscribed", ack["type"])
	require.Equal(t, cameraID, ack["cameraId"])
}

func TestRejectsMissingToken(t *testing.T) {
	e := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, e.registry.Count())
}

func TestRejectsInvalidToken(t *testing.T) {
	e := newTestEnv(t)

	_, resp, err := websocket.DefaultDialer.Dial(e.wsURL(signToken(t, "wrong-secret")), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, e.registry.Count())
}

func TestSubscribeIsAcked(t *testing.T) {
	e := newTestEnv(t)
	conn := dial(t, e)

	subscribe(t, conn, "cam-1")
}

func TestAlertDeliveredToSubscriber(t *testing.T) {
	e := newTestEnv(t)
	conn := dial(t, e)
	subscribe(t, conn, "cam-1")

	e.hub.Publish(events.Event{
		Type:        events.EventAlert,
		CameraID:    "cam-1",
		AlertID:     "a1",
		Timestamp:   "2026-08-31T10:00:00Z",
		SnapshotURL: "http://cdn.example.com/snap.jpg",
	})

	frame := readFrame(t, conn)
	assert.Equal(t, "alert", frame["type"])
	assert.Equal(t, "cam-1", frame["cameraId"])
	assert.Equal(t, "a1", frame["alertId"])
	assert.Equal(t, "http://cdn.example.com/snap.jpg", frame["snapshotUrl"])
}

func TestAlertTargetsOnlyMatchingSubscription(t *testing.T) {
	e := newTestEnv(t)
	first := dial(t, e)
	second := dial(t, e)
	subscribe(t, first, "cam-1")
	subscribe(t, second, "cam-2")

	e.hub.Publish(events.Event{Type: events.EventAlert, CameraID: "cam-1", AlertID: "a1"})

	frame := readFrame(t, first)
	assert.Equal(t, "cam-1", frame["cameraId"])

	require.NoError(t, second.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := second.ReadMessage()
	assert.Error(t, err, "second client must not receive cam-1 alerts")
}

func TestUnknownFramesAreIgnored(t *testing.T) {
	e := newTestEnv(t)
	conn := dial(t, e)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "unsubscribe", "cameraId": "cam-1"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "subscribe", "cameraId": 7}))

	// The connection survives and still accepts a valid subscribe.
	subscribe(t, conn, "cam-1")
}

func TestCloseUnregistersConnection(t *testing.T) {
	e := newTestEnv(t)
	conn := dial(t, e)
	subscribe(t, conn, "cam-1")
	require.Equal(t, 1, e.registry.Count())

	conn.Close()

	require.Eventually(t, func() bool {
		return e.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// Publishing after the close must not fail.
	e.hub.Publish(events.Event{Type: events.EventAlert, CameraID: "cam-1"})
}
