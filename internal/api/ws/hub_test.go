package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvares777-IA/cameras-arcos/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	go hub.Run(ctx)

	r := gin.New()
	r.GET("/ws", hub.HandleWS)
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastsWithCameraFilter(t *testing.T) {
	hub, url := startHub(t)

	all := dial(t, url)
	gate := dial(t, url+"?camera_id=2")
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, hub.PublishEvent(context.Background(), models.DomainEvent{Type: models.EventSegmentRecorded, CameraID: 1}))
	require.NoError(t, hub.PublishEvent(context.Background(), models.DomainEvent{Type: models.EventVisitorEnrolled, CameraID: 2, IdentityName: "VISITOR 1"}))

	var ev models.DomainEvent
	_ = all.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, models.EventSegmentRecorded, ev.Type)
	require.NoError(t, all.ReadJSON(&ev))
	assert.Equal(t, models.EventVisitorEnrolled, ev.Type)

	_ = gate.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, gate.ReadJSON(&ev))
	assert.Equal(t, models.EventVisitorEnrolled, ev.Type)
	assert.Equal(t, "VISITOR 1", ev.IdentityName)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHub_RejectsBadFilter(t *testing.T) {
	_, url := startHub(t)

	_, resp, err := websocket.DefaultDialer.Dial(url+"?camera_id=abc", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 400, resp.StatusCode)
}
