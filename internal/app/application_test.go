package app

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
	"go.uber.org/zap/zaptest"

	"detection-relay/internal/config"
	"detection-relay/pkg/proto"
)

func newTestApp(t *testing.T, mutate func(*config.Config)) (*Application, *httptest.Server) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	application, err := NewApplicationWithConfig(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	application.gateway.Start()
	srv := httptest.NewServer(application.GetRouter())
	t.Cleanup(func() {
		srv.Close()
		require.NoError(t, application.Stop())
	})
	return application, srv
}

func TestHealthEndpoint(t *testing.T) {
	_, srv := newTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, ServiceName, body["service"])
}

func TestUnknownRoute(t *testing.T) {
	_, srv := newTestApp(t, nil)

	resp, err := http.Get(srv.URL + "/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	_, srv := newTestApp(t, func(c *config.Config) {
		c.WebSocket.AllowedOrigins = []string{"http://dashboard.local"}
	})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/notifications", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://dashboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://dashboard.local", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestWebSocketThroughRouter(t *testing.T) {
	_, srv := newTestApp(t, nil)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?role=producer"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, err := proto.Encode(proto.EventJoinSession, proto.JoinSessionRequest{UserName: "Alice"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, msg))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := proto.DecodeEnvelope(raw)
	require.NoError(t, err)
	assert.Equal(t, proto.EventSessionJoined, env.Event)

	resp, err := http.Get(srv.URL + "/api/v1/users")
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)
}

func TestRejectsOriginNotAllowed(t *testing.T) {
	_, srv := newTestApp(t, func(c *config.Config) {
		c.WebSocket.AllowedOrigins = []string{"http://dashboard.local"}
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"http://evil.local"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
