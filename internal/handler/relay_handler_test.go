package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"detection-relay/internal/gateway"
	"detection-relay/internal/types"
)

type fakeRelay struct {
	participants  []types.Participant
	detections    []types.DetectionEvent
	frames        map[string]types.VideoFrame
	notifications bool
	toggledBy     string
	err           error
}

func (f *fakeRelay) Status(context.Context) (gateway.Status, error) {
	return gateway.Status{Participants: len(f.participants), ActiveStreams: len(f.frames)}, f.err
}

func (f *fakeRelay) Participants(context.Context) ([]types.Participant, error) {
	return f.participants, f.err
}

func (f *fakeRelay) Detections(context.Context) ([]types.DetectionEvent, error) {
	return f.detections, f.err
}

func (f *fakeRelay) ActiveStreams(context.Context) ([]types.VideoFrame, error) {
	out := make([]types.VideoFrame, 0, len(f.frames))
	for _, fr := range f.frames {
		out = append(out, fr)
	}
	return out, f.err
}

func (f *fakeRelay) LatestFrame(_ context.Context, id string) (types.VideoFrame, bool, error) {
	fr, ok := f.frames[id]
	return fr, ok, f.err
}

func (f *fakeRelay) FrameStats(context.Context) ([]types.FrameStats, map[string]interface{}, error) {
	return nil, map[string]interface{}{"active_streams": len(f.frames)}, f.err
}

func (f *fakeRelay) NotificationsEnabled(context.Context) (bool, error) {
	return f.notifications, f.err
}

func (f *fakeRelay) SetNotifications(_ context.Context, enabled bool, source string) error {
	if f.err != nil {
		return f.err
	}
	f.notifications = enabled
	f.toggledBy = source
	return nil
}

func newTestRouter(t *testing.T, relay *fakeRelay) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewRelayHandler(zaptest.NewLogger(t), relay).RegisterRoutes(router.Group("/api/v1"))
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetUsers(t *testing.T) {
	relay := &fakeRelay{participants: []types.Participant{
		{ID: "a", Name: "Alice", IsActive: true, JoinedAt: time.Now()},
	}}
	w := do(newTestRouter(t, relay), http.MethodGet, "/api/v1/users", "")

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Count int                 `json:"count"`
		Users []types.Participant `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Alice", body.Users[0].Name)
}

func TestGetLatestFrame(t *testing.T) {
	relay := &fakeRelay{frames: map[string]types.VideoFrame{
		"a": {UserID: "a", UserName: "Alice", FrameData: "data:image/jpeg;base64,AAA"},
	}}
	router := newTestRouter(t, relay)

	w := do(router, http.MethodGet, "/api/v1/video/frame/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	var frame types.VideoFrame
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &frame))
	assert.Equal(t, "data:image/jpeg;base64,AAA", frame.FrameData)

	w = do(router, http.MethodGet, "/api/v1/video/frame/nobody", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestActiveStreamsOmitFrameData(t *testing.T) {
	relay := &fakeRelay{frames: map[string]types.VideoFrame{
		"a": {UserID: "a", UserName: "Alice", FrameData: "data:image/jpeg;base64,AAA"},
	}}
	w := do(newTestRouter(t, relay), http.MethodGet, "/api/v1/video/active", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "base64")
	assert.Contains(t, w.Body.String(), `"frame_size":26`)
}

func TestToggleNotifications(t *testing.T) {
	relay := &fakeRelay{}
	router := newTestRouter(t, relay)

	w := do(router, http.MethodPost, "/api/v1/notifications", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, relay.notifications)
	assert.True(t, strings.HasPrefix(relay.toggledBy, "http:"))
	assert.Contains(t, w.Body.String(), "enabled")

	w = do(router, http.MethodGet, "/api/v1/notifications", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"enabled":true}`, w.Body.String())

	w = do(router, http.MethodPost, "/api/v1/notifications", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRelayStoppedReturnsUnavailable(t *testing.T) {
	relay := &fakeRelay{err: gateway.ErrClosed}
	w := do(newTestRouter(t, relay), http.MethodGet, "/api/v1/detections", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
