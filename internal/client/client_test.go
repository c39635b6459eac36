package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"detection-relay/internal/capture"
	"detection-relay/internal/config"
	"detection-relay/internal/gateway"
	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

var _ capture.Sender = (*Client)(nil)

func newRelay(t *testing.T) (*gateway.Gateway, string) {
	t.Helper()

	cfg := config.GetDefaultConfig()
	cfg.Video.MaxFPS = 0
	g := gateway.NewGateway(cfg, zaptest.NewLogger(t))
	g.Start()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", g.ServeWS)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		g.Stop()
		srv.Close()
	})
	return g, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

type running struct {
	client *Client
	events chan proto.Envelope
	done   chan error
	cancel context.CancelFunc
}

func start(t *testing.T, cfg Config) *running {
	t.Helper()

	events := make(chan proto.Envelope, 64)
	c := New(cfg, zaptest.NewLogger(t), func(env proto.Envelope) { events <- env })

	ctx, cancel := context.WithCancel(context.Background())
	r := &running{client: c, events: events, done: make(chan error, 1), cancel: cancel}
	go func() { r.done <- c.Run(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-r.done
	})
	return r
}

func (r *running) waitJoined(t *testing.T) proto.SessionJoined {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	id, err := r.client.WaitJoined(ctx)
	require.NoError(t, err)
	return id
}

func (r *running) expect(t *testing.T, event string) proto.Envelope {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case env := <-r.events:
			if env.Event == event {
				return env
			}
		case <-timeout:
			t.Fatalf("event %s not received", event)
		}
	}
}

func TestProducerJoinsAndDetectionReachesObserver(t *testing.T) {
	g, url := newRelay(t)

	observer := start(t, Config{URL: url, Role: types.RoleObserver, UserName: "Watcher", AutoJoin: true})
	observer.waitJoined(t)

	producer := start(t, Config{URL: url, UserName: "Alice", AutoJoin: true})
	id := producer.waitJoined(t)
	assert.Equal(t, "Alice", id.UserName)
	assert.NotEmpty(t, id.UserID)
	assert.Equal(t, 2, id.ConnectedUsers)
	assert.True(t, producer.client.Connected())
	assert.True(t, producer.client.Joined())

	observer.expect(t, proto.EventUserJoined)

	score := 0.9
	require.NoError(t, producer.client.SendDetection(proto.DetectionRequest{ObjectClass: "person", Confidence: &score}))

	env := observer.expect(t, proto.EventNewDetection)
	var det types.DetectionEvent
	require.NoError(t, json.Unmarshal(env.Data, &det))
	assert.Equal(t, id.UserID, det.UserID)
	assert.Equal(t, "person", det.ObjectClass)

	require.Eventually(t, func() bool {
		d, err := g.Detections(context.Background())
		return err == nil && len(d) == 1
	}, 3*time.Second, 10*time.Millisecond)
}

func TestFramesAndStopReachObservers(t *testing.T) {
	_, url := newRelay(t)

	observer := start(t, Config{URL: url, Role: types.RoleObserver})
	require.Eventually(t, observer.client.Connected, 3*time.Second, 5*time.Millisecond)

	producer := start(t, Config{URL: url, UserName: "Alice", AutoJoin: true})
	id := producer.waitJoined(t)

	require.NoError(t, producer.client.SendFrame(proto.VideoFrameMessage{
		FrameData: capture.DataURIPrefix + "AAAA",
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}))
	env := observer.expect(t, proto.EventVideoFrame)
	var frame proto.VideoFrameMessage
	require.NoError(t, json.Unmarshal(env.Data, &frame))
	assert.Equal(t, id.UserID, frame.UserID)

	require.NoError(t, producer.client.StopStream())
	observer.expect(t, proto.EventStopVideoStream)
}

func TestRequestUsersAndToggle(t *testing.T) {
	_, url := newRelay(t)

	producer := start(t, Config{URL: url, UserName: "Alice", AutoJoin: true})
	producer.waitJoined(t)

	require.NoError(t, producer.client.RequestUsers())
	env := producer.expect(t, proto.EventUsersList)
	var users []types.Participant
	require.NoError(t, json.Unmarshal(env.Data, &users))
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Name)

	require.NoError(t, producer.client.ToggleNotifications(true))
	env = producer.expect(t, proto.EventNotificationsToggled)
	var toggled proto.NotificationsToggled
	require.NoError(t, json.Unmarshal(env.Data, &toggled))
	assert.True(t, toggled.Enabled)
}

func TestLeaveKeepsConnection(t *testing.T) {
	g, url := newRelay(t)

	producer := start(t, Config{URL: url, UserName: "Alice", AutoJoin: true})
	producer.waitJoined(t)

	require.NoError(t, producer.client.Leave())
	assert.False(t, producer.client.Joined())
	assert.True(t, producer.client.Connected())

	require.Eventually(t, func() bool {
		p, err := g.Participants(context.Background())
		return err == nil && len(p) == 0
	}, 3*time.Second, 10*time.Millisecond)
}

func TestSendWhileDisconnected(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/ws"}, zaptest.NewLogger(t), nil)

	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.SendDetection(proto.DetectionRequest{ObjectClass: "person"}), ErrNotConnected)
	assert.ErrorIs(t, c.StopStream(), ErrNotConnected)
}

func TestReconnectAttemptsAreBounded(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	srv.Close()

	c := New(Config{URL: url, MaxReconnectAttempts: 2, ReconnectDelay: 5 * time.Millisecond}, zaptest.NewLogger(t), nil)

	began := time.Now()
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrReconnectExhausted)
	assert.GreaterOrEqual(t, time.Since(began), 10*time.Millisecond)
}

func TestRunReconnectsAfterRelayRestart(t *testing.T) {
	cfg := config.GetDefaultConfig()
	first := gateway.NewGateway(cfg, zaptest.NewLogger(t))
	first.Start()

	var current atomic.Pointer[gateway.Gateway]
	current.Store(first)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current.Load().ServeWS(w, r)
	})
	srv := httptest.NewServer(handler)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	second := gateway.NewGateway(cfg, zaptest.NewLogger(t))
	second.Start()
	defer second.Stop()

	producer := start(t, Config{
		URL:                  url,
		UserName:             "Alice",
		AutoJoin:             true,
		MaxReconnectAttempts: 5,
		ReconnectDelay:       20 * time.Millisecond,
	})
	first1 := producer.waitJoined(t)

	current.Store(second)
	first.Stop()

	require.Eventually(t, func() bool {
		id := producer.client.Identity()
		return producer.client.Joined() && id.UserID != first1.UserID
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, 1, second.ConnectionCount())
}

func TestRunStopsOnCancel(t *testing.T) {
	_, url := newRelay(t)

	c := New(Config{URL: url, AutoJoin: true, UserName: "Alice"}, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err := c.WaitJoined(context.Background())
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, c.Connected())
}

func TestOnConnectRunsForEachConnection(t *testing.T) {
	_, url := newRelay(t)

	events := make(chan proto.Envelope, 16)
	c := New(Config{URL: url, Role: types.RoleObserver}, zaptest.NewLogger(t), func(env proto.Envelope) { events <- env })
	c.OnConnect(func() { c.RequestUsers() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	select {
	case env := <-events:
		assert.Equal(t, proto.EventUsersList, env.Event)
	case <-time.After(3 * time.Second):
		t.Fatal("users-list not received")
	}
}

func TestQueuedMessagesFlushedOnCancel(t *testing.T) {
	g, url := newRelay(t)

	c := New(Config{URL: url, AutoJoin: true, UserName: "Alice"}, zaptest.NewLogger(t), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	_, err := c.WaitJoined(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.SendDetection(proto.DetectionRequest{ObjectClass: "person"}))
	cancel()
	require.NoError(t, <-done)

	require.Eventually(t, func() bool {
		d, err := g.Detections(context.Background())
		return err == nil && len(d) == 1
	}, 3*time.Second, 10*time.Millisecond)
}
