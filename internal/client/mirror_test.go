package client

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"detection-relay/internal/capture"
	"detection-relay/internal/types"
	"detection-relay/pkg/proto"
)

func envelope(t *testing.T, event string, data any) proto.Envelope {
	t.Helper()
	raw, err := proto.Encode(event, data)
	require.NoError(t, err)
	env, err := proto.DecodeEnvelope(raw)
	require.NoError(t, err)
	return env
}

func TestMirrorUsers(t *testing.T) {
	m := NewMirror(0)

	require.NoError(t, m.Apply(envelope(t, proto.EventUsersList, []types.Participant{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
	})))
	require.NoError(t, m.Apply(envelope(t, proto.EventUserJoined, proto.UserPresence{UserID: "c", UserName: "Carol"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventUserJoined, proto.UserPresence{UserID: "c", UserName: "Carol"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventUserLeft, proto.UserPresence{UserID: "a", UserName: "Alice"})))

	var names []string
	for _, u := range m.Users() {
		names = append(names, u.Name)
	}
	assert.Equal(t, []string{"Bob", "Carol"}, names)

	require.NoError(t, m.Apply(envelope(t, proto.EventUsersList, []types.Participant{{ID: "z", Name: "Zed"}})))
	require.Len(t, m.Users(), 1, "users-list replaces the mirror")
}

func TestMirrorDetectionsCapped(t *testing.T) {
	m := NewMirror(0)

	for i := 0; i < 60; i++ {
		require.NoError(t, m.Apply(envelope(t, proto.EventNewDetection, types.DetectionEvent{
			ID:          fmt.Sprintf("E%d", i),
			ObjectClass: "person",
		})))
	}

	d := m.Detections()
	require.Len(t, d, DefaultMirrorCapacity)
	assert.Equal(t, "E59", d[0].ID)
	assert.Equal(t, "E10", d[len(d)-1].ID)
}

func TestMirrorFramesAndTiles(t *testing.T) {
	m := NewMirror(0)
	require.NoError(t, m.Apply(envelope(t, proto.EventUsersList, []types.Participant{
		{ID: "a", Name: "Alice"},
		{ID: "b", Name: "Bob"},
	})))

	require.NoError(t, m.Apply(envelope(t, proto.EventVideoFrame, proto.VideoFrameMessage{UserID: "a", FrameData: "one"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventVideoFrame, proto.VideoFrameMessage{UserID: "a", FrameData: "two"})))

	f, ok := m.Frame("a")
	require.True(t, ok)
	assert.Equal(t, "two", f.FrameData, "latest frame wins")

	tiles := m.Tiles()
	require.Len(t, tiles, 2)
	assert.False(t, tiles[0].Waiting())
	assert.True(t, tiles[1].Waiting())

	require.NoError(t, m.Apply(envelope(t, proto.EventStopVideoStream, proto.StopVideoStream{UserID: "a"})))
	_, ok = m.Frame("a")
	assert.False(t, ok)
	assert.True(t, m.Tiles()[0].Waiting())
}

func TestMirrorUserLeftEvictsFrame(t *testing.T) {
	m := NewMirror(0)
	require.NoError(t, m.Apply(envelope(t, proto.EventVideoFrame, proto.VideoFrameMessage{UserID: "a", FrameData: "x"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventUserLeft, proto.UserPresence{UserID: "a"})))

	_, ok := m.Frame("a")
	assert.False(t, ok)
}

func TestMirrorResetAndMalformed(t *testing.T) {
	m := NewMirror(0)
	require.NoError(t, m.Apply(envelope(t, proto.EventUserJoined, proto.UserPresence{UserID: "a"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventNewDetection, types.DetectionEvent{ID: "E1"})))
	require.NoError(t, m.Apply(envelope(t, proto.EventVideoFrame, proto.VideoFrameMessage{UserID: "a"})))

	m.Reset()
	assert.Empty(t, m.Users())
	assert.Empty(t, m.Detections())
	_, ok := m.Frame("a")
	assert.False(t, ok)

	err := m.Apply(proto.Envelope{Event: proto.EventUsersList, Data: []byte(`{"not":"a list"}`)})
	assert.Error(t, err)
	assert.NoError(t, m.Apply(proto.Envelope{Event: proto.EventNotificationsToggled, Data: []byte(`{}`)}))
}

func TestMirrorFollowsRelay(t *testing.T) {
	_, url := newRelay(t)

	mirror := NewMirror(0)
	observer := New(Config{URL: url, Role: types.RoleObserver}, zaptest.NewLogger(t), func(env proto.Envelope) {
		mirror.Apply(env)
	})
	observer.OnConnect(func() {
		mirror.Reset()
		observer.RequestUsers()
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- observer.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	require.Eventually(t, observer.Connected, 3*time.Second, 5*time.Millisecond)

	producer := start(t, Config{URL: url, UserName: "Alice", AutoJoin: true})
	id := producer.waitJoined(t)

	require.Eventually(t, func() bool {
		tiles := mirror.Tiles()
		return len(tiles) == 1 && tiles[0].UserID == id.UserID && tiles[0].Waiting()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, producer.client.SendFrame(proto.VideoFrameMessage{FrameData: capture.DataURIPrefix + "AAAA"}))
	require.Eventually(t, func() bool {
		tiles := mirror.Tiles()
		return len(tiles) == 1 && !tiles[0].Waiting()
	}, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, producer.client.StopStream())
	require.Eventually(t, func() bool {
		tiles := mirror.Tiles()
		return len(tiles) == 1 && tiles[0].Waiting()
	}, 3*time.Second, 10*time.Millisecond)
}
