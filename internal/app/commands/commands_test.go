package commands

import (
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"detection-relay/internal/capture"
	"detection-relay/internal/client"
	"detection-relay/internal/config"
	"detection-relay/internal/gateway"
)

func TestGetCommands(t *testing.T) {
	var names []string
	for _, cmd := range GetCommands() {
		names = append(names, cmd.Name)
	}
	assert.Equal(t, []string{"server", "producer", "observe", "health-check", "version"}, names)
}

func TestCreateLogger(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := createLogger("debug", format)
		require.NoError(t, err)
		assert.True(t, logger.Core().Enabled(-1), "debug enabled for %s", format)
	}

	logger, err := createLogger("warn", "json")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(0))
}

func writeFrames(t *testing.T, dir string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	img.Set(1, 1, color.RGBA{G: 255, A: 255})
	f, err := os.Create(filepath.Join(dir, "000.png"))
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func TestRunProducerBroadcastsUntilCancelled(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Video.MaxFPS = 0
	gw := gateway.NewGateway(cfg, zaptest.NewLogger(t))
	gw.Start()
	defer gw.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", gw.ServeWS)
	relaySrv := httptest.NewServer(mux)
	defer relaySrv.Close()

	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]capture.Prediction{{Class: "person", Score: 0.9}})
	}))
	defer classifier.Close()

	dir := t.TempDir()
	writeFrames(t, dir)
	source, err := capture.NewDirSource(dir, time.Second)
	require.NoError(t, err)

	p := config.DefaultProducerConfig()
	p.RelayURL = "ws" + strings.TrimPrefix(relaySrv.URL, "http") + "/ws"
	p.UserName = "Alice"
	p.DetectionInterval = 10 * time.Millisecond
	p.FrameInterval = 10 * time.Millisecond

	logger := zaptest.NewLogger(t)
	relay := client.New(client.ConfigFromProducer(p), logger, nil)
	scheduler := capture.NewScheduler(capture.ConfigFromProducer(p), source,
		capture.NewHTTPClassifier(classifier.URL, time.Second),
		capture.NewLogOverlay(logger), relay, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runProducer(ctx, relay, scheduler, logger) }()

	require.Eventually(t, func() bool {
		frames, err := gw.ActiveStreams(context.Background())
		if err != nil || len(frames) != 1 {
			return false
		}
		detections, err := gw.Detections(context.Background())
		return err == nil && len(detections) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("producer did not stop")
	}

	require.Eventually(t, func() bool {
		frames, err := gw.ActiveStreams(context.Background())
		return err == nil && len(frames) == 0
	}, 3*time.Second, 10*time.Millisecond)
	assert.False(t, scheduler.Broadcasting())
}

func TestRunProducerFailsWhenModelDoesNotLoad(t *testing.T) {
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no model", http.StatusInternalServerError)
	}))
	defer classifier.Close()

	dir := t.TempDir()
	writeFrames(t, dir)
	source, err := capture.NewDirSource(dir, time.Second)
	require.NoError(t, err)

	p := config.DefaultProducerConfig()
	p.RelayURL = "ws://127.0.0.1:1/ws"
	p.ReconnectDelay = time.Second

	logger := zaptest.NewLogger(t)
	relay := client.New(client.ConfigFromProducer(p), logger, nil)
	scheduler := capture.NewScheduler(capture.ConfigFromProducer(p), source,
		capture.NewHTTPClassifier(classifier.URL, time.Second),
		capture.NewLogOverlay(logger), relay, logger)

	err = runProducer(context.Background(), relay, scheduler, logger)
	assert.ErrorIs(t, err, capture.ErrModelLoad)
	assert.False(t, scheduler.Broadcasting())
}
