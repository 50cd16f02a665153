package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esp32-mcp/mcp-client-go/internal/mockserver"
	"github.com/esp32-mcp/mcp-client-go/pkg/session"
)

func TestSimulatorTemperatureRange(t *testing.T) {
	sim := &simulator{}
	for i := 0; i < 120; i++ {
		sim.step = i
		v := sim.temperature()
		assert.GreaterOrEqual(t, v, 19.5)
		assert.LessOrEqual(t, v, 23.5)
	}
	sim.step = 0
	assert.Equal(t, 21.5, sim.temperature())
}

func TestSimulatorSystemInfo(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	sim := &simulator{start: start, step: 2}
	info := sim.systemInfo(start.Add(90 * time.Second))
	assert.Equal(t, int64(90), info.Uptime)
	assert.Equal(t, 200000-2*128, info.FreeHeap)
}

func TestSimulatorTickNotifiesSubscribers(t *testing.T) {
	srv := mockserver.New()
	defer srv.Close()

	cfg := session.DefaultConfig(srv.URL())
	cfg.RequestTimeout = time.Second
	s, err := session.New(cfg)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.Connect(ctx))

	var (
		mu     sync.Mutex
		values []string
	)
	ok, err := s.Subscribe(ctx, "sensor://temperature", func(data json.RawMessage) {
		mu.Lock()
		values = append(values, string(data))
		mu.Unlock()
	})
	require.NoError(t, err)
	require.True(t, ok)

	sim := &simulator{start: time.Now()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Eventually(t, func() bool {
		sim.tick(srv, time.Now(), logger)
		mu.Lock()
		defer mu.Unlock()
		return len(values) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	v, err := strconv.ParseFloat(values[0], 64)
	require.NoError(t, err)
	assert.InDelta(t, 21.5, v, 2.0)
}

func TestInstanceName(t *testing.T) {
	assert.Equal(t, "bench", instanceName("bench"))
	name := instanceName("")
	assert.NotEmpty(t, name)
	assert.LessOrEqual(t, len(name), 63)
}
