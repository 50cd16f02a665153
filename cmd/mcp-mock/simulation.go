package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/esp32-mcp/mcp-client-go/internal/mockserver"
)

// simulator produces synthetic sensor and system readings.
type simulator struct {
	start time.Time
	step  int
}

type systemInfo struct {
	Uptime   int64 `json:"uptime"`
	FreeHeap int   `json:"freeHeap"`
}

// temperature oscillates around 21.5 with a period of 60 steps.
func (s *simulator) temperature() float64 {
	v := 21.5 + 2*math.Sin(2*math.Pi*float64(s.step)/60)
	return math.Round(v*10) / 10
}

func (s *simulator) systemInfo(now time.Time) systemInfo {
	return systemInfo{
		Uptime:   int64(now.Sub(s.start).Seconds()),
		FreeHeap: 200000 - (s.step%50)*128,
	}
}

// tick advances the simulation and pushes updated values to srv.
func (s *simulator) tick(srv *mockserver.Server, now time.Time, logger *slog.Logger) {
	s.step++

	temp, _ := json.Marshal(s.temperature())
	n := srv.UpdateValue("sensor://temperature", temp)

	info, _ := json.Marshal(s.systemInfo(now))
	m := srv.UpdateValue("system://info", info)

	logger.Debug("[SIM] update", "temperature", string(temp), "notified", n+m)
}

func runSimulation(ctx context.Context, srv *mockserver.Server, interval time.Duration, logger *slog.Logger) {
	logger.Info("Simulation mode enabled", "interval", interval)

	sim := &simulator{start: time.Now()}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sim.tick(srv, now, logger)
		}
	}
}
