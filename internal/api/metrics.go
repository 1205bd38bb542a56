package api

import (
	"context"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/skip2/go-qrcode"

	"github.com/nerrad567/showloop/internal/process"
)

// hostProbeTimeout bounds the gopsutil calls in handleSystemMetrics.
const hostProbeTimeout = 2 * time.Second

// QR code size bounds, in pixels.
const (
	defaultQRSize = 256
	minQRSize     = 128
	maxQRSize     = 1024
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string          `json:"timestamp"`
	Version       string          `json:"version"`
	UptimeSeconds int64           `json:"uptime_seconds"`
	Player        PlayerMetrics   `json:"player"`
	Runtime       RuntimeMetrics  `json:"runtime"`
	Host          *HostMetrics    `json:"host,omitempty"`
	WebSocket     WSMetrics       `json:"websocket"`
	MQTT          *MQTTMetrics    `json:"mqtt,omitempty"`
	Database      *DatabaseStatus `json:"database,omitempty"`
	Renderer      *process.Stats  `json:"renderer,omitempty"`
}

// PlayerMetrics summarises playback.
type PlayerMetrics struct {
	ID             string `json:"id"`
	SceneID        string `json:"scene_id"`
	Phase          string `json:"phase"`
	Playing        bool   `json:"is_playing"`
	ManualOverride bool   `json:"manual_override"`
	Activation     uint64 `json:"activation"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// HostMetrics describes the kiosk machine. Fields the platform cannot
// report are left zero.
type HostMetrics struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryTotalMB     float64 `json:"memory_total_mb"`
	Load1             float64 `json:"load_1"`
	UptimeSeconds     uint64  `json:"uptime_seconds"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
	Displays         int `json:"displays"`
}

// MQTTMetrics contains MQTT client statistics.
type MQTTMetrics struct {
	Connected bool `json:"connected"`
}

// DatabaseStatus reports whether the history database answers.
type DatabaseStatus struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// handleSystemMetrics returns player, runtime, and host metrics.
func (s *Server) handleSystemMetrics(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	snap := s.player.Last()
	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Player: PlayerMetrics{
			ID:             s.playerID,
			SceneID:        snap.SceneID,
			Phase:          string(snap.Phase),
			Playing:        snap.Playing,
			ManualOverride: snap.ManualOverride,
			Activation:     snap.Activation,
		},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
			Displays:         s.hub.DisplayCount(),
		},
	}

	ctx, cancel := context.WithTimeout(r.Context(), hostProbeTimeout)
	defer cancel()
	metrics.Host = probeHost(ctx)

	if s.mqtt != nil {
		metrics.MQTT = &MQTTMetrics{Connected: s.mqtt.IsConnected()}
	}
	if s.db != nil {
		metrics.Database = &DatabaseStatus{Healthy: true}
		if err := s.db.HealthCheck(ctx); err != nil {
			metrics.Database = &DatabaseStatus{Error: err.Error()}
		}
	}
	if s.renderer != nil {
		stats := s.renderer.Stats()
		metrics.Renderer = &stats
	}

	writeJSON(w, http.StatusOK, metrics)
}

// probeHost collects host statistics. Each probe is independent; a
// failing one leaves its fields zero.
func probeHost(ctx context.Context) *HostMetrics {
	var h HostMetrics
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		h.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		h.MemoryUsedPercent = vm.UsedPercent
		h.MemoryTotalMB = float64(vm.Total) / 1024 / 1024
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		h.Load1 = avg.Load1
	}
	if up, err := host.UptimeWithContext(ctx); err == nil {
		h.UptimeSeconds = up
	}
	return &h
}

// handleControlQR renders a QR code pointing operators' phones at the
// control view of the panel.
//
// Query parameters:
//   - size: image edge in pixels (default 256, 128-1024)
func (s *Server) handleControlQR(w http.ResponseWriter, r *http.Request) {
	size := defaultQRSize
	if v := r.URL.Query().Get("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "size must be an integer")
			return
		}
		size = min(max(n, minQRSize), maxQRSize)
	}

	png, err := qrcode.Encode(s.controlURL(), qrcode.Medium, size)
	if err != nil {
		s.logger.Error("failed to encode control QR", "error", err)
		writeInternalError(w, "failed to encode QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Best-effort write to response
	w.Write(png)
}

// controlURL is the operator entry point encoded in the QR code.
func (s *Server) controlURL() string {
	return s.publicURL + "/panel/#control"
}
