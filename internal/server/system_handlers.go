package server

import (
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemHandlers serves health and host resource endpoints.
type SystemHandlers struct {
	log     zerolog.Logger
	dataDir string
	started time.Time
}

// NewSystemHandlers creates system handlers.
func NewSystemHandlers(log zerolog.Logger, dataDir string) *SystemHandlers {
	return &SystemHandlers{
		log:     log.With().Str("component", "system_handlers").Logger(),
		dataDir: dataDir,
		started: time.Now().UTC(),
	}
}

// HandleHealth handles GET /health.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	})
}

// HandleSystemStatus handles GET /api/system/status.
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	if percentages, err := cpu.Percent(100*time.Millisecond, false); err == nil && len(percentages) > 0 {
		status["cpu_percent"] = percentages[0]
	} else if err != nil {
		h.log.Warn().Err(err).Msg("Failed to read CPU usage")
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		status["memory_percent"] = vm.UsedPercent
		status["memory_used_mb"] = float64(vm.Used) / 1024 / 1024
		status["memory_total_mb"] = float64(vm.Total) / 1024 / 1024
	} else {
		h.log.Warn().Err(err).Msg("Failed to read memory usage")
	}

	writeJSON(w, http.StatusOK, status)
}

// HandleDiskUsage handles GET /api/system/disk.
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	size, err := getDirSize(h.dataDir)
	if err != nil {
		h.log.Error().Err(err).Str("dir", h.dataDir).Msg("Failed to compute data directory size")
		writeError(w, http.StatusInternalServerError, "failed to compute disk usage")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data_dir": h.dataDir,
		"size_mb":  float64(size) / 1024 / 1024,
	})
}

// getDirSize walks a directory tree and sums file sizes in bytes.
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}
