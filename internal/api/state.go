package api

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/gaspardpetit/text2mesh/internal/inflight"
	"github.com/gaspardpetit/text2mesh/internal/logx"
	"github.com/gaspardpetit/text2mesh/internal/serverstate"
)

// HostInfo describes the machine the server runs on.
type HostInfo struct {
	LogicalCPUs  int     `json:"logical_cpus"`
	PhysicalCPUs int     `json:"physical_cpus,omitempty"`
	MemTotal     uint64  `json:"mem_total_bytes,omitempty"`
	MemAvailable uint64  `json:"mem_available_bytes,omitempty"`
	MemUsedPct   float64 `json:"mem_used_percent,omitempty"`
	Goroutines   int     `json:"goroutines"`
}

// StateSnapshot is the body of GET /state.
type StateSnapshot struct {
	serverstate.State
	Inflight int64    `json:"inflight"`
	Host     HostInfo `json:"host"`
}

// StateHandler serves server state snapshots.
type StateHandler struct {
	Inflight *inflight.Counter
}

// GetState returns a JSON snapshot of the lifecycle state and host figures.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	snap := StateSnapshot{
		State: serverstate.Get(),
		Host:  hostInfo(r.Context()),
	}
	if h.Inflight != nil {
		snap.Inflight = h.Inflight.Load()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logx.Log.Error().Err(err).Msg("write state")
	}
}

func hostInfo(ctx context.Context) HostInfo {
	info := HostInfo{LogicalCPUs: runtime.NumCPU(), Goroutines: runtime.NumGoroutine()}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil {
		info.PhysicalCPUs = n
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		info.MemTotal = vm.Total
		info.MemAvailable = vm.Available
		info.MemUsedPct = vm.UsedPercent
	} else {
		logx.Log.Debug().Err(err).Msg("host memory unavailable")
	}
	return info
}
