package controlapi

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

// StatsHandler serves GET /stats: gopsutil-backed process memory, system
// memory and load figures, plus the total, free and used share of the
// filesystem holding the recordings root.
type StatsHandler struct {
	startTime time.Time
	rootDir   string
	replayAPI *ReplayHandler
}

// NewStatsHandler creates a new stats handler. rootDir is the
// recordings root whose free space is reported.
func NewStatsHandler(rootDir string, replayAPI *ReplayHandler) *StatsHandler {
	return &StatsHandler{
		startTime: time.Now(),
		rootDir:   rootDir,
		replayAPI: replayAPI,
	}
}

// Register registers the stats route with the API.
func (h *StatsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getReplayStats",
		Method:      "GET",
		Path:        "/stats",
		Summary:     "Process and disk statistics",
		Tags:        []string{"System"},
	}, h.Get)
}

// StatsResponse reports process memory/load and recordings-root disk
// usage, alongside how many replay sessions are currently live.
type StatsResponse struct {
	UptimeSeconds   float64 `json:"uptimeSeconds"`
	CPUCores        int     `json:"cpuCores"`
	Load1Min        float64 `json:"load1Min"`
	ProcessMemoryMB float64 `json:"processMemoryMB"`
	SystemMemoryMB  float64 `json:"systemMemoryMB"`
	ActiveSessions  int     `json:"activeSessions"`
	RootDir         string  `json:"rootDir"`
	DiskTotalBytes  uint64  `json:"diskTotalBytes"`
	DiskFreeBytes   uint64  `json:"diskFreeBytes"`
	DiskUsedPercent float64 `json:"diskUsedPercent"`
}

// StatsInput is the (empty) input for the stats endpoint.
type StatsInput struct{}

// StatsOutput is the output for the stats endpoint.
type StatsOutput struct {
	Body StatsResponse
}

// Get returns current process, disk, and session statistics.
func (h *StatsHandler) Get(ctx context.Context, input *StatsInput) (*StatsOutput, error) {
	resp := StatsResponse{
		UptimeSeconds: time.Since(h.startTime).Seconds(),
		CPUCores:      runtime.NumCPU(),
		RootDir:       h.rootDir,
	}

	if avg, err := load.Avg(); err == nil && avg != nil {
		resp.Load1Min = avg.Load1
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil && mi != nil {
			resp.ProcessMemoryMB = float64(mi.RSS) / 1024 / 1024
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil && vm != nil {
		resp.SystemMemoryMB = float64(vm.Used) / 1024 / 1024
	}

	if h.rootDir != "" {
		if usage, err := disk.Usage(h.rootDir); err == nil {
			resp.DiskTotalBytes = usage.Total
			resp.DiskFreeBytes = usage.Free
			resp.DiskUsedPercent = usage.UsedPercent
		}
	}

	if h.replayAPI != nil {
		resp.ActiveSessions = h.replayAPI.SessionCount()
	}

	return &StatsOutput{Body: resp}, nil
}
