package workers

import (
	"context"
	"educonnect/contract"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

var _ contract.Worker = (*HeartbeatWorker)(nil)

// HeartbeatWorker periodically logs the process health next to the registry counters.
type HeartbeatWorker struct {
	log      *slog.Logger
	registry contract.IRegistry
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, registry contract.IRegistry, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{log: log, registry: registry, interval: interval}
}

// Run executes the main loop of the worker, reporting CPU, RAM, status and presence every interval.
func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Beat(p)
		}
	}
}

func (w *HeartbeatWorker) Beat(p *process.Process) {
	stats := w.registry.Stats()
	rss, cpu, status, err := getSelfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	w.log.Info("Heartbeat",
		"pid", p.Pid,
		"status", status,
		"cpu_percent", cpu,
		"ram_bytes", rss,
		"connections", stats.Connections,
		"rooms", stats.Rooms,
		"members", stats.Members,
	)
}

// getSelfStats retrieves technical metrics (Memory, CPU, and OS Status) for the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
