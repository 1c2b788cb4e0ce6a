package workers

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"

	"market-live/contract"
	"market-live/observability"
)

// Ensure *ReaperWorker implements the contract.Worker interface at compile
// time, so a signature drift fails here instead of in a distant package.
var _ contract.Worker = (*ReaperWorker)(nil)

// ReaperWorker deregisters connections without a heartbeat inside the idle
// window, keeping the registry's fan-out sets accurate. It also samples
// its own process stats (RSS, CPU) for the diagnostic snapshot.
type ReaperWorker struct {
	log        *slog.Logger
	registry   contract.IRegistry
	monitoring *observability.MonitoringManager
	interval   time.Duration
	idleWindow time.Duration
}

func NewReaperWorker(
	log *slog.Logger,
	registry contract.IRegistry,
	monitoring *observability.MonitoringManager,
	interval, idleWindow time.Duration,
) *ReaperWorker {
	return &ReaperWorker{
		log:        log,
		registry:   registry,
		monitoring: monitoring,
		interval:   interval,
		idleWindow: idleWindow,
	}
}

func (w *ReaperWorker) Run(ctx context.Context) error {
	w.log.Info("Starting idle connection reaper", "interval", w.interval, "idle_window", w.idleWindow)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reaped := w.registry.ReapIdle(w.idleWindow)
			if reaped > 0 {
				w.monitoring.AddConnectionsReaped(uint64(reaped))
				w.log.Info("Reaped idle connections", "count", reaped)
			}

			rss, cpu, err := getSelfStats(p)
			if err != nil {
				w.log.Error("Failed to collect self stats", "err", err)
				continue
			}
			w.monitoring.SetSelfStats(rss, cpu)
		}
	}
}

// getSelfStats retrieves memory and CPU usage for the given process.
func getSelfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
