package workers

import (
	"context"
	"log/slog"
	"time"

	"chat-sync/contract"
	"chat-sync/observability"
)

// Sampler is implemented by observability.Monitor.
type Sampler interface {
	Sample() observability.Snapshot
}

var _ contract.Worker = (*TelemetryWorker)(nil)

// TelemetryWorker samples the live state at a fixed interval and logs it.
type TelemetryWorker struct {
	log      *slog.Logger
	sampler  Sampler
	interval time.Duration
}

func NewTelemetryWorker(log *slog.Logger, sampler Sampler, interval time.Duration) *TelemetryWorker {
	return &TelemetryWorker{log: log, sampler: sampler, interval: interval}
}

func (w *TelemetryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			s := w.sampler.Sample()
			w.log.Info("Telemetry",
				"connections", s.Live.Connections,
				"rooms", s.Live.Rooms,
				"online_users", s.Live.OnlineUsers,
				"typing", s.Live.Typing,
				"pending_send", s.Live.PendingSend,
				"sent", s.Live.Sent,
				"rejected", s.Live.Rejected,
				"rss_bytes", s.Process.RSSBytes,
				"cpu_percent", s.Process.CPUPercent,
				"goroutines", s.Process.Goroutines,
			)
		}
	}
}
