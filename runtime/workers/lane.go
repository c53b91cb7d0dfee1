package workers

import (
	"context"
	"log/slog"

	"chat-sync/contract"
)

// Job is one unit of work queued on a lane.
type Job func(ctx context.Context)

// Ensure *LaneWorker implements the contract.Worker interface at compile time.
var _ contract.Worker = (*LaneWorker)(nil)

// LaneWorker executes the jobs of one lane strictly one after the other.
// Everything routed to the same lane is therefore processed in submission order.
type LaneWorker struct {
	Index int
	jobs  <-chan Job
	log   *slog.Logger
}

func NewLaneWorker(index int, jobs <-chan Job, log *slog.Logger) *LaneWorker {
	return &LaneWorker{Index: index, jobs: jobs, log: log.With("lane", index)}
}

func (w *LaneWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping lane")
			return nil
		case job, ok := <-w.jobs:
			if !ok {
				w.log.Debug("Channel is closed")
				return nil
			}
			job(ctx)
		}
	}
}
