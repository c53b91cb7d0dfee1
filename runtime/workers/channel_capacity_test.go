package workers

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestChannelCapacityWorker_Sample(t *testing.T) {
	req := require.New(t)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	depth := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "depth"}, []string{"channel"})

	// Given a lane holding two jobs and something that is not a channel
	lane := make(chan Job, 4)
	lane <- func(ctx context.Context) {}
	lane <- func(ctx context.Context) {}
	worker := NewChannelCapacityWorker(log, []NamedChannel{
		{Name: "lane_0", Channel: lane},
		{Name: "broken", Channel: 42},
	}, depth, time.Second)

	// When the worker samples
	worker.Sample()

	// Then only the channel is published with its length
	req.Equal(2.0, testutil.ToFloat64(depth.WithLabelValues("lane_0")))
	req.Equal(1, testutil.CollectAndCount(depth))
}
