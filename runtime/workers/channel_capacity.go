package workers

import (
	"context"
	"log/slog"
	"reflect"
	"time"

	"chat-sync/contract"

	"github.com/prometheus/client_golang/prometheus"
)

type NamedChannel struct {
	Name    string
	Channel any
}

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

// ChannelCapacityWorker periodically publishes the length of internal channels.
// Reading len(channel) is non-blocking, so sampling never interferes with the
// goroutines using them.
type ChannelCapacityWorker struct {
	log      *slog.Logger
	channels []NamedChannel
	depth    *prometheus.GaugeVec
	interval time.Duration
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	depth *prometheus.GaugeVec, interval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{log: log, channels: channels, depth: depth, interval: interval}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample publishes the current length of every channel.
func (w *ChannelCapacityWorker) Sample() {
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		w.depth.WithLabelValues(nc.Name).Set(float64(v.Len()))
		if v.Cap() > 0 && v.Len() == v.Cap() {
			w.log.Warn("Channel is full", "name", nc.Name, "capacity", v.Cap())
		}
	}
}
