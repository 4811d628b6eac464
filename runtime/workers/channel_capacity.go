package workers

import (
	"context"
	"educonnect/contract"
	"fmt"
	"log/slog"
	"reflect"
	"time"
)

var _ contract.Worker = (*ChannelCapacityWorker)(nil)

type NamedChannel struct {
	Name    string
	Channel any
}

// ChannelCapacityWorker periodically samples the internal queues and warns when
// one is about to fill up, since a full queue drops events.
// Reading len and cap of a channel never blocks.
type ChannelCapacityWorker struct {
	log                  *slog.Logger
	channels             []NamedChannel
	metricInterval       time.Duration
	lowCapacityThreshold int
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel,
	metricInterval time.Duration, lowCapacityThreshold int) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:                  log,
		channels:             channels,
		metricInterval:       metricInterval,
		lowCapacityThreshold: lowCapacityThreshold,
	}
}

func (w ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
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

// Sample reports every channel once and returns the names of those running low.
func (w ChannelCapacityWorker) Sample() []string {
	var low []string
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		capacity, length := v.Cap(), v.Len()
		w.log.Debug(fmt.Sprintf("Channel %s usage: %d / %d", nc.Name, length, capacity))
		if capacity <= 0 {
			// unbuffered
			continue
		}
		if capacity-length <= w.lowCapacityThreshold {
			w.log.Warn("Channel capacity running low", "name", nc.Name, "length", length, "capacity", capacity)
			low = append(low, nc.Name)
		}
	}
	return low
}
