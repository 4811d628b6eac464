// Package runtime handles connections, room membership and message propagation.
// It orchestrates the system without containing business logic or domain rules.
package runtime

import (
	"context"
	"educonnect/contract"
	"educonnect/domain"
	"educonnect/domain/event"
	"educonnect/moderation"
	"educonnect/repositories"
	"educonnect/runtime/workers"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

//go:embed censored/*
var censoredFolder embed.FS

type Options struct {
	HistoryWorkers       int
	HistoryLimit         int
	BufferSize           int
	MaxMessageSize       int
	PersistTimeout       time.Duration
	SinkTimeout          time.Duration
	MetricInterval       time.Duration
	LowCapacityThreshold int
	DefaultRoom          string
	PrivilegedRoom       string
	CharReplacement      rune
	CensoredWords        []string
}

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	opts           Options
	supervisor     contract.ISupervisor
	registry       *Registry
	resolver       RoomResolver
	broadcaster    *Broadcaster
	presence       *Presence
	messages       repositories.IMessageRepository
	permanentSinks []contract.EventSink
	history        chan workers.HistoryRequest
	published      chan event.DomainEvent
	started        bool
}

// NewOrchestrator builds the moderator from the embedded dictionaries and every
// runtime component sharing the same registry.
func NewOrchestrator(
	log *slog.Logger,
	supervisor contract.ISupervisor,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	opts Options) (*Orchestrator, error) {
	if opts.HistoryWorkers <= 0 {
		opts.HistoryWorkers = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.MetricInterval <= 0 {
		opts.MetricInterval = time.Minute
	}
	if opts.LowCapacityThreshold <= 0 {
		opts.LowCapacityThreshold = opts.BufferSize / 10
	}

	moderator, err := prepareModeration(log, opts.CharReplacement, opts.CensoredWords)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		log:        log,
		opts:       opts,
		supervisor: supervisor,
		registry:   NewRegistry(),
		resolver:   NewRoomResolver(rooms, opts.DefaultRoom),
		messages:   messages,
		history:    make(chan workers.HistoryRequest, opts.BufferSize),
		published:  make(chan event.DomainEvent, opts.BufferSize),
	}
	policy := domain.PostingPolicy{PrivilegedRoom: opts.PrivilegedRoom}
	o.broadcaster = NewBroadcaster(log, o.registry, o.resolver, messages, moderator, policy,
		o.published, opts.MaxMessageSize, opts.PersistTimeout)
	o.presence = NewPresence(log, o.registry, o.resolver, o.broadcaster, o, policy)
	return o, nil
}

// prepareModeration loads censored words and builds the Aho-Corasick automaton.
func prepareModeration(log *slog.Logger, charReplacement rune, extra []string) (moderation.Moderator, error) {
	loader := NewCensoredLoader(censoredFolder)
	data, err := loader.LoadAll("censored", extra...)
	if err != nil {
		return moderation.Moderator{}, err
	}

	log.Info(fmt.Sprintf("%d censored files loaded [%s]",
		len(data.Languages), strings.Join(data.Languages, ",")))
	log.Info(fmt.Sprintf("%d unique censored words loaded", len(data.Words)))

	return moderation.NewModerator(data.Words, charReplacement, log)
}

// Add registers permanent sinks. They receive every published event once Start has been called.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Start registers the history pool, the fan-out and the heartbeat, then blocks
// running the supervisor until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return fmt.Errorf("orchestrator already started")
	}
	o.started = true

	for i := 0; i < o.opts.HistoryWorkers; i++ {
		o.supervisor.Add(workers.NewHistoryLoader(o.log, o.history, o.messages, o.registry,
			o.opts.HistoryLimit, o.opts.PersistTimeout))
	}
	sinks := append([]contract.EventSink(nil), o.permanentSinks...)
	o.supervisor.Add(workers.NewEventFanout(o.log, o.published, o.opts.SinkTimeout, sinks...))
	o.supervisor.Add(workers.NewHeartbeatWorker(o.log, o.registry, o.opts.MetricInterval))
	o.supervisor.Add(workers.NewChannelCapacityWorker(o.log, []workers.NamedChannel{
		{Name: "history", Channel: o.history},
		{Name: "published", Channel: o.published},
	}, o.opts.MetricInterval, o.opts.LowCapacityThreshold))
	o.mu.Unlock()

	o.log.Info("Starting orchestrator and all supervised workers",
		"history_workers", o.opts.HistoryWorkers, "permanent_sinks", len(sinks))
	o.supervisor.Run(ctx)
	return nil
}

// Stop closes every live connection then cancels the supervised workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.presence.DisconnectAll()
	o.supervisor.Stop()
}

// RequestHistory never blocks the caller: when the queue is full the request
// waits in its own goroutine until a loader is free or ctx ends.
func (o *Orchestrator) RequestHistory(ctx context.Context, req workers.HistoryRequest) {
	select {
	case o.history <- req:
		return
	default:
	}
	o.log.Warn("History queue full, deferring request", "conn_id", req.ConnID, "room_id", req.Room)
	go func() {
		select {
		case o.history <- req:
		case <-ctx.Done():
			o.log.Debug("History request abandoned", "conn_id", req.ConnID, "room_id", req.Room)
		}
	}()
}

// Publish hands an event to the permanent sinks without waiting for them.
func (o *Orchestrator) Publish(evt event.DomainEvent) {
	select {
	case o.published <- evt:
	default:
		o.log.Warn(fmt.Sprintf("Published event channel full, dropping %T", evt), "room_id", evt.RoomID())
	}
}

// DisconnectUser closes the live connections of a user, used when the account goes away.
func (o *Orchestrator) DisconnectUser(userID string) int {
	return o.presence.DisconnectUser(userID)
}

func (o *Orchestrator) Presence() *Presence       { return o.presence }
func (o *Orchestrator) Broadcaster() *Broadcaster { return o.broadcaster }
func (o *Orchestrator) Registry() *Registry       { return o.registry }
func (o *Orchestrator) Resolver() RoomResolver    { return o.resolver }
