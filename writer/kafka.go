package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "energylink/config"
	"energylink/events"
	"energylink/logger"
)

// messageWriter is the part of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// EventPublisher forwards bus events to a Kafka topic. Handler never blocks
// the publisher: when the buffer is full the event is dropped and counted.
type EventPublisher struct {
	config  appconfig.KafkaConfig
	eventCh chan events.Event
	writer  messageWriter
	cancel  context.CancelFunc
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	dropped atomic.Int64
	log     *logger.Log
}

func NewEventPublisher(cfg appconfig.KafkaConfig) (*EventPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return newEventPublisher(cfg, w), nil
}

func newEventPublisher(cfg appconfig.KafkaConfig, w messageWriter) *EventPublisher {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 256
	}
	ep := &EventPublisher{
		config:  cfg,
		eventCh: make(chan events.Event, buffer),
		writer:  w,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
	ep.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka event publisher initialized")
	return ep
}

// Handler returns the bus handler that enqueues events.
func (ep *EventPublisher) Handler() events.Handler {
	return func(e events.Event) {
		select {
		case ep.eventCh <- e:
		default:
			if n := ep.dropped.Add(1); n%100 == 1 {
				ep.log.WithComponent("kafka_writer").WithFields(logger.Fields{"dropped": n}).Warn("event buffer full, dropping events")
			}
		}
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (ep *EventPublisher) Dropped() int64 { return ep.dropped.Load() }

func (ep *EventPublisher) Start(ctx context.Context) error {
	ep.mu.Lock()
	if ep.running {
		ep.mu.Unlock()
		return fmt.Errorf("kafka event publisher already running")
	}
	ep.running = true
	ctx, ep.cancel = context.WithCancel(ctx)
	ep.mu.Unlock()

	ep.log.WithComponent("kafka_writer").Debug("starting kafka event publisher")

	ep.wg.Add(1)
	go ep.run(ctx)
	return nil
}

func (ep *EventPublisher) run(ctx context.Context) {
	defer ep.wg.Done()

	for {
		select {
		case <-ctx.Done():
			ep.drain()
			return
		case e := <-ep.eventCh:
			ep.write(ctx, e)
		}
	}
}

// drain flushes what is already buffered with a short deadline.
func (ep *EventPublisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case e := <-ep.eventCh:
			ep.write(ctx, e)
		default:
			return
		}
	}
}

func (ep *EventPublisher) write(ctx context.Context, e events.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		ep.log.WithComponent("kafka_writer").WithError(err).WithFields(logger.Fields{"type": e.Type}).Warn("failed to marshal event")
		return
	}
	msg := kafka.Message{
		Key:     []byte(e.Source),
		Value:   data,
		Time:    e.Timestamp,
		Headers: []kafka.Header{{Key: "type", Value: []byte(e.Type)}},
	}
	if err := ep.writer.WriteMessages(ctx, msg); err != nil {
		ep.log.WithComponent("kafka_writer").WithError(err).Warn("failed to write event")
		return
	}
	ep.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"event_id": e.ID,
		"type":     e.Type,
	}).Debug("event written to kafka")
}

func (ep *EventPublisher) Stop() {
	ep.mu.Lock()
	if !ep.running {
		ep.mu.Unlock()
		return
	}
	ep.running = false
	cancel := ep.cancel
	ep.mu.Unlock()

	ep.log.WithComponent("kafka_writer").Debug("stopping kafka event publisher")
	cancel()
	ep.wg.Wait()
	if err := ep.writer.Close(); err != nil {
		ep.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	ep.log.WithComponent("kafka_writer").Debug("kafka event publisher stopped")
}
