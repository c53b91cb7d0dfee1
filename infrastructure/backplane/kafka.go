// Package backplane forwards room broadcasts between nodes over a Kafka topic.
// Delivery across nodes is best effort: ordering and exactly once are only
// guaranteed inside one process.
//
//go:generate go run go.uber.org/mock/mockgen -source=kafka.go -destination=../../mocks/mock_kafka.go -package=mocks
package backplane

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/domain/event"

	"github.com/segmentio/kafka-go"
)

const dialTimeout = 5 * time.Second

type IKafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type IKafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// record is the value published for one broadcast.
type record struct {
	Origin      string          `json:"origin"`
	Room        domain.RoomID   `json:"room"`
	Event       event.Name      `json:"event"`
	Data        json.RawMessage `json:"data"`
	ExcludeConn domain.ConnID   `json:"excludeConn,omitempty"`
	ExcludeUser domain.UserID   `json:"excludeUser,omitempty"`
}

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// NewWriter is asynchronous: a broadcast never waits for the brokers.
func NewWriter(cfg Config, log *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("Backplane publish failed", "count", len(messages), "error", err)
			}
		},
	}
}

// NewReader joins the node's own consumer group so every node sees every record.
func NewReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.Brokers,
		GroupID: cfg.GroupID,
		Topic:   cfg.Topic,
		Dialer: &kafka.Dialer{
			Timeout:   dialTimeout,
			DualStack: true,
		},
	})
}

var _ contract.Backplane = (*Publisher)(nil)

// Publisher implements contract.Backplane. Records are keyed by room so one room stays on one partition.
type Publisher struct {
	node   string
	writer IKafkaWriter
	log    *slog.Logger
}

func NewPublisher(node string, writer IKafkaWriter, log *slog.Logger) *Publisher {
	return &Publisher{node: node, writer: writer, log: log}
}

func (p *Publisher) Publish(ctx context.Context, room domain.RoomID, evt event.DomainEvent, exclude contract.Exclude) error {
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("encode %s: %w", evt.EventName(), err)
	}
	value, err := json.Marshal(record{
		Origin:      p.node,
		Room:        room,
		Event:       evt.EventName(),
		Data:        data,
		ExcludeConn: exclude.Conn,
		ExcludeUser: exclude.User,
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(room), Value: value})
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ contract.Worker = (*Consumer)(nil)

// Consumer delivers the records published by other nodes to the local rooms.
type Consumer struct {
	node   string
	reader IKafkaReader
	local  contract.IBroadcaster
	log    *slog.Logger
}

func NewConsumer(node string, reader IKafkaReader, local contract.IBroadcaster, log *slog.Logger) *Consumer {
	return &Consumer{node: node, reader: reader, local: local, log: log}
}

// Run returns nil on cancellation and the fetch error otherwise, so the supervisor restarts it.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch backplane record: %w", err)
		}
		c.deliver(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Warn("Backplane commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) deliver(ctx context.Context, msg kafka.Message) {
	var rec record
	if err := json.Unmarshal(msg.Value, &rec); err != nil {
		c.log.Warn("Dropping undecodable backplane record", "offset", msg.Offset, "error", err)
		return
	}
	if rec.Origin == c.node {
		return
	}
	delivered := c.local.Broadcast(ctx, rec.Room, event.Raw{Name: rec.Event, Data: rec.Data},
		contract.Exclude{Conn: rec.ExcludeConn, User: rec.ExcludeUser})
	c.log.Debug("Backplane record delivered", "origin", rec.Origin, "room", rec.Room, "event", rec.Event, "delivered", delivered)
}
