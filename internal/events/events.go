// Package events announces completed analyses to other services.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

const (
	DefaultExchange = "ats_events"
	RoutingKey      = "analysis.completed"
)

// AnalysisEvent is published once a result has been stored.
type AnalysisEvent struct {
	ID               string    `json:"id"`
	ResumeURL        string    `json:"resumeURL"`
	KeywordScore     int       `json:"keywordScore"`
	TFIDFScore       int       `json:"tfidfScore"`
	SemanticScore    int       `json:"semanticScore"`
	SemanticDegraded bool      `json:"semanticDegraded"`
	CompletedAt      time.Time `json:"completedAt"`
}

type Publisher interface {
	Publish(ctx context.Context, event AnalysisEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, AnalysisEvent) error { return nil }

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQP publishes events as JSON to a durable topic exchange.
type AMQP struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	logger   *zap.Logger
}

// Dial connects to the broker and declares the exchange.
func Dial(url, exchange string, logger *zap.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening rabbitmq channel: %w", err)
	}

	p, err := newAMQP(ch, exchange, logger)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn

	return p, nil
}

func newAMQP(ch channel, exchange string, logger *zap.Logger) (*AMQP, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declaring exchange %s: %w", exchange, err)
	}

	return &AMQP{ch: ch, exchange: exchange, logger: logger}, nil
}

func (p *AMQP) Publish(ctx context.Context, event AnalysisEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.ch.Publish(p.exchange, RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Timestamp:    event.CompletedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publishing %s: %w", RoutingKey, err)
	}

	p.logger.Debug("event published", zap.String("routing_key", RoutingKey), zap.String("id", event.ID))
	return nil
}

func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	errs := []error{p.ch.Close()}
	if p.conn != nil {
		errs = append(errs, p.conn.Close())
	}
	return errors.Join(errs...)
}
