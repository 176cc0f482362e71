// Package publish forwards scan events to a RabbitMQ topic exchange.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"netscout/internal/logging"
	"netscout/internal/scan"
)

const publishTimeout = 5 * time.Second

// Routing keys for published events.
const (
	KeyHostUpdated  = "scan.host.updated"
	KeyPhaseDone    = "scan.phase.done"
	KeySessionDone  = "scan.session.done"
	KeyDeepScanDone = "scan.deepscan.done"
)

// Event is the JSON envelope for every published message.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"sessionId,omitempty"`
	Time      time.Time `json:"time"`
	Data      any       `json:"data"`
}

func newEvent(key, sessionID string, data any) Event {
	return Event{
		Type:      key,
		SessionID: sessionID,
		Time:      time.Now().UTC(),
		Data:      data,
	}
}

// Publisher sends scan events to a durable topic exchange. Publish failures
// are logged and never propagate to the scan engine.
type Publisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	log      *zap.SugaredLogger

	mu        sync.Mutex
	sessionID string
}

// New connects to the broker and declares the exchange.
func New(url, exchange string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
	}
	return &Publisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
		log:      logging.Component("publish"),
	}, nil
}

// Close shuts down the channel and connection.
func (p *Publisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// SetSession sets the correlation id stamped on subsequent events. Call it
// once per started scan with the session's UUID.
func (p *Publisher) SetSession(id string) {
	p.mu.Lock()
	p.sessionID = id
	p.mu.Unlock()
}

// Listener returns engine callbacks that publish each event. Progress ticks
// are intentionally not forwarded; they would flood the broker.
func (p *Publisher) Listener() scan.Listener {
	return scan.Listener{
		HostUpdated: func(rec scan.HostRecord) { p.publish(KeyHostUpdated, "", rec) },
		PhaseDone:   func(pd scan.PhaseDone) { p.publish(KeyPhaseDone, "", pd) },
		SessionDone: func(sum scan.Summary) { p.publish(KeySessionDone, sum.SessionID, sum) },
		DeepScanDone: func(res scan.DeepScanResult) {
			p.publish(KeyDeepScanDone, "", res)
		},
	}
}

// publish marshals and sends one event. An empty sessionID falls back to the
// id set by SetSession. The channel is shared, so sends are serialised.
func (p *Publisher) publish(key, sessionID string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sessionID == "" {
		sessionID = p.sessionID
	}

	event := newEvent(key, sessionID, data)
	body, err := json.Marshal(event)
	if err != nil {
		p.log.Warnw("Dropping event that failed to marshal", "type", key, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.channel.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     uuid.New().String(),
		CorrelationId: sessionID,
		Timestamp:     time.Now(),
		Body:          body,
	})
	if err != nil {
		p.log.Warnw("Event publish failed", "type", key, "error", err)
		return
	}
	p.log.Debugw("Event published", "type", key)
}
