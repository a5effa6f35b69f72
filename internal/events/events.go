// Package events publishes project and todo change events to RabbitMQ so
// other services can follow the manager without polling the store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/sitebook/sitebook/internal/manager"
	"github.com/sitebook/sitebook/internal/metrics"
)

const (
	ExchangeName = "sitebook.events"

	RoutingKeyProject = "project.changed"
	RoutingKeyTodo    = "todo.changed"
)

// Channel is the part of *amqp091.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// ProjectChanged is the body of a project.changed event.
type ProjectChanged struct {
	Projects int       `json:"projects"`
	At       time.Time `json:"at"`
}

// TodoChanged is the body of a todo.changed event.
type TodoChanged struct {
	ProjectID string    `json:"projectId"`
	Todos     int       `json:"todos"`
	At        time.Time `json:"at"`
}

type event struct {
	key     string
	payload any
}

// Publisher sends change events to the exchange. Events are queued and
// published from one goroutine; a full queue drops events.
type Publisher struct {
	conn   *amqp091.Connection
	ch     Channel
	logger *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan event
	wg     sync.WaitGroup
	once   sync.Once

	mgr    *manager.Manager
	tokens []manager.Token
}

// Dial connects to RabbitMQ at url and declares the topic exchange.
func Dial(url string, logger *zap.Logger) (*Publisher, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := NewPublisher(ch, logger)
	p.conn = conn
	return p, nil
}

// NewPublisher publishes through an open channel.
func NewPublisher(ch Channel, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		ch:     ch,
		logger: logger.With(zap.String("component", "events")),
		queue:  make(chan event, 256),
	}
	p.wg.Add(1)
	go p.loop()
	return p
}

// IsConnected reports whether the underlying connection is still open.
// Publishers built on a bare channel always report true.
func (p *Publisher) IsConnected() bool {
	if p.conn == nil {
		return true
	}
	return !p.conn.IsClosed()
}

// Publish sends payload as JSON with the given routing key.
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, ExchangeName, routingKey, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.EventsPublished.WithLabelValues(routingKey, result).Inc()
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}
	return nil
}

// Enqueue schedules an event for publishing.
func (p *Publisher) Enqueue(routingKey string, payload any) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- event{key: routingKey, payload: payload}:
	default:
		p.logger.Warn("Event queue full, dropping event", zap.String("routing_key", routingKey))
	}
}

func (p *Publisher) loop() {
	defer p.wg.Done()
	for ev := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.Publish(ctx, ev.key, ev.payload); err != nil {
			p.logger.Warn("Failed to publish event", zap.String("routing_key", ev.key), zap.Error(err))
		}
		cancel()
	}
}

// Attach publishes an event for every change mgr reports.
func (p *Publisher) Attach(mgr *manager.Manager) {
	p.mgr = mgr
	p.tokens = append(p.tokens,
		mgr.SubscribeProjects(func(manager.ProjectEvent) {
			p.Enqueue(RoutingKeyProject, ProjectChanged{Projects: len(mgr.Projects()), At: time.Now().UTC()})
		}),
		mgr.SubscribeTodos(func(e manager.TodoEvent) {
			todos, _ := mgr.Todos(e.ProjectID)
			p.Enqueue(RoutingKeyTodo, TodoChanged{ProjectID: e.ProjectID, Todos: len(todos), At: time.Now().UTC()})
		}),
	)
}

// Close detaches from the manager, publishes what is queued and closes the
// channel and connection.
func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		if p.mgr != nil {
			for _, tok := range p.tokens {
				p.mgr.Unsubscribe(tok)
			}
		}
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()

		if cerr := p.ch.Close(); cerr != nil {
			err = fmt.Errorf("failed to close channel: %w", cerr)
		}
		if p.conn != nil {
			if cerr := p.conn.Close(); cerr != nil && err == nil {
				err = fmt.Errorf("failed to close connection: %w", cerr)
			}
		}
	})
	return err
}
