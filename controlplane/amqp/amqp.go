// Package amqp is the optional faster control path for projection
// STOP/RESET/DELETE commands (spec §4.6/§4.7 supplement): a running
// projector only notices a status change on its next poll, bounded by
// its configured sleep. This package lets an operator publish a command
// to a topic exchange and have it applied immediately, without inventing
// a second source of truth for status — the consumer just issues the
// same registry update the projection manager's own Stop/Reset/Delete
// methods issue.
package amqp

import (
	"context"
	"encoding/json"

	"github.com/streadway/amqp"

	"github.com/ledgerflow/eventstore"
)

// Command is the control-plane message published to the exchange
type Command struct {
	Name    string `json:"name"`
	Command string `json:"command"` // "stop", "reset", "delete", "delete_incl_emitted_events"
}

const (
	// CommandStop requests StopProjection
	CommandStop = "stop"
	// CommandReset requests ResetProjection
	CommandReset = "reset"
	// CommandDelete requests DeleteProjection(false)
	CommandDelete = "delete"
	// CommandDeleteInclEmitted requests DeleteProjection(true)
	CommandDeleteInclEmitted = "delete_incl_emitted_events"
)

// Manager is the subset of driversql.ProjectionManager a Consumer needs
// to act on a received Command.
type Manager interface {
	StopProjection(ctx context.Context, name string) error
	ResetProjection(ctx context.Context, name string) error
	DeleteProjection(ctx context.Context, name string, deleteEmittedEvents bool) error
}

// Publisher publishes Commands to a topic exchange
type Publisher struct {
	ch       *amqp.Channel
	exchange string
}

// NewPublisher declares exchange (topic, durable) on ch and returns a Publisher
func NewPublisher(ch *amqp.Channel, exchange string) (*Publisher, error) {
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, eventstore.RuntimeError("failed to declare control-plane exchange", err)
	}
	return &Publisher{ch: ch, exchange: exchange}, nil
}

// Publish sends cmd for the named projection, routed by projection name
func (p *Publisher) Publish(ctx context.Context, cmd Command) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return eventstore.RuntimeError("failed to encode control-plane command", err)
	}
	err = p.ch.Publish(p.exchange, cmd.Name, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
	if err != nil {
		return eventstore.RuntimeError("failed to publish control-plane command", err)
	}
	return nil
}

// Consumer receives Commands from a topic exchange and applies them
// against a Manager. It owns no goroutines until Run is called.
type Consumer struct {
	ch       *amqp.Channel
	exchange string
	queue    string
	manager  Manager
	logger   eventstore.Logger
}

// NewConsumer declares exchange/queue and binds queue to every routing
// key (so every projection's commands are observed), returning a Consumer
// ready for Run.
func NewConsumer(ch *amqp.Channel, exchange, queue string, manager Manager, logger eventstore.Logger) (*Consumer, error) {
	if manager == nil {
		return nil, eventstore.InvalidArgumentError("manager")
	}
	if logger == nil {
		logger = eventstore.NopLogger
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, eventstore.RuntimeError("failed to declare control-plane exchange", err)
	}
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, eventstore.RuntimeError("failed to declare control-plane queue", err)
	}
	if err := ch.QueueBind(q.Name, "#", exchange, false, nil); err != nil {
		return nil, eventstore.RuntimeError("failed to bind control-plane queue", err)
	}
	return &Consumer{ch: ch, exchange: exchange, queue: q.Name, manager: manager, logger: logger}, nil
}

// Run consumes until ctx is canceled, applying each received Command
// against the bound Manager. Malformed messages are acknowledged and
// dropped rather than requeued, since retrying a bad payload never helps.
func (c *Consumer) Run(ctx context.Context) error {
	deliveries, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return eventstore.RuntimeError("failed to start consuming control-plane commands", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var cmd Command
	if err := json.Unmarshal(d.Body, &cmd); err != nil {
		c.logger.WithError(err).Warn("failed to decode control-plane command")
		_ = d.Ack(false)
		return
	}

	var applyErr error
	switch cmd.Command {
	case CommandStop:
		applyErr = c.manager.StopProjection(ctx, cmd.Name)
	case CommandReset:
		applyErr = c.manager.ResetProjection(ctx, cmd.Name)
	case CommandDelete:
		applyErr = c.manager.DeleteProjection(ctx, cmd.Name, false)
	case CommandDeleteInclEmitted:
		applyErr = c.manager.DeleteProjection(ctx, cmd.Name, true)
	default:
		c.logger.WithField("command", cmd.Command).Warn("unrecognized control-plane command")
		_ = d.Ack(false)
		return
	}

	if applyErr != nil {
		c.logger.WithError(applyErr).WithField("projection", cmd.Name).Warn("failed to apply control-plane command")
	}
	_ = d.Ack(false)
}
