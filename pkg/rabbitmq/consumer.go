package rabbitmq

import (
	"fmt"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning false re-queues the message.
type Handler func(body []byte) bool

type Consumer struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	prefetch int
}

func NewConsumer(amqpURL string, prefetch int) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	if prefetch > 0 {
		if err := ch.Qos(prefetch, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}
	return &Consumer{conn: conn, ch: ch, prefetch: prefetch}, nil
}

// ConsumeWithBindings declares a durable queue, binds it to exchange for every routing key
// in bindings and dispatches deliveries in a background goroutine.
func (c *Consumer) ConsumeWithBindings(exchange, queueName string, bindings map[string]Handler) error {
	if len(bindings) == 0 {
		return fmt.Errorf("no bindings provided")
	}

	if err := declareExchange(c.ch, exchange); err != nil {
		return err
	}

	q, err := c.ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return err
	}

	handlers := make(map[string]Handler)
	for routingKey, handler := range bindings {
		if handler == nil {
			continue
		}
		handlers[routingKey] = handler
		if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
			return err
		}
	}

	msgs, err := c.ch.Consume(q.Name, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for d := range msgs {
			dispatch(handlers, d)
		}
		log.Printf("level=info component=rabbitmq_consumer queue=%s msg=\"delivery channel closed\"", q.Name)
	}()

	return nil
}

// acknowledger is the part of amqp.Delivery dispatch needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(handlers map[string]Handler, d amqp.Delivery) {
	route(handlers, d.RoutingKey, d.Body, d.Redelivered, &d)
}

// route calls the handler for routingKey. A message that fails on redelivery is dropped so a
// poison message cannot loop forever.
func route(handlers map[string]Handler, routingKey string, body []byte, redelivered bool, ack acknowledger) {
	handler, ok := handlers[routingKey]
	if !ok {
		log.Printf("level=warn component=rabbitmq_consumer routing_key=%s msg=\"no handler; acknowledging to drop\"", routingKey)
		_ = ack.Ack(false)
		return
	}
	if handler(body) {
		_ = ack.Ack(false)
		return
	}
	if redelivered {
		log.Printf("level=error component=rabbitmq_consumer routing_key=%s msg=\"handler failed on redelivery; dropping\"", routingKey)
		_ = ack.Nack(false, false)
		return
	}
	log.Printf("level=warn component=rabbitmq_consumer routing_key=%s msg=\"handler failed; re-queuing\"", routingKey)
	_ = ack.Nack(false, true)
}

func (c *Consumer) Close() {
	if c.ch != nil {
		c.ch.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
