package queue

// consumer.go contains the background consumer that listens to the
// email.events queue and writes structured lines to logs/email.log.
// It stands in for the external notification collaborator: downstream
// systems that mail out confirmation links or audit primary-email
// changes would consume the same queue.

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartEmailEventsConsumer connects to RabbitMQ, declares the durable
// email.events queue, and starts consuming. Each event is appended to
// logs/email.log in a single-line, human-friendly format. The function
// runs a reconnect loop; it keeps running and logs any processing
// errors while rejecting the offending message so the server continues
// operating.
func StartEmailEventsConsumer() error {
	url := brokerURL()
	backoff := newBackoff()
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			backoff.wait("email-consumer", err)
			continue
		}
		backoff.reset()

		if err := consumeLoop(conn, EmailEventsQueue, handleEmailEvent); err != nil {
			log.Printf("email-consumer: consume loop ended: %v; reconnecting", err)
			backoff.pause()
			continue
		}
	}
}

// consumeLoop drains one queue on an open connection, dispatching each
// delivery to handle. It returns when the deliveries channel closes so
// the caller can reconnect.
func consumeLoop(conn *amqp.Connection, queueName string, handle func([]byte) error) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("consumer: set QoS failed: %v", err)
	}

	_, err = ch.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handle(d.Body); err != nil {
			log.Printf("consumer: handle message failed: %v", err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

// rawEnvelope mirrors envelope but defers payload decoding until the
// event type is known.
type rawEnvelope struct {
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

func handleEmailEvent(body []byte) error {
	var env rawEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	var line string
	switch env.Type {
	case UnconfirmedEmailCreatedEvent{}.EventType():
		var ev UnconfirmedEmailCreatedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		line = fmt.Sprintf("[%s] Unconfirmed email created | user_id=%d | email=%s\n",
			env.OccurredAt, ev.UserID, ev.Email)
	case EmailConfirmedEvent{}.EventType():
		var ev EmailConfirmedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		line = fmt.Sprintf("[%s] Email confirmed | user_id=%d | email=%s | confirmed_at=%s\n",
			env.OccurredAt, ev.UserID, ev.Email, ev.ConfirmedAt)
	case PrimaryEmailChangedEvent{}.EventType():
		var ev PrimaryEmailChangedEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.Type, err)
		}
		line = fmt.Sprintf("[%s] Primary email changed | user_id=%d | old=%s | new=%s\n",
			env.OccurredAt, ev.UserID, ev.OldEmail, ev.NewEmail)
	default:
		return fmt.Errorf("unknown event type %q", env.Type)
	}

	return appendLog("email.log", line)
}

// appendLog writes one line to logs/<name>, creating the directory and
// file on first use.
func appendLog(name, line string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(filepath.Join("logs", name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
