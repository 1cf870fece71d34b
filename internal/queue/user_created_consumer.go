package queue

// user_created_consumer.go implements the auto-provisioning hook: the
// external account system publishes a message on the user.created queue
// for every new account, and this consumer registers the new user's
// primary email as an unconfirmed address. The subscription is only
// started when auto-add is enabled in configuration, so the hook is
// explicit and can be exercised in isolation through HandleUserCreated.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/email-confirmation/internal/repository"
)

// UnconfirmedEmailAdder is the slice of the email service the
// provisioning hook needs.
type UnconfirmedEmailAdder interface {
	AddUnconfirmedEmail(ctx context.Context, userID uint64, email string, keyLength int) (string, error)
}

// StartUserCreatedConsumer subscribes to the user.created queue and
// provisions an unconfirmed address for each new user. It runs a
// reconnect loop like the event consumer and never returns under
// normal operation.
func StartUserCreatedConsumer(svc UnconfirmedEmailAdder) error {
	url := brokerURL()
	backoff := newBackoff()
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			backoff.wait("user-created-consumer", err)
			continue
		}
		backoff.reset()

		handle := func(body []byte) error { return HandleUserCreated(context.Background(), svc, body) }
		if err := consumeLoop(conn, UserCreatedQueue, handle); err != nil {
			log.Printf("user-created-consumer: consume loop ended: %v; reconnecting", err)
			backoff.pause()
			continue
		}
	}
}

// HandleUserCreated processes one user.created message. A duplicate
// address is treated as success so redelivered messages are acked
// instead of looping forever.
func HandleUserCreated(ctx context.Context, svc UnconfirmedEmailAdder, body []byte) error {
	var msg UserCreatedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if msg.UserID == 0 || msg.Email == "" {
		return fmt.Errorf("incomplete user.created message: %s", body)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := svc.AddUnconfirmedEmail(ctx, msg.UserID, msg.Email, 0); err != nil {
		if errors.Is(err, repository.ErrDuplicateAddress) {
			log.Printf("user-created-consumer: address already provisioned for user %d", msg.UserID)
			return nil
		}
		return fmt.Errorf("add unconfirmed email: %w", err)
	}
	return nil
}
