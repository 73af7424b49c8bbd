package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fieldserve/checkout-portal/internal/logger"
)

// StartPaymentConsumer connects to RabbitMQ, declares the payment.validated
// queue (durable) and starts consuming. Each event is appended to
// logs/payments.log as a single human-readable line, giving operators a flat
// audit trail of every validation attempt. The function runs a reconnect
// loop and keeps running across broker failures, rejecting poison messages
// without requeue so the server continues operating.
func StartPaymentConsumer() error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			logger.LogError("queue", "StartPaymentConsumer", "dial", nil, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(conn); err != nil {
			logger.LogError("queue", "StartPaymentConsumer", "consume loop ended", nil, err)
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		logger.LogError("queue", "consumeLoop", "set QoS", nil, err)
	}

	if _, err := ch.QueueDeclare(PaymentValidatedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(PaymentValidatedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body); err != nil {
			logger.LogError("queue", "consumeLoop", "handle message", nil, err)
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte) error {
	var ev PaymentValidatedEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "payments.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Payment validated | transaction_id=%s | invoice=%s | customer=%s | type=%s | status=%s | amount=%s %s | hash_validated=%t\n",
		ev.ValidatedAt, ev.TransactionID, ev.InvoiceNumber, ev.CustomerCode, ev.PaymentType, ev.Status, ev.Amount, ev.Currency, ev.HashValidated)

	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}
