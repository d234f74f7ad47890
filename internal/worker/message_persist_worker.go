package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"whatsapp-pdf-assistant/internal/model"
	"whatsapp-pdf-assistant/internal/platform/logger"
	"whatsapp-pdf-assistant/internal/repository"
)

var errMalformed = errors.New("malformed conversation log entry")

// MessagePersistWorker drains the conversation log queue into the database.
type MessagePersistWorker struct {
	conn      *amqp.Connection
	repo      *repository.MessageRepository
	queueName string
	log       *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMessagePersistWorker(conn *amqp.Connection, repo *repository.MessageRepository, queueName string, log *logger.Logger) *MessagePersistWorker {
	return &MessagePersistWorker{
		conn:      conn,
		repo:      repo,
		queueName: queueName,
		log:       log.With("component", "message_persist_worker"),
	}
}

func (w *MessagePersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}
	if err := ch.Qos(32, 0, false); err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("set worker qos failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					w.log.Warn("delivery channel closed")
					return
				}

				err := w.persist(workerCtx, d.Body)
				switch {
				case err == nil:
					_ = d.Ack(false)
				case errors.Is(err, errMalformed):
					w.log.Error("drop conversation log entry", "error", err)
					_ = d.Nack(false, false)
				default:
					// one redelivery for transient database errors
					w.log.Error("persist conversation log entry failed", "error", err, "redelivered", d.Redelivered)
					_ = d.Nack(false, !d.Redelivered)
				}
			}
		}
	}()

	w.log.Info("worker started", "queue", w.queueName)
	return nil
}

func (w *MessagePersistWorker) persist(ctx context.Context, body []byte) error {
	var msg model.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if msg.UserID == 0 || strings.TrimSpace(msg.Content) == "" {
		return fmt.Errorf("%w: missing user or content", errMalformed)
	}
	if msg.Direction != model.DirectionInbound && msg.Direction != model.DirectionOutbound {
		return fmt.Errorf("%w: direction %q", errMalformed, msg.Direction)
	}
	msg.ID = 0
	return w.repo.Create(ctx, &msg)
}

func (w *MessagePersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
