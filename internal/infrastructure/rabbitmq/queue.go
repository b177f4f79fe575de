package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/trialsignup/signup/internal/domain"
)

// Queue publishes and consumes CRM sync jobs on a durable work queue.
type Queue struct {
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "amqp" && parsed.Scheme != "amqps" {
		return "", fmt.Errorf("invalid AMQP scheme: %s", parsed.Scheme)
	}
	return clean, nil
}

// Dial connects to the broker and declares the durable queue name.
func Dial(amqpURL, name string) (*Queue, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(name, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", name, err)
	}
	return &Queue{conn: conn, ch: ch, name: name}, nil
}

// Enqueue publishes job as a persistent message.
func (q *Queue) Enqueue(ctx context.Context, job domain.SyncJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal sync job: %w", err)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    job.JobID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Consume delivers jobs to handle until ctx is cancelled or the channel closes.
// Every delivery is acknowledged; failed jobs are the handler's to record.
func (q *Queue) Consume(ctx context.Context, handle func(context.Context, domain.SyncJob)) error {
	q.mu.Lock()
	msgs, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("amqp delivery channel closed")
			}
			var job domain.SyncJob
			if err := json.Unmarshal(d.Body, &job); err != nil {
				slog.Error("dropping malformed sync job", "message_id", d.MessageId, "err", err)
			} else {
				handle(ctx, job)
			}
			if err := d.Ack(false); err != nil {
				slog.Warn("ack failed", "message_id", d.MessageId, "err", err)
			}
		}
	}
}

func (q *Queue) Close() {
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}
