package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/toolforge/agentgraph/internal/apperr"
)

// QueueName is one of the three stages a Task moves through.
type QueueName string

const (
	QueueCrawlers   QueueName = "crawlers"
	QueueEnrichment QueueName = "enrichment"
	QueueIndexing   QueueName = "indexing"
)

// Task is one unit of automation work, the queue-delivered analogue of a
// workflow node evaluation.
type Task struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Payload    map[string]interface{} `json:"payload"`
	EnqueuedAt time.Time              `json:"enqueued_at"`
	Attempt    int                    `json:"attempt"`
}

// Broker is the Redis-backed queue fabric described by spec.md §4.5:
// crawlers/enrichment/indexing lists, each task leased by exactly one
// worker at a time via a SETNX-with-TTL lease key. Grounded on
// evalgo-org-eve/queue/redis/queue.go's Queue type (RPush/BLPop list
// queue, ZSet-based processing tracking), adapted from a single
// deadline-sorted ZSet to one lease key per task. An expired lease only
// frees its key: Lease pops the task off its list and nothing watches for
// expired leases, so a task whose worker stops before Ack or Requeue is not
// put back on any queue.
type Broker struct {
	client *redis.Client
	prefix string
}

// BrokerConfig configures the Redis connection backing the Broker.
type BrokerConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

func NewBroker(cfg BrokerConfig) *Broker {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "agentgraph:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Broker{client: client, prefix: prefix}
}

func (b *Broker) Close() error { return b.client.Close() }

func (b *Broker) queueKey(name QueueName) string { return fmt.Sprintf("%s%s", b.prefix, name) }

func (b *Broker) deadLetterKey(name QueueName) string {
	return fmt.Sprintf("%s%s:dead", b.prefix, name)
}

func (b *Broker) leaseKey(taskID string) string {
	return fmt.Sprintf("%slease:%s", b.prefix, taskID)
}

// Enqueue pushes a task onto the named queue, assigning it an ID if it has
// none yet.
func (b *Broker) Enqueue(ctx context.Context, name QueueName, t Task) (Task, error) {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.EnqueuedAt = time.Now().UTC()

	body, err := json.Marshal(t)
	if err != nil {
		return Task{}, apperr.Wrap(apperr.KindInfrastructure, "marshal task", err)
	}
	if err := b.client.RPush(ctx, b.queueKey(name), string(body)).Err(); err != nil {
		return Task{}, apperr.Wrap(apperr.KindInfrastructure, "enqueue task", err)
	}
	return t, nil
}

// Lease blocks up to timeout for the next task on the named queue, and on
// success atomically claims a lease key with the given TTL before handing
// the task to the caller. Returns (Task{}, false, nil) on a clean timeout.
func (b *Broker) Lease(ctx context.Context, name QueueName, timeout, leaseTTL time.Duration) (Task, bool, error) {
	res, err := b.client.BLPop(ctx, timeout, b.queueKey(name)).Result()
	if err == redis.Nil {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, apperr.Wrap(apperr.KindInfrastructure, "lease task", err)
	}
	if len(res) < 2 {
		return Task{}, false, nil
	}

	var t Task
	if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
		return Task{}, false, apperr.Wrap(apperr.KindInfrastructure, "decode leased task", err)
	}

	ok, err := b.client.SetNX(ctx, b.leaseKey(t.ID), name, leaseTTL).Result()
	if err != nil {
		return Task{}, false, apperr.Wrap(apperr.KindInfrastructure, "acquire lease", err)
	}
	if !ok {
		// Another worker already holds the lease for this task id (a prior
		// requeue raced us); treat as no work this round rather than
		// processing it twice.
		return Task{}, false, nil
	}
	return t, true, nil
}

// Ack releases a task's lease on successful completion.
func (b *Broker) Ack(ctx context.Context, t Task) error {
	if err := b.client.Del(ctx, b.leaseKey(t.ID)).Err(); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "release lease", err)
	}
	return nil
}

// Requeue releases a task's lease and either pushes it back onto name with
// Attempt incremented, or moves it to the dead-letter list once maxAttempts
// is exhausted.
func (b *Broker) Requeue(ctx context.Context, name QueueName, t Task, maxAttempts int) error {
	if err := b.client.Del(ctx, b.leaseKey(t.ID)).Err(); err != nil {
		return apperr.Wrap(apperr.KindInfrastructure, "release lease", err)
	}

	t.Attempt++
	if t.Attempt >= maxAttempts {
		body, err := json.Marshal(t)
		if err != nil {
			return apperr.Wrap(apperr.KindInfrastructure, "marshal dead letter", err)
		}
		if err := b.client.RPush(ctx, b.deadLetterKey(name), string(body)).Err(); err != nil {
			return apperr.Wrap(apperr.KindInfrastructure, "dead-letter task", err)
		}
		return nil
	}

	_, err := b.Enqueue(ctx, name, t)
	return err
}

// Depth reports the number of tasks waiting on the named queue, for a
// metrics gauge.
func (b *Broker) Depth(ctx context.Context, name QueueName) (int64, error) {
	n, err := b.client.LLen(ctx, b.queueKey(name)).Result()
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInfrastructure, "queue depth", err)
	}
	return n, nil
}
