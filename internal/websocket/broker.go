package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/classbook/internal/config"
	"github.com/stemsi/classbook/internal/model"
)

// subscriberBuffer is the number of updates a slow subscriber may lag behind
// before updates to it are dropped.
const subscriberBuffer = 16

// Broker fans availability updates out to the streams watching a class.
type Broker interface {
	PublishAvailability(ctx context.Context, a *model.Availability) error
	// Subscribe returns the updates for classID until stop is called or ctx
	// is done.
	Subscribe(ctx context.Context, classID uuid.UUID) (updates <-chan model.Availability, stop func(), err error)
}

// MemoryBroker delivers updates within one process.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan model.Availability]struct{}
}

// NewMemoryBroker creates a MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[uuid.UUID]map[chan model.Availability]struct{})}
}

// PublishAvailability never blocks. Subscribers with a full buffer miss the
// update.
func (b *MemoryBroker) PublishAvailability(_ context.Context, a *model.Availability) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for ch := range b.subs[a.ClassID] {
		select {
		case ch <- *a:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, classID uuid.UUID) (<-chan model.Availability, func(), error) {
	ch := make(chan model.Availability, subscriberBuffer)

	b.mu.Lock()
	if b.subs[classID] == nil {
		b.subs[classID] = make(map[chan model.Availability]struct{})
	}
	b.subs[classID][ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			close(done)
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[classID], ch)
			if len(b.subs[classID]) == 0 {
				delete(b.subs, classID)
			}
			close(ch)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}

// RedisBroker relays updates through Redis Pub/Sub so every API instance
// sees signups made on the others.
type RedisBroker struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisBroker creates a RedisBroker.
func NewRedisBroker(rdb *redis.Client, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		rdb: rdb,
		log: log.With().Str("component", "availability_broker").Logger(),
	}
}

func (b *RedisBroker) PublishAvailability(ctx context.Context, a *model.Availability) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal availability: %w", err)
	}
	return b.rdb.Publish(ctx, config.CacheKey.ClassAvailabilityChannel(a.ClassID), payload).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, classID uuid.UUID) (<-chan model.Availability, func(), error) {
	pubsub := b.rdb.Subscribe(ctx, config.CacheKey.ClassAvailabilityChannel(classID))

	// Wait for the subscription to be confirmed so no update published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe availability: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	out := make(chan model.Availability, subscriberBuffer)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var a model.Availability
				if err := json.Unmarshal([]byte(msg.Payload), &a); err != nil {
					b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed availability update")
					continue
				}
				select {
				case out <- a:
				default:
				}
			}
		}
	}()

	return out, cancel, nil
}
