package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/kinfolk-ai/kinfolk/pkg/store"

	"github.com/rabbitmq/amqp091-go"
)

// Notifier publishes store events to EventExchange with the event type as
// routing key. A channel is not safe for concurrent publishing, so calls
// are serialized.
type Notifier struct {
	mu sync.Mutex
	ch *amqp091.Channel
}

func NewNotifier(ch *amqp091.Channel) *Notifier {
	return &Notifier{ch: ch}
}

var _ store.Notifier = (*Notifier)(nil)

// Notify publishes event with its type as the routing key.
func (n *Notifier) Notify(_ context.Context, event store.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return PublishTopic(n.ch, event.Type, body)
}
