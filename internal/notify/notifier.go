package notify

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/backend-billing/internal/events"
)

// QueueNotifier converts domain events into queued notification tasks. It
// implements events.Notifier, so bill emission never blocks on the gateway.
type QueueNotifier struct {
	Client *asynq.Client
	Queue  string
}

var topicTasks = map[string]string{
	events.TopicBillCreated:   TaskBillCreated,
	events.TopicBillPaid:      TaskBillPaid,
	events.TopicBillDelivered: TaskBillDelivered,
	events.TopicStockLow:      TaskStockLow,
}

// Notify enqueues the notification task matching the event topic. Events with
// no notification mapping are ignored.
func (n *QueueNotifier) Notify(ctx context.Context, event events.Event) error {
	taskType, ok := topicTasks[event.Topic]
	if !ok {
		return nil
	}
	task := asynq.NewTask(taskType, event.Payload)
	opts := []asynq.Option{asynq.MaxRetry(5)}
	if n.Queue != "" {
		opts = append(opts, asynq.Queue(n.Queue))
	}
	if _, err := n.Client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("enqueue %s: %w", taskType, err)
	}
	return nil
}
