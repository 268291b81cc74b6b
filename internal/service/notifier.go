package service

import (
	"context"
	"log/slog"
	"time"

	"autobay/internal/domain"
	"autobay/internal/event"
	"autobay/internal/infra"
)

// DefaultRetryPause is the pause between failed deliveries of one message.
const DefaultRetryPause = 2 * time.Second

// Notifier delivers operator notifications in enqueue order.
// A single consumer drains the queue; a failed send is retried until it succeeds.
type Notifier struct {
	queue   *event.Queue[event.Notification]
	sender  domain.MessageSender
	pause   time.Duration
	metrics *infra.Metrics
	logger  *slog.Logger
}

// NewNotifier creates a notifier on sender. metrics may be nil.
func NewNotifier(sender domain.MessageSender, pause time.Duration, metrics *infra.Metrics) *Notifier {
	return &Notifier{
		queue:   event.NewQueue[event.Notification](),
		sender:  sender,
		pause:   pause,
		metrics: metrics,
		logger:  slog.Default().With("module", "notifier"),
	}
}

// Notify enqueues text. It never blocks.
func (n *Notifier) Notify(text string) {
	n.queue.Push(event.NewNotification(text))
}

// Pending returns the number of undelivered messages.
func (n *Notifier) Pending() int {
	return n.queue.Len()
}

// Run delivers messages until ctx is done.
func (n *Notifier) Run(ctx context.Context) {
	n.logger.Info("Notifier started")
	for {
		msg, err := n.queue.Pop(ctx)
		if err != nil {
			n.logger.Info("Notifier stopping", slog.Int("pending", n.queue.Len()))
			return
		}
		if err := n.deliver(ctx, msg); err != nil {
			return
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, msg event.Notification) error {
	for attempt := 1; ; attempt++ {
		err := n.sender.Send(ctx, msg.Text)
		if err == nil {
			n.metrics.RecordNotification()
			return nil
		}
		n.logger.Warn("Notification send failed, retrying",
			slog.Int("attempt", attempt),
			slog.Any("error", err),
		)
		if err := infra.Sleep(ctx, n.pause); err != nil {
			return err
		}
	}
}
