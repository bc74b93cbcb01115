package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/folio/folio-backend/internal/db/entities"
	"github.com/folio/folio-backend/internal/subscription"
)

// LogNotifier records deliveries in the log. It stands in for the mail
// service in development.
type LogNotifier struct {
	logger *zap.SugaredLogger
}

func NewLogNotifier(logger *zap.SugaredLogger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) NotifyNewPost(ctx context.Context, post *entities.Post, subscribers []subscription.Subscriber) (int, error) {
	n.logger.Infow("New post notification",
		"post_id", post.ID,
		"slug", post.Slug,
		"title", post.Title,
		"recipients", len(subscribers),
	)
	return 0, nil
}

// SendFunc delivers to a single recipient.
type SendFunc func(ctx context.Context, post *entities.Post, subscriber subscription.Subscriber) error

// PerRecipient adapts a single-recipient sender to Notifier. A failed
// recipient is logged and counted; the rest of the batch still goes out.
func PerRecipient(send SendFunc, logger *zap.SugaredLogger) Notifier {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &perRecipient{send: send, logger: logger}
}

type perRecipient struct {
	send   SendFunc
	logger *zap.SugaredLogger
}

func (p *perRecipient) NotifyNewPost(ctx context.Context, post *entities.Post, subscribers []subscription.Subscriber) (int, error) {
	failed := 0
	for i, sub := range subscribers {
		if ctx.Err() != nil {
			return failed + len(subscribers) - i, nil
		}
		if err := p.send(ctx, post, sub); err != nil {
			failed++
			p.logger.Debugw("Recipient notification failed", "post_id", post.ID, "subscriber", sub.ID, "error", err)
		}
	}
	return failed, nil
}
