package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cosmetica/apiserver/internal/mq"
	"go.uber.org/zap"
)

// Sender delivers a rendered notification email.
type Sender interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Worker consumes notification events and delivers them over email.
type Worker struct {
	queue  *mq.MQ
	name   string
	sender Sender
	logger *zap.Logger
}

func NewWorker(queue *mq.MQ, queueName string, sender Sender, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:  queue,
		name:   queueName,
		sender: sender,
		logger: logger,
	}
}

// Run blocks consuming the notifications queue until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	return w.queue.Subscribe(ctx, w.name, w.Handle)
}

// Handle processes one queued event. Unknown event types are dropped
// without error so they are not redelivered forever.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		w.logger.Warn("dropping malformed notification", zap.String("id", msg.ID), zap.Error(err))
		return nil
	}

	subject, body, ok := renderEmail(event)
	if !ok {
		w.logger.Warn("dropping notification with unknown type", zap.String("type", event.Type))
		return nil
	}

	if err := w.sender.Send(ctx, event.Email, subject, body); err != nil {
		w.logger.Error("failed to send notification email",
			zap.String("type", event.Type),
			zap.String("email", event.Email),
			zap.Error(err),
		)
		return err
	}

	w.logger.Info("notification email sent",
		zap.String("type", event.Type),
		zap.String("email", event.Email),
	)
	return nil
}

func renderEmail(event Event) (subject, body string, ok bool) {
	switch event.Type {
	case EventLoginAlert:
		subject = "New login to your account"
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>Your account was just logged in at %s. If this wasn't you, please reset your password.</p>",
			event.Username, event.At.Format("2006-01-02 15:04:05 MST"),
		)
		return subject, body, true
	case EventWelcome:
		subject = "Welcome to Cosmetica"
		body = fmt.Sprintf(
			"<p>Hi %s,</p><p>Your account has been created. Happy shopping!</p>",
			event.Username,
		)
		return subject, body, true
	default:
		return "", "", false
	}
}
