package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cosmetica/apiserver/internal/mq"
	"github.com/cosmetica/apiserver/types"
	"go.uber.org/zap"
)

// Event types published to the notifications queue.
const (
	EventLoginAlert = "login_alert"
	EventWelcome    = "welcome"
)

const publishTimeout = 5 * time.Second

// Event is a queued account notification.
type Event struct {
	Type     string    `json:"type"`
	Username string    `json:"username"`
	Email    string    `json:"email"`
	At       time.Time `json:"at"`
}

// Publisher dispatches account notification events to the queue. The
// exported alert methods are fire-and-forget: they return immediately and
// publish failures are only logged, never surfaced to the caller.
type Publisher struct {
	queue  *mq.MQ
	name   string
	logger *zap.Logger
}

func NewPublisher(queue *mq.MQ, queueName string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		queue:  queue,
		name:   queueName,
		logger: logger,
	}
}

// LoginAlert notifies the account's email address that a login occurred.
func (p *Publisher) LoginAlert(user types.User) {
	go p.publish(Event{
		Type:     EventLoginAlert,
		Username: user.Username,
		Email:    user.Email,
		At:       time.Now(),
	})
}

// Welcome notifies a newly registered account.
func (p *Publisher) Welcome(user types.User) {
	go p.publish(Event{
		Type:     EventWelcome,
		Username: user.Username,
		Email:    user.Email,
		At:       time.Now(),
	})
}

func (p *Publisher) publish(event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := p.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish notification",
			zap.String("type", event.Type),
			zap.String("username", event.Username),
			zap.Error(err),
		)
	}
}

// Publish sends a single event synchronously. The async alert methods
// wrap it; it is exported for the notifier worker's tests.
func (p *Publisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = p.queue.Publish(ctx, p.name, data, map[string]string{"type": event.Type})
	return err
}
