package notify

import (
	"context"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	redis "github.com/redis/go-redis/v9"

	"github.com/rongwang/library-rental/internal/utils"
)

// Notifier delivers a message to its recipient
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to the Notifier interface
type NotifierFunc func(ctx context.Context, msg Message) error

func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// LogNotifier writes messages to the log instead of sending them
type LogNotifier struct {
	logger *utils.Logger
}

func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, msg Message) error {
	n.logger.InfoContext(ctx, "notification",
		"kind", msg.Kind,
		"user_id", msg.UserID,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
	)
	return nil
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RedisNotifier pushes messages onto a Redis list drained by an external mailer
type RedisNotifier struct {
	client *redis.Client
	list   string
}

func NewRedisNotifier(client *redis.Client, list string) *RedisNotifier {
	return &RedisNotifier{client: client, list: list}
}

func (n *RedisNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	if err := n.client.LPush(ctx, n.list, payload).Err(); err != nil {
		return fmt.Errorf("pushing notification: %w", err)
	}

	return nil
}

// DecodeMessage parses a payload produced by RedisNotifier
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
