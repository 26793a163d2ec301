package notification

import (
	"context"
	"encoding/json"
	"fmt"

	interfaces "signup-service/internal/interfaces/infrastructure"
	"signup-service/pkg/logger"

	"github.com/go-redis/redis/v8"
)

// LogNotifier writes promotion notices to the application log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) NotifyPromoted(ctx context.Context, notice interfaces.PromotionNotice) error {
	logger.WithFields(map[string]interface{}{
		"user_id":    notice.UserID,
		"event_id":   notice.EventID,
		"sign_up_id": notice.SignUpID,
	}).Infof("User promoted from waiting list of %q", notice.EventTitle)
	return nil
}

// MailMessage is the payload the mail sender consumes from Redis.
type MailMessage struct {
	Template string                     `json:"template"`
	To       string                     `json:"to"`
	Notice   interfaces.PromotionNotice `json:"notice"`
}

// RedisMailNotifier pushes mail jobs onto a Redis list drained by the mail
// sender.
type RedisMailNotifier struct {
	client  redis.UniversalClient
	listKey string
}

func NewRedisMailNotifier(client redis.UniversalClient, listKey string) *RedisMailNotifier {
	return &RedisMailNotifier{
		client:  client,
		listKey: listKey,
	}
}

func (n *RedisMailNotifier) NotifyPromoted(ctx context.Context, notice interfaces.PromotionNotice) error {
	data, err := json.Marshal(MailMessage{
		Template: "waitlist_promoted",
		To:       notice.Email,
		Notice:   notice,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail message: %w", err)
	}
	if err := n.client.LPush(ctx, n.listKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue promotion mail: %w", err)
	}
	return nil
}

var (
	_ interfaces.Notifier = (*LogNotifier)(nil)
	_ interfaces.Notifier = (*RedisMailNotifier)(nil)
)
