package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/picthaisky/english-speaking-coach/internal/models"
)

// SessionChannel is the pub/sub channel carrying live updates for a session.
func SessionChannel(sessionID uuid.UUID) string {
	return fmt.Sprintf("recording_updates:%s", sessionID.String())
}

// RedisNotifier sends WebSocket updates via Redis pub/sub so that any API
// instance holding the client's socket can deliver them.
type RedisNotifier struct {
	redis *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redis: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, sessionID uuid.UUID, msg models.WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("failed to encode update")
		return
	}
	if err := n.redis.Publish(ctx, SessionChannel(sessionID), string(data)).Err(); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).Msg("failed to publish update")
	}
}
