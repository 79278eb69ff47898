package doorbell

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/saaga0h/doorbell-agent/pkg/config"
	"github.com/saaga0h/doorbell-agent/pkg/redis"
)

// History stores delivered presses in Redis:
//   - doorbell:presses:{service} (list, newest first, capped at PressHistorySize)
//   - doorbell:meta:{service} (hash with lastPressTime and totalPresses)
type History struct {
	redis   redis.Client
	key     string
	metaKey string
	size    int
	logger  *slog.Logger
}

// pressRecord is the JSON stored per press
type pressRecord struct {
	Sequence  int64  `json:"sequence"`
	Timestamp string `json:"timestamp"`
	Topic     string `json:"topic"`
	Pin       int    `json:"pin"`
}

// NewHistory creates a press history backed by the given Redis client
func NewHistory(redisClient redis.Client, cfg *config.Config, logger *slog.Logger) *History {
	return &History{
		redis:   redisClient,
		key:     redis.PressHistoryKey(cfg.ServiceName),
		metaKey: redis.PressMetaKey(cfg.ServiceName),
		size:    cfg.PressHistorySize,
		logger:  logger,
	}
}

// RecordPress appends a press to the log and updates the metadata hash
func (h *History) RecordPress(ctx context.Context, press Press) error {
	data, err := json.Marshal(pressRecord{
		Sequence:  press.Sequence,
		Timestamp: press.Time.UTC().Format(time.RFC3339Nano),
		Topic:     press.Topic,
		Pin:       press.Pin,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal press: %w", err)
	}

	if err := h.redis.LPush(ctx, h.key, data); err != nil {
		return fmt.Errorf("failed to store press: %w", err)
	}

	if err := h.redis.LTrim(ctx, h.key, 0, int64(h.size-1)); err != nil {
		h.logger.Warn("Failed to trim press history", "key", h.key, "error", err)
	}

	if err := h.redis.HSet(ctx, h.metaKey, "lastPressTime", press.Time.UnixMilli()); err != nil {
		h.logger.Warn("Failed to update press metadata", "key", h.metaKey, "error", err)
	}

	total, err := h.redis.HIncrBy(ctx, h.metaKey, "totalPresses", 1)
	if err != nil {
		h.logger.Warn("Failed to increment press counter", "key", h.metaKey, "error", err)
	} else {
		h.logger.Debug("Stored press", "sequence", press.Sequence, "total_presses", total)
	}

	return nil
}

// Close closes the underlying Redis connection
func (h *History) Close() error {
	return h.redis.Close()
}
