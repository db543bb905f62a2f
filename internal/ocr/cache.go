package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachingRecognizer memoizes recognition results in Redis keyed by image hash.
// Cache errors are logged and never fail recognition.
type CachingRecognizer struct {
	next   ImageRecognizer
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachingRecognizer(next ImageRecognizer, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachingRecognizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingRecognizer{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachingRecognizer) Name() string { return c.next.Name() }

func (c *CachingRecognizer) Recognize(ctx context.Context, img []byte, lang string) ([]string, error) {
	key := c.key(img, lang)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var lines []string
		if jerr := json.Unmarshal(raw, &lines); jerr == nil {
			c.logger.Debug("ocr cache hit", "key", key)
			return lines, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("ocr cache read failed", "error", err)
	}

	lines, err := c.next.Recognize(ctx, img, lang)
	if err != nil {
		return nil, err
	}
	if hasText(lines) {
		if b, jerr := json.Marshal(lines); jerr == nil {
			if serr := c.rdb.Set(ctx, key, b, c.ttl).Err(); serr != nil {
				c.logger.Warn("ocr cache write failed", "error", serr)
			}
		}
	}
	return lines, nil
}

func (c *CachingRecognizer) key(img []byte, lang string) string {
	sum := sha256.Sum256(img)
	return "ocr:" + c.next.Name() + ":" + lang + ":" + hex.EncodeToString(sum[:])
}
