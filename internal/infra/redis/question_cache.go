package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"pixeltrivia/internal/app"
	"pixeltrivia/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// QuestionCache wraps an app.QuestionLoader with a Redis cache so repeated
// room starts against the same category don't hammer the bank. Entries are
// keyed per (category, difficulty, count) and carry a TTL with jitter to
// spread expirations; singleflight collapses concurrent misses.
type QuestionCache struct {
	client *redis.Client
	loader app.QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewQuestionCache(client *redis.Client, loader app.QuestionLoader, ttl time.Duration) *QuestionCache {
	return &QuestionCache{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (c *QuestionCache) LoadQuestions(ctx context.Context, category, difficulty string, count int) ([]domain.Question, error) {
	key := c.key(category, difficulty, count)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var questions []domain.Question
		if err := json.Unmarshal(raw, &questions); err == nil {
			return questions, nil
		}
		// Corrupt entry; fall through and reload.
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var questions []domain.Question
			if err := json.Unmarshal(raw, &questions); err == nil {
				return questions, nil
			}
		}

		questions, err := c.loader.LoadQuestions(ctx, category, difficulty, count)
		if err != nil {
			return nil, err
		}
		if raw, err := json.Marshal(questions); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCache) key(category, difficulty string, count int) string {
	return fmt.Sprintf("questions:%s:%s:%d", category, difficulty, count)
}

func (c *QuestionCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
