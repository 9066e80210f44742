package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"planai-api/domain"
)

// CachingClassifier wraps a Classifier with a Redis read-through cache
// keyed by transcription hash, so resubmitting the same note does not hit
// the paid provider twice. Cache failures fall back to the provider
// without failing the call.
type CachingClassifier struct {
	base  Classifier
	redis *redis.Client
	ttl   time.Duration
}

// NewCachingClassifier creates the caching wrapper.
func NewCachingClassifier(base Classifier, client *redis.Client, ttl time.Duration) *CachingClassifier {
	if base == nil {
		panic("ai.NewCachingClassifier: base classifier is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachingClassifier{base: base, redis: client, ttl: ttl}
}

// Classify implements Classifier.
func (c *CachingClassifier) Classify(ctx context.Context, transcription string) (domain.Classification, error) {
	key := classifyCacheKey(transcription)
	if cached, ok := c.load(ctx, key); ok {
		return cached, nil
	}

	result, err := c.base.Classify(ctx, transcription)
	if err != nil {
		return domain.Classification{}, err
	}

	c.store(ctx, key, result)
	return result, nil
}

func (c *CachingClassifier) load(ctx context.Context, key string) (domain.Classification, bool) {
	if c.redis == nil {
		return domain.Classification{}, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			_ = c.redis.Del(ctx, key).Err()
		}
		return domain.Classification{}, false
	}
	var result domain.Classification
	if err := sonic.Unmarshal(data, &result); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return domain.Classification{}, false
	}
	if result.Validate() != "" {
		_ = c.redis.Del(ctx, key).Err()
		return domain.Classification{}, false
	}
	return result, true
}

func (c *CachingClassifier) store(ctx context.Context, key string, result domain.Classification) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(result)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func classifyCacheKey(transcription string) string {
	sum := sha256.Sum256([]byte(transcription))
	return "classify:" + hex.EncodeToString(sum[:])
}
