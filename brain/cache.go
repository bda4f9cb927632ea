package brain

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"applier/orchestrator"
)

const (
	answerCachePrefix = "applier:answers:"
	answerCacheTTL    = 7 * 24 * time.Hour
)

// CachedOracle memoizes answers in Redis keyed by the normalized question,
// so repeat questions across applications skip the expensive oracle. Only
// confident answers are cached; low-confidence ones should keep reaching
// a human.
type CachedOracle struct {
	client *redis.Client
	next   orchestrator.Oracle
}

func NewCachedOracle(client *redis.Client, next orchestrator.Oracle) *CachedOracle {
	return &CachedOracle{client: client, next: next}
}

func cacheKey(question string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(question), " "))
	sum := md5.Sum([]byte(normalized))
	return answerCachePrefix + hex.EncodeToString(sum[:])
}

func (o *CachedOracle) Ask(ctx context.Context, question, jobContext string) (orchestrator.Answer, error) {
	key := cacheKey(question)

	if data, err := o.client.Get(ctx, key).Result(); err == nil {
		var answer orchestrator.Answer
		if err := json.Unmarshal([]byte(data), &answer); err == nil {
			return answer, nil
		}
	}

	answer, err := o.next.Ask(ctx, question, jobContext)
	if err != nil {
		return answer, err
	}

	if answer.Confidence >= orchestrator.ConfidenceThreshold {
		if data, err := json.Marshal(answer); err == nil {
			if err := o.client.Set(ctx, key, data, answerCacheTTL).Err(); err != nil {
				log.Printf("⚠️ Answer cache write failed: %v", err)
			}
		}
	}
	return answer, nil
}
