package knowledge

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ragstack/ragserve/pkg/domain"
)

// AnswerCache memoizes generated answers keyed by the normalized question.
// An entry is only valid while the live corpus is byte-identical to the
// sorted document-ID tuple captured at generation time; any ingest or
// delete therefore invalidates every affected entry lazily on lookup.
type AnswerCache struct {
	mu     sync.Mutex
	lru    *lru.Cache[string, domain.CachedAnswer]
	ttl    time.Duration
	hits   uint64
	misses uint64
}

func NewAnswerCache(capacity int, ttl time.Duration) (*AnswerCache, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: cache capacity must be positive", domain.ErrConfig)
	}
	cache, err := lru.New[string, domain.CachedAnswer](capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: create answer cache: %v", domain.ErrConfig, err)
	}
	return &AnswerCache{lru: cache, ttl: ttl}, nil
}

// Get returns a cached answer if one exists for the question, has not
// expired, and was generated against exactly the given live document set.
func (c *AnswerCache) Get(question string, liveDocIDs []string) (domain.CachedAnswer, bool) {
	key := domain.NormalizeQuestion(question)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(key)
	if !ok {
		c.misses++
		return domain.CachedAnswer{}, false
	}
	if c.ttl > 0 && time.Since(entry.CreatedAt) > c.ttl {
		c.lru.Remove(key)
		c.misses++
		return domain.CachedAnswer{}, false
	}
	if !sameIDs(entry.DocumentIDs, liveDocIDs) {
		c.lru.Remove(key)
		c.misses++
		return domain.CachedAnswer{}, false
	}

	c.hits++
	return entry, true
}

// Put stores an answer. liveDocIDs must already be sorted ascending.
func (c *AnswerCache) Put(question string, answer domain.CachedAnswer) {
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(domain.NormalizeQuestion(question), answer)
}

func (c *AnswerCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

func (c *AnswerCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// Stats reports lifetime hit/miss counts.
func (c *AnswerCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
