package linkhealth

import (
	"context"
	"sync"
	"testing"
	"time"

	"taxEvents/internal/cache"
	"taxEvents/internal/models/domain"

	"github.com/stretchr/testify/assert"
)

type fakeKVStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeKVStore() *fakeKVStore {
	return &fakeKVStore{data: make(map[string]string)}
}

func (f *fakeKVStore) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", cache.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeKVStore) Set(_ context.Context, key string, value string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return nil
}

type countingChecker struct {
	calls int
	score int
}

func (c *countingChecker) Check(_ context.Context, rawURL string) domain.LinkHealth {
	c.calls++
	status := 200
	return domain.LinkHealth{Status: &status, CanonicalURL: &rawURL, RedirectChain: []string{}, Score: c.score}
}

func TestCachedChecker_SharesResults(t *testing.T) {
	next := &countingChecker{score: 90}
	c := NewCachedChecker(discardLogger(), next, newFakeKVStore(), time.Minute)
	ctx := context.Background()

	first := c.Check(ctx, "https://irs.gov/a")
	second := c.Check(ctx, "https://irs.gov/a")

	assert.Equal(t, 1, next.calls)
	assert.Equal(t, first, second)
	assert.Equal(t, 90, second.Score)

	c.Check(ctx, "https://irs.gov/b")
	assert.Equal(t, 2, next.calls)
}

func TestCachedChecker_NoCacheBypasses(t *testing.T) {
	next := &countingChecker{score: 90}
	c := NewCachedChecker(discardLogger(), next, newFakeKVStore(), time.Minute)

	c.Check(context.Background(), "https://irs.gov/a")
	next.score = 40
	res := c.Check(NoCache(context.Background()), "https://irs.gov/a")

	assert.Equal(t, 2, next.calls)
	assert.Equal(t, 40, res.Score)

	// the forced result refreshes the cache for later runs
	cached := c.Check(context.Background(), "https://irs.gov/a")
	assert.Equal(t, 40, cached.Score)
	assert.Equal(t, 2, next.calls)
}
