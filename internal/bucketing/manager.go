package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"blackjack-auth/internal/config"
)

// Manager assigns security events to stable partitions so the analytics
// tables shard evenly. Same account key, same bucket, always.
type Manager struct {
	eventBuckets int
	hasherPool   sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		eventBuckets: cfg.Bucketing.EventBuckets,
		hasherPool: sync.Pool{
			New: func() interface{} {
				return murmur3.New64()
			},
		},
	}
}

// EventBucket maps an account key to [0, eventBuckets).
func (m *Manager) EventBucket(accountKey string) int {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(accountKey))

	return int(hasher.Sum64() % uint64(m.eventBuckets))
}

// DateBucket formats an event time as the daily partition key.
func (m *Manager) DateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
