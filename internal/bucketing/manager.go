package bucketing

import (
	"hash"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"cash-settlement-service/internal/config"
)

type BucketingManager struct {
	transactionBuckets int
	eventBuckets       int
	hasherPool         sync.Pool
}

func NewBucketingManager(cfg *config.Config) *BucketingManager {
	return newBucketingManager(cfg.Bucketing.TransactionBuckets, cfg.Bucketing.EventBuckets)
}

func newBucketingManager(transactionBuckets, eventBuckets int) *BucketingManager {
	if transactionBuckets <= 0 {
		transactionBuckets = 64
	}
	if eventBuckets <= 0 {
		eventBuckets = 16
	}

	bm := &BucketingManager{
		transactionBuckets: transactionBuckets,
		eventBuckets:       eventBuckets,
	}

	// Pool hashers to avoid an allocation per lookup
	bm.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return bm
}

// GetTransactionBucket returns the timeline partition for a transaction (0 to transactionBuckets-1)
func (bm *BucketingManager) GetTransactionBucket(transactionID string) int {
	return bm.getBucket(transactionID, bm.transactionBuckets)
}

// GetEventBucket returns the bucket used to spread per-user analytics rows
func (bm *BucketingManager) GetEventBucket(userID string) int {
	return bm.getBucket(userID, bm.eventBuckets)
}

// GetDateBucket returns the UTC day a timestamp falls in
func (bm *BucketingManager) GetDateBucket(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (bm *BucketingManager) TransactionBuckets() int {
	return bm.transactionBuckets
}

func (bm *BucketingManager) getBucket(key string, numBuckets int) int {
	return int(bm.getHash(key) % uint64(numBuckets))
}

func (bm *BucketingManager) getHash(key string) uint64 {
	hasher := bm.hasherPool.Get().(hash.Hash64)
	defer bm.hasherPool.Put(hasher)

	hasher.Reset()
	_, _ = hasher.Write([]byte(key))
	return hasher.Sum64()
}
