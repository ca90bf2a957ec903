package optimizer

import (
	"math/bits"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tallyhq/tally/pkg/observability"
)

// MatchKind describes how a dedup lookup matched
type MatchKind string

const (
	MatchMiss  MatchKind = "miss"
	MatchExact MatchKind = "exact"
	MatchNear  MatchKind = "near"
)

// CachedResult is a prior processing result kept for reuse
type CachedResult struct {
	ContentHash string
	// Fingerprint is a 64-bit similarity hash of the content. Two
	// fingerprints within a small Hamming distance are treated as
	// near-identical.
	Fingerprint uint64
	Payload     []byte
	StoredAt    time.Time
}

// DedupIndex answers "has identical or near-identical content already
// been processed" so callers can reuse a prior result instead of paying
// for a metered service again.
//
// Exact matches key on the content hash. Near matches compare
// similarity fingerprints and can return false positives: a hit is a
// hint to the caller, not a guarantee of exact reuse.
type DedupIndex struct {
	mu          sync.Mutex
	exact       *lru.Cache[string, *CachedResult]
	maxDistance int
	metrics     *observability.Metrics
}

// NewDedupIndex creates an index holding up to capacity prior results.
// maxDistance is the Hamming-distance bound for near matches; 0
// disables near matching.
func NewDedupIndex(capacity, maxDistance int, metrics *observability.Metrics) (*DedupIndex, error) {
	cache, err := lru.New[string, *CachedResult](capacity)
	if err != nil {
		return nil, err
	}
	return &DedupIndex{
		exact:       cache,
		maxDistance: maxDistance,
		metrics:     metrics,
	}, nil
}

// Lookup returns a prior result for the given content hash and
// fingerprint, if one exists. The second return reports whether the
// match was exact, near, or a miss.
func (d *DedupIndex) Lookup(contentHash string, fingerprint uint64) (*CachedResult, MatchKind) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if result, ok := d.exact.Get(contentHash); ok {
		d.metrics.DedupLookupsTotal.WithLabelValues(string(MatchExact)).Inc()
		return result, MatchExact
	}

	if d.maxDistance > 0 && fingerprint != 0 {
		// Linear scan over resident entries. The index is small (LRU
		// bounded) and lookups are off the hot recording path.
		for _, key := range d.exact.Keys() {
			result, ok := d.exact.Peek(key)
			if !ok || result.Fingerprint == 0 {
				continue
			}
			if bits.OnesCount64(result.Fingerprint^fingerprint) <= d.maxDistance {
				d.metrics.DedupLookupsTotal.WithLabelValues(string(MatchNear)).Inc()
				return result, MatchNear
			}
		}
	}

	d.metrics.DedupLookupsTotal.WithLabelValues(string(MatchMiss)).Inc()
	return nil, MatchMiss
}

// Store records a processing result for future reuse
func (d *DedupIndex) Store(contentHash string, fingerprint uint64, payload []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.exact.Add(contentHash, &CachedResult{
		ContentHash: contentHash,
		Fingerprint: fingerprint,
		Payload:     payload,
		StoredAt:    time.Now().UTC(),
	})
}

// Len reports the number of resident results
func (d *DedupIndex) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.exact.Len()
}
