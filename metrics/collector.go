// Package metrics provides per-session counters for the browse, resolve and
// read paths.
//
// The Collector is a leaf package with no internal dependencies. Counters are
// per-call unless noted: one ReadTags call counts as one read batch no matter
// how many items it carries.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all counters.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Browse
	BrowseNodesExpanded int64
	BrowseNodeFailures  int64
	BrowseDepthSkips    int64
	BrowseDuplicates    int64
	BrowseEmptyNames    int64

	// Resolve
	Validations          int64
	NativeLookups        int64
	RuleHits             int64
	CandidateGenerations int64
	CacheHits            int64
	RulesLearned         int64
	ResolveFailures      int64

	// Read (items are per-record)
	ReadBatches     int64
	ItemsReadOK     int64
	ItemsFailed     int64
	CleanupFailures int64

	// Storage
	StoreWriteSuccess int64
	StoreWriteFailure int64

	// Bridge
	BridgeDecodeErrors int64

	// Dimensions (informational, set at construction)
	Host           string
	Server         string
	SessionID      string
	StorageBackend string
}

// Collector accumulates counters during a session.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex
	s  Snapshot
}

// NewCollector creates a Collector with dimension labels. Any may be empty.
func NewCollector(host, server, sessionID, storageBackend string) *Collector {
	return &Collector{s: Snapshot{
		Host:           host,
		Server:         server,
		SessionID:      sessionID,
		StorageBackend: storageBackend,
	}}
}

func (c *Collector) add(n int64, field func(*Snapshot) *int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	*field(&c.s) += n
	c.mu.Unlock()
}

// --- Browse ---

// IncBrowseNodeExpanded records a branch whose children were enumerated.
func (c *Collector) IncBrowseNodeExpanded() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BrowseNodesExpanded })
}

// IncBrowseNodeFailure records a branch that could not be positioned or
// enumerated.
func (c *Collector) IncBrowseNodeFailure() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BrowseNodeFailures })
}

// IncBrowseDepthSkip records a node skipped for exceeding max depth.
func (c *Collector) IncBrowseDepthSkip() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BrowseDepthSkips })
}

// IncBrowseDuplicate records a branch or leaf already seen.
func (c *Collector) IncBrowseDuplicate() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BrowseDuplicates })
}

// IncBrowseEmptyName records a discarded empty child name.
func (c *Collector) IncBrowseEmptyName() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BrowseEmptyNames })
}

// --- Resolve ---

// IncValidation records one ValidateItems round trip.
func (c *Collector) IncValidation() {
	c.add(1, func(s *Snapshot) *int64 { return &s.Validations })
}

// IncNativeLookup records one native path-to-ID query.
func (c *Collector) IncNativeLookup() {
	c.add(1, func(s *Snapshot) *int64 { return &s.NativeLookups })
}

// IncRuleHit records a resolution satisfied by a learned prefix rule.
func (c *Collector) IncRuleHit() {
	c.add(1, func(s *Snapshot) *int64 { return &s.RuleHits })
}

// IncCandidateGeneration records a fall-through to candidate generation.
func (c *Collector) IncCandidateGeneration() {
	c.add(1, func(s *Snapshot) *int64 { return &s.CandidateGenerations })
}

// IncCacheHit records a resolution served from cache.
func (c *Collector) IncCacheHit() {
	c.add(1, func(s *Snapshot) *int64 { return &s.CacheHits })
}

// IncRuleLearned records a newly learned prefix rule.
func (c *Collector) IncRuleLearned() {
	c.add(1, func(s *Snapshot) *int64 { return &s.RulesLearned })
}

// IncResolveFailure records a path that no strategy could resolve.
func (c *Collector) IncResolveFailure() {
	c.add(1, func(s *Snapshot) *int64 { return &s.ResolveFailures })
}

// --- Read ---

// IncReadBatch records one read batch.
func (c *Collector) IncReadBatch() {
	c.add(1, func(s *Snapshot) *int64 { return &s.ReadBatches })
}

// AddItemsReadOK records n items read successfully.
func (c *Collector) AddItemsReadOK(n int) {
	c.add(int64(n), func(s *Snapshot) *int64 { return &s.ItemsReadOK })
}

// AddItemsFailed records n items that failed to add or read.
func (c *Collector) AddItemsFailed(n int) {
	c.add(int64(n), func(s *Snapshot) *int64 { return &s.ItemsFailed })
}

// IncCleanupFailure records a RemoveItems or RemoveGroup failure.
func (c *Collector) IncCleanupFailure() {
	c.add(1, func(s *Snapshot) *int64 { return &s.CleanupFailures })
}

// --- Storage ---

// IncStoreWriteSuccess records a successful snapshot write (per-call).
func (c *Collector) IncStoreWriteSuccess() {
	c.add(1, func(s *Snapshot) *int64 { return &s.StoreWriteSuccess })
}

// IncStoreWriteFailure records a failed snapshot write (per-call).
func (c *Collector) IncStoreWriteFailure() {
	c.add(1, func(s *Snapshot) *int64 { return &s.StoreWriteFailure })
}

// --- Bridge ---

// IncBridgeDecodeErrors records a bridge frame decode error.
func (c *Collector) IncBridgeDecodeErrors() {
	c.add(1, func(s *Snapshot) *int64 { return &s.BridgeDecodeErrors })
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
