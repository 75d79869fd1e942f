// Package resolve turns browse paths into validated native item
// identifiers.
//
// Resolution tries, in order: the session cache, the server's native
// path lookup, learned prefix rules, and heuristic candidates. Every
// identifier returned as resolved was accepted by a server-side validation
// call. A Resolver is not safe for concurrent use; the session serializes
// access to it.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
)

// Via names the strategy that produced a resolution.
type Via int

// Resolution strategies.
const (
	ViaNone Via = iota
	ViaCache
	ViaNative
	ViaRule
	ViaCandidate
)

var viaNames = [...]string{"none", "cache", "native", "rule", "candidate"}

// String returns the strategy name.
func (v Via) String() string {
	if v < 0 || int(v) >= len(viaNames) {
		return "unknown"
	}
	return viaNames[v]
}

// Match grades a resolution.
type Match int

// Match grades.
const (
	// MatchFailed means no strategy validated; ItemID is the input path.
	MatchFailed Match = iota
	// MatchExact means the server named the identifier or the path itself validated.
	MatchExact
	// MatchFallback means a rewritten path validated.
	MatchFallback
)

// String returns the grade name.
func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchFallback:
		return "fallback"
	default:
		return "failed"
	}
}

// ErrUnresolved is returned by Resolution.Err for failed resolutions.
var ErrUnresolved = errors.New("item identifier could not be resolved")

// Resolution is the outcome of resolving one browse path.
type Resolution struct {
	Path   string `json:"browse_path"`
	ItemID string `json:"item_id"`
	Match  Match  `json:"-"`
	Via    Via    `json:"-"`
}

// OK reports whether the identifier was validated.
func (r Resolution) OK() bool { return r.Match != MatchFailed }

// Err returns nil for validated resolutions and a wrapped ErrUnresolved
// otherwise.
func (r Resolution) Err() error {
	if r.OK() {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnresolved, r.Path)
}

// Lookup is the native path-to-identifier capability. opc.AddressSpace
// satisfies it.
type Lookup interface {
	ItemID(ctx context.Context, path string) (string, error)
}

// Config configures a Resolver.
type Config struct {
	// Items validates identifiers. Required.
	Items opc.ItemManager
	// Lookup is the optional native lookup. Nil under the flat browse variant.
	Lookup  Lookup
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Resolver resolves browse paths with a per-session cache and rule set.
type Resolver struct {
	items   opc.ItemManager
	lookup  Lookup
	logger  *log.Logger
	metrics *metrics.Collector

	cache map[string]Resolution
	rules ruleSet
}

// New creates a Resolver.
func New(cfg Config) (*Resolver, error) {
	if cfg.Items == nil {
		return nil, errors.New("resolver requires an item manager for validation")
	}
	return &Resolver{
		items:   cfg.Items,
		lookup:  cfg.Lookup,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		cache:   make(map[string]Resolution),
	}, nil
}

// Resolve returns a validated identifier for path, or path itself with
// MatchFailed. Transport errors during individual steps are absorbed.
func (r *Resolver) Resolve(ctx context.Context, path string) Resolution {
	if hit, ok := r.cache[path]; ok {
		r.metrics.IncCacheHit()
		hit.Via = ViaCache
		return hit
	}

	if r.lookup != nil {
		r.metrics.IncNativeLookup()
		id, err := r.lookup.ItemID(ctx, path)
		switch {
		case err != nil:
			r.logger.Debug("native item id lookup failed", map[string]any{"path": path, "error": err.Error()})
		case id != "" && r.Validate(ctx, id):
			return r.store(Resolution{Path: path, ItemID: id, Match: MatchExact, Via: ViaNative})
		}
	}

	for _, rule := range r.rules.rules {
		id, ok := rule.Apply(path)
		if !ok {
			continue
		}
		if r.Validate(ctx, id) {
			r.metrics.IncRuleHit()
			return r.store(Resolution{Path: path, ItemID: id, Match: MatchFallback, Via: ViaRule})
		}
	}

	r.metrics.IncCandidateGeneration()
	for _, id := range Candidates(path) {
		if !r.Validate(ctx, id) {
			continue
		}
		match := MatchFallback
		if id == path {
			match = MatchExact
		}
		res := r.store(Resolution{Path: path, ItemID: id, Match: match, Via: ViaCandidate})
		if rule, ok := learnRule(path, id); ok && r.rules.add(rule) {
			r.metrics.IncRuleLearned()
			r.logger.Debug("learned item id rule", map[string]any{"prefix": rule.Prefix, "replacement": rule.Replacement})
		}
		return res
	}

	r.metrics.IncResolveFailure()
	r.logger.Warn("item id unresolved", map[string]any{"path": path})
	return Resolution{Path: path, ItemID: path, Match: MatchFailed, Via: ViaNone}
}

// Validate declares id to the server inactive and reports whether the
// server accepted it. No item is added and nothing is read.
func (r *Resolver) Validate(ctx context.Context, id string) bool {
	r.metrics.IncValidation()
	def := opc.ItemDef{ItemID: id, Active: false, ClientHandle: 1}
	_, errs, err := r.items.ValidateItems(ctx, []opc.ItemDef{def})
	if err != nil {
		r.logger.Debug("validate items failed", map[string]any{"item_id": id, "error": err.Error()})
		return false
	}
	return len(errs) == 1 && errs[0] == nil
}

// store caches res under its path. A later resolution of the same path
// replaces the entry; distinct paths resolving to one identifier each keep
// their own entry.
func (r *Resolver) store(res Resolution) Resolution {
	r.cache[res.Path] = res
	return res
}

// Cached returns the cached resolution for path, if any, without counting
// a cache hit.
func (r *Resolver) Cached(path string) (Resolution, bool) {
	res, ok := r.cache[path]
	return res, ok
}

// Rules returns a copy of the learned rules in learning order.
func (r *Resolver) Rules() []Rule {
	return append([]Rule(nil), r.rules.rules...)
}

// Reset clears the cache and learned rules.
func (r *Resolver) Reset() {
	r.cache = make(map[string]Resolution)
	r.rules.reset()
}
