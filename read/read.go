// Package read performs batched synchronous reads.
//
// One batch resolves every path, declares the resolved identifiers to a
// transient group, reads the declared subset once from cache, and removes
// the items and the group again. The result always holds one slot per
// input path, in input order.
package read

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/resolve"
	"github.com/pithecene-io/opcda/types"
	"github.com/pithecene-io/opcda/unified"
)

// CleanupTimeout bounds the remove calls issued after a batch. They run
// detached from the batch context so a cancelled read still releases its
// items and group.
const CleanupTimeout = 5 * time.Second

// Resolver resolves a browse path. *resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, path string) resolve.Resolution
}

// Config configures an Engine.
type Config struct {
	Resolver Resolver
	Logger   *log.Logger
	Metrics  *metrics.Collector
	// GroupName names transient groups. Defaults to opc.NewGroupName.
	GroupName func() string
}

// Engine runs read batches. It holds no per-batch state; the caller
// serializes batches on one session.
type Engine struct {
	resolver  Resolver
	logger    *log.Logger
	metrics   *metrics.Collector
	groupName func() string
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Resolver == nil {
		return nil, errors.New("read engine requires a resolver")
	}
	name := cfg.GroupName
	if name == nil {
		name = opc.NewGroupName
	}
	return &Engine{resolver: cfg.Resolver, logger: cfg.Logger, metrics: cfg.Metrics, groupName: name}, nil
}

// Item is the outcome for one input path.
type Item struct {
	Record     types.TagRecord
	Resolution resolve.Resolution
	// Err is nil when the item was read.
	Err error
}

// Result holds one Item per input path, in input order.
type Result struct {
	Items    []Item
	Status   types.Status
	Duration time.Duration
}

// Records returns the tag records in input order.
func (r *Result) Records() []types.TagRecord {
	out := make([]types.TagRecord, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Record
	}
	return out
}

// Errors returns the per-item errors in input order.
func (r *Result) Errors() []error {
	out := make([]error, len(r.Items))
	for i, it := range r.Items {
		out[i] = it.Err
	}
	return out
}

// Unified classifies every slot: failed items as system errors, read items
// by their quality code.
func (r *Result) Unified() []unified.Error {
	out := make([]unified.Error, len(r.Items))
	for i, it := range r.Items {
		out[i] = Classify(it)
	}
	return out
}

// Failed counts items with an error.
func (r *Result) Failed() int {
	n := 0
	for _, it := range r.Items {
		if it.Err != nil {
			n++
		}
	}
	return n
}

// Err aggregates the per-item errors, or returns nil when every item was
// read.
func (r *Result) Err() error {
	var result *multierror.Error
	for _, it := range r.Items {
		if it.Err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", it.Record.ID, it.Err))
		}
	}
	return result.ErrorOrNil()
}

// Read runs one batch against owner. Empty input succeeds immediately.
// Failures are reported per item; Read never returns early for a single
// item and cleans up whatever it declared on every exit path.
func (e *Engine) Read(ctx context.Context, owner opc.GroupOwner, paths []string) *Result {
	start := time.Now()
	res := &Result{Items: make([]Item, len(paths))}
	if len(paths) == 0 {
		res.Status = types.StatusOK
		return res
	}
	e.metrics.IncReadBatch()
	defer func() {
		res.Status = types.StatusOf(res.Errors())
		res.Duration = time.Since(start)
		failed := res.Failed()
		e.metrics.AddItemsFailed(failed)
		e.metrics.AddItemsReadOK(len(paths) - failed)
	}()

	// 1. Resolve. Unresolved items keep their slot with a bad record.
	var defs []opc.ItemDef
	var slots []int
	for i, p := range paths {
		r := e.resolver.Resolve(ctx, p)
		res.Items[i] = Item{Record: types.BadTagRecord(p, r.ItemID), Resolution: r, Err: r.Err()}
		if !r.OK() {
			continue
		}
		defs = append(defs, opc.ItemDef{ItemID: r.ItemID, Active: true, ClientHandle: uint32(i + 1)})
		slots = append(slots, i)
	}
	if len(defs) == 0 {
		return res
	}

	group, err := owner.AddGroup(ctx, opc.GroupSpec{Name: e.groupName(), Active: true})
	if err != nil {
		e.logger.Error("add group failed", map[string]any{"error": err.Error()})
		e.failSlots(res, slots, fmt.Errorf("add group: %w", err))
		return res
	}
	defer e.removeGroup(ctx, owner, group)

	// 2. Declare.
	results, addErrs, err := group.AddItems(ctx, defs)
	if err != nil {
		e.logger.Error("add items failed", map[string]any{"items": len(defs), "error": err.Error()})
		e.failSlots(res, slots, fmt.Errorf("add items: %w", err))
		return res
	}
	var handles []uint32
	var added []int
	for j, slot := range slots {
		it := &res.Items[slot]
		if err := itemErr(addErrs, j); err != nil {
			it.Err = fmt.Errorf("add item %s: %w", defs[j].ItemID, err)
			continue
		}
		if j >= len(results) {
			it.Err = fmt.Errorf("add item %s: missing result: %w", defs[j].ItemID, opc.ErrFail)
			continue
		}
		it.Record.AccessRights = results[j].AccessRights
		it.Record.DataType = results[j].CanonicalType
		handles = append(handles, results[j].ServerHandle)
		added = append(added, slot)
	}
	if len(handles) == 0 {
		return res
	}
	// 5. Remove runs even if the read fails outright.
	defer e.removeItems(ctx, group, handles)

	// 3. Read the declared subset.
	states, readErrs, err := group.Read(ctx, opc.SourceCache, handles)
	if err != nil {
		e.logger.Error("sync read failed", map[string]any{"items": len(handles), "error": err.Error()})
		e.failSlots(res, added, fmt.Errorf("read: %w", err))
		return res
	}

	// 4. Populate.
	for k, slot := range added {
		it := &res.Items[slot]
		if err := itemErr(readErrs, k); err != nil {
			it.Err = fmt.Errorf("read item %s: %w", it.Record.ItemID, err)
			continue
		}
		if k >= len(states) {
			it.Err = fmt.Errorf("read item %s: missing state: %w", it.Record.ItemID, opc.ErrFail)
			continue
		}
		st := states[k]
		it.Record.Value = st.Value
		it.Record.Quality = st.Quality
		it.Record.Timestamp = st.Timestamp
		it.Record.DataType = st.ValueType
		it.Err = nil
	}
	return res
}

// failSlots marks every listed slot failed with err and resets its record
// to the bad sentinel.
func (e *Engine) failSlots(res *Result, slots []int, err error) {
	for _, s := range slots {
		it := &res.Items[s]
		it.Err = err
		it.Record.Value = nil
		it.Record.Quality = types.QualityBad
		it.Record.Timestamp = time.Time{}
	}
}

func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), CleanupTimeout)
}

func (e *Engine) removeItems(ctx context.Context, group opc.Group, handles []uint32) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	errs, err := group.RemoveItems(ctx, handles)
	if err != nil {
		e.metrics.IncCleanupFailure()
		e.logger.Warn("remove items failed", map[string]any{"items": len(handles), "error": err.Error()})
		return
	}
	for i, ierr := range errs {
		if ierr != nil {
			e.metrics.IncCleanupFailure()
			e.logger.Debug("remove item failed", map[string]any{"handle": handles[i], "error": ierr.Error()})
		}
	}
}

func (e *Engine) removeGroup(ctx context.Context, owner opc.GroupOwner, group opc.Group) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()
	if err := owner.RemoveGroup(ctx, group.Handle()); err != nil {
		e.metrics.IncCleanupFailure()
		e.logger.Warn("remove group failed", map[string]any{"group": group.Name(), "error": err.Error()})
	}
}

// itemErr returns errs[i], treating a short slice as success for the
// missing entries.
func itemErr(errs []error, i int) error {
	if i < len(errs) {
		return errs[i]
	}
	return nil
}
