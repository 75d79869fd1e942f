package session

import (
	"context"
	"fmt"
	"math"

	"github.com/pithecene-io/opcda/browse"
	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/resolve"
	"github.com/pithecene-io/opcda/types"
	"github.com/pithecene-io/opcda/unified"
)

// BrowseAllTags returns every leaf path under start ("" is the root),
// bounded by the session's max depth. Order is discovery order.
func (s *Session) BrowseAllTags(ctx context.Context, start string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.browseLocked(ctx, start)
}

func (s *Session) browseLocked(ctx context.Context, start string) ([]string, error) {
	if err := s.requireLocked(); err != nil {
		return nil, err
	}
	var exp browse.Expander
	switch s.method {
	case MethodAddressSpace:
		exp = browse.Hierarchical{Space: s.space}
	case MethodItemProperties:
		exp = browse.Flat{Browser: s.browser}
	default:
		return nil, ErrNoBrowser
	}
	tags, err := browse.Walk(ctx, exp, start, browse.Config{
		MaxDepth: s.maxDepth,
		Logger:   s.logger,
		Metrics:  s.metrics,
	})
	s.logger.Debug("browse complete", map[string]any{"start": start, "tags": len(tags)})
	return tags, err
}

// ResolveItemID resolves one browse path. A path no strategy could
// validate is returned unchanged with resolve.MatchFailed and no error.
func (s *Session) ResolveItemID(ctx context.Context, path string) (resolve.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(); err != nil {
		return resolve.Resolution{Path: path, ItemID: path}, err
	}
	return s.resolver.Resolve(ctx, path), nil
}

// ReadTags reads paths in one batch. The result has one slot per path in
// input order; only a disconnected session is an error.
func (s *Session) ReadTags(ctx context.Context, paths []string) (*read.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(); err != nil {
		return nil, err
	}
	return s.engine.Read(ctx, s.srv, paths), nil
}

// ClassifyQuality decomposes a quality code. It needs no connection.
func (s *Session) ClassifyQuality(code uint16) unified.Error {
	return unified.FromQuality(code, s.id)
}

// ReadableTag is a browsed leaf whose identifier validated.
type ReadableTag struct {
	BrowsePath string        `json:"browse_path"`
	ItemID     string        `json:"item_id"`
	Match      resolve.Match `json:"-"`
	Via        resolve.Via   `json:"-"`
}

// ReadableTags browses from start and resolves every leaf. It returns the
// leaves that resolved and the total number of leaves browsed.
func (s *Session) ReadableTags(ctx context.Context, start string) ([]ReadableTag, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, err := s.browseLocked(ctx, start)
	if err != nil && len(tags) == 0 {
		return nil, 0, err
	}
	var out []ReadableTag
	for _, p := range tags {
		r := s.resolver.Resolve(ctx, p)
		if !r.OK() {
			continue
		}
		out = append(out, ReadableTag{BrowsePath: p, ItemID: r.ItemID, Match: r.Match, Via: r.Via})
	}
	s.logger.Debug("readable tags resolved", map[string]any{"readable": len(out), "total": len(tags)})
	return out, len(tags), err
}

// ItemProperties reads the data type and access rights of itemID without
// adding it to a group. The record carries BAD quality and no value.
// The status is partial or failed when some or all properties failed.
func (s *Session) ItemProperties(ctx context.Context, itemID string) (types.TagRecord, types.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := types.BadTagRecord(itemID, itemID)
	if err := s.requireLocked(); err != nil {
		return rec, types.StatusFailed, err
	}
	if s.props == nil {
		return rec, types.StatusFailed, fmt.Errorf("item properties: %w", opc.ErrNoInterface)
	}

	ids := []uint32{opc.PropDataType, opc.PropAccessRights}
	values, errs, err := s.props.GetProperties(ctx, itemID, ids)
	if err != nil {
		return rec, types.StatusFailed, fmt.Errorf("get item properties %s: %w", itemID, err)
	}

	perProp := make([]error, len(ids))
	for i, id := range ids {
		if i < len(errs) && errs[i] != nil {
			perProp[i] = errs[i]
			s.logger.Warn("item property failed", map[string]any{"item_id": itemID, "property": id, "error": errs[i].Error()})
			continue
		}
		if i >= len(values) {
			perProp[i] = opc.ErrFail
			continue
		}
		n, ok := asUint32(values[i])
		if !ok {
			perProp[i] = opc.ErrFail
			s.logger.Warn("unexpected property value", map[string]any{
				"item_id":  itemID,
				"property": id,
				"type":     fmt.Sprintf("%T", values[i]),
				"value":    fmt.Sprint(values[i]),
			})
			continue
		}
		switch id {
		case opc.PropDataType:
			rec.DataType = types.VarType(n)
		case opc.PropAccessRights:
			rec.AccessRights = types.AccessRights(n)
		}
	}
	return rec, types.StatusOf(perProp), nil
}

// asUint32 accepts any integer representation a transport may produce.
// Negative values and values above math.MaxUint32 are rejected.
func asUint32(v any) (uint32, bool) {
	switch x := v.(type) {
	case int8:
		return signedUint32(int64(x))
	case int16:
		return signedUint32(int64(x))
	case int32:
		return signedUint32(int64(x))
	case int64:
		return signedUint32(x)
	case int:
		return signedUint32(int64(x))
	case uint8:
		return uint32(x), true
	case uint16:
		return uint32(x), true
	case uint32:
		return x, true
	case uint64:
		if x > math.MaxUint32 {
			return 0, false
		}
		return uint32(x), true
	case uint:
		if uint64(x) > math.MaxUint32 {
			return 0, false
		}
		return uint32(x), true
	default:
		return 0, false
	}
}

func signedUint32(x int64) (uint32, bool) {
	if x < 0 || x > math.MaxUint32 {
		return 0, false
	}
	return uint32(x), true
}

// ServerStatus returns the server's status block. The first successful
// fetch is cached until disconnect.
func (s *Session) ServerStatus(ctx context.Context) (types.ServerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireLocked(); err != nil {
		return types.ServerStatus{}, err
	}
	if s.status != nil {
		return *s.status, nil
	}
	st, err := s.srv.Status(ctx)
	if err != nil {
		return types.ServerStatus{}, fmt.Errorf("get server status: %w", err)
	}
	s.status = &st
	return st, nil
}
