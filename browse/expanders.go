package browse

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/pithecene-io/opcda/opc"
)

// Hierarchical expands nodes through the position-based address space.
// It moves the shared browse cursor, so callers must serialize walks.
type Hierarchical struct {
	Space opc.AddressSpace
}

// Expand positions the cursor at path and enumerates leaves, then
// branches. A failed leaf enumeration does not prevent branch enumeration.
func (h Hierarchical) Expand(ctx context.Context, path string) ([]string, []string, error) {
	if err := h.Space.ChangePosition(ctx, opc.BrowseTo, path); err != nil {
		return nil, nil, fmt.Errorf("change position: %w", err)
	}
	var result *multierror.Error
	leaves, err := h.Space.BrowseNames(ctx, opc.Leaf)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("enumerate leaves: %w", err))
	}
	branches, err := h.Space.BrowseNames(ctx, opc.Branch)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("enumerate branches: %w", err))
	}
	return leaves, branches, result.ErrorOrNil()
}

// Flat expands nodes through direct identifier lookup with no cursor.
type Flat struct {
	Browser opc.ItemBrowser
}

// Expand looks up the leaf and branch children of path.
func (f Flat) Expand(ctx context.Context, path string) ([]string, []string, error) {
	var result *multierror.Error
	leaves, err := f.Browser.BrowseItem(ctx, path, opc.Leaf)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("browse leaves: %w", err))
	}
	branches, err := f.Browser.BrowseItem(ctx, path, opc.Branch)
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("browse branches: %w", err))
	}
	return leaves, branches, result.ErrorOrNil()
}

var (
	_ Expander = Hierarchical{}
	_ Expander = Flat{}
)
