// Package opc declares the narrow server capabilities the client core
// depends on. Connection mechanics live behind these interfaces: the bridge
// package implements them over a wire protocol and the sim package
// implements them in memory.
package opc

import (
	"context"
	"time"

	"github.com/pithecene-io/opcda/types"
)

// Direction selects how ChangePosition moves the browse cursor.
type Direction int

// Browse directions.
const (
	BrowseUp   Direction = 1
	BrowseDown Direction = 2
	BrowseTo   Direction = 3
)

// BrowseKind selects which children an enumeration returns.
type BrowseKind int

// Browse kinds.
const (
	Branch BrowseKind = 1
	Leaf   BrowseKind = 2
	Flat   BrowseKind = 3
)

// DataSource selects where a synchronous read is served from.
type DataSource int

// Data sources.
const (
	SourceCache  DataSource = 1
	SourceDevice DataSource = 2
)

// Property IDs queried through ItemProperties.
const (
	PropDataType     uint32 = 1
	PropValue        uint32 = 2
	PropQuality      uint32 = 3
	PropTimestamp    uint32 = 4
	PropAccessRights uint32 = 5
)

// AddressSpace is the hierarchical, position-based browse capability.
// The browse position is session state and is not reentrant.
type AddressSpace interface {
	// ChangePosition moves the cursor. BrowseTo takes a fully qualified
	// path ("" is the root); BrowseDown takes a child branch name.
	ChangePosition(ctx context.Context, dir Direction, name string) error
	// BrowseNames enumerates the children of the current position.
	BrowseNames(ctx context.Context, kind BrowseKind) ([]string, error)
	// ItemID returns the server's identifier for a browse path.
	ItemID(ctx context.Context, path string) (string, error)
}

// ItemBrowser is the flat variant: children are looked up directly by
// identifier with no cursor.
type ItemBrowser interface {
	BrowseItem(ctx context.Context, itemID string, kind BrowseKind) ([]string, error)
}

// ItemProperties reads item metadata without adding the item to a group.
type ItemProperties interface {
	// GetProperties returns one value and one per-property error per id.
	GetProperties(ctx context.Context, itemID string, ids []uint32) ([]any, []error, error)
}

// ItemDef declares an item to a group.
type ItemDef struct {
	ItemID        string        `msgpack:"item_id"`
	AccessPath    string        `msgpack:"access_path"`
	Active        bool          `msgpack:"active"`
	ClientHandle  uint32        `msgpack:"client_handle"`
	RequestedType types.VarType `msgpack:"requested_type"`
}

// ItemResult is the server's answer for one declared item.
type ItemResult struct {
	ServerHandle  uint32             `msgpack:"server_handle"`
	CanonicalType types.VarType      `msgpack:"canonical_type"`
	AccessRights  types.AccessRights `msgpack:"access_rights"`
}

// ItemState is one item's value from a synchronous read.
type ItemState struct {
	ClientHandle uint32        `msgpack:"client_handle"`
	Value        any           `msgpack:"value"`
	Quality      uint16        `msgpack:"quality"`
	Timestamp    time.Time     `msgpack:"timestamp"`
	ValueType    types.VarType `msgpack:"value_type"`
}

// ItemManager declares and removes items. Per-item errors are returned in
// input order; the trailing error reports failure of the whole call.
type ItemManager interface {
	// ValidateItems checks identifiers without adding them.
	ValidateItems(ctx context.Context, defs []ItemDef) ([]ItemResult, []error, error)
	AddItems(ctx context.Context, defs []ItemDef) ([]ItemResult, []error, error)
	RemoveItems(ctx context.Context, handles []uint32) ([]error, error)
}

// SyncIO performs one blocking read of declared items.
type SyncIO interface {
	Read(ctx context.Context, source DataSource, handles []uint32) ([]ItemState, []error, error)
}

// Group is a server-side container of declared items.
type Group interface {
	ItemManager
	SyncIO
	Handle() uint32
	Name() string
}

// GroupSpec describes a group to create.
type GroupSpec struct {
	Name       string        `msgpack:"name"`
	Active     bool          `msgpack:"active"`
	UpdateRate time.Duration `msgpack:"update_rate"`
}

// Server is a connected server handle. Optional capabilities are queried
// with the accessor methods, which return ErrNoInterface when absent.
type Server interface {
	AddressSpace(ctx context.Context) (AddressSpace, error)
	ItemBrowser(ctx context.Context) (ItemBrowser, error)
	ItemProperties(ctx context.Context) (ItemProperties, error)
	AddGroup(ctx context.Context, spec GroupSpec) (Group, error)
	RemoveGroup(ctx context.Context, handle uint32) error
	Status(ctx context.Context) (types.ServerStatus, error)
	Close() error
}

// Target names a server instance on a host.
type Target struct {
	Host   string `json:"host" yaml:"host"`
	ProgID string `json:"progid" yaml:"progid"`
	CLSID  string `json:"clsid" yaml:"clsid"`
}

// ServerName returns the ProgID, or the CLSID when no ProgID is set.
func (t Target) ServerName() string {
	if t.ProgID != "" {
		return t.ProgID
	}
	return t.CLSID
}

// Dialer opens a server handle. Exactly one of ProgID or CLSID is used per
// call; callers perform fallback between them.
type Dialer interface {
	Dial(ctx context.Context, host, progID, clsid string) (Server, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, host, progID, clsid string) (Server, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, host, progID, clsid string) (Server, error) {
	return f(ctx, host, progID, clsid)
}
