package sim

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/types"
)

// Operation names used for call counting and fault injection. They match
// the bridge op names.
const (
	OpChangePosition = "change_position"
	OpBrowseNames    = "browse_names"
	OpItemID         = "item_id"
	OpBrowseItem     = "browse_item"
	OpGetProperties  = "get_properties"
	OpAddGroup       = "add_group"
	OpRemoveGroup    = "remove_group"
	OpValidateItems  = "validate_items"
	OpAddItems       = "add_items"
	OpRead           = "read"
	OpRemoveItems    = "remove_items"
	OpStatus         = "status"
)

// Server is an in-memory opc.Server. Safe for concurrent use.
type Server struct {
	mu sync.Mutex
	ns *Namespace

	cursor     string
	groups     map[uint32]*Group
	nextGroup  uint32
	nextHandle uint32
	started    time.Time
	closed     bool

	calls     map[string]int
	faults    map[string]error
	itemFault map[string]map[string]error
	// browseFault fails BrowseNames/BrowseItem at one position.
	browseFault map[string]error
	// removed holds every declared handle released by RemoveItems.
	removed []uint32

	// Now supplies timestamps. Defaults to time.Now.
	Now func() time.Time
}

// New creates a server over ns.
func New(ns *Namespace) *Server {
	if ns.Nodes == nil {
		ns.Nodes = map[string]Node{}
	}
	if ns.Items == nil {
		ns.Items = map[string]Item{}
	}
	return &Server{
		ns:          ns,
		groups:      make(map[uint32]*Group),
		calls:       make(map[string]int),
		faults:      make(map[string]error),
		itemFault:   make(map[string]map[string]error),
		browseFault: make(map[string]error),
		started:     time.Now(),
		Now:         time.Now,
	}
}

// Fail makes every call of op return err. A nil err clears the fault.
func (s *Server) Fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// FailItem makes op report err for itemID only. Supported for
// validate_items, add_items and read.
func (s *Server) FailItem(op, itemID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.itemFault[op] == nil {
		s.itemFault[op] = make(map[string]error)
	}
	if err == nil {
		delete(s.itemFault[op], itemID)
		return
	}
	s.itemFault[op][itemID] = err
}

// FailBrowse makes enumeration at path fail with err.
func (s *Server) FailBrowse(path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.browseFault, path)
		return
	}
	s.browseFault[path] = err
}

// SetItem replaces the state of an item.
func (s *Server) SetItem(itemID string, item Item) {
	s.mu.Lock()
	s.ns.Items[itemID] = item
	s.mu.Unlock()
}

// Calls returns how many times op was invoked.
func (s *Server) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// RemovedHandles returns the declared handles released so far, in call
// order.
func (s *Server) RemovedHandles() []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.removed)
}

// Groups returns the number of live groups.
func (s *Server) Groups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.groups)
}

// enter counts op and returns its injected fault. Callers hold s.mu.
func (s *Server) enter(op string) error {
	s.calls[op]++
	if s.closed {
		return fmt.Errorf("%s: server closed: %w", op, opc.ErrFail)
	}
	return s.faults[op]
}

func (s *Server) itemErr(op, itemID string) error {
	return s.itemFault[op][itemID]
}

// AddressSpace implements opc.Server.
func (s *Server) AddressSpace(context.Context) (opc.AddressSpace, error) {
	if b := s.ns.Browse; b != "" && b != "address_space" {
		return nil, opc.ErrNoInterface
	}
	return addressSpace{s}, nil
}

// ItemBrowser implements opc.Server. The flat browser is offered by every
// server that browses at all.
func (s *Server) ItemBrowser(context.Context) (opc.ItemBrowser, error) {
	if s.ns.Browse == "none" {
		return nil, opc.ErrNoInterface
	}
	return itemBrowser{s}, nil
}

// ItemProperties implements opc.Server.
func (s *Server) ItemProperties(context.Context) (opc.ItemProperties, error) {
	if s.ns.Browse == "none" {
		return nil, opc.ErrNoInterface
	}
	return properties{s}, nil
}

// AddGroup implements opc.Server.
func (s *Server) AddGroup(_ context.Context, spec opc.GroupSpec) (opc.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAddGroup); err != nil {
		return nil, err
	}
	for _, g := range s.groups {
		if g.name == spec.Name {
			return nil, fmt.Errorf("group %q: %w", spec.Name, opc.ErrDuplicateName)
		}
	}
	s.nextGroup++
	g := &Group{srv: s, handle: s.nextGroup, name: spec.Name, items: make(map[uint32]string)}
	s.groups[g.handle] = g
	return g, nil
}

// RemoveGroup implements opc.Server.
func (s *Server) RemoveGroup(_ context.Context, handle uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRemoveGroup); err != nil {
		return err
	}
	if _, ok := s.groups[handle]; !ok {
		return opc.ErrInvalidHandle
	}
	delete(s.groups, handle)
	return nil
}

// Status implements opc.Server.
func (s *Server) Status(context.Context) (types.ServerStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpStatus); err != nil {
		return types.ServerStatus{}, err
	}
	state, _ := stateByName(s.ns.State)
	now := s.Now()
	return types.ServerStatus{
		Vendor:         s.ns.Vendor,
		MajorVersion:   s.ns.Version.Major,
		MinorVersion:   s.ns.Version.Minor,
		BuildNumber:    s.ns.Version.Build,
		StartTime:      s.started,
		CurrentTime:    now,
		LastUpdateTime: now,
		State:          state,
		GroupCount:     len(s.groups),
	}, nil
}

// Close implements opc.Server. Later calls fail.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	s.groups = make(map[uint32]*Group)
	s.mu.Unlock()
	return nil
}

// children lists the leaf or branch names under path.
func (s *Server) children(op, path string, kind opc.BrowseKind) ([]string, error) {
	if err := s.browseFault[path]; err != nil {
		return nil, err
	}
	key, ok := s.ns.nodeKey(path)
	if !ok {
		return nil, fmt.Errorf("%s %q: %w", op, path, opc.ErrUnknownPath)
	}
	node := s.ns.Nodes[key]
	var names []string
	if kind == opc.Leaf || kind == opc.Flat {
		for _, l := range node.Leaves {
			names = append(names, l.Name)
		}
	}
	if kind == opc.Branch || kind == opc.Flat {
		for _, b := range node.Branches {
			names = append(names, b.Name)
		}
	}
	return names, nil
}

type addressSpace struct{ s *Server }

func (a addressSpace) ChangePosition(_ context.Context, dir opc.Direction, name string) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpChangePosition); err != nil {
		return err
	}
	var next string
	switch dir {
	case opc.BrowseTo:
		next = name
	case opc.BrowseDown:
		if s.cursor == "" {
			next = name
		} else {
			next = s.cursor + "." + name
		}
	case opc.BrowseUp:
		if s.cursor == "" {
			return fmt.Errorf("browse up from root: %w", opc.ErrFail)
		}
		if i := strings.LastIndex(s.cursor, "."); i >= 0 {
			next = s.cursor[:i]
		}
	default:
		return opc.ErrInvalidArg
	}
	if _, ok := s.ns.nodeKey(next); !ok {
		return fmt.Errorf("change position %q: %w", next, opc.ErrUnknownPath)
	}
	s.cursor = next
	return nil
}

func (a addressSpace) BrowseNames(_ context.Context, kind opc.BrowseKind) ([]string, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpBrowseNames); err != nil {
		return nil, err
	}
	return s.children(OpBrowseNames, s.cursor, kind)
}

func (a addressSpace) ItemID(_ context.Context, path string) (string, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpItemID); err != nil {
		return "", err
	}
	if !s.ns.NativeIDs {
		return "", opc.ErrNotImpl
	}
	id, ok := s.ns.leafItemID(path)
	if !ok {
		return "", fmt.Errorf("item id %q: %w", path, opc.ErrUnknownPath)
	}
	return id, nil
}

type itemBrowser struct{ s *Server }

func (b itemBrowser) BrowseItem(_ context.Context, itemID string, kind opc.BrowseKind) ([]string, error) {
	s := b.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpBrowseItem); err != nil {
		return nil, err
	}
	return s.children(OpBrowseItem, itemID, kind)
}

type properties struct{ s *Server }

func (p properties) GetProperties(_ context.Context, itemID string, ids []uint32) ([]any, []error, error) {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpGetProperties); err != nil {
		return nil, nil, err
	}
	item, ok := s.ns.Items[itemID]
	if !ok {
		return nil, nil, fmt.Errorf("properties %q: %w", itemID, opc.ErrUnknownItemID)
	}
	values := make([]any, len(ids))
	errs := make([]error, len(ids))
	for i, id := range ids {
		switch id {
		case opc.PropDataType:
			values[i] = int16(types.VarTypeOf(item.Value))
		case opc.PropValue:
			values[i] = item.Value
		case opc.PropQuality:
			values[i] = int16(item.quality())
		case opc.PropTimestamp:
			values[i] = s.Now()
		case opc.PropAccessRights:
			values[i] = int32(item.rights())
		default:
			errs[i] = opc.ErrInvalidPID
		}
	}
	return values, errs, nil
}

func (it Item) quality() uint16 {
	if it.Quality == nil {
		return types.QualityGood
	}
	return *it.Quality
}

func (it Item) rights() types.AccessRights {
	if it.Rights == nil {
		return types.AccessReadable
	}
	return *it.Rights
}

// Group is a simulated server group.
type Group struct {
	srv    *Server
	handle uint32
	name   string
	items  map[uint32]string
}

// Handle implements opc.Group.
func (g *Group) Handle() uint32 { return g.handle }

// Name implements opc.Group.
func (g *Group) Name() string { return g.name }

// Items returns the number of items declared in the group.
func (g *Group) Items() int {
	g.srv.mu.Lock()
	defer g.srv.mu.Unlock()
	return len(g.items)
}

func (g *Group) check(def opc.ItemDef, op string) (Item, error) {
	if def.ItemID == "" {
		return Item{}, opc.ErrInvalidItemID
	}
	if err := g.srv.itemErr(op, def.ItemID); err != nil {
		return Item{}, err
	}
	item, ok := g.srv.ns.Items[def.ItemID]
	if !ok {
		return Item{}, opc.ErrUnknownItemID
	}
	return item, nil
}

// ValidateItems implements opc.ItemManager.
func (g *Group) ValidateItems(_ context.Context, defs []opc.ItemDef) ([]opc.ItemResult, []error, error) {
	s := g.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpValidateItems); err != nil {
		return nil, nil, err
	}
	results := make([]opc.ItemResult, len(defs))
	errs := make([]error, len(defs))
	for i, def := range defs {
		item, err := g.check(def, OpValidateItems)
		if err != nil {
			errs[i] = err
			continue
		}
		results[i] = opc.ItemResult{CanonicalType: types.VarTypeOf(item.Value), AccessRights: item.rights()}
	}
	return results, errs, nil
}

// AddItems implements opc.ItemManager.
func (g *Group) AddItems(_ context.Context, defs []opc.ItemDef) ([]opc.ItemResult, []error, error) {
	s := g.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpAddItems); err != nil {
		return nil, nil, err
	}
	results := make([]opc.ItemResult, len(defs))
	errs := make([]error, len(defs))
	for i, def := range defs {
		item, err := g.check(def, OpAddItems)
		if err != nil {
			errs[i] = err
			continue
		}
		s.nextHandle++
		g.items[s.nextHandle] = def.ItemID
		results[i] = opc.ItemResult{
			ServerHandle:  s.nextHandle,
			CanonicalType: types.VarTypeOf(item.Value),
			AccessRights:  item.rights(),
		}
	}
	return results, errs, nil
}

// Read implements opc.SyncIO.
func (g *Group) Read(_ context.Context, _ opc.DataSource, handles []uint32) ([]opc.ItemState, []error, error) {
	s := g.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRead); err != nil {
		return nil, nil, err
	}
	states := make([]opc.ItemState, len(handles))
	errs := make([]error, len(handles))
	now := s.Now()
	for i, h := range handles {
		id, ok := g.items[h]
		if !ok {
			errs[i] = opc.ErrInvalidHandle
			continue
		}
		if err := s.itemErr(OpRead, id); err != nil {
			errs[i] = err
			continue
		}
		item := s.ns.Items[id]
		if !item.rights().Readable() {
			errs[i] = opc.ErrBadRights
			continue
		}
		states[i] = opc.ItemState{
			ClientHandle: h,
			Value:        item.Value,
			Quality:      item.quality(),
			Timestamp:    now,
			ValueType:    types.VarTypeOf(item.Value),
		}
	}
	return states, errs, nil
}

// RemoveItems implements opc.ItemManager.
func (g *Group) RemoveItems(_ context.Context, handles []uint32) ([]error, error) {
	s := g.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(OpRemoveItems); err != nil {
		return nil, err
	}
	errs := make([]error, len(handles))
	for i, h := range handles {
		if _, ok := g.items[h]; !ok {
			errs[i] = opc.ErrInvalidHandle
			continue
		}
		delete(g.items, h)
		s.removed = append(s.removed, h)
	}
	return errs, nil
}

var (
	_ opc.Server = (*Server)(nil)
	_ opc.Group  = (*Group)(nil)
)

// Dialer returns a dialer that opens srv when asked for progID or clsid
// on any host. Other names fail with opc.ErrFail. Dialing reopens a closed
// server.
func Dialer(srv *Server, progID, clsid string) opc.Dialer {
	return opc.DialerFunc(func(_ context.Context, host, p, c string) (opc.Server, error) {
		switch {
		case c != "" && c == clsid, p != "" && p == progID:
			srv.mu.Lock()
			srv.closed = false
			srv.mu.Unlock()
			return srv, nil
		default:
			return nil, fmt.Errorf("no server progid=%q clsid=%q on %q: %w", p, c, host, opc.ErrFail)
		}
	})
}
