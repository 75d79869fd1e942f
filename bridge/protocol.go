package bridge

import (
	"errors"

	"github.com/pithecene-io/opcda/opc"
	"github.com/pithecene-io/opcda/types"
)

// ProtocolVersion is carried on every request. The server rejects others.
const ProtocolVersion = "1"

// Op names a remote operation.
type Op string

// Operations. The three capability queries answer with an empty success or
// E_NOINTERFACE.
const (
	OpConnect        Op = "connect"
	OpAddressSpace   Op = "address_space"
	OpItemBrowser    Op = "item_browser"
	OpItemProperties Op = "item_properties"
	OpChangePosition Op = "change_position"
	OpBrowseNames    Op = "browse_names"
	OpItemID         Op = "item_id"
	OpBrowseItem     Op = "browse_item"
	OpGetProperties  Op = "get_properties"
	OpAddGroup       Op = "add_group"
	OpRemoveGroup    Op = "remove_group"
	OpValidateItems  Op = "validate_items"
	OpAddItems       Op = "add_items"
	OpRead           Op = "read"
	OpRemoveItems    Op = "remove_items"
	OpStatus         Op = "status"
)

// Request is a single call. Only the arguments relevant to Op are set.
type Request struct {
	Type    string `msgpack:"type"`
	Version string `msgpack:"version"`
	ID      uint64 `msgpack:"id"`
	Op      Op     `msgpack:"op"`

	Host        string         `msgpack:"host,omitempty"`
	ProgID      string         `msgpack:"progid,omitempty"`
	CLSID       string         `msgpack:"clsid,omitempty"`
	Direction   opc.Direction  `msgpack:"direction,omitempty"`
	Name        string         `msgpack:"name,omitempty"`
	Kind        opc.BrowseKind `msgpack:"kind,omitempty"`
	ItemID      string         `msgpack:"item_id,omitempty"`
	PropertyIDs []uint32       `msgpack:"property_ids,omitempty"`
	Group       uint32         `msgpack:"group,omitempty"`
	GroupSpec   *opc.GroupSpec `msgpack:"group_spec,omitempty"`
	Items       []opc.ItemDef  `msgpack:"items,omitempty"`
	Handles     []uint32       `msgpack:"handles,omitempty"`
	Source      opc.DataSource `msgpack:"source,omitempty"`
}

// WireError is an error as it travels. An empty Code means success.
type WireError struct {
	Code    string `msgpack:"code"`
	Message string `msgpack:"message,omitempty"`
}

// Response answers the request with the same ID. ID 0 answers a request
// that could not be decoded.
type Response struct {
	Type  string     `msgpack:"type"`
	ID    uint64     `msgpack:"id"`
	OK    bool       `msgpack:"ok"`
	Error *WireError `msgpack:"error,omitempty"`

	Names      []string            `msgpack:"names,omitempty"`
	ItemID     string              `msgpack:"item_id,omitempty"`
	Values     []any               `msgpack:"values,omitempty"`
	ItemErrors []WireError         `msgpack:"item_errors,omitempty"`
	Results    []opc.ItemResult    `msgpack:"results,omitempty"`
	States     []opc.ItemState     `msgpack:"states,omitempty"`
	Group      uint32              `msgpack:"group,omitempty"`
	GroupName  string              `msgpack:"group_name,omitempty"`
	Status     *types.ServerStatus `msgpack:"status,omitempty"`
}

// RemoteError is an error reported by the far side of the bridge. It
// unwraps to the opc sentinel named by Code, so errors.Is works across
// the wire.
type RemoteError struct {
	Code    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" || e.Message == e.Code {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

func (e *RemoteError) Unwrap() error {
	return opc.FromCode(e.Code)
}

func toWire(err error) WireError {
	if err == nil {
		return WireError{}
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return WireError{Code: remote.Code, Message: remote.Message}
	}
	return WireError{Code: opc.Code(err), Message: err.Error()}
}

func fromWire(w WireError) error {
	if w.Code == "" {
		return nil
	}
	return &RemoteError{Code: w.Code, Message: w.Message}
}

func toWireAll(errs []error) []WireError {
	if errs == nil {
		return nil
	}
	out := make([]WireError, len(errs))
	for i, err := range errs {
		out[i] = toWire(err)
	}
	return out
}

// fromWireAll returns n per-item errors. Missing entries are successes.
func fromWireAll(ws []WireError, n int) []error {
	out := make([]error, n)
	for i := 0; i < n && i < len(ws); i++ {
		out[i] = fromWire(ws[i])
	}
	return out
}
