// Package sim implements an in-memory server behind every opc capability.
//
// A namespace is described in YAML: a map of branch paths to their child
// leaves and branches, plus a map of native item identifiers to values. A
// branch may point at another node with target, which makes cyclic and
// infinitely deep namespaces easy to describe. Faults can be injected per
// operation or per item, and every operation is counted. The sim backs the
// package tests and the serve-sim command.
package sim

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/opcda/types"
)

// DefaultProgID is the name a namespace without progid or clsid answers to.
const DefaultProgID = "OPCDA.Simulation.1"

// Namespace is the YAML description of a simulated server.
type Namespace struct {
	// ProgID and CLSID name the server. Dialers built from the namespace
	// accept only these.
	ProgID  string  `yaml:"progid"`
	CLSID   string  `yaml:"clsid"`
	Vendor  string  `yaml:"vendor"`
	Version Version `yaml:"version"`
	// Browse selects the browse capability exposed: "address_space"
	// (default), "flat", or "none".
	Browse string `yaml:"browse"`
	// NativeIDs makes AddressSpace.ItemID return each leaf's item_id.
	// Otherwise ItemID fails and resolution falls back to heuristics.
	NativeIDs bool `yaml:"native_ids"`
	// State is the reported server state name, default running.
	State string          `yaml:"state"`
	Nodes map[string]Node `yaml:"nodes"`
	Items map[string]Item `yaml:"items"`
}

// Identity returns the ProgID and CLSID the namespace answers to,
// DefaultProgID when neither is set.
func (ns *Namespace) Identity() (progID, clsid string) {
	if ns.ProgID == "" && ns.CLSID == "" {
		return DefaultProgID, ""
	}
	return ns.ProgID, ns.CLSID
}

// Version is the reported server version.
type Version struct {
	Major int `yaml:"major"`
	Minor int `yaml:"minor"`
	Build int `yaml:"build"`
}

// Node is one branch of the namespace. The root is the "" key.
type Node struct {
	Leaves   []LeafRef   `yaml:"leaves"`
	Branches []BranchRef `yaml:"branches"`
}

// LeafRef names a leaf and the item it reads.
type LeafRef struct {
	Name string `yaml:"name"`
	// ItemID is the native identifier. Defaults to the leaf's full path.
	ItemID string `yaml:"item_id"`
}

// BranchRef names a child branch. Target, when set, is the node key whose
// children this branch presents.
type BranchRef struct {
	Name   string `yaml:"name"`
	Target string `yaml:"target"`
}

// Item is the state of one native item.
type Item struct {
	Value any `yaml:"value"`
	// Quality defaults to GOOD (0xC0).
	Quality *uint16 `yaml:"quality"`
	// Rights defaults to readable.
	Rights *types.AccessRights `yaml:"rights"`
}

// Load reads a namespace file.
func Load(path string) (*Namespace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("namespace file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read namespace file: %w", err)
	}
	ns, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("invalid namespace in %s: %w", path, err)
	}
	return ns, nil
}

// Parse decodes and validates a YAML namespace.
func Parse(data []byte) (*Namespace, error) {
	var ns Namespace
	if err := yaml.Unmarshal(data, &ns); err != nil {
		return nil, err
	}
	if err := ns.Validate(); err != nil {
		return nil, err
	}
	return &ns, nil
}

// Validate checks that every branch target names a node.
func (ns *Namespace) Validate() error {
	switch ns.Browse {
	case "", "address_space", "flat", "none":
	default:
		return fmt.Errorf("invalid browse %q (must be address_space, flat, or none)", ns.Browse)
	}
	if _, ok := stateByName(ns.State); !ok {
		return fmt.Errorf("invalid state %q", ns.State)
	}
	for key, node := range ns.Nodes {
		for _, b := range node.Branches {
			if b.Target != "" {
				if _, ok := ns.Nodes[b.Target]; !ok {
					return fmt.Errorf("node %q: branch %q targets unknown node %q", key, b.Name, b.Target)
				}
			}
		}
	}
	return nil
}

// nodeKey maps a browse path to the node that holds its children,
// following branch targets segment by segment.
func (ns *Namespace) nodeKey(path string) (string, bool) {
	if path == "" {
		_, ok := ns.Nodes[""]
		return "", ok
	}
	key := ""
	for _, seg := range strings.Split(path, ".") {
		node, ok := ns.Nodes[key]
		if !ok {
			return "", false
		}
		next, found := "", false
		for _, b := range node.Branches {
			if b.Name != seg {
				continue
			}
			found = true
			if b.Target != "" {
				next = b.Target
			} else if key == "" {
				next = seg
			} else {
				next = key + "." + seg
			}
			break
		}
		if !found {
			return "", false
		}
		key = next
	}
	// A declared branch with no node entry has no children.
	return key, true
}

// leafItemID returns the native identifier of the leaf at path.
func (ns *Namespace) leafItemID(path string) (string, bool) {
	parent, name := "", path
	if i := strings.LastIndex(path, "."); i >= 0 {
		parent, name = path[:i], path[i+1:]
	}
	key, ok := ns.nodeKey(parent)
	if !ok {
		return "", false
	}
	for _, l := range ns.Nodes[key].Leaves {
		if l.Name == name {
			if l.ItemID != "" {
				return l.ItemID, true
			}
			return path, true
		}
	}
	return "", false
}

func stateByName(name string) (types.ServerState, bool) {
	switch strings.ToLower(name) {
	case "", "running":
		return types.ServerRunning, true
	case "failed":
		return types.ServerFailed, true
	case "noconfig":
		return types.ServerNoConfig, true
	case "suspended":
		return types.ServerSuspended, true
	case "test":
		return types.ServerTest, true
	case "comm_fault":
		return types.ServerCommFault, true
	default:
		return 0, false
	}
}
