package types

import (
	"fmt"
	"time"
)

// ServerState is the run state a server reports about itself.
type ServerState uint32

// Server states.
const (
	ServerRunning   ServerState = 1
	ServerFailed    ServerState = 2
	ServerNoConfig  ServerState = 3
	ServerSuspended ServerState = 4
	ServerTest      ServerState = 5
	ServerCommFault ServerState = 6
)

// String returns the OPC_STATUS_* name, or UNKNOWN_<n>.
func (s ServerState) String() string {
	switch s {
	case ServerRunning:
		return "OPC_STATUS_RUNNING"
	case ServerFailed:
		return "OPC_STATUS_FAILED"
	case ServerNoConfig:
		return "OPC_STATUS_NOCONFIG"
	case ServerSuspended:
		return "OPC_STATUS_SUSPENDED"
	case ServerTest:
		return "OPC_STATUS_TEST"
	case ServerCommFault:
		return "OPC_STATUS_COMM_FAULT"
	default:
		return fmt.Sprintf("UNKNOWN_%d", uint32(s))
	}
}

// ServerStatus is the status block a server returns on request.
type ServerStatus struct {
	Vendor         string      `json:"vendor" msgpack:"vendor"`
	MajorVersion   int         `json:"major_version" msgpack:"major_version"`
	MinorVersion   int         `json:"minor_version" msgpack:"minor_version"`
	BuildNumber    int         `json:"build_number" msgpack:"build_number"`
	StartTime      time.Time   `json:"start_time" msgpack:"start_time"`
	CurrentTime    time.Time   `json:"current_time" msgpack:"current_time"`
	LastUpdateTime time.Time   `json:"last_update_time" msgpack:"last_update_time"`
	State          ServerState `json:"state" msgpack:"state"`
	GroupCount     int         `json:"group_count" msgpack:"group_count"`
}

// Version renders major.minor.build.
func (s ServerStatus) Version() string {
	return fmt.Sprintf("%d.%d.%d", s.MajorVersion, s.MinorVersion, s.BuildNumber)
}
