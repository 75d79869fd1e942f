package types

// SessionMeta identifies one client session for logs and stored snapshots.
type SessionMeta struct {
	SessionID string `json:"session_id" msgpack:"session_id"`
	Host      string `json:"host" msgpack:"host"`
	Server    string `json:"server" msgpack:"server"`
}
