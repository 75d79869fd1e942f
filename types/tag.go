// Package types defines core domain types for the OPC DA client.
package types

import (
	"fmt"
	"strings"
	"time"
)

// TagRecord is one item's value as returned by a batched read.
// ID is the path the caller asked for; ItemID is the identifier the server
// accepted for it (equal to ID when resolution fell through).
type TagRecord struct {
	ID           string       `json:"id" msgpack:"id"`
	ItemID       string       `json:"item_id" msgpack:"item_id"`
	Value        any          `json:"value" msgpack:"value"`
	Quality      uint16       `json:"quality" msgpack:"quality"`
	Timestamp    time.Time    `json:"timestamp" msgpack:"timestamp"`
	DataType     VarType      `json:"data_type" msgpack:"data_type"`
	AccessRights AccessRights `json:"access_rights" msgpack:"access_rights"`
}

// BadTagRecord returns the sentinel record used for items that could not be
// added or read: BAD quality, empty value, zero timestamp.
func BadTagRecord(id, itemID string) TagRecord {
	return TagRecord{
		ID:       id,
		ItemID:   itemID,
		Quality:  QualityBad,
		DataType: VTEmpty,
	}
}

// FormatValue renders a variant value for display.
// nil renders empty, booleans as TRUE/FALSE and slices as "[a, b]".
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case time.Time:
		return x.UTC().Format("2006-01-02 15:04:05")
	case float32:
		return fmt.Sprintf("%f", x)
	case float64:
		return fmt.Sprintf("%f", x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%v", x)
	}
}
