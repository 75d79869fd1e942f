package store

import (
	"time"

	"github.com/pithecene-io/opcda/read"
	"github.com/pithecene-io/opcda/types"
)

// RecordKindTag discriminates tag value records.
const RecordKindTag = "tag_value"

// TagRecord is the storage format for one tag of a read batch.
type TagRecord struct {
	RecordKind string `json:"record_kind"`

	BrowsePath    string `json:"browse_path"`
	ItemID        string `json:"item_id"`
	Value         string `json:"value"`
	Quality       uint16 `json:"quality"`
	QualityString string `json:"quality_string"`
	UnifiedCode   uint32 `json:"unified_code"`
	FormattedCode string `json:"formatted_code"`
	Timestamp     string `json:"timestamp"`
	TimestampMS   int64  `json:"timestamp_ms"`
	VarType       string `json:"vartype"`
	AccessRights  string `json:"access_rights"`
	Error         string `json:"error,omitempty"`

	// Partition keys (used by Lode HiveLayout)
	Server    string `json:"server"`
	Day       string `json:"day"`
	SessionID string `json:"session_id"`
}

// NewTagRecords converts a read result to storage records, one per item
// in input order.
func NewTagRecords(res *read.Result, cfg Config) []TagRecord {
	if res == nil {
		return nil
	}
	out := make([]TagRecord, 0, len(res.Items))
	for _, it := range res.Items {
		r := it.Record
		u := read.Classify(it)
		rec := TagRecord{
			RecordKind:    RecordKindTag,
			BrowsePath:    r.ID,
			ItemID:        r.ItemID,
			Value:         types.FormatValue(r.Value),
			Quality:       r.Quality,
			QualityString: types.QualityString(r.Quality),
			UnifiedCode:   u.Code(),
			FormattedCode: u.FormattedCode(),
			TimestampMS:   types.EpochMillis(r.Timestamp),
			VarType:       r.DataType.String(),
			AccessRights:  r.AccessRights.String(),
			Server:        cfg.Server,
			Day:           cfg.Day,
			SessionID:     cfg.SessionID,
		}
		if !r.Timestamp.IsZero() {
			rec.Timestamp = r.Timestamp.UTC().Format(time.RFC3339Nano)
		}
		if it.Err != nil {
			rec.Error = it.Err.Error()
		}
		out = append(out, rec)
	}
	return out
}

func toTagRecordMap(r TagRecord) map[string]any {
	m := map[string]any{
		"record_kind":    RecordKindTag,
		"browse_path":    r.BrowsePath,
		"item_id":        r.ItemID,
		"value":          r.Value,
		"quality":        r.Quality,
		"quality_string": r.QualityString,
		"unified_code":   r.UnifiedCode,
		"formatted_code": r.FormattedCode,
		"timestamp":      r.Timestamp,
		"timestamp_ms":   r.TimestampMS,
		"vartype":        r.VarType,
		"access_rights":  r.AccessRights,
		"server":         r.Server,
		"day":            r.Day,
		"session_id":     r.SessionID,
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}

// tagRecordFromMap is the inverse of toTagRecordMap for records read back
// through the JSONL codec, where numbers arrive as float64.
func tagRecordFromMap(m map[string]any) TagRecord {
	return TagRecord{
		RecordKind:    toString(m["record_kind"]),
		BrowsePath:    toString(m["browse_path"]),
		ItemID:        toString(m["item_id"]),
		Value:         toString(m["value"]),
		Quality:       uint16(toFloat(m["quality"])),
		QualityString: toString(m["quality_string"]),
		UnifiedCode:   uint32(toFloat(m["unified_code"])),
		FormattedCode: toString(m["formatted_code"]),
		Timestamp:     toString(m["timestamp"]),
		TimestampMS:   int64(toFloat(m["timestamp_ms"])),
		VarType:       toString(m["vartype"]),
		AccessRights:  toString(m["access_rights"]),
		Error:         toString(m["error"]),
		Server:        toString(m["server"]),
		Day:           toString(m["day"]),
		SessionID:     toString(m["session_id"]),
	}
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

func toFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case int:
		return float64(x)
	case uint16:
		return float64(x)
	case uint32:
		return float64(x)
	}
	return 0
}
