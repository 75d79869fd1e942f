package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/justapithecus/lode/lode"
)

// ErrNoSnapshot is returned when no tag snapshot matches a query.
var ErrNoSnapshot = errors.New("no tag snapshot found")

// QueryLatest reads back the most recent tag snapshot, filtered by server
// when server is non-empty.
func QueryLatest(ctx context.Context, ds lode.Dataset, server string) ([]TagRecord, error) {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return nil, WrapReadError(err, "snapshots")
	}

	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if !snapshotMatchesFilter(snap, "server", server) {
			continue
		}

		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return nil, WrapReadError(err, fmt.Sprintf("snapshot/%s", snap.ID))
		}

		// The manifest is a coarse pre-filter; record fields decide.
		var out []TagRecord
		for _, item := range data {
			m, ok := item.(map[string]any)
			if !ok || m["record_kind"] != RecordKindTag {
				continue
			}
			if server != "" && toString(m["server"]) != server {
				continue
			}
			out = append(out, tagRecordFromMap(m))
		}
		if len(out) > 0 {
			return out, nil
		}
	}
	return nil, ErrNoSnapshot
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue reports whether a Hive path has an exact key=value
// segment, so server=A does not match server=AB.
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}
