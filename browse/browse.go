// Package browse walks a server namespace and collects leaf paths.
//
// The walk is iterative: an explicit frontier of (path, depth) entries
// replaces recursion, so stack use does not grow with namespace depth.
// Only the frontier is held in memory, plus the visited and emitted sets
// needed to reject cycles and duplicates.
//
// Depth is counted in branch expansions from the start path: the start
// node is depth 0 and its child branches are depth 1. A node deeper than
// MaxDepth is not expanded, so every emitted leaf sits in a branch of depth
// at most MaxDepth. Exceeding the bound is logged, never an error.
package browse

import (
	"context"
	"fmt"

	"github.com/pithecene-io/opcda/log"
	"github.com/pithecene-io/opcda/metrics"
)

// DefaultMaxDepth bounds a walk when no depth is configured.
const DefaultMaxDepth = 32

// Separator joins a parent path and a child name.
const Separator = "."

// Config configures a walk.
type Config struct {
	// MaxDepth is the deepest branch that is expanded. Must be >= 0.
	MaxDepth int
	Logger   *log.Logger
	Metrics  *metrics.Collector
}

// Expander enumerates the children of one node. Implementations may
// return partial results alongside an error; the walk keeps whatever
// names came back.
type Expander interface {
	Expand(ctx context.Context, path string) (leaves, branches []string, err error)
}

type frame struct {
	path  string
	depth int
}

// Join appends child to parent. An empty parent is the root.
func Join(parent, child string) string {
	if parent == "" {
		return child
	}
	return parent + Separator + child
}

// Walk collects every leaf path reachable from start. Failures to expand a
// node are logged and leave that subtree unexplored. Walk returns an error
// only for an invalid depth or a cancelled context, in which case the
// leaves collected so far are returned with it.
//
// Output order follows discovery and is not sorted.
func Walk(ctx context.Context, exp Expander, start string, cfg Config) ([]string, error) {
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("invalid max depth %d: must be >= 0", cfg.MaxDepth)
	}
	logger, m := cfg.Logger, cfg.Metrics

	var tags []string
	emitted := make(map[string]bool)
	visited := make(map[string]bool)
	stack := []frame{{path: start, depth: 0}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return tags, err
		}
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if visited[cur.path] {
			m.IncBrowseDuplicate()
			continue
		}
		visited[cur.path] = true

		if cur.depth > cfg.MaxDepth {
			m.IncBrowseDepthSkip()
			logger.Debug("maximum browse depth reached", map[string]any{
				"path":      cur.path,
				"depth":     cur.depth,
				"max_depth": cfg.MaxDepth,
			})
			continue
		}

		leaves, branches, err := exp.Expand(ctx, cur.path)
		if err != nil {
			m.IncBrowseNodeFailure()
			logger.Warn("browse node failed", map[string]any{"path": cur.path, "error": err.Error()})
		} else {
			m.IncBrowseNodeExpanded()
		}

		for _, name := range leaves {
			if name == "" {
				m.IncBrowseEmptyName()
				continue
			}
			tag := Join(cur.path, name)
			if emitted[tag] {
				m.IncBrowseDuplicate()
				continue
			}
			emitted[tag] = true
			tags = append(tags, tag)
		}
		for _, name := range branches {
			if name == "" {
				m.IncBrowseEmptyName()
				continue
			}
			child := Join(cur.path, name)
			if visited[child] {
				m.IncBrowseDuplicate()
				continue
			}
			stack = append(stack, frame{path: child, depth: cur.depth + 1})
		}
	}
	return tags, nil
}
