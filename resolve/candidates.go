package resolve

import "strings"

// Separator delimits browse path segments.
const Separator = "."

// Candidates returns the heuristic identifiers to try for path, in order:
// the full path, the path without its first segment, every trailing
// sub-path, and the final segment alone. Entries are unique and non-empty.
func Candidates(path string) []string {
	if path == "" {
		return nil
	}
	segs := strings.Split(path, Separator)
	out := []string{path}
	seen := map[string]bool{path: true}
	push := func(c string) {
		if c == "" || seen[c] {
			return
		}
		seen[c] = true
		out = append(out, c)
	}

	if len(segs) > 1 {
		push(strings.Join(segs[1:], Separator))
	}
	for i := range segs {
		push(strings.Join(segs[i:], Separator))
	}
	push(segs[len(segs)-1])
	return out
}
