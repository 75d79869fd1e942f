package resolve

import "strings"

// Rule rewrites a path prefix. Rules are learned from successful
// heuristic resolutions and applied before candidate generation.
type Rule struct {
	Prefix      string `json:"prefix"`
	Replacement string `json:"replacement"`
}

// Apply returns path with the prefix replaced, and whether it matched.
func (r Rule) Apply(path string) (string, bool) {
	if !strings.HasPrefix(path, r.Prefix) {
		return "", false
	}
	return r.Replacement + path[len(r.Prefix):], true
}

// ruleSet is an insertion-ordered set of rules keyed by prefix.
type ruleSet struct {
	rules    []Rule
	prefixes map[string]bool
}

// add inserts r unless its prefix already has a rule.
func (s *ruleSet) add(r Rule) bool {
	if s.prefixes == nil {
		s.prefixes = make(map[string]bool)
	}
	if s.prefixes[r.Prefix] {
		return false
	}
	s.prefixes[r.Prefix] = true
	s.rules = append(s.rules, r)
	return true
}

func (s *ruleSet) reset() {
	s.rules = nil
	s.prefixes = nil
}

// learnRule derives a strip-first-segment rule when validID is path with
// its first segment (and optionally the delimiter) removed.
func learnRule(path, validID string) (Rule, bool) {
	i := strings.Index(path, Separator)
	if i < 0 {
		return Rule{}, false
	}
	if validID != path[i:] && validID != path[i+len(Separator):] {
		return Rule{}, false
	}
	return Rule{Prefix: path[:i+len(Separator)], Replacement: ""}, true
}
