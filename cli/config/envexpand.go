// Package config loads opcda.yaml files.
package config

import (
	"os"
	"regexp"
	"strings"
)

// envRef matches ${NAME} and ${NAME:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv substitutes environment references in a config document.
// An unset or empty variable takes its fallback, or the empty string when
// the reference has none. Nothing here fails: a missing progid or bridge
// address is reported by whichever command needs it.
func ExpandEnv(input string) string {
	locs := envRef.FindAllStringSubmatchIndex(input, -1)
	if len(locs) == 0 {
		return input
	}

	var b strings.Builder
	b.Grow(len(input))
	last := 0
	for _, loc := range locs {
		b.WriteString(input[last:loc[0]])
		name := input[loc[2]:loc[3]]
		fallback := ""
		if loc[4] >= 0 {
			fallback = input[loc[4]:loc[5]]
		}
		b.WriteString(lookupEnv(name, fallback))
		last = loc[1]
	}
	b.WriteString(input[last:])
	return b.String()
}

func lookupEnv(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
