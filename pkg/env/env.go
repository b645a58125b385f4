// Package env reads the few settings needed before config.Load runs, such as
// the log format used while bootstrapping.
package env

import (
	"os"
	"strconv"
	"strings"
)

// Prefix namespaces service variables, matching config.EnvPrefix.
const Prefix = "EPOS_"

// Get returns EPOS_<key>, then <key>, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{Prefix + key, key} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val
		}
	}
	return fallback
}

// Bool parses Get(key) with strconv.ParseBool, also accepting "yes". Unset or
// unparsable values are false.
func Bool(key string) bool {
	raw := strings.ToLower(Get(key, ""))
	if raw == "yes" {
		return true
	}
	v, err := strconv.ParseBool(raw)
	return err == nil && v
}
