// Package env reads process settings that must be known before config.Load runs.
package env

import "os"

const prefix = "COACHCREDITS_"

// Get returns COACHCREDITS_<key>, then <key>, then fallback.
func Get(key, fallback string) string {
	for _, name := range []string{prefix + key, key} {
		if val := os.Getenv(name); val != "" {
			return val
		}
	}
	return fallback
}
