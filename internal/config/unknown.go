package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section. The endpoints
// section is a free-form alias map and never has undecoded keys.
var knownKeys = map[string][]string{
	"auth": {"mode", "client_id", "client_secret", "redirect_uri", "scopes", "token_file", "auth_url"},
	"transfer": {
		"base_url", "label", "sync_level", "wait_timeout", "poll_interval", "ledger_file",
	},
	"share": {"source_endpoint", "shared_endpoint", "source_path", "destination_path", "label"},
	"sync": {
		"source_endpoint", "source_path", "destination_endpoint", "destination_path",
		"label", "create_destination", "sync_level",
	},
	"index": {
		"shared_endpoint", "local_endpoint", "directory", "output_dir", "format", "mode",
		"include", "exclude", "ignore_case", "parallel_listings", "list_attempts", "catalog", "footer",
	},
	"cleanup":   {"source_endpoint", "window", "schedule", "pid_file"},
	"logging":   {"log_level", "log_file", "log_retention_days"},
	"network":   {"connect_timeout", "data_timeout", "user_agent"},
	"endpoints": nil,
}

// knownSections is the sorted list of section names for Levenshtein
// matching. Sorted for deterministic suggestions on equal distances.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		errs = append(errs, unknownKeyError(key))
	}

	return errors.Join(errs...)
}

func unknownKeyError(key toml.Key) error {
	section := key[0]

	fields, known := knownKeys[section]
	if !known || len(key) == 1 {
		if s := closestMatch(section, knownSections); s != "" {
			return fmt.Errorf("unknown config section %q, did you mean %q?", section, s)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	field := key[1]
	sorted := slices.Sorted(slices.Values(fields))

	if s := closestMatch(field, sorted); s != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", field, section, s)
	}

	return fmt.Errorf("unknown config key %q in [%s] (valid: %s)", field, section, strings.Join(sorted, ", "))
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
