// Package testutil provides shared environment helpers for E2E tests. It
// depends only on stdlib so that E2E tests (which cannot import internal/)
// can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// RequireEnv returns the values of the named variables and crashes the
// process naming every one that is unset.
func RequireEnv(names ...string) map[string]string {
	vals := make(map[string]string, len(names))

	var missing []string

	for _, n := range names {
		v := os.Getenv(n)
		if v == "" {
			missing = append(missing, n)
			continue
		}

		vals[n] = v
	}

	if len(missing) > 0 {
		fmt.Fprintf(os.Stderr, "FATAL: %s not set\n", strings.Join(missing, ", "))
		fmt.Fprintln(os.Stderr, "Set them in .env or as environment variables.")
		os.Exit(1)
	}

	return vals
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteConfig writes an isolated config file for one test run. Every path
// the CLI writes to points into dir.
func WriteConfig(dir, clientID, clientSecret string) string {
	body := fmt.Sprintf(`[auth]
mode = "client-credentials"
client_id = %q
client_secret = %q
token_file = %q

[transfer]
ledger_file = %q
poll_interval = "5s"
wait_timeout = "10m"

[cleanup]
pid_file = %q
`, clientID, clientSecret,
		filepath.Join(dir, "tokens.json"),
		filepath.Join(dir, "ledger.db"),
		filepath.Join(dir, "cleanup.pid"))

	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", path, err)
		os.Exit(1)
	}

	return path
}
