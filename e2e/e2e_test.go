//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/globus-go/testutil"
)

const (
	envClientID     = "GLOBUS_GO_E2E_CLIENT_ID"
	envClientSecret = "GLOBUS_GO_E2E_CLIENT_SECRET"
	envSource       = "GLOBUS_GO_E2E_SOURCE"
	envDestination  = "GLOBUS_GO_E2E_DESTINATION"
)

var (
	binaryPath  string
	configPath  string
	source      string
	destination string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	env := testutil.RequireEnv(envClientID, envClientSecret, envSource, envDestination)
	source = env[envSource]
	destination = env[envDestination]

	tmpDir, err := os.MkdirTemp("", "globus-go-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "globus-go")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	configPath = testutil.WriteConfig(tmpDir, env[envClientID], env[envClientSecret])

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

func runCLI(t *testing.T, args ...string) (string, string) {
	t.Helper()

	stdout, stderr, err := execCLI(args...)
	if err != nil {
		t.Fatalf("CLI command %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout, stderr
}

func execCLI(args ...string) (string, string, error) {
	cmd := exec.Command(binaryPath, append([]string{"--config", configPath}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func TestE2E_RoundTrip(t *testing.T) {
	dir := fmt.Sprintf("/~/globus-go-e2e-%d/", time.Now().UnixNano())
	dst := destination + ":" + dir

	t.Cleanup(func() {
		_, _, _ = execCLI("rm", "-r", dst)
	})

	t.Run("whoami", func(t *testing.T) {
		stdout, _ := runCLI(t, "whoami", "--json")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.NotEmpty(t, out["id"])
	})

	t.Run("ls_source", func(t *testing.T) {
		stdout, _ := runCLI(t, "ls", source+":/share/godata/")
		assert.Contains(t, stdout, "NAME")
		assert.Contains(t, stdout, "file1.txt")
	})

	t.Run("mkdir", func(t *testing.T) {
		_, stderr := runCLI(t, "mkdir", dst)
		assert.Contains(t, stderr, "Created")
	})

	t.Run("transfer_wait", func(t *testing.T) {
		stdout, _ := runCLI(t, "transfer", "--wait", "--label", "globus-go e2e",
			source+":/share/godata/file1.txt", dst+"file1.txt")
		assert.Contains(t, stdout, "Task ID:")
		assert.Contains(t, stdout, "SUCCEEDED")
	})

	t.Run("ls_destination", func(t *testing.T) {
		stdout, _ := runCLI(t, "ls", dst)
		assert.Contains(t, stdout, "file1.txt")
	})

	t.Run("sync", func(t *testing.T) {
		stdout, _ := runCLI(t, "sync", source+":/share/godata/", dst+"mirror/")
		assert.Contains(t, stdout, "Transfer has been started from")

		// The transfer just submitted is still running, so a second run
		// must be skipped.
		_, _, err := execCLI("sync", source+":/share/godata/", dst+"mirror/")
		assert.Error(t, err)
	})

	t.Run("history", func(t *testing.T) {
		stdout, _ := runCLI(t, "task", "history", "--json")

		var entries []map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &entries))
		assert.GreaterOrEqual(t, len(entries), 2)
	})

	t.Run("rm_wait", func(t *testing.T) {
		stdout, _ := runCLI(t, "rm", "--wait", dst+"file1.txt")
		assert.Contains(t, stdout, "SUCCEEDED")
	})
}
