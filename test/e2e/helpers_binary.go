//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/hyperengineering/formpath/pkg/client"
)

const e2eAPIKey = "e2e-test-api-key"

// formpathServer manages a running Formpath server process.
type formpathServer struct {
	cmd     *exec.Cmd
	dataDir string
	address string
	logFile string
	extra   []string
}

// startFormpath launches the Formpath binary and waits for it to become
// healthy. Formpath is configured entirely via environment variables here.
func startFormpath(t *testing.T, extraEnv ...string) *formpathServer {
	t.Helper()

	if formpathBin == "" {
		t.Skip("formpath binary not available (set FORMPATH_BIN or add to PATH)")
	}

	s := &formpathServer{dataDir: t.TempDir(), extra: extraEnv}
	s.launch(t, "formpath.log")
	return s
}

// launch starts the process on a fresh port against s.dataDir.
func (s *formpathServer) launch(t *testing.T, logName string) {
	t.Helper()

	port := freePort(t)
	s.address = fmt.Sprintf("127.0.0.1:%d", port)
	s.logFile = filepath.Join(s.dataDir, logName)

	cmd := exec.Command(formpathBin, "serve")
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("FORMPATH_PORT=%d", port),
		"FORMPATH_DB_PATH="+filepath.Join(s.dataDir, "formpath.db"),
		"FORMPATH_API_KEY="+e2eAPIKey,
		"FORMPATH_CONFIG_PATH="+filepath.Join(s.dataDir, "nonexistent.yaml"), // skip YAML file
		"FORMPATH_LOG_LEVEL=debug",
	)
	cmd.Env = append(cmd.Env, s.extra...)

	lf, err := os.Create(s.logFile)
	if err != nil {
		t.Fatalf("create log file: %v", err)
	}
	cmd.Stdout = lf
	cmd.Stderr = lf

	if err := cmd.Start(); err != nil {
		lf.Close()
		t.Fatalf("start formpath: %v", err)
	}
	s.cmd = cmd

	t.Cleanup(func() {
		s.stop()
		lf.Close()
	})

	if err := s.waitHealthy(10 * time.Second); err != nil {
		logs, _ := os.ReadFile(s.logFile)
		t.Fatalf("formpath not healthy: %v\nlogs:\n%s", err, logs)
	}
}

func (s *formpathServer) stop() {
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Signal(os.Interrupt)
		_ = s.cmd.Wait()
		s.cmd = nil
	}
}

func (s *formpathServer) baseURL() string {
	return fmt.Sprintf("http://%s", s.address)
}

// client returns an API client for the running server.
func (s *formpathServer) client(t *testing.T) *client.Client {
	t.Helper()
	c, err := client.New(client.Config{BaseURL: s.baseURL(), APIKey: e2eAPIKey, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return c
}

func (s *formpathServer) waitHealthy(timeout time.Duration) error {
	c, err := client.New(client.Config{BaseURL: s.baseURL(), Timeout: time.Second})
	if err != nil {
		return err
	}

	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		if _, lastErr = c.Ping(context.Background()); lastErr == nil {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("formpath not healthy after %s: %v", timeout, lastErr)
}

// restartOnSameData stops the server and starts it again on a new port
// with the same database.
func (s *formpathServer) restartOnSameData(t *testing.T) {
	t.Helper()

	s.stop()
	time.Sleep(200 * time.Millisecond) // allow port release
	s.launch(t, "formpath-restart.log")
}

// freePort returns a free TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// intakeDefinition reads the shared intake fixture.
func intakeDefinition(t *testing.T) []byte {
	t.Helper()
	_, thisFile, _, _ := runtime.Caller(0)
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "internal", "formdef", "testdata", "intake.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read intake definition: %v", err)
	}
	return data
}

// runCLI runs a formpath subcommand against the server's database.
func (s *formpathServer) runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	full := append(args, "--db", filepath.Join(s.dataDir, "formpath.db"))
	cmd := exec.Command(formpathBin, full...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}
