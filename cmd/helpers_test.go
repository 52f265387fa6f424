package cmd

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/iksnae/practice-sync/internal"
	"github.com/iksnae/practice-sync/testutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// testEnv backs every runtime built during a test with one database file
// and shared fakes, so state survives from one command to the next the way
// it does across CLI invocations
type testEnv struct {
	dir     string
	cfg     internal.Config
	service *internal.FakeCommandService
	remote  *internal.FakeRemote
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := testutil.CreateTempDir(t)
	env := &testEnv{
		dir: dir,
		cfg: internal.Config{
			APIURL:         "http://practice.test",
			DatabasePath:   filepath.Join(dir, "state.db"),
			LayoutDir:      filepath.Join(dir, "layout"),
			Namespace:      "ns",
			ResetCommand:   "git init",
			DomainPrefix:   "git ",
			RequestTimeout: time.Second,
		},
		service: internal.NewFakeCommandService("git init"),
		remote:  internal.NewFakeRemote(),
	}

	previous := newRuntime
	newRuntime = func(ctx context.Context) (*runtime, error) {
		db, err := internal.OpenDatabase(env.cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		return assembleRuntime(env.cfg, db, env.service, env.remote, nil), nil
	}
	t.Cleanup(func() { newRuntime = previous })
	return env
}

// resetFlags puts every flag back to its default. Cobra keeps parsed
// values between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns stdout and stderr
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var stdout, stderr bytes.Buffer
	rootCmd.SetArgs(args)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

// mustExecute is execute for commands expected to succeed
func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := execute(t, args...)
	if err != nil {
		t.Fatalf("%v failed: %v\nstderr: %s", args, err, stderr)
	}
	return stdout
}

func (e *testEnv) writeScript(t *testing.T, name, content string) string {
	t.Helper()
	return testutil.WriteScriptFixture(t, e.dir, name, content)
}
