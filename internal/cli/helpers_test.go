package cli

import (
	"bytes"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/harun/agentbridge/internal/config"
)

// writeConfig saves a default config, adjusted by mutate, into a temp dir.
func writeConfig(t *testing.T, mutate func(cfg *config.Config)) string {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.Provider.APIKey = "sk-test"
	cfg.Server.PIDFile = filepath.Join(dir, "agentbridge.pid")
	if mutate != nil {
		mutate(cfg)
	}
	path := filepath.Join(dir, "agentbridge.yaml")
	require.NoError(t, config.NewLoader(path).Save(cfg))
	return path
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := GetRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
		cmd.SetIn(nil)
		cfgFile = ""
		logLevel = ""
	})
	err := cmd.Execute()
	return out.String(), err
}
