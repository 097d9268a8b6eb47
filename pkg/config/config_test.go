package config

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k3l.io/go-sinkhorn/pkg/oracle"
	"k3l.io/go-sinkhorn/pkg/sinkhorn"
)

func TestDecode(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader(`
logLevel: debug
normalize:
  iterations: 50
  tolerance: 1e-9
experiment:
  maxSize: 4
  trials: 3
oracle:
  method: dykstra
serve:
  listenAddress: ":9000"
`), &cfg)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50, cfg.Normalize.Iterations)
	assert.Equal(t, 1e-9, cfg.Normalize.Tolerance)
	assert.Equal(t, "auto", cfg.Normalize.Format)
	assert.Equal(t, 4, cfg.Experiment.MaxSize)
	assert.Equal(t, 3, cfg.Experiment.Trials)
	// untouched keys keep their defaults
	assert.Equal(t, 2, cfg.Experiment.MinSize)
	assert.Equal(t, 10, cfg.Experiment.Iterations)
	assert.Equal(t, ":9000", cfg.Serve.ListenAddress)
	assert.Equal(t, "server.crt", cfg.Serve.TLSCert)
	assert.Equal(t, string(oracle.MethodDykstra), cfg.Oracle.Method)
	assert.Zero(t, cfg.Oracle.MaxIterations)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, sinkhorn.DefaultIterations, cfg.Normalize.Iterations)
	assert.Zero(t, cfg.Normalize.Tolerance)
	assert.Equal(t, string(oracle.MethodQP), cfg.Oracle.Method)
	assert.Equal(t, ":8080", cfg.Playground.ListenAddress)
}

// Config is loaded by every subcommand, so it must not pull in
// the HTTP server and its dependencies.
func TestImports(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "config.go", nil,
		parser.ImportsOnly)
	require.NoError(t, err)
	for _, imp := range f.Imports {
		assert.NotContains(t, imp.Path.Value, "/pkg/server")
		assert.NotContains(t, imp.Path.Value, "labstack/echo")
	}
}

func TestDecode_Errors(t *testing.T) {
	for name, doc := range map[string]string{
		"UnknownKey": "normalise:\n  iterations: 3\n",
		"BadType":    "normalize:\n  iterations: many\n",
	} {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, Decode(strings.NewReader(doc), &cfg))
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sinkhorn.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte("oracle:\n  maxIterations: 42\n"), 0o600))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Oracle.MaxIterations)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_DefaultLocation(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(filepath.Join(home, DefaultFileName),
		[]byte("logLevel: trace\n"), 0o600))
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "trace", cfg.LogLevel)
}
