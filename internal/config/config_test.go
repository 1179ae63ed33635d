package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 2, cfg.Compiler.AsyncJobWorkers)
	assert.True(t, cfg.Warnings.UnrecognizedEscapeSequences)
	assert.True(t, cfg.Warnings.ShadowingDirectLocals)
}

func TestLoad_MissingExplicitFileIsError(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "canter.toml"))
	assert.Error(t, err)
	_ = cfg
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(prev) }()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_ParsesTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canter.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[compiler]
async_job_workers = 4

[warnings]
shadowing_globals = true

[logging]
level = "debug"
output = "stderr"

[server]
port = 9999
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Compiler.AsyncJobWorkers)
	assert.True(t, cfg.Warnings.ShadowingGlobals)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, StringSlice{"stderr"}, cfg.Logging.Output)
	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestLoad_StringSliceAcceptsList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "canter.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[logging]
output = ["stderr", "file"]
`), 0644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StringSlice{"stderr", "file"}, cfg.Logging.Output)
}

func TestValidate_RejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Compiler.AsyncJobWorkers = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 99999
	assert.Error(t, cfg.Validate())
}

func TestWarnConfig_Conversion(t *testing.T) {
	cfg := Default()
	cfg.Warnings.ShadowingGlobals = true
	w := cfg.WarnConfig()
	assert.True(t, w.WarnShadowingGlobals)
	assert.True(t, w.WarnUnrecognizedEscapeSequences)
}
