package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnv_KeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kinfolk.env")
	require.NoError(t, os.WriteFile(path, []byte("KINFOLK_ENV_PROBE=from-file\nKINFOLK_ENV_KEEP=from-file\n"), 0o600))

	t.Setenv("KINFOLK_ENV_KEEP", "from-shell")
	t.Cleanup(func() { os.Unsetenv("KINFOLK_ENV_PROBE") })

	loaded := LoadEnv(path, filepath.Join(dir, "missing.env"))
	assert.Equal(t, []string{path}, loaded)
	assert.Equal(t, "from-file", os.Getenv("KINFOLK_ENV_PROBE"))
	assert.Equal(t, "from-shell", os.Getenv("KINFOLK_ENV_KEEP"))
}

func TestLoadEnv_NothingToLoad(t *testing.T) {
	assert.Empty(t, LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
}
