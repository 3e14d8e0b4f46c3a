package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetModelsDirPriority(t *testing.T) {
	assert.Equal(t, "/explicit", GetModelsDir("/explicit"))

	t.Setenv(EnvModelsDir, "/from/env")
	assert.Equal(t, "/from/env", GetModelsDir(""))
}

func TestResolveModelPathPrefersOrganized(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, TypeLayout), 0o755))
	organized := filepath.Join(dir, TypeLayout, LayoutDEIM)

	// Neither exists: organized path is returned.
	assert.Equal(t, organized, LayoutModelPath(dir))

	// Only flat exists.
	flat := filepath.Join(dir, LayoutDEIM)
	require.NoError(t, os.WriteFile(flat, []byte("x"), 0o600))
	assert.Equal(t, flat, LayoutModelPath(dir))

	// Organized wins once present.
	require.NoError(t, os.WriteFile(organized, []byte("x"), 0o600))
	assert.Equal(t, organized, LayoutModelPath(dir))
}

func TestInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, Recognition30)
	require.NoError(t, os.WriteFile(path, []byte("model"), 0o600))
	require.NoError(t, os.WriteFile(path+".version", []byte("0.9.0\n"), 0o600))

	statuses := Inspect(dir)
	require.Len(t, statuses, len(Catalog()))

	byName := map[string]Status{}
	for _, s := range statuses {
		byName[s.Name] = s
	}
	rec := byName["recognition30"]
	assert.True(t, rec.Available)
	assert.Equal(t, int64(5), rec.SizeBytes)
	assert.Equal(t, "0.9.0", rec.Version)
	assert.True(t, rec.Stale)
	assert.Equal(t, 256, rec.InputWidth)

	assert.False(t, byName["layout"].Available)
}

func TestVerifyRequired(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, LayoutDEIM), []byte("x"), 0o600))

	assert.NoError(t, VerifyRequired(dir, "layout"))
	err := VerifyRequired(dir, "layout", "recognition100")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "recognition100")
}
