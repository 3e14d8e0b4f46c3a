package batch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	return path
}

func TestDiscoverImageFiles(t *testing.T) {
	dir := t.TempDir()
	png := touch(t, filepath.Join(dir, "b.png"))
	jpg := touch(t, filepath.Join(dir, "a.jpg"))
	touch(t, filepath.Join(dir, "notes.txt"))
	nested := touch(t, filepath.Join(dir, "sub", "c.tiff"))

	tests := []struct {
		name      string
		args      []string
		recursive bool
		include   []string
		exclude   []string
		want      []string
	}{
		{name: "empty", args: nil, want: nil},
		{name: "flat directory", args: []string{dir}, want: []string{jpg, png}},
		{name: "recursive", args: []string{dir}, recursive: true, want: []string{jpg, png, nested}},
		{name: "include pattern", args: []string{dir}, include: []string{"*.png"}, want: []string{png}},
		{name: "exclude pattern", args: []string{dir}, exclude: []string{"a.*"}, want: []string{png}},
		{name: "explicit files deduplicated", args: []string{png, dir, png}, want: []string{jpg, png}},
		{name: "explicit unsupported file", args: []string{filepath.Join(dir, "notes.txt")}, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DiscoverImageFiles(tt.args, tt.recursive, tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDiscoverImageFilesMissing(t *testing.T) {
	_, err := DiscoverImageFiles([]string{filepath.Join(t.TempDir(), "nope")}, false, nil, nil)
	assert.ErrorContains(t, err, "cannot access")
}
