package coordinator

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "match.dem")
	require.NoError(t, os.WriteFile(path, []byte("hello world"), 0o644))

	hash, size, err := hashFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(11), size)
	// SHA-256 of "hello world"
	assert.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", hash)

	// Same content hashes the same regardless of file name
	other := filepath.Join(dir, "copy.dem")
	require.NoError(t, os.WriteFile(other, []byte("hello world"), 0o644))
	otherHash, _, err := hashFile(other)
	require.NoError(t, err)
	assert.Equal(t, hash, otherHash)
}

func TestHashFile_Missing(t *testing.T) {
	_, _, err := hashFile(filepath.Join(t.TempDir(), "absent.dem"))
	assert.Error(t, err)
}
