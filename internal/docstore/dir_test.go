package docstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "a", "b")
	d, err := New(root, "http://files.local/docs/")
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, "http://files.local/docs/x.pdf", d.URL("x.pdf"))
}

func TestNewNameIsUnique(t *testing.T) {
	d, err := New(t.TempDir(), "")
	require.NoError(t, err)

	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		name := d.NewName("123_criminal.pdf")
		require.True(t, strings.HasSuffix(name, "_123_criminal.pdf"))
		_, dup := seen[name]
		require.False(t, dup)
		seen[name] = struct{}{}
	}
}

func TestWriteNeverOverwrites(t *testing.T) {
	d, err := New(t.TempDir(), "")
	require.NoError(t, err)

	require.NoError(t, d.Write("a.pdf", []byte("one")))
	assert.True(t, d.Exists("a.pdf"))
	assert.Error(t, d.Write("a.pdf", []byte("two")))

	data, err := os.ReadFile(filepath.Join(d.Root(), "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))
}

func TestPathRejectsTraversal(t *testing.T) {
	d, err := New(t.TempDir(), "")
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../x.pdf", "sub/x.pdf"} {
		_, err := d.Path(name)
		assert.Error(t, err, name)
		assert.False(t, d.Exists(name))
	}
}
