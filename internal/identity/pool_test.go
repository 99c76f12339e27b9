package identity

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePool(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "user_agents")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPool_JSON(t *testing.T) {
	path := writePool(t, `["a/1", "b/2", "a/1", ""]`)

	p, err := LoadPool(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a/1", "b/2"}, p.Entries())
}

func TestLoadPool_YAML(t *testing.T) {
	path := writePool(t, "- first/1\n- second/2\n")

	p, err := LoadPool(path)
	require.NoError(t, err)
	assert.Equal(t, 2, p.Len())
}

func TestLoadPool_Errors(t *testing.T) {
	_, err := LoadPool(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	_, err = LoadPool(writePool(t, `{"not": "a list"}`))
	assert.Error(t, err)

	_, err = LoadPool(writePool(t, `["", "  "]`))
	assert.ErrorIs(t, err, ErrEmptyPool)
}

func TestRandomize(t *testing.T) {
	p, err := NewPool([]string{"only/1"})
	require.NoError(t, err)

	s := New(nil)
	ua, err := Randomize(s, p)
	require.NoError(t, err)
	assert.Equal(t, "only/1", ua)
	assert.Equal(t, "only/1", s.Get())
}

func TestDefaultPool_PicksKnownEntry(t *testing.T) {
	p := DefaultPool()
	entries := p.Entries()
	for range 20 {
		assert.Contains(t, entries, p.Pick())
	}
}
