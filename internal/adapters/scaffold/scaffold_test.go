package scaffold

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func commitCount(t *testing.T, dir string) int {
	t.Helper()
	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	iter, err := repo.Log(&git.LogOptions{})
	require.NoError(t, err)
	n := 0
	for {
		if _, err := iter.Next(); err != nil {
			break
		}
		n++
	}
	return n
}

func TestScaffoldCreatesRepository(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), t.TempDir())

	dir, err := a.Scaffold(context.Background(), "shop", map[string][]byte{
		"servers.json": []byte(`{"Servers":{}}`),
	})
	require.NoError(t, err)

	assert.DirExists(t, filepath.Join(dir, ProjectsDir))
	assert.DirExists(t, filepath.Join(dir, ".git"))
	content, err := os.ReadFile(filepath.Join(dir, "servers.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"Servers":{}}`, string(content))
	assert.Equal(t, 1, commitCount(t, dir))
}

func TestScaffoldIsRepeatable(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), t.TempDir())
	files := map[string][]byte{"servers.json": []byte("{}")}

	dir, err := a.Scaffold(context.Background(), "shop", files)
	require.NoError(t, err)
	again, err := a.Scaffold(context.Background(), "shop", files)
	require.NoError(t, err)

	assert.Equal(t, dir, again)
	assert.Equal(t, 1, commitCount(t, dir), "unchanged files are not committed twice")
}

func TestScaffoldRejectsEscapingPaths(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), t.TempDir())
	_, err := a.Scaffold(context.Background(), "shop", map[string][]byte{"../evil": nil})
	require.Error(t, err)
}

func TestRemove(t *testing.T) {
	a := NewAdapter(zerolog.Nop(), t.TempDir())
	dir, err := a.Scaffold(context.Background(), "shop", nil)
	require.NoError(t, err)

	require.NoError(t, a.Remove("shop"))
	assert.NoDirExists(t, dir)
	require.NoError(t, a.Remove("shop"))
	require.Error(t, a.Remove("../shop"))
}
