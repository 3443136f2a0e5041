package corpus

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounterMissingFileIsEmpty(t *testing.T) {
	c := NewCounter(t.TempDir(), nil)

	n, err := c.Count("C. elegans")
	require.NoError(t, err)
	assert.Zero(t, n)

	table, err := c.Table()
	require.NoError(t, err)
	assert.Empty(t, table)
}

func TestCounterLoadsPersistedTable(t *testing.T) {
	root := t.TempDir()
	blob := "C. elegans: 42\nDrosophila: 7\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, CounterFileName), []byte(blob), 0o644))

	c := NewCounter(root, nil)

	n, err := c.Count("C. elegans")
	require.NoError(t, err)
	assert.Equal(t, 42, n)

	n, err = c.Count("Drosophila")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	n, err = c.Count("Mouse")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCounterRecomputePersists(t *testing.T) {
	root := t.TempDir()
	c := NewCounter(root, nil)

	count := func(ctx context.Context, corpus string) (int, error) {
		if corpus == "C. elegans" {
			return 13, nil
		}
		return 0, nil
	}
	require.NoError(t, c.Recompute(context.Background(), count))

	n, err := c.Count("C. elegans")
	require.NoError(t, err)
	assert.Equal(t, 13, n)

	// A fresh counter over the same root reads the persisted table.
	fresh := NewCounter(root, nil)
	n, err = fresh.Count("C. elegans")
	require.NoError(t, err)
	assert.Equal(t, 13, n)
}

func TestCounterRecomputeIsIdempotent(t *testing.T) {
	c := NewCounter(t.TempDir(), nil)

	count := func(ctx context.Context, corpus string) (int, error) { return 3, nil }
	require.NoError(t, c.Recompute(context.Background(), count))
	require.NoError(t, c.Recompute(context.Background(), count))

	n, err := c.Count("Mouse")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
