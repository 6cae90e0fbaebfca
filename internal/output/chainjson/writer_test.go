package chainjson

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"threatchain/pkg/models"
)

func TestWriteChainsAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "chains.jsonl")

	w, err := NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteChains([]*models.AttackChain{
		{ID: "chain-1", EventCount: 2, Score: 40, Severity: "medium"},
	}))
	require.NoError(t, w.Close())

	w, err = NewWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.WriteChains([]*models.AttackChain{
		{ID: "chain-2", EventCount: 1, Score: 90, Severity: "critical"},
	}))
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var ids []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var c models.AttackChain
		require.NoError(t, json.Unmarshal(sc.Bytes(), &c))
		ids = append(ids, c.ID)
	}
	assert.Equal(t, []string{"chain-1", "chain-2"}, ids)
}
