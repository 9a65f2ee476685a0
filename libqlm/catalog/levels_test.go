package catalog

import (
	"context"
	"encoding/binary"
	"testing"

	"github.com/dgraph-io/badger/v3"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/stretchr/testify/require"
)

func TestInterruptedLevel(gT *testing.T) {
	ctx := context.Background()
	c, err := OpenCatalog(qlm.NewCatalogContext(), qlm.CatalogOpts{SizeTag: "2x2"})
	require.NoError(gT, err)
	defer c.Close()
	cat := c.(*catalog)

	seed := qlm.StateFromUint64(39)
	require.NoError(gT, cat.PutLevel(ctx, "run", 0, []qlm.State{seed}))

	// states of level 1 committed without the marker that ends a level write
	key := appendLevelPrefix(nil, "run")
	key = binary.BigEndian.AppendUint32(key, 1)
	key = qlm.StateFromUint64(5).AppendKey(key)
	require.NoError(gT, cat.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, nil)
	}))

	levels, err := cat.Levels(ctx, "run")
	require.NoError(gT, err)
	require.Equal(gT, [][]qlm.State{{seed}}, levels)

	// rewriting the level replaces what the interrupted write left
	require.NoError(gT, cat.PutLevel(ctx, "run", 1, []qlm.State{qlm.StateFromUint64(34)}))
	levels, err = cat.Levels(ctx, "run")
	require.NoError(gT, err)
	require.Equal(gT, [][]qlm.State{{seed}, {qlm.StateFromUint64(34)}}, levels)

	// so does rewriting a complete one
	require.NoError(gT, cat.PutLevel(ctx, "run", 0, []qlm.State{qlm.StateFromUint64(80)}))
	levels, err = cat.Levels(ctx, "run")
	require.NoError(gT, err)
	require.Equal(gT, []qlm.State{qlm.StateFromUint64(80)}, levels[0])
}
