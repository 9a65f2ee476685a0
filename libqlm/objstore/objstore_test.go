package objstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/fine-structures/qlm.SDK/libqlm/frontier"
	"github.com/fine-structures/qlm.SDK/libqlm/lattice"
	"github.com/fine-structures/qlm.SDK/qlm"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/require"
)

func TestLevelNames(t *testing.T) {
	st := NewStore(nil, "qlm", "checkpoints")
	require.Equal(t, "checkpoints/ground/states_lv_0", st.LevelKey("ground", 0))
	require.Equal(t, "checkpoints/2x2x2/ground/states_lv_12", st.LevelKey("2x2x2/ground", 12))
	require.Equal(t, "run/states_lv_3", NewStore(nil, "qlm", "").LevelKey("run", 3))

	for name, expect := range map[string]int{
		"states_lv_0":  0,
		"states_lv_7":  7,
		"states_lv_42": 42,
	} {
		level, ok := ParseLevelName(name)
		require.True(t, ok, name)
		require.Equal(t, expect, level)
	}
	for _, name := range []string{"", "states_lv_", "states_lv_-1", "states_lv_07", "states_lv_x", "levels_0", "states_lv_3.bak"} {
		_, ok := ParseLevelName(name)
		require.False(t, ok, name)
	}
}

// TestStore_Integration requires a running MinIO instance (QLM_S3_ENDPOINT, default localhost:9000).
func TestStore_Integration(t *testing.T) {
	endpoint := os.Getenv("QLM_S3_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}
	bucket := "test-qlm"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	if err != nil {
		t.Skipf("MinIO client creation failed: %v", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err = client.ListBuckets(pingCtx); err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	ctx := context.Background()
	store, err := Dial(ctx, Config{
		Endpoint:  endpoint,
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    bucket,
		Prefix:    "test-prefix",
	})
	require.NoError(t, err)

	run := "ground-" + time.Now().Format("150405.000000")
	defer store.DeleteRun(ctx, run)

	lat, err := lattice.New([]int{2, 2, 2})
	require.NoError(t, err)
	plaqs, err := lattice.BuildPlaquettes(lat)
	require.NoError(t, err)

	seed := qlm.StateFromUint64(3816540)
	partial, err := frontier.Expand(ctx, []qlm.State{seed}, plaqs, frontier.Opts{
		MaxLevel: 2,
		Store:    store,
		Run:      run,
	})
	require.NoError(t, err)
	require.Len(t, partial, 95)

	levels, err := store.Levels(ctx, run)
	require.NoError(t, err)
	require.Len(t, levels, 3)
	require.Equal(t, []qlm.State{seed}, levels[0])
	require.Len(t, levels[1], 16)

	states, err := frontier.Resume(ctx, plaqs, frontier.Opts{Store: store, Run: run})
	require.NoError(t, err)
	require.Len(t, states, 864)

	levels, err = store.Levels(ctx, run)
	require.NoError(t, err)
	require.Len(t, levels, 7)

	require.NoError(t, store.DeleteRun(ctx, run))
	levels, err = store.Levels(ctx, run)
	require.NoError(t, err)
	require.Empty(t, levels)
}
