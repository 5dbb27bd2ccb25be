package sessionid

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"oasys-backend/lib/statestore"

	"github.com/stretchr/testify/require"
)

func TestGetOrCreate(t *testing.T) {
	ctx := context.Background()
	store, err := statestore.Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	id, err := GetOrCreate(ctx, store)
	require.NoError(t, err)
	require.Len(t, id, 8)
	require.Equal(t, strings.ToLower(id), id)

	// stable across calls
	again, err := GetOrCreate(ctx, store)
	require.NoError(t, err)
	require.Equal(t, id, again)

	// only a session reset mints a new one
	require.NoError(t, store.ResetSession(ctx))
	fresh, err := GetOrCreate(ctx, store)
	require.NoError(t, err)
	require.Len(t, fresh, 8)
	require.NotEqual(t, id, fresh)
}
