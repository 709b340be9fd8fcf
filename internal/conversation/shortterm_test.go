package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShortTerm(t *testing.T, maxLen int) (*ShortTermStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewShortTermStore(client, maxLen, time.Hour), mr
}

func TestShortTermStore_AppendAndRecent(t *testing.T) {
	store, _ := newTestShortTerm(t, 10)
	ctx := context.Background()
	convID := uuid.New()

	require.NoError(t, store.Append(ctx, convID, ContextEntry{Role: RoleUser, Content: "hi"}))
	require.NoError(t, store.Append(ctx, convID, ContextEntry{Role: RoleAssistant, Content: "hello"}))

	entries, err := store.Recent(ctx, convID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, "hi", entries[0].Content)
	assert.Equal(t, RoleAssistant, entries[1].Role)
}

func TestShortTermStore_TrimsToWindow(t *testing.T) {
	store, _ := newTestShortTerm(t, 3)
	ctx := context.Background()
	convID := uuid.New()

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		require.NoError(t, store.Append(ctx, convID, ContextEntry{Role: RoleUser, Content: content}))
	}

	entries, err := store.Recent(ctx, convID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "three", entries[0].Content)
	assert.Equal(t, "five", entries[2].Content)
}

func TestShortTermStore_IsolatesConversations(t *testing.T) {
	store, _ := newTestShortTerm(t, 10)
	ctx := context.Background()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, store.Append(ctx, a, ContextEntry{Role: RoleUser, Content: "thread a"}))

	entries, err := store.Recent(ctx, b)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShortTermStore_Clear(t *testing.T) {
	store, _ := newTestShortTerm(t, 10)
	ctx := context.Background()
	convID := uuid.New()

	require.NoError(t, store.Append(ctx, convID, ContextEntry{Role: RoleUser, Content: "hi"}))
	require.NoError(t, store.Clear(ctx, convID))

	entries, err := store.Recent(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestShortTermStore_SetsTTL(t *testing.T) {
	store, mr := newTestShortTerm(t, 10)
	ctx := context.Background()
	convID := uuid.New()

	require.NoError(t, store.Append(ctx, convID, ContextEntry{Role: RoleUser, Content: "hi"}))

	mr.FastForward(2 * time.Hour)

	entries, err := store.Recent(ctx, convID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
