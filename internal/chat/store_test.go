package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns strictly increasing timestamps unless rewound.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, *MemoryBackend) {
	t.Helper()
	backend := NewMemoryBackend()
	store := NewStore(backend)
	store.now = newFakeClock().now
	return store, backend
}

func TestReady_MissingKeysLeaveEmptyState(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.Ready(ctx))

	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)

	key, err := store.Key(ctx)
	require.NoError(t, err)
	assert.Empty(t, key)
}

// blockingBackend counts Open calls and can hold the first one until released.
type blockingBackend struct {
	*MemoryBackend
	mu        sync.Mutex
	openCalls int
	release   chan struct{}
}

func (b *blockingBackend) Open(ctx context.Context) error {
	b.mu.Lock()
	b.openCalls++
	b.mu.Unlock()
	if b.release != nil {
		<-b.release
	}
	return nil
}

func TestReady_ConcurrentCallersShareOneLoad(t *testing.T) {
	ctx := context.Background()
	backend := &blockingBackend{MemoryBackend: NewMemoryBackend(), release: make(chan struct{})}
	store := NewStore(backend)

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Ready(ctx)
		}(i)
	}

	// Let the goroutines pile up on the in-flight initialization
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Equal(t, 1, backend.openCalls, "initialization must run exactly once")
}

// failingBackend fails Open a fixed number of times, then succeeds.
type failingBackend struct {
	*MemoryBackend
	openFailures int
	failSet      bool
}

func (b *failingBackend) Open(ctx context.Context) error {
	if b.openFailures > 0 {
		b.openFailures--
		return fmt.Errorf("disk on fire")
	}
	return nil
}

func (b *failingBackend) Set(ctx context.Context, key, value string) error {
	if b.failSet {
		return fmt.Errorf("disk full")
	}
	return b.MemoryBackend.Set(ctx, key, value)
}

func TestReady_FailureIsSurfacedAndRetryable(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend(), openFailures: 1}
	store := NewStore(backend)

	err := store.Ready(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	// The backend recovered; a second attempt succeeds
	require.NoError(t, store.Ready(ctx))
}

func TestCreateChat_Idempotent(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.CreateChat(ctx, "plans"))

	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	require.Contains(t, chats, "plans")
	created := chats["plans"].LastEdited
	assert.Empty(t, chats["plans"].Messages)

	require.NoError(t, store.AddMessage(ctx, "plans", NewMessage(RoleUser, "hello")))

	// Re-creating must not reset messages or the timestamp
	require.NoError(t, store.CreateChat(ctx, "plans"))
	chats, err = store.Chats(ctx)
	require.NoError(t, err)
	assert.Len(t, chats["plans"].Messages, 1)
	assert.True(t, chats["plans"].LastEdited.After(created))
}

func TestAddMessage_CreatesChatOnDemand(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	msg := NewMessage(RoleUser, "first")
	require.NoError(t, store.AddMessage(ctx, "fresh", msg))

	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	require.Contains(t, chats, "fresh")
	require.Len(t, chats["fresh"].Messages, 1)
	assert.Equal(t, "first", chats["fresh"].Messages[0].Content)
}

func TestAddMessage_LastEditedMonotonic(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	var previous time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, store.AddMessage(ctx, "log", NewMessage(RoleUser, "m")))
		chats, err := store.Chats(ctx)
		require.NoError(t, err)
		edited := chats["log"].LastEdited
		assert.False(t, edited.Before(previous), "lastEdited went backwards")
		previous = edited
	}
}

func TestAddMessage_LastEditedHoldsAgainstClockRewind(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddMessage(ctx, "log", NewMessage(RoleUser, "m1")))
	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	before := chats["log"].LastEdited

	// Rewind the wall clock; the invariant must hold anyway
	store.now = func() time.Time { return before.Add(-time.Hour) }
	require.NoError(t, store.AddMessage(ctx, "log", NewMessage(RoleUser, "m2")))

	chats, err = store.Chats(ctx)
	require.NoError(t, err)
	assert.False(t, chats["log"].LastEdited.Before(before))
	assert.Len(t, chats["log"].Messages, 2)
}

func TestDeleteChats_ClearsEverything(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddMessage(ctx, "a", NewMessage(RoleUser, "m")))
	require.NoError(t, store.AddMessage(ctx, "b", NewMessage(RoleUser, "m")))

	require.NoError(t, store.DeleteChats(ctx))

	list, err := store.ChatList(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteChats_RollsBackOnWriteFailure(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	store := NewStore(backend)

	require.NoError(t, store.AddMessage(ctx, "keep", NewMessage(RoleUser, "m")))

	backend.failSet = true
	err := store.DeleteChats(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)

	// No partial clear may be observable
	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	assert.Contains(t, chats, "keep")
}

func TestAddMessage_WriteFailureKeepsMemoryAuthoritative(t *testing.T) {
	ctx := context.Background()
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	store := NewStore(backend)
	require.NoError(t, store.Ready(ctx))

	backend.failSet = true
	err := store.AddMessage(ctx, "notes", NewMessage(RoleUser, "m"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorageWrite)

	// The mutation stays applied in memory for the session
	chats, err := store.Chats(ctx)
	require.NoError(t, err)
	assert.Contains(t, chats, "notes")
}

func TestChatList_OrderedByLastEditedDescending(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddMessage(ctx, "oldest", NewMessage(RoleUser, "m")))
	require.NoError(t, store.AddMessage(ctx, "middle", NewMessage(RoleUser, "m")))
	require.NoError(t, store.AddMessage(ctx, "newest", NewMessage(RoleUser, "m")))

	list, err := store.ChatList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "newest", list[0].Name)
	assert.Equal(t, "middle", list[1].Name)
	assert.Equal(t, "oldest", list[2].Name)
}

func TestChats_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.AddMessage(ctx, "iso", NewMessage(RoleUser, "original")))

	before, err := store.Chats(ctx)
	require.NoError(t, err)

	// Mutating the snapshot must not affect the store
	before["iso"].Messages[0] = Message{Role: RoleUser, Content: "tampered"}

	after, err := store.Chats(ctx)
	require.NoError(t, err)
	assert.Equal(t, "original", after["iso"].Messages[0].Content)

	// And store mutations must not affect a previously-taken snapshot
	snapshot, err := store.ChatList(ctx)
	require.NoError(t, err)
	require.NoError(t, store.DeleteChats(ctx))
	require.Len(t, snapshot, 1)
	assert.Equal(t, "original", snapshot[0].Messages[0].Content)
}

func TestPersistence_SurvivesRestart(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()

	store := NewStore(backend)
	require.NoError(t, store.AddMessage(ctx, "durable", NewMessage(RoleAssistant, "hi")))
	require.NoError(t, store.SetKey(ctx, "sk-secret"))

	// A fresh store against the same backend repeats the load cycle
	reopened := NewStore(backend)
	chats, err := reopened.Chats(ctx)
	require.NoError(t, err)
	require.Contains(t, chats, "durable")
	assert.Equal(t, "hi", chats["durable"].Messages[0].Content)

	key, err := reopened.Key(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-secret", key)
}

func TestPersistedChatsAreNamePairArrays(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	require.NoError(t, store.AddMessage(ctx, "wire", NewMessage(RoleUser, "m")))

	raw, ok, err := backend.Get(ctx, "chats")
	require.NoError(t, err)
	require.True(t, ok)

	var pairs [][]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &pairs))
	require.Len(t, pairs, 1)
	require.Len(t, pairs[0], 2)

	var name string
	require.NoError(t, json.Unmarshal(pairs[0][0], &name))
	assert.Equal(t, "wire", name)

	var record Chat
	require.NoError(t, json.Unmarshal(pairs[0][1], &record))
	assert.Equal(t, "wire", record.Name)
	require.Len(t, record.Messages, 1)
}

func TestTimestamps_RoundTripThroughBackend(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	store := NewStore(backend)

	stamp := time.Date(2024, 3, 14, 1, 59, 26, 535897932, time.UTC)
	require.NoError(t, store.AddMessage(ctx, "precise", Message{
		Role:      RoleUser,
		Content:   "pi time",
		Timestamp: stamp,
	}))

	reopened := NewStore(backend)
	chats, err := reopened.Chats(ctx)
	require.NoError(t, err)
	assert.True(t, chats["precise"].Messages[0].Timestamp.Equal(stamp))
}

func TestSetKey_PersistsOnlyCredential(t *testing.T) {
	ctx := context.Background()
	store, backend := newTestStore(t)

	require.NoError(t, store.SetKey(ctx, "sk-123"))

	raw, ok, err := backend.Get(ctx, "apiKey")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "sk-123", raw)

	_, ok, err = backend.Get(ctx, "chats")
	require.NoError(t, err)
	assert.False(t, ok, "SetKey must not persist the chat mapping")
}

func TestErrorsIs_Sentinels(t *testing.T) {
	wrapped := fmt.Errorf("%w: boom", ErrMalformedSnapshot)
	assert.True(t, errors.Is(wrapped, ErrMalformedSnapshot))
}
