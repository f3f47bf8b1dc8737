package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Keys used in the durable backend.
const (
	chatsKey  = "chats"
	apiKeyKey = "apiKey"
)

var (
	// ErrStorageUnavailable means the backend could not be opened or the
	// initial load failed. Callers may retry Ready freely.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrStorageWrite means a mutation was applied in memory but could not be
	// persisted. In-memory state remains authoritative for the session.
	ErrStorageWrite = errors.New("storage write failed")
	// ErrMalformedSnapshot means an import payload failed to parse or did not
	// have the expected shape. A malformed import applies no mutation.
	ErrMalformedSnapshot = errors.New("malformed snapshot")
)

// Store is the single source of truth for chats and the stored credential.
// It loads lazily from the backend on first use and is safe for concurrent
// use. Every mutation persists the current in-memory state before releasing
// the store, so interleaved writers cannot clobber each other with stale
// copies of the mapping.
type Store struct {
	backend Backend
	now     func() time.Time

	mu         sync.Mutex
	chats      map[string]Chat
	apiKey     string // empty means no credential is stored
	keyUpdated time.Time
	ready      bool
	loading    chan struct{} // non-nil while an initialization is in flight
	loadErr    error
}

func NewStore(backend Backend) *Store {
	return &Store{
		backend: backend,
		now:     time.Now,
		chats:   map[string]Chat{},
	}
}

// Ready performs the one-time load of chats and credential from the backend.
// It is idempotent: after the first success it returns immediately, and
// concurrent callers during the first load all await the same in-flight
// initialization rather than triggering another one. A failed load may be
// retried by calling Ready again.
func (s *Store) Ready(ctx context.Context) error {
	s.mu.Lock()
	if s.ready {
		s.mu.Unlock()
		return nil
	}
	if s.loading != nil {
		ch := s.loading
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ch:
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.ready {
			return nil
		}
		return s.loadErr
	}
	ch := make(chan struct{})
	s.loading = ch
	s.mu.Unlock()

	chats, apiKey, err := s.load(ctx)

	s.mu.Lock()
	if err == nil {
		s.chats = chats
		s.apiKey = apiKey
		s.ready = true
	}
	s.loadErr = err
	s.loading = nil
	s.mu.Unlock()
	close(ch)
	return err
}

func (s *Store) load(ctx context.Context) (map[string]Chat, string, error) {
	if err := s.backend.Open(ctx); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	chats := map[string]Chat{}
	raw, ok, err := s.backend.Get(ctx, chatsKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to load chats: %v", ErrStorageUnavailable, err)
	}
	if ok {
		chats, err = decodeChats(raw)
		if err != nil {
			return nil, "", fmt.Errorf("%w: failed to decode chats: %v", ErrStorageUnavailable, err)
		}
	}

	apiKey, _, err := s.backend.Get(ctx, apiKeyKey)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to load credential: %v", ErrStorageUnavailable, err)
	}

	return chats, apiKey, nil
}

// Chats returns a deep-copied snapshot of the chat mapping.
func (s *Store) Chats(ctx context.Context) (map[string]Chat, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Chat, len(s.chats))
	for name, c := range s.chats {
		out[name] = c.clone()
	}
	return out, nil
}

// ChatList returns a deep-copied snapshot of the chats ordered by LastEdited
// descending, most recently touched first. Ties are broken by name so the
// order is stable.
func (s *Store) ChatList(ctx context.Context) ([]Chat, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chatListLocked(), nil
}

func (s *Store) chatListLocked() []Chat {
	out := make([]Chat, 0, len(s.chats))
	for _, c := range s.chats {
		out = append(out, c.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastEdited.Equal(out[j].LastEdited) {
			return out[i].LastEdited.After(out[j].LastEdited)
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// CreateChat inserts an empty chat with the given name. Creating a chat that
// already exists is a no-op: its messages and timestamp are untouched.
func (s *Store) CreateChat(ctx context.Context, name string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.chats[name]; !ok {
		s.chats[name] = Chat{
			Name:       name,
			Messages:   []Message{},
			LastEdited: s.now(),
		}
	}
	return s.persistChatsLocked(ctx)
}

// AddMessage appends a message to the named chat, creating the chat first if
// it doesn't exist. There is deliberately no "chat not found" failure mode.
func (s *Store) AddMessage(ctx context.Context, name string, msg Message) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[name]
	if !ok {
		c = Chat{Name: name, Messages: []Message{}}
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	c.Messages = append(c.Messages, msg)
	// LastEdited must never move backwards, even if the wall clock does
	if edited := s.now(); edited.After(c.LastEdited) {
		c.LastEdited = edited
	}
	s.chats[name] = c
	return s.persistChatsLocked(ctx)
}

// DeleteChats removes every chat. The clear is all-or-nothing: if persisting
// the empty mapping fails, the previous mapping is restored in memory.
func (s *Store) DeleteChats(ctx context.Context) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.chats
	s.chats = map[string]Chat{}
	if err := s.persistChatsLocked(ctx); err != nil {
		s.chats = prev
		return err
	}
	return nil
}

// Key returns the stored credential, or the empty string if none is stored.
func (s *Store) Key(ctx context.Context) (string, error) {
	if err := s.Ready(ctx); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKey, nil
}

// SetKey stores the credential and records when it was last updated. Only the
// credential is persisted, not the chat mapping.
func (s *Store) SetKey(ctx context.Context, key string) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apiKey = key
	s.keyUpdated = s.now()
	if err := s.backend.Set(ctx, apiKeyKey, key); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}

// persistChatsLocked serializes the current in-memory mapping and writes it to
// the backend. Callers must hold s.mu, which guarantees the persisted copy is
// the state at write completion rather than a stale snapshot.
func (s *Store) persistChatsLocked(ctx context.Context) error {
	raw, err := encodeChats(s.chats)
	if err != nil {
		return fmt.Errorf("failed to encode chats: %w", err)
	}
	if err := s.backend.Set(ctx, chatsKey, raw); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageWrite, err)
	}
	return nil
}
