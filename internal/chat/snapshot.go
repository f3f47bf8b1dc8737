package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Snapshot is the interchange format for backups and cross-device transfer.
// Export always emits all three fields; Import tolerates the absence of any
// of them.
type Snapshot struct {
	Chats             []Chat     `json:"chats"`
	APIKey            *string    `json:"apiKey"`
	APIKeyLastUpdated *time.Time `json:"apiKeyLastUpdated"`
}

// Export serializes the full store state as a Snapshot. Chats are listed in
// the same order as ChatList.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if err := s.Ready(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Chats: s.chatListLocked()}
	if s.apiKey != "" {
		key := s.apiKey
		snap.APIKey = &key
	}
	if !s.keyUpdated.IsZero() {
		updated := s.keyUpdated
		snap.APIKeyLastUpdated = &updated
	}

	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return b, nil
}

// Import merges a foreign snapshot into the store, last write wins:
//
//   - An incoming chat with no local counterpart is inserted as-is.
//   - An incoming chat with a strictly newer LastEdited replaces the local
//     chat wholesale; otherwise the local chat is kept, ties included. There
//     is no message-level merge: the older side's unique messages are
//     discarded with the rest of the record.
//   - The incoming credential is adopted only if there is no local credential,
//     or the incoming timestamp is strictly newer than the local one.
//   - Import never removes local chats absent from the snapshot.
//
// A payload that fails to parse or doesn't have the expected shape results in
// ErrMalformedSnapshot with no mutation at all.
func (s *Store) Import(ctx context.Context, payload []byte) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}

	snap, err := decodeSnapshot(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.Chats != nil {
		for _, in := range snap.Chats {
			in = in.clone()
			local, ok := s.chats[in.Name]
			if !ok || in.LastEdited.After(local.LastEdited) {
				s.chats[in.Name] = in
			}
		}
		// Single batch persist after all incoming chats are merged
		if err := s.persistChatsLocked(ctx); err != nil {
			return err
		}
	}

	if snap.APIKey != nil {
		adopt := s.apiKey == "" ||
			(!s.keyUpdated.IsZero() && snap.APIKeyLastUpdated != nil && snap.APIKeyLastUpdated.After(s.keyUpdated))
		if adopt {
			s.apiKey = *snap.APIKey
			if snap.APIKeyLastUpdated != nil {
				s.keyUpdated = *snap.APIKeyLastUpdated
			}
			if err := s.backend.Set(ctx, apiKeyKey, s.apiKey); err != nil {
				return fmt.Errorf("%w: %v", ErrStorageWrite, err)
			}
		}
	}

	return nil
}

// decodeSnapshot validates the payload shape strictly rather than trusting
// dynamically-typed structure: the top level must be a JSON object, chats (if
// present) must be a list of records with non-empty names, and message roles
// must come from the known set.
func decodeSnapshot(payload []byte) (*Snapshot, error) {
	trimmed := bytes.TrimLeft(payload, " \t\r\n")
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}
	var snap Snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, err
	}
	for i, c := range snap.Chats {
		if c.Name == "" {
			return nil, fmt.Errorf("chat %d has no name", i)
		}
		for j, m := range c.Messages {
			if !m.Role.Valid() {
				return nil, fmt.Errorf("chat %q message %d has unknown role %q", c.Name, j, m.Role)
			}
		}
	}
	return &snap, nil
}

// chatEntry is one element of the persisted "chats" value, which is an array
// of [name, chat] pairs (a serialized mapping).
type chatEntry struct {
	Name string
	Chat Chat
}

func (e chatEntry) MarshalJSON() ([]byte, error) {
	name, err := json.Marshal(e.Name)
	if err != nil {
		return nil, err
	}
	c, err := json.Marshal(e.Chat)
	if err != nil {
		return nil, err
	}
	return json.Marshal([]json.RawMessage{name, c})
}

func (e *chatEntry) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("expected [name, chat] pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Name); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &e.Chat)
}

func encodeChats(chats map[string]Chat) (string, error) {
	entries := make([]chatEntry, 0, len(chats))
	for name, c := range chats {
		entries = append(entries, chatEntry{Name: name, Chat: c})
	}
	// Maps are unordered; sort by name so the persisted value is deterministic
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	b, err := json.Marshal(entries)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeChats(raw string) (map[string]Chat, error) {
	var entries []chatEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		return nil, err
	}
	chats := make(map[string]Chat, len(entries))
	for _, e := range entries {
		c := e.Chat
		if c.Messages == nil {
			c.Messages = []Message{}
		}
		chats[e.Name] = c
	}
	return chats, nil
}
