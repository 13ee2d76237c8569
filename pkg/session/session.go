package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"taskcreator/pkg/cache"
	"taskcreator/pkg/media"
)

// In-progress uploads are capped well below the quota of the backing store;
// oversized payloads are skipped rather than failing the capture flow.
const storageLimitBytes = 5 * 1024 * 1024

// PersistedMedia is one in-progress upload held for session recovery.
type PersistedMedia struct {
	Name         string     `json:"name"`
	Kind         media.Kind `json:"type"`
	Data         string     `json:"base64"`
	LastModified int64      `json:"lastModified"`
}

// Store holds in-progress capture media under a TTL'd key so an interrupted
// session can be resumed. Entries expire on their own; Clear drops them
// early once a task is created or discarded.
type Store struct {
	kv  cache.KV
	key string
	ttl time.Duration
}

func New(kv cache.KV, keyPrefix string, ttl time.Duration) *Store {
	key := "session_media"
	if keyPrefix != "" {
		key = keyPrefix + ":session_media"
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Store{kv: kv, key: key, ttl: ttl}
}

// Save persists the upload list. Payloads over the size cap are skipped
// with a log note rather than failing the capture flow.
func (s *Store) Save(ctx context.Context, files []PersistedMedia) error {
	data, err := json.Marshal(files)
	if err != nil {
		return fmt.Errorf("serialize session media: %w", err)
	}

	if len(data) > storageLimitBytes {
		log.Printf("Session media at %d bytes exceeds limit, skipping persistence", len(data))
		return nil
	}

	if err := s.kv.Set(ctx, s.key, string(data), s.ttl); err != nil {
		// One retry after clearing whatever is already there.
		if clearErr := s.kv.Delete(ctx, s.key); clearErr != nil {
			return fmt.Errorf("save session media: %w", err)
		}
		if err := s.kv.Set(ctx, s.key, string(data), s.ttl); err != nil {
			return fmt.Errorf("save session media after clear: %w", err)
		}
	}
	return nil
}

// Load returns the persisted uploads, or an empty list when nothing usable
// is stored.
func (s *Store) Load(ctx context.Context) ([]PersistedMedia, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("load session media: %w", err)
	}
	if raw == "" {
		return []PersistedMedia{}, nil
	}

	var files []PersistedMedia
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		log.Printf("Session media unreadable, dropping: %v", err)
		return []PersistedMedia{}, nil
	}
	return files, nil
}

func (s *Store) Clear(ctx context.Context) error {
	return s.kv.Delete(ctx, s.key)
}

func (s *Store) Has(ctx context.Context) (bool, error) {
	files, err := s.Load(ctx)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}
