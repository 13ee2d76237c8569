package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"

	"taskcreator/pkg/cache"
	"taskcreator/pkg/task"
)

const (
	// The whole collection is persisted as one serialized value; writes
	// above this size degrade by dropping the new task's media.
	storageLimitBytes = 4 * 1024 * 1024

	collectionKey = "tasks"
)

// ErrMediaDropped reports that a task was persisted with its media stripped
// because the collection would not fit otherwise. The task record itself is
// saved; callers treat this as a recoverable warning, not data loss.
var ErrMediaDropped = errors.New("media files too large for storage - task saved without media")

// Store is the system of record for tasks: a keyed collection serialized as
// a single value in the underlying key-value store.
type Store struct {
	kv  cache.KV
	key string
}

func New(kv cache.KV, keyPrefix string) *Store {
	key := collectionKey
	if keyPrefix != "" {
		key = keyPrefix + ":" + collectionKey
	}
	return &Store{kv: kv, key: key}
}

// Save writes the task into the collection and persists the whole
// collection. Oversized or rejected writes are retried once with the new
// task's media stripped; that path still returns ErrMediaDropped.
func (s *Store) Save(ctx context.Context, t *task.Task) error {
	tasks, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	tasks[t.ID] = *t

	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("serialize task collection: %w", err)
	}

	if len(data) > storageLimitBytes {
		log.Printf("Task collection at %d bytes exceeds storage limit, saving %s without media", len(data), t.ID)
		return s.saveDegraded(ctx, tasks, t)
	}

	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		log.Printf("Task collection write rejected (%v), saving %s without media", err, t.ID)
		return s.saveDegraded(ctx, tasks, t)
	}
	return nil
}

func (s *Store) saveDegraded(ctx context.Context, tasks map[string]task.Task, t *task.Task) error {
	stripped := *t
	stripped.Media = []task.MediaAsset{}
	tasks[t.ID] = stripped

	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("serialize task collection: %w", err)
	}
	if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
		return fmt.Errorf("unable to save task - storage full: %w", err)
	}
	return ErrMediaDropped
}

func (s *Store) Get(ctx context.Context, id string) (*task.Task, error) {
	tasks, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

// GetAll loads the collection. Legacy records without a status are treated
// as published; when any record needed that migration the collection is
// written back once.
func (s *Store) GetAll(ctx context.Context) (map[string]task.Task, error) {
	raw, err := s.kv.Get(ctx, s.key)
	if err != nil {
		return nil, fmt.Errorf("read task collection: %w", err)
	}
	if raw == "" {
		return map[string]task.Task{}, nil
	}

	tasks := map[string]task.Task{}
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		log.Printf("Task collection unreadable, starting empty: %v", err)
		return map[string]task.Task{}, nil
	}

	migrated := false
	for id, t := range tasks {
		if t.Status == "" {
			t.Status = task.StatusPublished
			tasks[id] = t
			migrated = true
		}
	}
	if migrated {
		data, err := json.Marshal(tasks)
		if err == nil {
			if err := s.kv.Set(ctx, s.key, string(data), 0); err != nil {
				log.Printf("Failed to persist status migration: %v", err)
			}
		}
	}

	return tasks, nil
}

func (s *Store) GetPublished(ctx context.Context) (map[string]task.Task, error) {
	tasks, err := s.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	published := map[string]task.Task{}
	for id, t := range tasks {
		if t.Status == task.StatusPublished {
			published[id] = t
		}
	}
	return published, nil
}

// GetByAddress returns published tasks whose location matches address
// exactly. An empty address selects published tasks with no location set.
func (s *Store) GetByAddress(ctx context.Context, address string) (map[string]task.Task, error) {
	published, err := s.GetPublished(ctx)
	if err != nil {
		return nil, err
	}
	matched := map[string]task.Task{}
	for id, t := range published {
		if t.Location == address {
			matched[id] = t
		}
	}
	return matched, nil
}

// GetUniqueAddresses returns the sorted distinct locations of published
// tasks, skipping empty ones.
func (s *Store) GetUniqueAddresses(ctx context.Context) ([]string, error) {
	published, err := s.GetPublished(ctx)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	for _, t := range published {
		if t.Location != "" && !seen[t.Location] {
			seen[t.Location] = true
		}
	}
	addresses := make([]string, 0, len(seen))
	for addr := range seen {
		addresses = append(addresses, addr)
	}
	sort.Strings(addresses)
	return addresses, nil
}

// Publish transitions a task to published. The transition is one-way and a
// missing id is a no-op.
func (s *Store) Publish(ctx context.Context, id string) error {
	tasks, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	t, ok := tasks[id]
	if !ok {
		return nil
	}
	t.Status = task.StatusPublished
	tasks[id] = t
	return s.writeAll(ctx, tasks)
}

// Delete removes a task; absent ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) error {
	tasks, err := s.GetAll(ctx)
	if err != nil {
		return err
	}
	if _, ok := tasks[id]; !ok {
		return nil
	}
	delete(tasks, id)
	return s.writeAll(ctx, tasks)
}

func (s *Store) writeAll(ctx context.Context, tasks map[string]task.Task) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("serialize task collection: %w", err)
	}
	return s.kv.Set(ctx, s.key, string(data), 0)
}
