package blobstore

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"taskcreator/pkg/media"
)

// refPrefix marks references into this store. Anything without the prefix
// (an inline data URL) belongs to another tier and is passed through
// unchanged by Resolve.
const refPrefix = "blob://"

type videoBlob struct {
	ID        string `gorm:"primaryKey"`
	Data      []byte
	MimeType  string
	Timestamp int64 `gorm:"index"`
}

func (videoBlob) TableName() string { return "videos" }

// Store persists original video bytes in an embedded SQLite object store,
// keyed by "<taskId>-video". It holds payloads too large for the
// quota-limited task collection.
type Store struct {
	db *gorm.DB
}

func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open video store: %w", err)
	}
	if err := db.AutoMigrate(&videoBlob{}); err != nil {
		return nil, fmt.Errorf("migrate video store: %w", err)
	}
	return &Store{db: db}, nil
}

// Store writes (or replaces) video bytes under id and returns an opaque
// reference string.
func (s *Store) Store(id string, data []byte, mimeType string) (string, error) {
	blob := videoBlob{
		ID:        id,
		Data:      data,
		MimeType:  mimeType,
		Timestamp: time.Now().UnixMilli(),
	}
	if err := s.db.Save(&blob).Error; err != nil {
		return "", fmt.Errorf("store video %s: %w", id, err)
	}
	return refPrefix + id, nil
}

// Retrieve resolves a reference (or bare id) back to bytes and MIME type.
// Unknown ids yield (nil, "", nil).
func (s *Store) Retrieve(ref string) ([]byte, string, error) {
	id := strings.TrimPrefix(ref, refPrefix)

	var blob videoBlob
	err := s.db.First(&blob, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("retrieve video %s: %w", id, err)
	}
	return blob.Data, blob.MimeType, nil
}

// Resolve turns a media URL into something playable: blob references are
// loaded and inlined as data URLs, anything else is returned unchanged.
// A dangling reference resolves to "".
func (s *Store) Resolve(url string) (string, error) {
	if !IsReference(url) {
		return url, nil
	}
	data, mimeType, err := s.Retrieve(url)
	if err != nil {
		return "", err
	}
	if data == nil {
		return "", nil
	}
	return media.EncodeDataURL(mimeType, data), nil
}

func (s *Store) Delete(id string) error {
	return s.db.Delete(&videoBlob{}, "id = ?", strings.TrimPrefix(id, refPrefix)).Error
}

// CleanupOlderThan removes blobs older than the retention window. Not
// required for correctness, but keeps the store from growing without bound.
func (s *Store) CleanupOlderThan(days int) error {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	res := s.db.Delete(&videoBlob{}, "timestamp < ?", cutoff)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("Removed %d video(s) older than %d days", res.RowsAffected, days)
	}
	return nil
}

// IsReference reports whether url points into this store's namespace.
func IsReference(url string) bool {
	return strings.HasPrefix(url, refPrefix)
}

// StoreWithFallback tries to persist original video bytes; when that fails
// the fallback produces a single compressed frame and the asset is marked
// non-playable.
func (s *Store) StoreWithFallback(taskID string, data []byte, mimeType string, fallback func() (string, error)) (url string, playable bool, err error) {
	ref, storeErr := s.Store(taskID+"-video", data, mimeType)
	if storeErr == nil {
		return ref, true, nil
	}

	log.Printf("Failed to store video for task %s, falling back to frame: %v", taskID, storeErr)
	frame, err := fallback()
	if err != nil {
		return "", false, fmt.Errorf("video fallback frame: %w", err)
	}
	return frame, false, nil
}
