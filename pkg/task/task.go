package task

import (
	"time"

	"taskcreator/pkg/media"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

// MediaAsset is one uploaded media item after processing. URL holds either an
// inline data URL (images, non-playable video fallback) or a blob store
// reference for playable video originals.
type MediaAsset struct {
	URL        string     `json:"url"`
	Kind       media.Kind `json:"type"`
	Transcript string     `json:"transcript,omitempty"`
	IsPlayable bool       `json:"isPlayable,omitempty"`
}

// Task is the structured record derived from user-submitted media.
type Task struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Summary      string       `json:"summary"`
	Description  string       `json:"description"`
	Location     string       `json:"location,omitempty"`
	Professional string       `json:"professional,omitempty"`
	Media        []MediaAsset `json:"media"`
	CreatedAt    time.Time    `json:"createdAt"`
	Status       Status       `json:"status"`
}

func (t *Task) IsPublished() bool {
	return t.Status == StatusPublished
}
