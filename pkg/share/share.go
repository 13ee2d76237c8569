package share

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"taskcreator/pkg/task"
)

// ErrNotFound covers both missing tasks and drafts: unpublished tasks are
// not externally visible, so a shared link to one renders the same
// not-found state as a bad id.
var ErrNotFound = errors.New("shared task not found")

// TaskGetter is the read side of the task store needed for resolution.
type TaskGetter interface {
	Get(ctx context.Context, id string) (*task.Task, error)
}

// Link builds the shareable URL for a task.
func Link(origin, taskID string) string {
	return strings.TrimRight(origin, "/") + "/shared/" + taskID
}

// Resolve returns the task behind a shared link, only when it is published.
func Resolve(ctx context.Context, tasks TaskGetter, id string) (*task.Task, error) {
	t, err := tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil || !t.IsPublished() {
		return nil, ErrNotFound
	}
	return t, nil
}

// ExportText renders a task as plain text for sharing outside the app.
func ExportText(t *task.Task, origin string) string {
	location := t.Location
	if location == "" {
		location = "Not specified"
	}
	professional := t.Professional
	if professional == "" {
		professional = "General"
	}

	return fmt.Sprintf(`Task: %s

Summary: %s

Description: %s

Location: %s
Trade: %s
Created: %s

View online: %s`,
		t.Title, t.Summary, t.Description,
		location, professional,
		t.CreatedAt.Format("2006-01-02"),
		Link(origin, t.ID),
	)
}
