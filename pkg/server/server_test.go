package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskcreator/pkg/media"
	"taskcreator/pkg/pipeline"
	"taskcreator/pkg/session"
	"taskcreator/pkg/task"
)

type fakeTasks struct {
	tasks     map[string]task.Task
	published map[string]bool
	deleted   []string
}

func newFakeTasks(tasks ...task.Task) *fakeTasks {
	f := &fakeTasks{tasks: map[string]task.Task{}, published: map[string]bool{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeTasks) Get(ctx context.Context, id string) (*task.Task, error) {
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeTasks) GetAll(ctx context.Context) (map[string]task.Task, error) {
	return f.tasks, nil
}

func (f *fakeTasks) GetPublished(ctx context.Context) (map[string]task.Task, error) {
	out := map[string]task.Task{}
	for id, t := range f.tasks {
		if t.Status == task.StatusPublished {
			out[id] = t
		}
	}
	return out, nil
}

func (f *fakeTasks) GetUniqueAddresses(ctx context.Context) ([]string, error) {
	return []string{"Bergen, Norway", "Oslo, Norway"}, nil
}

func (f *fakeTasks) Publish(ctx context.Context, id string) error {
	f.published[id] = true
	if t, ok := f.tasks[id]; ok {
		t.Status = task.StatusPublished
		f.tasks[id] = t
	}
	return nil
}

func (f *fakeTasks) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	delete(f.tasks, id)
	return nil
}

type fakeBlobs struct {
	resolved map[string]string
	deleted  []string
}

func (f *fakeBlobs) Resolve(url string) (string, error) {
	if !strings.HasPrefix(url, "blob://") {
		return url, nil
	}
	return f.resolved[url], nil
}

func (f *fakeBlobs) Delete(id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

type fakePipeline struct {
	files    []pipeline.InputFile
	created  *task.Task
	warnings []pipeline.Warning
	err      error
}

func (f *fakePipeline) CreateTask(ctx context.Context, files []pipeline.InputFile) (*task.Task, []pipeline.Warning, error) {
	f.files = files
	return f.created, f.warnings, f.err
}

type fakeSessions struct {
	files []session.PersistedMedia
}

func (f *fakeSessions) Save(ctx context.Context, files []session.PersistedMedia) error {
	f.files = files
	return nil
}

func (f *fakeSessions) Load(ctx context.Context) ([]session.PersistedMedia, error) {
	if f.files == nil {
		return []session.PersistedMedia{}, nil
	}
	return f.files, nil
}

func (f *fakeSessions) Clear(ctx context.Context) error {
	f.files = nil
	return nil
}

func newTestServer(p TaskCreator, tasks TaskStore, blobs BlobResolver, sessions SessionStore) http.Handler {
	if p == nil {
		p = &fakePipeline{}
	}
	if tasks == nil {
		tasks = newFakeTasks()
	}
	if blobs == nil {
		blobs = &fakeBlobs{}
	}
	if sessions == nil {
		sessions = &fakeSessions{}
	}
	return New(p, tasks, blobs, sessions, "https://tasks.example.com").Router()
}

func multipartUpload(t *testing.T, files map[string][]byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for name, data := range files {
		part, err := w.CreateFormFile("media", name)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &body, w.FormDataContentType()
}

func TestCreateTask(t *testing.T) {
	created := &task.Task{ID: "t1", Title: "Fix sink", Status: task.StatusDraft}
	p := &fakePipeline{created: created, warnings: []pipeline.Warning{{Index: 1, Name: "note.m4a", Message: "skipped"}}}
	handler := newTestServer(p, nil, nil, nil)

	body, contentType := multipartUpload(t, map[string][]byte{"photo.jpg": []byte("jpeg bytes")})
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp struct {
		Task     *task.Task         `json:"task"`
		Warnings []pipeline.Warning `json:"warnings"`
		ShareURL string             `json:"shareUrl"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "t1", resp.Task.ID)
	assert.Len(t, resp.Warnings, 1)
	assert.Equal(t, "https://tasks.example.com/shared/t1", resp.ShareURL)

	require.Len(t, p.files, 1)
	assert.Equal(t, "photo.jpg", p.files[0].Name)
	assert.Equal(t, media.KindImage, p.files[0].Kind)
	assert.Equal(t, []byte("jpeg bytes"), p.files[0].Data)
}

func TestCreateTask_UnsupportedFile(t *testing.T) {
	handler := newTestServer(nil, nil, nil, nil)

	body, contentType := multipartUpload(t, map[string][]byte{"report.pdf": []byte("pdf")})
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "report.pdf")
}

func TestCreateTask_PipelineFailure(t *testing.T) {
	p := &fakePipeline{err: errors.New("no media could be processed")}
	handler := newTestServer(p, nil, nil, nil)

	body, contentType := multipartUpload(t, map[string][]byte{"photo.jpg": []byte("x")})
	req := httptest.NewRequest(http.MethodPost, "/tasks", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListTasks(t *testing.T) {
	tasks := newFakeTasks(
		task.Task{ID: "d1", Status: task.StatusDraft},
		task.Task{ID: "p1", Status: task.StatusPublished},
	)
	handler := newTestServer(nil, tasks, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var all map[string]task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks?published=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var published map[string]task.Task
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &published))
	assert.Len(t, published, 1)
	assert.Contains(t, published, "p1")
}

func TestGetTask(t *testing.T) {
	tasks := newFakeTasks(task.Task{ID: "t1", Title: "Fix sink"})
	handler := newTestServer(nil, tasks, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/t1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPublishTask(t *testing.T) {
	tasks := newFakeTasks(task.Task{ID: "t1", Status: task.StatusDraft})
	handler := newTestServer(nil, tasks, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/tasks/t1/publish", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, tasks.published["t1"])
}

func TestDeleteTask(t *testing.T) {
	tasks := newFakeTasks(task.Task{ID: "t1"})
	blobs := &fakeBlobs{}
	handler := newTestServer(nil, tasks, blobs, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/tasks/t1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"t1"}, tasks.deleted)
	assert.Equal(t, []string{"t1-video"}, blobs.deleted)
}

func TestGetVideo(t *testing.T) {
	tasks := newFakeTasks(task.Task{
		ID: "t1",
		Media: []task.MediaAsset{
			{URL: "data:image/jpeg;base64,AAAA", Kind: media.KindImage},
			{URL: "blob://t1-video", Kind: media.KindVideo, IsPlayable: true},
		},
	})
	blobs := &fakeBlobs{resolved: map[string]string{"blob://t1-video": "data:video/mp4;base64,BBBB"}}
	handler := newTestServer(nil, tasks, blobs, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/t1/video", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "data:video/mp4;base64,BBBB", resp["video"])
}

func TestGetVideo_NonePlayable(t *testing.T) {
	tasks := newFakeTasks(task.Task{
		ID:    "t1",
		Media: []task.MediaAsset{{URL: "data:image/jpeg;base64,AAAA", Kind: media.KindVideo}},
	})
	handler := newTestServer(nil, tasks, &fakeBlobs{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/t1/video", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetVideo_DanglingReference(t *testing.T) {
	tasks := newFakeTasks(task.Task{
		ID:    "t1",
		Media: []task.MediaAsset{{URL: "blob://t1-video", Kind: media.KindVideo, IsPlayable: true}},
	})
	handler := newTestServer(nil, tasks, &fakeBlobs{}, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tasks/t1/video", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddresses(t *testing.T) {
	handler := newTestServer(nil, newFakeTasks(), nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/addresses", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var addrs []string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &addrs))
	assert.Equal(t, []string{"Bergen, Norway", "Oslo, Norway"}, addrs)
}

func TestShared(t *testing.T) {
	tasks := newFakeTasks(
		task.Task{ID: "pub", Title: "Fix fence", Status: task.StatusPublished},
		task.Task{ID: "draft", Title: "Fix gate", Status: task.StatusDraft},
	)
	handler := newTestServer(nil, tasks, nil, nil)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shared/pub", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fix fence")

	// Drafts are not externally visible
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shared/draft", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/shared/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionMedia(t *testing.T) {
	sessions := &fakeSessions{}
	handler := newTestServer(nil, nil, nil, sessions)

	payload := `[{"name":"a.jpg","type":"image","base64":"AAAA","lastModified":1700000000000}]`
	req := httptest.NewRequest(http.MethodPut, "/session/media", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Len(t, sessions.files, 1)
	assert.Equal(t, "a.jpg", sessions.files[0].Name)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/media", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var files []session.PersistedMedia
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Len(t, files, 1)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/session/media", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/session/media", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	files = nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	assert.Empty(t, files)
}

func TestSessionMedia_InvalidPayload(t *testing.T) {
	handler := newTestServer(nil, nil, nil, &fakeSessions{})

	req := httptest.NewRequest(http.MethodPut, "/session/media", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
