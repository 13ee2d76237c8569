package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"taskcreator/pkg/analysis"
	"taskcreator/pkg/location"
	"taskcreator/pkg/media"
	"taskcreator/pkg/store"
	"taskcreator/pkg/task"
)

// Analyzer produces task fields from the ordered media items.
type Analyzer interface {
	Analyze(ctx context.Context, items []analysis.Item) (*analysis.Fields, error)
}

// Transcriber converts audio/video content to plain text.
type Transcriber interface {
	Transcribe(ctx context.Context, name string, data []byte) (string, error)
}

// FrameSource extracts inline-encoded frames from video bytes.
type FrameSource interface {
	SingleFrame(ctx context.Context, name string, data []byte) (string, error)
	Frames(ctx context.Context, name string, data []byte, count int) ([]string, error)
}

// Locator extracts embedded coordinates and resolves them best-effort.
type Locator interface {
	FromImage(data []byte) *location.Location
	Resolve(ctx context.Context, loc *location.Location)
}

// TaskSaver persists the finished task.
type TaskSaver interface {
	Save(ctx context.Context, t *task.Task) error
}

// BlobSaver persists original video bytes for later playback.
type BlobSaver interface {
	Store(id string, data []byte, mimeType string) (string, error)
}

// InputFile is one raw upload from the capture flow.
type InputFile struct {
	Name string
	Kind media.Kind
	Data []byte
}

// Warning records a non-fatal, per-asset failure the user should see.
type Warning struct {
	Index   int
	Name    string
	Message string
}

type Config struct {
	AnalysisFrames int
}

// Pipeline runs the capture flow: compress and extract signals per file,
// analyze the combined media, assemble and persist the task.
type Pipeline struct {
	compressor  *media.Compressor
	frames      FrameSource
	transcriber Transcriber
	analyzer    Analyzer
	locator     Locator
	tasks       TaskSaver
	blobs       BlobSaver
	cfg         Config
}

func New(
	compressor *media.Compressor,
	frames FrameSource,
	transcriber Transcriber,
	analyzer Analyzer,
	locator Locator,
	tasks TaskSaver,
	blobs BlobSaver,
	cfg Config,
) *Pipeline {
	if cfg.AnalysisFrames <= 0 {
		cfg.AnalysisFrames = 3
	}
	return &Pipeline{
		compressor:  compressor,
		frames:      frames,
		transcriber: transcriber,
		analyzer:    analyzer,
		locator:     locator,
		tasks:       tasks,
		blobs:       blobs,
		cfg:         cfg,
	}
}

// processed is the per-file result. Slots are filled by index so the final
// assembly follows upload order regardless of completion order.
type processed struct {
	asset      task.MediaAsset
	items      []analysis.Item
	loc        *location.Location
	videoBytes []byte
	videoMime  string
	err        error
}

// CreateTask runs the full flow over the uploaded files. Per-asset failures
// become warnings; analysis and persistence failures abort the creation
// (persistence in degraded form is reported as a warning instead).
func (p *Pipeline) CreateTask(ctx context.Context, files []InputFile) (*task.Task, []Warning, error) {
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("no media files provided")
	}

	results := make([]processed, len(files))
	var wg sync.WaitGroup
	for i, f := range files {
		wg.Add(1)
		go func(idx int, file InputFile) {
			defer wg.Done()
			results[idx] = p.processFile(ctx, file)
		}(i, f)
	}
	wg.Wait()

	var warnings []Warning
	var items []analysis.Item
	assets := make([]task.MediaAsset, 0, len(files))
	videoOriginals := map[int]processed{}

	for i, res := range results {
		if res.err != nil {
			log.Printf("Skipping %s: %v", files[i].Name, res.err)
			warnings = append(warnings, Warning{Index: i, Name: files[i].Name, Message: res.err.Error()})
			continue
		}
		if res.videoBytes != nil {
			videoOriginals[len(assets)] = res
		}
		assets = append(assets, res.asset)
		items = append(items, res.items...)
	}

	if len(assets) == 0 {
		return nil, warnings, fmt.Errorf("no media could be processed")
	}

	// First image (in upload order) with usable coordinates wins; reverse
	// geocoding is best-effort on top of that.
	var exifAddress string
	for _, res := range results {
		if res.err == nil && res.loc != nil {
			p.locator.Resolve(ctx, res.loc)
			exifAddress = location.Format(res.loc)
			break
		}
	}

	fields, err := p.analyzer.Analyze(ctx, items)
	if err != nil {
		return nil, warnings, err
	}

	t := &task.Task{
		ID:           uuid.NewString(),
		Title:        fields.Title,
		Summary:      fields.Summary,
		Description:  fields.Description,
		Location:     pickLocation(fields.Location, exifAddress),
		Professional: fields.Professional,
		Media:        assets,
		CreatedAt:    time.Now().UTC(),
		Status:       task.StatusDraft,
	}

	// Durable originals are written after the id exists; failure falls back
	// to the already-extracted display frame.
	for idx, res := range videoOriginals {
		ref, storeErr := p.blobs.Store(t.ID+"-video", res.videoBytes, res.videoMime)
		if storeErr != nil {
			log.Printf("Video for task %s not stored, keeping frame only: %v", t.ID, storeErr)
			warnings = append(warnings, Warning{Index: idx, Name: "video", Message: "original video could not be stored; keeping a single frame"})
			continue
		}
		t.Media[idx].URL = ref
		t.Media[idx].IsPlayable = true
	}

	if err := p.tasks.Save(ctx, t); err != nil {
		if errors.Is(err, store.ErrMediaDropped) {
			warnings = append(warnings, Warning{Index: -1, Name: "", Message: err.Error()})
		} else {
			return nil, warnings, err
		}
	}

	return t, warnings, nil
}

func (p *Pipeline) processFile(ctx context.Context, f InputFile) processed {
	switch f.Kind {
	case media.KindImage:
		return p.processImage(f)
	case media.KindVideo:
		return p.processVideo(ctx, f)
	case media.KindAudio:
		return p.processAudio(ctx, f)
	default:
		return processed{err: fmt.Errorf("unsupported media type %q", f.Kind)}
	}
}

func (p *Pipeline) processImage(f InputFile) processed {
	url, err := p.compressor.CompressImage(f.Data)
	if err != nil {
		return processed{err: err}
	}
	return processed{
		asset: task.MediaAsset{URL: url, Kind: media.KindImage},
		items: []analysis.Item{{ImageURL: url}},
		loc:   p.locator.FromImage(f.Data),
	}
}

func (p *Pipeline) processVideo(ctx context.Context, f InputFile) processed {
	display, err := p.frames.SingleFrame(ctx, f.Name, f.Data)
	if err != nil {
		return processed{err: fmt.Errorf("extract video frame: %w", err)}
	}

	res := processed{
		asset:      task.MediaAsset{URL: display, Kind: media.KindVideo},
		videoBytes: f.Data,
		videoMime:  media.MimeType(media.KindVideo, media.DetectVideoFormat(f.Name)),
	}

	frames, err := p.frames.Frames(ctx, f.Name, f.Data, p.cfg.AnalysisFrames)
	if err != nil {
		log.Printf("Multi-frame extraction failed for %s, analyzing single frame: %v", f.Name, err)
		frames = []string{display}
	}
	for i, frame := range frames {
		res.items = append(res.items, analysis.Item{
			ImageURL: frame,
			Caption:  fmt.Sprintf("Frame %d of %d from video %s", i+1, len(frames), f.Name),
		})
	}

	if transcript, err := p.transcriber.Transcribe(ctx, f.Name, f.Data); err != nil {
		log.Printf("Transcription failed for %s: %v", f.Name, err)
	} else if transcript != "" {
		res.asset.Transcript = transcript
		res.items = append(res.items, analysis.Item{
			Text: fmt.Sprintf("Transcript of %s: %s", f.Name, transcript),
		})
	}

	return res
}

func (p *Pipeline) processAudio(ctx context.Context, f InputFile) processed {
	transcript, err := p.transcriber.Transcribe(ctx, f.Name, f.Data)
	if err != nil {
		return processed{err: fmt.Errorf("transcribe audio: %w", err)}
	}
	return processed{
		asset: task.MediaAsset{Kind: media.KindAudio, Transcript: transcript},
		items: []analysis.Item{{Text: fmt.Sprintf("Transcript of %s: %s", f.Name, transcript)}},
	}
}

// pickLocation applies the precedence: model-inferred location, then
// geocoded EXIF coordinates, then "Not specified".
func pickLocation(model, exif string) string {
	if usable(model) {
		return model
	}
	if usable(exif) {
		return exif
	}
	return "Not specified"
}

func usable(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unknown", "not specified", "location unknown", "n/a":
		return false
	}
	return true
}
