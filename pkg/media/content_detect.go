package media

import (
	"strings"
)

type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

func DetectImageFormat(filename string) string {
	name := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".jpeg"):
		return "jpeg"
	case strings.HasSuffix(name, ".png"):
		return "png"
	case strings.HasSuffix(name, ".gif"):
		return "gif"
	case strings.HasSuffix(name, ".webp"):
		return "webp"
	case strings.HasSuffix(name, ".bmp"):
		return "bmp"
	default:
		return ""
	}
}

func DetectVideoFormat(filename string) string {
	name := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(name, ".mp4"):
		return "mp4"
	case strings.HasSuffix(name, ".mov"):
		return "mov"
	case strings.HasSuffix(name, ".webm"):
		return "webm"
	case strings.HasSuffix(name, ".mkv"):
		return "mkv"
	case strings.HasSuffix(name, ".avi"):
		return "avi"
	default:
		return ""
	}
}

func DetectAudioFormat(filename string) string {
	name := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(name, ".mp3"):
		return "mp3"
	case strings.HasSuffix(name, ".wav"):
		return "wav"
	case strings.HasSuffix(name, ".m4a"):
		return "m4a"
	case strings.HasSuffix(name, ".ogg"):
		return "ogg"
	case strings.HasSuffix(name, ".flac"):
		return "flac"
	case strings.HasSuffix(name, ".aac"):
		return "aac"
	default:
		return ""
	}
}

// DetectKind classifies an uploaded file by extension. Returns "" for
// anything that is not an image, video or audio file.
func DetectKind(filename string) Kind {
	switch {
	case DetectImageFormat(filename) != "":
		return KindImage
	case DetectVideoFormat(filename) != "":
		return KindVideo
	case DetectAudioFormat(filename) != "":
		return KindAudio
	default:
		return ""
	}
}

// MimeType maps a detected format name to its MIME type. Note .webm is
// classified as video here; standalone audio webm uploads are rare enough
// that the video pipeline handles them.
func MimeType(kind Kind, format string) string {
	if format == "" {
		return "application/octet-stream"
	}
	switch kind {
	case KindImage:
		if format == "jpg" {
			format = "jpeg"
		}
		return "image/" + format
	case KindVideo:
		if format == "mov" {
			return "video/quicktime"
		}
		return "video/" + format
	case KindAudio:
		if format == "mp3" {
			return "audio/mpeg"
		}
		return "audio/" + format
	default:
		return "application/octet-stream"
	}
}
