package media

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// EncodeDataURL wraps raw bytes as a data URL suitable for inline storage.
func EncodeDataURL(mimeType string, data []byte) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// DecodeDataURL splits a data URL back into its MIME type and raw bytes.
func DecodeDataURL(s string) (string, []byte, error) {
	if !strings.HasPrefix(s, "data:") {
		return "", nil, fmt.Errorf("not a data URL")
	}
	comma := strings.Index(s, ",")
	if comma < 0 {
		return "", nil, fmt.Errorf("malformed data URL")
	}

	meta := s[len("data:"):comma]
	mimeType := meta
	if semi := strings.Index(meta, ";"); semi >= 0 {
		mimeType = meta[:semi]
	}

	data, err := base64.StdEncoding.DecodeString(s[comma+1:])
	if err != nil {
		return "", nil, fmt.Errorf("decode data URL payload: %w", err)
	}
	return mimeType, data, nil
}

// DataURLSizeKB estimates the decoded byte size of a data URL in KB.
// Base64 text is ~33% larger than the bytes it encodes.
func DataURLSizeKB(s string) int {
	if comma := strings.Index(s, ","); comma >= 0 {
		s = s[comma+1:]
	}
	return int(float64(len(s)) * 0.75 / 1024)
}
