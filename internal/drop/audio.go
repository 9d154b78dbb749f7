package drop

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// DataURI encodes raw audio bytes as a self-describing data URI, the same
// shape browsers produce for recorded clips.
func DataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeAudio turns a stored audioData value back into bytes and a MIME type.
// Values that are not data URIs are returned verbatim as octet-stream.
func DecodeAudio(audioData string) ([]byte, string, error) {
	if !strings.HasPrefix(audioData, "data:") {
		return []byte(audioData), "application/octet-stream", nil
	}

	header, payload, ok := strings.Cut(audioData[len("data:"):], ",")
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed data uri", ErrValidation)
	}

	mimeType := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(header, ";") {
		if i == 0 {
			if part != "" {
				mimeType = part
			}
			continue
		}
		if part == "base64" {
			isBase64 = true
		}
	}

	if !isBase64 {
		return []byte(payload), mimeType, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: decode audio: %v", ErrValidation, err)
	}
	return data, mimeType, nil
}

// AudioSize returns the decoded payload size, or the raw length when the value
// cannot be decoded.
func AudioSize(audioData string) int {
	data, _, err := DecodeAudio(audioData)
	if err != nil {
		return len(audioData)
	}
	return len(data)
}
