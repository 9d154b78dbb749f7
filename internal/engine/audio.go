package engine

import (
	"context"
	"mime"
	"strings"

	"github.com/lazypower/sounddrop/internal/drop"
)

// Audio is a drop's decoded payload, ready to serve as a download.
type Audio struct {
	Data     []byte
	MIMEType string
	Filename string
}

// AudioFor decodes the audio of an active drop.
func (e *Engine) AudioFor(ctx context.Context, id int64) (*Audio, error) {
	d, err := e.GetDrop(ctx, id)
	if err != nil {
		return nil, err
	}
	data, mimeType, err := drop.DecodeAudio(d.AudioData)
	if err != nil {
		return nil, err
	}
	return &Audio{
		Data:     data,
		MIMEType: mimeType,
		Filename: downloadName(d.Filename, mimeType),
	}, nil
}

// downloadName adds an extension matching mimeType when filename has none.
func downloadName(filename, mimeType string) string {
	if strings.Contains(filename, ".") {
		return filename
	}
	base, _, _ := strings.Cut(mimeType, ";")
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return filename + exts[0]
	}
	if sub, ok := strings.CutPrefix(base, "audio/"); ok && sub != "" {
		return filename + "." + sub
	}
	return filename
}
