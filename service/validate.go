package service

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"
	"unicode"
	"unicode/utf8"

	"support-chat/model"
	"support-chat/protocol"

	_ "golang.org/x/image/webp"
)

const (
	MaxContentRunes   = 1000
	MaxImageDimension = 4096
	MaxImageBytes     = 2 << 20
	PreviewRunes      = 100
)

// AllowedEmoji is the fixed reaction set.
var AllowedEmoji = []string{"👍", "❤️", "😂", "😮", "😢", "🙏"}

func validEmoji(emoji string) bool {
	for _, e := range AllowedEmoji {
		if e == emoji {
			return true
		}
	}
	return false
}

// validateContent trims and bounds text. Control characters other than
// newline and tab are rejected.
func validateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", fmt.Errorf("%w: message is empty", ErrInvalidContent)
	}
	if !utf8.ValidString(content) {
		return "", fmt.Errorf("%w: message is not valid UTF-8", ErrInvalidContent)
	}
	if n := utf8.RuneCountInString(content); n > MaxContentRunes {
		return "", fmt.Errorf("%w: message is longer than %d characters", ErrInvalidContent, MaxContentRunes)
	}
	for _, r := range content {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: message contains disallowed characters", ErrInvalidContent)
		}
	}
	return content, nil
}

// validateImage decodes only the image header: the format must be one we
// render and the declared dimensions must match the encoded ones.
func validateImage(p *protocol.ImagePayload) (*model.MessageImage, error) {
	data := strings.TrimSpace(p.Data)
	if strings.HasPrefix(data, "data:") {
		comma := strings.IndexByte(data, ',')
		if comma < 0 || !strings.HasSuffix(data[:comma], ";base64") {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalidImage)
		}
		data = data[comma+1:]
	}
	if data == "" {
		return nil, fmt.Errorf("%w: image is empty", ErrInvalidImage)
	}
	if len(data) > MaxImageBytes {
		return nil, fmt.Errorf("%w: image is larger than %d bytes", ErrInvalidImage, MaxImageBytes)
	}
	if p.Width < 1 || p.Height < 1 || p.Width > MaxImageDimension || p.Height > MaxImageDimension {
		return nil, fmt.Errorf("%w: dimensions must be between 1 and %d pixels", ErrInvalidImage, MaxImageDimension)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base64 encoding", ErrInvalidImage)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: unsupported image format", ErrInvalidImage)
	}
	if cfg.Width != p.Width || cfg.Height != p.Height {
		return nil, fmt.Errorf("%w: declared %dx%d but image is %dx%d", ErrInvalidImage, p.Width, p.Height, cfg.Width, cfg.Height)
	}

	return &model.MessageImage{
		Data:   data,
		Mime:   "image/" + format,
		Width:  cfg.Width,
		Height: cfg.Height,
	}, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
