package wa

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"

	"github.com/fardannozami/parking-reporter/internal/domain"
)

type Downloader interface {
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

// ImageCamera is the camera of a chat: the "photo" is the image attached to
// the message being handled.
type ImageCamera struct {
	dl  Downloader
	img *waE2E.ImageMessage
}

func NewImageCamera(dl Downloader, img *waE2E.ImageMessage) *ImageCamera {
	return &ImageCamera{dl: dl, img: img}
}

func (c *ImageCamera) Capture(ctx context.Context) (domain.Photo, error) {
	if c.img == nil {
		return domain.Photo{}, fmt.Errorf("message has no image")
	}
	data, err := c.dl.Download(ctx, c.img)
	if err != nil {
		return domain.Photo{}, fmt.Errorf("download image: %w", err)
	}
	mime := c.img.GetMimetype()
	return domain.Photo{Data: data, ContentType: mime, Ext: extension(mime)}, nil
}

func extension(mime string) string {
	mime, _, _ = strings.Cut(mime, ";")
	switch strings.TrimSpace(mime) {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	case "image/heic":
		return "heic"
	default:
		return "jpg"
	}
}
