package commands

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/tinyland-inc/driftbottle/pkg/bottle"
	"github.com/tinyland-inc/driftbottle/pkg/logger"
)

// imageCollector turns inbound media references into bottle images.
type imageCollector struct {
	useBase64 bool
	http      *resty.Client
}

func newImageCollector(useBase64 bool, timeout time.Duration) *imageCollector {
	return &imageCollector{
		useBase64: useBase64,
		http:      resty.New().SetTimeout(timeout),
	}
}

// collect keeps going past media it cannot read; those entries are logged
// and skipped.
func (c *imageCollector) collect(ctx context.Context, media []string, kind bottle.ImageKind) []bottle.Image {
	if kind == "" {
		kind = bottle.ImageURL
	}
	var out []bottle.Image
	for _, ref := range media {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		img, err := c.one(ctx, ref, kind)
		if err != nil {
			logger.WarnCF("commands", "Skipping unreadable image", map[string]any{
				"ref":   truncate(ref, 80),
				"error": err.Error(),
			})
			continue
		}
		out = append(out, img)
	}
	return out
}

func (c *imageCollector) one(ctx context.Context, ref string, kind bottle.ImageKind) (bottle.Image, error) {
	isRemote := strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")

	switch {
	case strings.HasPrefix(ref, "data:"):
		return bottle.Image{Type: bottle.ImageBase64, Data: ref}, nil
	case !c.useBase64 && isRemote:
		return bottle.Image{Type: kind, Data: ref}, nil
	case isRemote:
		resp, err := c.http.R().SetContext(ctx).Get(ref)
		if err != nil {
			return bottle.Image{}, fmt.Errorf("fetching image: %w", err)
		}
		if resp.IsError() {
			return bottle.Image{}, fmt.Errorf("fetching image: HTTP %d", resp.StatusCode())
		}
		return bottle.Image{Type: bottle.ImageBase64, Data: base64.StdEncoding.EncodeToString(resp.Body())}, nil
	default:
		data, err := os.ReadFile(strings.TrimPrefix(ref, "file://"))
		if err != nil {
			return bottle.Image{}, fmt.Errorf("reading image file: %w", err)
		}
		return bottle.Image{Type: bottle.ImageBase64, Data: base64.StdEncoding.EncodeToString(data)}, nil
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
