// Package imaging normalizes uploaded catalog images: it reads intrinsic
// dimensions, rescales to the fixed display height, re-encodes to PNG and
// writes the result to the blob store under a collision-resistant key.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"net/http"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	"linkdesk.org/internal/blob"
	"linkdesk.org/internal/catalog"
	"linkdesk.org/internal/ids"
	"linkdesk.org/internal/obs"
)

// ErrUnreadable indicates the bytes could not be decoded as an image or
// carry degenerate dimensions.
var ErrUnreadable = errors.New("imaging: unreadable image")

// Result describes a stored image.
type Result struct {
	Key           string
	Width         int
	Height        int
	DisplayWidth  int
	DisplayHeight int
}

// Pipeline ingests raw image bytes into a blob store.
type Pipeline struct {
	blobs blob.Store
}

// New returns a pipeline writing to blobs.
func New(blobs blob.Store) *Pipeline {
	return &Pipeline{blobs: blobs}
}

// Ingest decodes raw, rescales to the display height, encodes PNG and
// stores it. The blob write happens before any catalog record is written,
// so a failed record write leaves at worst an orphan blob, never a record
// pointing at nothing.
//
// Degraded mode: when the rescaled image cannot be re-encoded, the original
// bytes are stored unmodified under the same key with their sniffed content
// type; the decoded dimensions are still reported. This fallback is logged,
// never silent.
func (p *Pipeline) Ingest(ctx context.Context, raw []byte, baseName string) (Result, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return Result{}, fmt.Errorf("%w: %dx%d", ErrUnreadable, width, height)
	}

	displayWidth := int(math.Round(float64(width) / float64(height) * catalog.DisplayHeight))
	key := blobKey(baseName)
	res := Result{
		Key:           key,
		Width:         width,
		Height:        height,
		DisplayWidth:  displayWidth,
		DisplayHeight: catalog.DisplayHeight,
	}

	data, contentType, err := encodeScaled(img, displayWidth)
	if err != nil {
		obs.Warn("image re-encode failed, storing original bytes", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
		data = raw
		contentType = http.DetectContentType(raw)
	}
	if err := p.blobs.Put(ctx, key, data, contentType); err != nil {
		return Result{}, err
	}
	return res, nil
}

// Remove deletes a blob best-effort; failures are logged, not returned.
// Called after the owning record is already gone.
func (p *Pipeline) Remove(ctx context.Context, key string) {
	if key == "" {
		return
	}
	if err := p.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		obs.Warn("stale image blob not deleted", map[string]any{
			"key":   key,
			"error": err.Error(),
		})
	}
}

func encodeScaled(img image.Image, displayWidth int) ([]byte, string, error) {
	if displayWidth <= 0 {
		return nil, "", fmt.Errorf("degenerate display width %d", displayWidth)
	}
	dst := image.NewRGBA(image.Rect(0, 0, displayWidth, catalog.DisplayHeight))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)
	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/png", nil
}

// blobKey derives a key from a fresh ULID (timestamp plus entropy) and a
// sanitized base name, so re-ingesting the same bytes always yields a new
// key.
func blobKey(baseName string) string {
	return strings.ToLower(ids.New()) + "-" + sanitizeBaseName(baseName) + ".png"
}

func sanitizeBaseName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "image"
	}
	return b.String()
}
