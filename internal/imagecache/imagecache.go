// Package imagecache keeps one normalized local copy of each catalog image,
// keyed by item type, item id and source tag.
package imagecache

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	// Registered decoders for image.Decode and image.DecodeConfig
	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/parsascontentcorner/shelfsync/internal/metrics"
)

const (
	maxImageBytes = 25 << 20
	fileExt       = ".jpg"
)

// Options configures a Cache
type Options struct {
	// Dir is the root directory of the cached files
	Dir string
	// URLPrefix is the web path Dir is served under
	URLPrefix    string
	MaxDimension int
	Quality      int
	FetchTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Request identifies an image and where to fetch it from
type Request struct {
	ItemType  string
	ItemID    string
	URL       string
	SourceTag string
	// Header is sent with the download, e.g. source credentials
	Header http.Header
}

// Cache stores images on the local filesystem
type Cache struct {
	dir          string
	urlPrefix    string
	maxDimension int
	quality      int
	timeout      time.Duration
	http         *http.Client
	logger       *zap.Logger
}

// New creates an image cache rooted at opts.Dir
func New(opts Options) *Cache {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1200
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 85
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = 15 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Cache{
		dir:          opts.Dir,
		urlPrefix:    strings.TrimRight(opts.URLPrefix, "/"),
		maxDimension: opts.MaxDimension,
		quality:      opts.Quality,
		timeout:      opts.FetchTimeout,
		http:         opts.HTTPClient,
		logger:       opts.Logger,
	}
}

// Dir returns the root directory
func (c *Cache) Dir() string {
	return c.dir
}

// Paths returns the file path and the web path of an identity
func (c *Cache) Paths(req Request) (filePath, webPath string) {
	itemType := sanitize(req.ItemType)
	itemID := sanitize(req.ItemID)
	name := sanitize(req.SourceTag) + fileExt

	filePath = filepath.Join(c.dir, itemType, itemID, name)
	webPath = c.urlPrefix + "/" + path.Join(itemType, itemID, name)
	return filePath, webPath
}

// Acquire returns the web path of the image, downloading it when no valid
// copy exists yet. Failures are logged and reported as ok=false.
func (c *Cache) Acquire(ctx context.Context, req Request) (webPath string, ok bool) {
	filePath, webPath := c.Paths(req)
	logger := c.logger.With(
		zap.String("item_type", req.ItemType),
		zap.String("item_id", req.ItemID),
		zap.String("source", req.SourceTag),
	)

	if Valid(filePath) {
		metrics.ImageAcquisitions.WithLabelValues(req.SourceTag, "cached").Inc()
		return webPath, true
	}

	if req.URL == "" {
		return "", false
	}

	if err := c.download(ctx, req, filePath); err != nil {
		logger.Warn("Image acquisition failed", zap.String("url", req.URL), zap.Error(err))
		metrics.ImageAcquisitions.WithLabelValues(req.SourceTag, "failed").Inc()
		return "", false
	}

	logger.Debug("Image cached", zap.String("path", filePath))
	metrics.ImageAcquisitions.WithLabelValues(req.SourceTag, "downloaded").Inc()
	return webPath, true
}

func (c *Cache) download(ctx context.Context, req Request, filePath string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range req.Header {
		httpReq.Header[key] = values
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", "shelfsync/1.0")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("image request returned status %d", resp.StatusCode)
	}
	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err == nil && mediaType == "text/html" {
		return fmt.Errorf("image request returned an HTML document")
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("image response was empty")
	}
	if detected := mimetype.Detect(data); !strings.HasPrefix(detected.String(), "image/") {
		return fmt.Errorf("response is %s, not an image", detected.String())
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode image: %w", err)
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, normalize(src, c.maxDimension), &jpeg.Options{Quality: c.quality}); err != nil {
		return fmt.Errorf("failed to encode image: %w", err)
	}

	return writeAtomic(filePath, out.Bytes())
}

// normalize scales src to fit within maxDim on both sides, never upscaling,
// and flattens transparency onto white.
func normalize(src image.Image, maxDim int) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if longest := max(w, h); longest > maxDim {
		scale := float64(maxDim) / float64(longest)
		w = max(1, int(float64(w)*scale+0.5))
		h = max(1, int(float64(h)*scale+0.5))
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	if w == bounds.Dx() && h == bounds.Dy() {
		draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
	}
	return dst
}

func writeAtomic(filePath string, data []byte) error {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	tmp := filepath.Join(dir, "."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to move image into place: %w", err)
	}
	return nil
}

// Valid reports whether filePath is a non-empty file that decodes completely
// as an image. A readable header alone is not enough, truncated files fail.
func Valid(filePath string) bool {
	info, err := os.Stat(filePath)
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}

	f, err := os.Open(filePath)
	if err != nil {
		return false
	}
	defer f.Close()

	_, _, err = image.Decode(f)
	return err == nil
}

// sanitize maps a path component onto [A-Za-z0-9_-] plus "~xx" hex escapes
// for every other byte, so distinct inputs never share a file.
func sanitize(component string) string {
	if component == "" {
		return "~"
	}

	const hex = "0123456789abcdef"
	var b strings.Builder
	for i := 0; i < len(component); i++ {
		c := component[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			b.WriteByte(c)
		default:
			b.WriteByte('~')
			b.WriteByte(hex[c>>4])
			b.WriteByte(hex[c&0x0f])
		}
	}
	return b.String()
}
