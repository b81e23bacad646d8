package imaging

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// Image constraints enforced before the pipeline runs
const (
	MaxImages     = 8
	MaxImageBytes = 10 << 20 // 10 MiB decoded

	defaultFetchTimeout = 15 * time.Second
)

// Mime allow-list for input images.
var allowedMIMEs = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Resolver fetches and validates input images into a uniform in-memory
// representation with size and type guarantees.
type Resolver struct {
	httpClient *http.Client
	maxImages  int
	maxBytes   int64
	logger     *slog.Logger
}

// Config holds resolver limits. Zero values fall back to the defaults.
type Config struct {
	MaxImages    int
	MaxBytes     int64
	FetchTimeout time.Duration
}

// NewResolver creates an image resolver.
func NewResolver(cfg Config, logger *slog.Logger) *Resolver {
	if cfg.MaxImages <= 0 {
		cfg.MaxImages = MaxImages
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = MaxImageBytes
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Resolver{
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
		maxImages:  cfg.MaxImages,
		maxBytes:   cfg.MaxBytes,
		logger:     logger,
	}
}

// Resolve normalizes each reference into bytes plus a detected mime type and
// summarizes the batch as ImageStats.
func (r *Resolver) Resolve(ctx context.Context, refs []pipeline.ImageRef) ([]pipeline.ResolvedImage, domain.ImageStats, error) {
	var stats domain.ImageStats

	if len(refs) == 0 {
		return nil, stats, domain.ErrNoImages
	}
	if len(refs) > r.maxImages {
		return nil, stats, fmt.Errorf("%w: got %d, limit %d", domain.ErrTooManyImages, len(refs), r.maxImages)
	}

	images := make([]pipeline.ResolvedImage, 0, len(refs))
	for i, ref := range refs {
		img, err := r.resolveOne(ctx, ref)
		if err != nil {
			return nil, domain.ImageStats{}, fmt.Errorf("image %d: %w", i+1, err)
		}
		images = append(images, img)

		size := int64(len(img.Data))
		stats.Count++
		stats.AvgBytes += size
		if stats.MinBytes == 0 || size < stats.MinBytes {
			stats.MinBytes = size
		}
		if size > stats.MaxBytes {
			stats.MaxBytes = size
		}
	}
	stats.AvgBytes /= int64(stats.Count)

	r.logger.Debug("Images resolved",
		slog.Int("count", stats.Count),
		slog.Int64("avg_bytes", stats.AvgBytes),
	)

	return images, stats, nil
}

func (r *Resolver) resolveOne(ctx context.Context, ref pipeline.ImageRef) (pipeline.ResolvedImage, error) {
	var (
		data []byte
		hint string
		err  error
	)
	switch {
	case ref.URL != "" && ref.Base64 != "":
		return pipeline.ResolvedImage{}, fmt.Errorf("image reference must carry either url or base64, not both")
	case ref.URL != "":
		data, err = r.fetch(ctx, ref.URL)
	case ref.Base64 != "":
		data, hint, err = decodeBase64MaybeDataURL(ref.Base64)
	default:
		return pipeline.ResolvedImage{}, fmt.Errorf("image reference is empty")
	}
	if err != nil {
		return pipeline.ResolvedImage{}, err
	}

	if int64(len(data)) > r.maxBytes {
		return pipeline.ResolvedImage{}, fmt.Errorf("%w: %d bytes, limit %d", domain.ErrImageTooLarge, len(data), r.maxBytes)
	}

	mime := pickMIME(hint, data)
	if !allowedMIMEs[mime] {
		return pipeline.ResolvedImage{}, fmt.Errorf("%w: %s", domain.ErrUnsupportedImageType, mime)
	}

	return pipeline.ResolvedImage{Data: data, MIME: mime}, nil
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("malformed image url: %w", err)
	}
	if u.Scheme != "https" {
		return nil, fmt.Errorf("image url must use https, got %q", u.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build image request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}

	// Read one byte past the limit so oversized bodies are detected without
	// buffering them whole.
	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read image body: %w", err)
	}
	return data, nil
}

// decodeBase64MaybeDataURL decodes base64 content. A data: URI prefix yields a
// mime hint; both standard and URL-safe alphabets are accepted.
func decodeBase64MaybeDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	var hint string
	if strings.HasPrefix(s, "data:") {
		idx := strings.IndexByte(s, ',')
		if idx < 0 {
			return nil, "", fmt.Errorf("malformed data url")
		}
		meta := s[len("data:"):idx]
		if semi := strings.IndexByte(meta, ';'); semi >= 0 {
			hint = meta[:semi]
		} else {
			hint = meta
		}
		s = s[idx+1:]
	}

	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, hint, nil
	}
	b, err := base64.URLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image content: %w", err)
	}
	return b, hint, nil
}

// pickMIME prefers the data-URL hint, then detects from the bytes.
func pickMIME(hint string, data []byte) string {
	if h := strings.TrimSpace(hint); h != "" {
		return h
	}
	return http.DetectContentType(data)
}
