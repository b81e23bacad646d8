package imaging

import (
	"context"
	"encoding/base64"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardscope/gradepipe/internal/pipeline"
	"github.com/cardscope/gradepipe/internal/pipeline/domain"
)

// Minimal byte prefixes that http.DetectContentType recognizes.
var (
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 32)...)
	pngBytes  = append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 32)...)
	gifBytes  = append([]byte("GIF89a"), make([]byte, 32)...)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestResolver(cfg Config) *Resolver {
	return NewResolver(cfg, testLogger())
}

func base64Ref(data []byte) pipeline.ImageRef {
	return pipeline.ImageRef{Base64: base64.StdEncoding.EncodeToString(data)}
}

func TestResolver_Resolve(t *testing.T) {
	resolver := newTestResolver(Config{})
	ctx := context.Background()

	t.Run("base64 images with stats", func(t *testing.T) {
		images, stats, err := resolver.Resolve(ctx, []pipeline.ImageRef{
			base64Ref(jpegBytes),
			base64Ref(pngBytes),
		})

		require.NoError(t, err)
		require.Len(t, images, 2)
		assert.Equal(t, "image/jpeg", images[0].MIME)
		assert.Equal(t, "image/png", images[1].MIME)
		assert.Equal(t, jpegBytes, images[0].Data)

		assert.Equal(t, 2, stats.Count)
		assert.Equal(t, int64(len(jpegBytes)), stats.MinBytes)
		assert.Equal(t, int64(len(pngBytes)), stats.MaxBytes)
		assert.Positive(t, stats.AvgBytes)
	})

	t.Run("no images", func(t *testing.T) {
		_, _, err := resolver.Resolve(ctx, nil)
		assert.ErrorIs(t, err, domain.ErrNoImages)
	})

	t.Run("too many images", func(t *testing.T) {
		small := newTestResolver(Config{MaxImages: 2})

		refs := []pipeline.ImageRef{base64Ref(jpegBytes), base64Ref(jpegBytes), base64Ref(jpegBytes)}
		_, _, err := small.Resolve(ctx, refs)
		assert.ErrorIs(t, err, domain.ErrTooManyImages)
	})

	t.Run("failing reference reports its position", func(t *testing.T) {
		_, _, err := resolver.Resolve(ctx, []pipeline.ImageRef{
			base64Ref(jpegBytes),
			{Base64: "not valid base64!!!"},
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "image 2")
	})
}

func TestResolver_ResolveOneValidation(t *testing.T) {
	resolver := newTestResolver(Config{})
	ctx := context.Background()

	tests := []struct {
		name      string
		ref       pipeline.ImageRef
		errIs     error
		errString string
	}{
		{
			name:      "both url and base64",
			ref:       pipeline.ImageRef{URL: "https://cards.test/a.jpg", Base64: "aGk="},
			errString: "either url or base64",
		},
		{
			name:      "empty reference",
			ref:       pipeline.ImageRef{},
			errString: "image reference is empty",
		},
		{
			name:      "http url rejected",
			ref:       pipeline.ImageRef{URL: "http://cards.test/a.jpg"},
			errString: "must use https",
		},
		{
			name:      "invalid base64",
			ref:       pipeline.ImageRef{Base64: "@@@@"},
			errString: "invalid base64",
		},
		{
			name:  "unsupported mime type",
			ref:   base64Ref([]byte("%PDF-1.4 not an image, padding padding padding")),
			errIs: domain.ErrUnsupportedImageType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := resolver.Resolve(ctx, []pipeline.ImageRef{tt.ref})

			require.Error(t, err)
			if tt.errIs != nil {
				assert.ErrorIs(t, err, tt.errIs)
			}
			if tt.errString != "" {
				assert.Contains(t, err.Error(), tt.errString)
			}
		})
	}
}

func TestResolver_SizeLimit(t *testing.T) {
	resolver := newTestResolver(Config{MaxBytes: 64})
	ctx := context.Background()

	big := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 128)...)
	_, _, err := resolver.Resolve(ctx, []pipeline.ImageRef{base64Ref(big)})
	assert.ErrorIs(t, err, domain.ErrImageTooLarge)

	ok := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 16)...)
	_, _, err = resolver.Resolve(ctx, []pipeline.ImageRef{base64Ref(ok)})
	assert.NoError(t, err)
}

func TestResolver_FetchURL(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/card.gif":
			w.Write(gifBytes)
		case "/missing.jpg":
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	resolver := newTestResolver(Config{})
	resolver.httpClient = srv.Client()
	ctx := context.Background()

	t.Run("successful fetch", func(t *testing.T) {
		images, stats, err := resolver.Resolve(ctx, []pipeline.ImageRef{{URL: srv.URL + "/card.gif"}})

		require.NoError(t, err)
		require.Len(t, images, 1)
		assert.Equal(t, "image/gif", images[0].MIME)
		assert.Equal(t, gifBytes, images[0].Data)
		assert.Equal(t, 1, stats.Count)
	})

	t.Run("non-200 status", func(t *testing.T) {
		_, _, err := resolver.Resolve(ctx, []pipeline.ImageRef{{URL: srv.URL + "/missing.jpg"}})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 404")
	})
}

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantData []byte
		wantHint string
		wantErr  bool
	}{
		{
			name:     "plain base64",
			input:    base64.StdEncoding.EncodeToString([]byte("hello")),
			wantData: []byte("hello"),
		},
		{
			name:     "data url with mime",
			input:    "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png-ish")),
			wantData: []byte("png-ish"),
			wantHint: "image/png",
		},
		{
			name:     "data url without parameters",
			input:    "data:image/jpeg," + base64.StdEncoding.EncodeToString([]byte("jpg-ish")),
			wantData: []byte("jpg-ish"),
			wantHint: "image/jpeg",
		},
		{
			name:     "url-safe alphabet",
			input:    base64.URLEncoding.EncodeToString([]byte{0xFF, 0xFE, 0xFD, 0xFC}),
			wantData: []byte{0xFF, 0xFE, 0xFD, 0xFC},
		},
		{
			name:     "surrounding whitespace",
			input:    "  " + base64.StdEncoding.EncodeToString([]byte("hi")) + "\n",
			wantData: []byte("hi"),
		},
		{
			name:    "data url without comma",
			input:   "data:image/png;base64",
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   "!!not base64!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, hint, err := decodeBase64MaybeDataURL(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantData, data)
			assert.Equal(t, tt.wantHint, hint)
		})
	}
}

func TestPickMIME(t *testing.T) {
	assert.Equal(t, "image/webp", pickMIME("image/webp", jpegBytes))
	assert.Equal(t, "image/jpeg", pickMIME("", jpegBytes))
	assert.True(t, strings.HasPrefix(pickMIME("", []byte("plain text, clearly")), "text/plain"))
}
