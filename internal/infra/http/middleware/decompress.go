package middleware

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Decompression limits. The threat detector scans request bodies, so
// compressed payloads are inflated before the pipeline runs; the ratio
// bound rejects zipbombs.
const (
	maxCompressedSize   = 1 << 20 // 1MB compressed input
	maxDecompressedSize = 4 << 20 // 4MB inflated
)

// Decompress inflates gzip and zstd request bodies based on the
// Content-Encoding header. Place it before BodyLimit so the limit applies
// to the inflated size.
func Decompress() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead ||
				r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			encoding := strings.ToLower(r.Header.Get("Content-Encoding"))
			if encoding == "" || encoding == "identity" {
				next.ServeHTTP(w, r)
				return
			}

			body, err := inflate(r.Body, encoding)
			if err != nil {
				http.Error(w, fmt.Sprintf("cannot decode request body: %v", err),
					http.StatusUnsupportedMediaType)
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			r.ContentLength = int64(len(body))
			r.Header.Del("Content-Encoding")
			r.Header.Set("Content-Length", fmt.Sprint(len(body)))

			next.ServeHTTP(w, r)
		})
	}
}

func inflate(body io.ReadCloser, encoding string) ([]byte, error) {
	defer body.Close()

	compressed, err := io.ReadAll(io.LimitReader(body, maxCompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(compressed) > maxCompressedSize {
		return nil, fmt.Errorf("compressed body exceeds %d bytes", maxCompressedSize)
	}

	var reader io.Reader
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer gz.Close()
		reader = gz
	case "zstd":
		zr, err := zstd.NewReader(bytes.NewReader(compressed))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer zr.Close()
		reader = zr.IOReadCloser()
	default:
		return nil, fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	inflated, err := io.ReadAll(io.LimitReader(reader, maxDecompressedSize+1))
	if err != nil {
		return nil, fmt.Errorf("inflate: %w", err)
	}
	if len(inflated) > maxDecompressedSize {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes", maxDecompressedSize)
	}
	return inflated, nil
}
