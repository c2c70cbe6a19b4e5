package middleware

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// CompressOptions tunes Compress.
type CompressOptions struct {
	Quality   int
	MinLength int
}

// DefaultCompressOptions compresses bodies of at least 2 KiB at a mid quality.
var DefaultCompressOptions = CompressOptions{Quality: 5, MinLength: 2048}

// bufferedWriter holds the response body until the handler returns.
type bufferedWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bufferedWriter) Write(data []byte) (int, error) { return w.body.Write(data) }

func (w *bufferedWriter) WriteString(s string) (int, error) { return w.body.WriteString(s) }

// Compress brotli-encodes large JSON bodies such as question lists and exam
// views. WebSocket upgrades pass through untouched.
func Compress(opts CompressOptions) gin.HandlerFunc {
	if opts.Quality < brotli.BestSpeed || opts.Quality > brotli.BestCompression {
		opts.Quality = DefaultCompressOptions.Quality
	}
	if opts.MinLength <= 0 {
		opts.MinLength = DefaultCompressOptions.MinLength
	}

	return func(c *gin.Context) {
		if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") || !acceptsBrotli(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		orig := c.Writer
		bw := &bufferedWriter{ResponseWriter: orig}
		c.Writer = bw
		c.Next()
		c.Writer = orig

		if bw.body.Len() < opts.MinLength {
			_, _ = orig.Write(bw.body.Bytes())
			return
		}

		var out bytes.Buffer
		enc := brotli.NewWriterLevel(&out, opts.Quality)
		if _, err := enc.Write(bw.body.Bytes()); err != nil {
			_ = c.Error(err)
			_, _ = orig.Write(bw.body.Bytes())
			return
		}
		if err := enc.Close(); err != nil {
			_ = c.Error(err)
			_, _ = orig.Write(bw.body.Bytes())
			return
		}

		orig.Header().Set("Content-Encoding", "br")
		orig.Header().Set("Content-Length", strconv.Itoa(out.Len()))
		_, _ = orig.Write(out.Bytes())
	}
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(name, "br") {
			return true
		}
	}
	return false
}
