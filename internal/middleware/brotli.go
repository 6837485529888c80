package middleware

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
)

// brotliMinLength is the smallest body worth compressing.
const brotliMinLength = 1024

// brotliWriter holds the body until the handler returns, then decides
// whether to compress it. A Flush switches to pass-through for streaming.
type brotliWriter struct {
	gin.ResponseWriter
	buf       bytes.Buffer
	streaming bool
}

func (w *brotliWriter) Write(p []byte) (int, error) {
	if w.streaming {
		return w.ResponseWriter.Write(p)
	}
	return w.buf.Write(p)
}

func (w *brotliWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *brotliWriter) Flush() {
	if !w.streaming {
		w.streaming = true
		if w.buf.Len() > 0 {
			_, _ = w.ResponseWriter.Write(w.buf.Bytes())
			w.buf.Reset()
		}
	}
	w.ResponseWriter.Flush()
}

func (w *brotliWriter) finish(quality int) error {
	if w.streaming || w.buf.Len() == 0 {
		return nil
	}
	if w.buf.Len() < brotliMinLength {
		_, err := w.ResponseWriter.Write(w.buf.Bytes())
		return err
	}

	h := w.ResponseWriter.Header()
	h.Set("Content-Encoding", "br")
	h.Del("Content-Length")
	bw := brotli.NewWriterLevel(w.ResponseWriter, quality)
	if _, err := bw.Write(w.buf.Bytes()); err != nil {
		return err
	}
	return bw.Close()
}

// Brotli compresses JSON responses for clients that accept br.
func Brotli(quality int) gin.HandlerFunc {
	if quality < brotli.BestSpeed || quality > brotli.BestCompression {
		quality = brotli.DefaultCompression
	}

	return func(c *gin.Context) {
		if !acceptsBrotli(c.Request) || isStream(c.Request) {
			c.Next()
			return
		}

		c.Header("Vary", "Accept-Encoding")
		w := &brotliWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if err := w.finish(quality); err != nil {
			_ = c.Error(err)
		}
	}
}

// isStream reports SSE and WebSocket requests, which must not be buffered.
func isStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream") ||
		strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func acceptsBrotli(r *http.Request) bool {
	for _, enc := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ = strings.Cut(strings.TrimSpace(enc), ";")
		if strings.EqualFold(enc, "br") {
			return true
		}
	}
	return false
}
