package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/npquoc/mallcore/internal/logging"
)

// bodyCap bounds how much of a JSON body ends up in the log line.
const bodyCap = 4 * 1024

var redactedFields = map[string]struct{}{
	"password":      {},
	"client_secret": {},
	"token":         {},
	"authorization": {},
}

type teeWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if room := bodyCap - w.buf.Len(); room > 0 {
		if len(b) > room {
			w.buf.Write(b[:room])
		} else {
			w.buf.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// scrub walks a decoded JSON value and blanks out credential-looking keys.
func scrub(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, val := range v {
			if _, hit := redactedFields[strings.ToLower(k)]; hit {
				v[k] = "[redacted]"
				continue
			}
			v[k] = scrub(val)
		}
		return v
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
		return v
	default:
		return v
	}
}

func sanitizeJSON(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var m any
	if err := json.Unmarshal(raw, &m); err != nil {
		// not valid JSON, keep opaque rather than leak fragments
		return "[unparsed]"
	}
	out, err := json.Marshal(scrub(m))
	if err != nil {
		return "[unparsed]"
	}
	return string(out)
}

func captureBody(c *gin.Context) string {
	if c.Request.Body == nil || !strings.Contains(c.GetHeader("Content-Type"), "application/json") {
		return ""
	}
	var buf bytes.Buffer
	_, _ = io.CopyN(&buf, c.Request.Body, bodyCap)
	rest, _ := io.ReadAll(c.Request.Body)
	_ = c.Request.Body.Close()

	full := append(buf.Bytes(), rest...)
	c.Request.Body = io.NopCloser(bytes.NewReader(full))
	return sanitizeJSON(buf.Bytes())
}

// Logging tags every request with an X-Request-Id, stashes a scoped
// slog.Logger on the gin context for downstream handlers, and emits one
// structured line per request with capped, credential-scrubbed bodies.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		reqID := c.GetHeader("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		c.Header("X-Request-Id", reqID)

		l := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"route", c.FullPath(),
			"remote", c.ClientIP(),
		)
		logging.With(c, l)

		reqBody := captureBody(c)

		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
			"resp_bytes", c.Writer.Size(),
		}
		if reqBody != "" {
			attrs = append(attrs, "req_body", reqBody)
		}
		if strings.Contains(c.Writer.Header().Get("Content-Type"), "application/json") {
			if respBody := sanitizeJSON(tee.buf.Bytes()); respBody != "" {
				attrs = append(attrs, "resp_body", respBody)
			}
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", attrs...)
		default:
			l.Info("http_request", attrs...)
		}
	}
}
