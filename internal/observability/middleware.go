package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Context keys a decode handler sets so the request line and the HTTP
// metrics carry the decode that served it. DecoderKey must only hold
// registered decoder ids since it becomes a metric label.
const (
	DecoderKey      = "sniffctl.decoder"
	DecodeStatusKey = "sniffctl.decode_status"
)

func routePath(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return c.Request.URL.Path
}

func decoderOf(c *gin.Context) string {
	return c.GetString(DecoderKey)
}

// RequestLogger logs one line per request; 4xx at warn and 5xx at error.
// Decode requests also log the decoder id and its terminal status.
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := logger.Info()
		if status >= 500 {
			event = logger.Error()
		} else if status >= 400 {
			event = logger.Warn()
		}
		if len(c.Errors) > 0 {
			event = event.Str("errors", c.Errors.String())
		}
		if decoder := decoderOf(c); decoder != "" {
			event = event.Str("decoder", decoder)
		}
		if decodeStatus := c.GetString(DecodeStatusKey); decodeStatus != "" {
			event = event.Str("decode_status", decodeStatus)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", routePath(c)).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Int("bytes", c.Writer.Size()).
			Msg("http_request")
	}
}

// RequestMetricsMiddleware records every request; the decoder label is empty
// outside decode routes.
func RequestMetricsMiddleware(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordHTTPRequest(service, c.Request.Method, routePath(c), decoderOf(c), c.Writer.Status(), time.Since(start))
	}
}
