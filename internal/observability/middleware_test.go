package observability

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/sniffctl/internal/testutil/testlog"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRequestLoggerLevels(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	r := gin.New()
	r.Use(RequestLogger(logger), RequestMetricsMiddleware("test"))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })

	for _, path := range []string{"/ok", "/bad", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 log lines, got %d: %s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"level":"info"`) || !strings.Contains(lines[0], `"path":"/ok"`) {
		t.Fatalf("unexpected ok line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"warn"`) || !strings.Contains(lines[1], `"status":400`) {
		t.Fatalf("unexpected bad line %s", lines[1])
	}
	if !strings.Contains(lines[2], `"path":"/missing"`) || !strings.Contains(lines[2], `"status":404`) {
		t.Fatalf("unmatched routes must log the raw path: %s", lines[2])
	}
}

func TestMiddlewareCarriesDecoder(t *testing.T) {
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestLogger(zerolog.New(&buf)), RequestMetricsMiddleware("decode-test"))
	r.POST("/decode", func(c *gin.Context) {
		c.Set(DecoderKey, "uart")
		c.Set(DecodeStatusKey, "complete")
		c.Status(http.StatusOK)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/decode", nil))

	line := buf.String()
	if !strings.Contains(line, `"decoder":"uart"`) || !strings.Contains(line, `"decode_status":"complete"`) {
		t.Fatalf("decode fields missing from request line: %s", line)
	}
	got := testutil.ToFloat64(httpRequests.WithLabelValues("decode-test", http.MethodPost, "/decode", "uart", "200"))
	if got != 1 {
		t.Fatalf("expected one request labelled with decoder, got %v", got)
	}
}
