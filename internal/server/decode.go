package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"

	"github.com/danmuck/sniffctl/internal/annotation"
	"github.com/danmuck/sniffctl/internal/capture"
	"github.com/danmuck/sniffctl/internal/capture/source"
	"github.com/danmuck/sniffctl/internal/capture/wire"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoCapture       = errors.New("server: request carries no capture")
	ErrSourceForbidden = errors.New("server: capture location not allowed")
)

// DecodeRequest is the POST /decode body. Exactly one of Capture and Path
// supplies the samples.
type DecodeRequest struct {
	Decoder string          `json:"decoder" binding:"required"`
	Roles   capture.Roles   `json:"roles"`
	Window  *capture.Window `json:"window,omitempty"`
	Options decode.Options  `json:"options,omitempty"`
	Capture *InlineCapture  `json:"capture,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// InlineCapture carries samples in the request, either as raw arrays or as
// an encoded capture container (base64 in JSON).
type InlineCapture struct {
	Channels   int      `json:"channels,omitempty"`
	Rate       int64    `json:"rate,omitempty"`
	Values     []uint64 `json:"values,omitempty"`
	Timestamps []int64  `json:"timestamps,omitempty"`
	Encoded    []byte   `json:"encoded,omitempty"`
}

type DecodeResponse struct {
	Decoder     string                  `json:"decoder"`
	Status      decode.Status           `json:"status"`
	Progress    int                     `json:"progress"`
	Window      capture.Window          `json:"window"`
	Records     []decode.Record         `json:"records"`
	Annotations []annotation.Annotation `json:"annotations"`
	Error       string                  `json:"error,omitempty"`
}

// bodyHeadroom is the request allowance beyond the JSON form of a capture.
const bodyHeadroom = 1 << 20

// maxBodyBytes bounds a POST /decode body. Inline samples cost under three
// JSON bytes per payload byte and base64 adds a third, so three times the
// capture limit plus headroom admits every capture the limit allows.
func (s *Server) maxBodyBytes() int64 {
	limit := s.cfg.Limits().MaxPayloadBytes
	if limit > (math.MaxInt64-bodyHeadroom)/3 {
		return math.MaxInt64
	}
	return int64(limit)*3 + bodyHeadroom
}

func (s *Server) handleDecode(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBodyBytes())

	var req DecodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		status := http.StatusBadRequest
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	task, err := s.Registry.New(req.Decoder, req.Options)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.Set(observability.DecoderKey, task.Name())

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.Timeout())
	defer cancel()

	stream, err := s.loadStream(ctx, req)
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	window := capture.FullWindow(stream)
	if req.Window != nil {
		window = *req.Window
		if window.End == 0 {
			window.End = stream.Len()
		}
	}

	sink := annotation.NewMemorySink()
	runner := &decode.Runner{Stream: stream, Observe: observability.RecordDecode}
	outcome := runner.RunOne(ctx, decode.Job{
		Decoder: req.Decoder,
		Task:    task,
		Roles:   req.Roles,
		Window:  window,
		Sink:    sink,
	})

	resp := DecodeResponse{
		Decoder:     req.Decoder,
		Status:      outcome.Status,
		Records:     []decode.Record{},
		Annotations: sink.All(),
	}
	if outcome.Result != nil {
		resp.Progress = outcome.Result.Progress()
		resp.Window = outcome.Result.Window()
		resp.Records = outcome.Result.Records()
	}
	if outcome.Err != nil {
		resp.Error = outcome.Err.Error()
	}

	c.Set(observability.DecodeStatusKey, string(outcome.Status))
	status := http.StatusOK
	switch {
	case outcome.Status == decode.StatusFailed:
		status = statusFor(outcome.Err)
	case errors.Is(outcome.Err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, resp)
}

func (s *Server) loadStream(ctx context.Context, req DecodeRequest) (*capture.Stream, error) {
	limits := s.cfg.Limits()
	switch {
	case req.Capture != nil && req.Path != "":
		return nil, fmt.Errorf("%w: capture and path are mutually exclusive", decode.ErrConfiguration)
	case req.Capture != nil && len(req.Capture.Encoded) > 0:
		return wire.Decode(bytes.NewReader(req.Capture.Encoded), limits)
	case req.Capture != nil:
		if n := uint64(len(req.Capture.Values)); n > limits.MaxPayloadBytes/16 {
			return nil, fmt.Errorf("%w: %d inline samples exceed %d bytes", wire.ErrPayloadTooLarge, n, limits.MaxPayloadBytes)
		}
		return capture.NewStream(req.Capture.Values, req.Capture.Timestamps, req.Capture.Channels, req.Capture.Rate)
	case req.Path != "":
		src, err := s.resolveSource(req.Path)
		if err != nil {
			return nil, err
		}
		return source.Load(ctx, src, limits)
	default:
		return nil, ErrNoCapture
	}
}

// resolveSource maps a request path onto a capture source. Local paths are
// confined to capture_root; ssh:// locations need allow_remote.
func (s *Server) resolveSource(raw string) (source.Source, error) {
	src, err := source.Parse(raw, s.cfg.SSHBase())
	if err != nil {
		return nil, err
	}
	switch v := src.(type) {
	case source.SSH:
		if !s.cfg.AllowRemote {
			return nil, fmt.Errorf("%w: remote captures disabled", ErrSourceForbidden)
		}
		return v, nil
	case source.File:
		if s.cfg.CaptureRoot == "" {
			return nil, fmt.Errorf("%w: capture_root not configured", ErrSourceForbidden)
		}
		path := filepath.Join(s.cfg.CaptureRoot, filepath.Clean("/"+v.Path))
		log.Debug().Str("request_path", raw).Str("path", path).Msg("capture path resolved")
		return source.File{Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrSourceForbidden, src.Describe())
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, decode.ErrUnknownDecoder), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrOutOfRange):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrSourceForbidden):
		return http.StatusForbidden
	case errors.Is(err, wire.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, decode.ErrConfiguration),
		errors.Is(err, decode.ErrAlreadyRun),
		errors.Is(err, capture.ErrInvalidStream),
		errors.Is(err, source.ErrInvalidSource),
		errors.Is(err, ErrNoCapture),
		wire.IsFormatError(err):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
