// Package server exposes the decoder engine over HTTP.
package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/danmuck/sniffctl/internal/auth"
	"github.com/danmuck/sniffctl/internal/config"
	"github.com/danmuck/sniffctl/internal/decode"
	"github.com/danmuck/sniffctl/internal/observability"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const version = "0.1.0"

// Server is the sniffd decode service.
type Server struct {
	Name     string
	Addr     string
	Appeared time.Time
	Registry *decode.Registry

	cfg       config.ServerConfig
	validator auth.Validator
	router    *gin.Engine
}

// New builds the service router. A non-empty auth_token guards POST /decode.
func New(cfg config.ServerConfig, registry *decode.Registry) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(cfg.Name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	if registry == nil {
		registry = decode.NewRegistry()
	}
	s := &Server{
		Name:     cfg.Name,
		Addr:     cfg.Addr,
		Appeared: time.Now(),
		Registry: registry,
		cfg:      cfg,
		router:   r,
	}
	if cfg.AuthToken != "" {
		s.validator = auth.StaticToken{Token: cfg.AuthToken}
	}
	s.RegisterRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx ends, then drains in-flight requests.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln, wrapping it in TLS when the config carries a
// certificate. ln is closed on return.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	scheme := "http"
	if s.cfg.TLSEnabled() {
		tlsCfg, err := s.tlsConfig()
		if err != nil {
			_ = ln.Close()
			return err
		}
		srv.TLSConfig = tlsCfg
		ln = tls.NewListener(ln, tlsCfg)
		scheme = "https"
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("service", s.Name).
			Str("addr", ln.Addr().String()).
			Str("scheme", scheme).
			Bool("client_auth", s.cfg.TLSClientCAFile != "").
			Msg("sniffd listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		log.Info().Str("service", s.Name).Msg("sniffd shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	cfg := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}
	if s.cfg.TLSClientCAFile == "" {
		return cfg, nil
	}
	pem, err := os.ReadFile(s.cfg.TLSClientCAFile)
	if err != nil {
		return nil, fmt.Errorf("read tls client ca: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("tls client ca %s holds no certificates", s.cfg.TLSClientCAFile)
	}
	cfg.ClientCAs = pool
	cfg.ClientAuth = tls.RequireAndVerifyClientCert
	return cfg, nil
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.validator == nil {
			c.Next()
			return
		}
		if err := auth.CheckHeader(s.validator, c.GetHeader("Authorization")); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
