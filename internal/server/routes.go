package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) RegisterRoutes() {
	routes := s.router
	routes.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": version,
		})
	})

	routes.GET("/metrics", gin.WrapH(promhttp.Handler()))

	routes.GET("/ready", func(c *gin.Context) {
		ready := len(s.Registry.ListMetadata()) > 0
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": version,
		})
	})

	routes.GET("/decoders", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"decoders": s.Registry.ListMetadata()})
	})

	routes.POST("/decode", s.requireAuth(), s.handleDecode)
}
