// Package server exposes the scan engine over HTTP.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"capscan/internal/scan"
	"capscan/internal/wol"
)

type Server struct {
	log      *logrus.Entry
	engine   *scan.Engine
	backends scan.Backends
}

// New wires the HTTP handlers around a scan engine.
func New(log *logrus.Logger, engine *scan.Engine, backends scan.Backends) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Server{
		log:      log.WithField("component", "http"),
		engine:   engine,
		backends: backends,
	}
}

// Router builds the gin router with all routes registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), s.requestLog(), corsHeaders())

	router.GET("/healthz", s.handleHealth)
	router.GET("/api/scan", s.handleScan)
	router.GET("/api/backends", s.handleBackends)
	router.POST("/api/wake", s.handleWake)
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleScan runs a capability scan for ?address=...; the engine guarantees a
// well-formed envelope for every input, so only the HTTP status varies.
func (s *Server) handleScan(c *gin.Context) {
	req := scan.Request{
		Address:      c.Query("address"),
		DeclaredType: c.Query("type"),
		Method:       c.Query("method"),
		ID:           c.Query("id"),
	}

	result := s.engine.Scan(c.Request.Context(), req)
	status := http.StatusOK
	if result.Status != "success" {
		status = http.StatusBadRequest
	}
	c.JSON(status, result)
}

func (s *Server) handleBackends(c *gin.Context) {
	c.JSON(http.StatusOK, s.backends)
}

type wakeRequest struct {
	MAC string `json:"mac" binding:"required"`
}

func (s *Server) handleWake(c *gin.Context) {
	var req wakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": "mac is required"})
		return
	}
	if err := wol.Wake(req.MAC); err != nil {
		s.log.WithError(err).WithField("mac", req.MAC).Warn("wake failed")
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"code":   c.Writer.Status(),
		}).Debug("request handled")
	}
}

func corsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
