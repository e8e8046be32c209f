// Package api exposes the fraud-adjudication service's HTTP surface:
// Submit, Poll, and Health (spec §6), built on Echo v5 in the teacher's
// style.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/aboerstra/fraud-adjudicator/pkg/ingress"
	"github.com/aboerstra/fraud-adjudicator/pkg/mlclient"
	"github.com/aboerstra/fraud-adjudicator/pkg/queue"
	"github.com/aboerstra/fraud-adjudicator/pkg/store"
	"github.com/aboerstra/fraud-adjudicator/pkg/version"
)

// maxRequestBodyBytes bounds the Submit payload at the HTTP read level,
// above any reasonable application JSON body, before it ever reaches
// json.Unmarshal (spec §4.1's schema is small; this is a transport-level
// backstop, not the field-level validation).
const maxRequestBodyBytes = 1 * 1024 * 1024

// DBHealthChecker is the subset of *store.Client the health handler
// needs.
type DBHealthChecker interface {
	Health(ctx context.Context) (*store.HealthStatus, error)
}

// MLHealthChecker is the subset of *mlclient.Client the health handler
// needs.
type MLHealthChecker interface {
	Healthz(ctx context.Context) error
}

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	ingress    *ingress.Service
	workerPool *queue.WorkerPool
	db         DBHealthChecker
	mlHealth   MLHealthChecker
}

// NewServer wires the Submit/Poll/Health routes over the given services.
func NewServer(ingressSvc *ingress.Service, workerPool *queue.WorkerPool, db DBHealthChecker, mlHealth MLHealthChecker) *Server {
	e := echo.New()
	s := &Server{
		echo:       e,
		ingress:    ingressSvc,
		workerPool: workerPool,
		db:         db,
		mlHealth:   mlHealth,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(maxRequestBodyBytes))
	s.echo.Use(securityHeaders())

	s.echo.GET("/health", s.healthHandler)
	v1 := s.echo.Group("/v1")
	v1.POST("/applications", s.submitHandler)
	v1.GET("/decision/:job_id", s.pollHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener,
// used by tests that need a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health (spec §6: "{status, timestamp,
// version, services:{database, queue, ml_service}}").
func (s *Server) healthHandler(c *echo.Context) error {
	reqCtx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	if _, err := s.db.Health(reqCtx); err != nil {
		dbStatus = "unhealthy"
	}

	mlStatus := "healthy"
	if err := s.mlHealth.Healthz(reqCtx); err != nil {
		mlStatus = "unhealthy"
	}

	queueStatus := "healthy"
	if s.workerPool != nil {
		queueStatus = s.workerPool.Health(reqCtx).Status
	}

	overall := "healthy"
	if dbStatus != "healthy" || queueStatus == "overloaded" {
		overall = "unhealthy"
	} else if queueStatus != "healthy" || mlStatus != "healthy" {
		overall = "degraded"
	}

	status := http.StatusOK
	if overall == "unhealthy" {
		status = http.StatusServiceUnavailable
	}

	return c.JSON(status, &HealthResponse{
		Status:    overall,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   version.Full(),
		Services: HealthServices{
			Database:  dbStatus,
			Queue:     queueStatus,
			MLService: mlStatus,
		},
	})
}
