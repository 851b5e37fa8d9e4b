package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SlotStats exposes the conversion slot's occupancy.
type SlotStats interface {
	Busy() bool
	Waiting() int64
}

// JobStats exposes the number of jobs in flight.
type JobStats interface {
	Active() int64
}

// Server answers liveness probes for hosts that require an open port.
type Server struct {
	srv    *http.Server
	logger *zap.Logger
}

func NewServer(port string, slot SlotStats, jobs JobStats, logger *zap.Logger) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           NewRouter(slot, jobs),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

func NewRouter(slot SlotStats, jobs JobStats) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "alive")
	})
	router.HEAD("/", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "alive",
			"busy":        slot.Busy(),
			"waiting":     slot.Waiting(),
			"active_jobs": jobs.Active(),
		})
	})

	return router
}

// Start serves on a background goroutine until Shutdown.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Liveness endpoint listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Liveness endpoint stopped", zap.Error(err))
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
