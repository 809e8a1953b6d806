// Package ops is the broker's optional HTTP sidecar: health, Prometheus
// metrics and a JSON view of the room catalogue. It never touches the chat
// wire protocol.
package ops

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"chatbroker/internal/metrics"
	"chatbroker/internal/proto"
)

// BrokerView is the read-only slice of the broker the sidecar exposes.
type BrokerView interface {
	ClientCount() int
	RoomList() []proto.RoomEntry
}

// Server wraps an echo instance serving the ops routes.
type Server struct {
	echo   *echo.Echo
	view   BrokerView
	logger *zap.Logger
}

// NewServer builds the sidecar with its routes registered.
func NewServer(view BrokerView, m *metrics.Registry, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{echo: e, view: view, logger: logger}

	e.GET("/healthz", s.handleHealth)
	e.GET("/api/rooms", s.handleRooms)
	e.GET("/metrics", echo.WrapHandler(m.Handler()))

	return s
}

type roomDTO struct {
	Name   string `json:"name"`
	Locked bool   `json:"locked"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":    "healthy",
		"clients":   s.view.ClientCount(),
		"rooms":     len(s.view.RoomList()),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleRooms(c echo.Context) error {
	entries := s.view.RoomList()
	out := make([]roomDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, roomDTO{Name: e.Name, Locked: e.Locked})
	}
	return c.JSON(http.StatusOK, out)
}

// Start serves on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.logger.Info("ops server listening", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown stops the sidecar gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
