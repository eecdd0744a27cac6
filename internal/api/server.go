package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/jbaileyhandle/quarry/internal/device"
	"github.com/jbaileyhandle/quarry/internal/logger"
	"github.com/jbaileyhandle/quarry/pkg/engine"
)

// Server serves the diagnostics API over a registry of contexts.
type Server struct {
	reg *Registry
	log logger.Logger
}

func NewServer(reg *Registry, log logger.Logger) *Server {
	if reg == nil {
		reg = NewRegistry()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{reg: reg, log: log}
}

// Registry returns the server's context registry.
func (s *Server) Registry() *Registry { return s.reg }

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/healthz", s.handleHealthz)
	e.GET("/v1/contexts", s.handleListContexts)
	e.POST("/v1/contexts", s.handleCreateContext)
	e.GET("/v1/contexts/:id", s.handleGetContext)
	e.DELETE("/v1/contexts/:id", s.handleDeleteContext)
	e.POST("/v1/contexts/:id/probe", s.handleProbe)
	e.POST("/v1/contexts/:id/exercise", s.handleExercise)
}

type contextInfo struct {
	ID          string             `json:"id"`
	Device      device.Props       `json:"device"`
	PointerMode string             `json:"pointer_mode"`
	Managed     bool               `json:"managed"`
	Memory      engine.MemoryStats `json:"memory"`
}

type createContextRequest struct {
	Device   string `json:"device"`
	Index    int    `json:"index"`
	PoolSize int64  `json:"pool_size"`
}

type probeRequest struct {
	// Each inner slice is one operation's sub-buffer sizes; the probe
	// runs a full size-query pass over all of them.
	Requests [][]int64 `json:"requests"`
}

type probeResponse struct {
	ProbeID      string   `json:"probe_id"`
	RequiredSize int64    `json:"required_size"`
	Statuses     []string `json:"statuses"`
}

type exerciseRequest struct {
	Sizes  []int64 `json:"sizes"`
	Cycles int     `json:"cycles"`
}

type exerciseResponse struct {
	Cycles   int                `json:"cycles"`
	Duration string             `json:"duration"`
	Memory   engine.MemoryStats `json:"memory"`
}

func (s *Server) handleHealthz(c *echo.Context) error {
	return writeJSON(c, http.StatusOK, map[string]any{
		"status":  "ok",
		"devices": device.Available(),
	})
}

func (s *Server) handleListContexts(c *echo.Context) error {
	ids := s.reg.IDs()
	infos := make([]contextInfo, 0, len(ids))
	for _, id := range ids {
		e, ok := s.reg.get(id)
		if !ok {
			continue
		}
		e.mu.Lock()
		infos = append(infos, describe(e.ctx))
		e.mu.Unlock()
	}
	return writeJSON(c, http.StatusOK, map[string]any{"contexts": infos})
}

func (s *Server) handleCreateContext(c *echo.Context) error {
	req, err := decodeJSON[createContextRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	ctx, err := engine.New(
		engine.WithDevice(req.Device, req.Index),
		engine.WithLogger(s.log),
	)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "device_error", err.Error())
	}
	if req.PoolSize > 0 {
		if err := ctx.SetDeviceMemorySize(req.PoolSize); err != nil {
			_ = ctx.Close()
			return writeError(c, http.StatusInsufficientStorage, "memory_error", err.Error())
		}
	}
	s.reg.Add(ctx)
	s.log.Info("context registered", "context", ctx.ID(), "device", ctx.Device().Name)
	return writeJSON(c, http.StatusOK, describe(ctx))
}

func (s *Server) handleGetContext(c *echo.Context) error {
	e, ok := s.reg.get(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found", "no such context")
	}
	e.mu.Lock()
	info := describe(e.ctx)
	e.mu.Unlock()
	return writeJSON(c, http.StatusOK, info)
}

func (s *Server) handleDeleteContext(c *echo.Context) error {
	ctx, ok := s.reg.Remove(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found", "no such context")
	}
	if err := ctx.Close(); err != nil {
		return writeError(c, http.StatusInternalServerError, "close_error", err.Error())
	}
	return writeJSON(c, http.StatusOK, map[string]any{"deleted": ctx.ID()})
}

// handleProbe runs one full size-query pass: every posted request
// registers its sub-buffer sizes, and the response carries the
// accumulated pool requirement plus the per-request increased/unchanged
// status the public API would report.
func (s *Server) handleProbe(c *echo.Context) error {
	e, ok := s.reg.get(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found", "no such context")
	}
	req, err := decodeJSON[probeRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	if len(req.Requests) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request", "requests must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if st := e.ctx.StartSizeQuery(); st != engine.StatusSuccess {
		return writeError(c, http.StatusConflict, "query_error", st.String())
	}
	statuses := make([]string, 0, len(req.Requests))
	for _, sizes := range req.Requests {
		st := e.ctx.SetOptimalSize(sizes...)
		if st != engine.StatusSizeIncreased && st != engine.StatusSizeUnchanged {
			_, _ = e.ctx.StopSizeQuery()
			return writeError(c, http.StatusBadRequest, "query_error", st.String())
		}
		statuses = append(statuses, st.String())
	}
	required, st := e.ctx.StopSizeQuery()
	if st != engine.StatusSuccess {
		return writeError(c, http.StatusInternalServerError, "query_error", st.String())
	}

	return writeJSON(c, http.StatusOK, probeResponse{
		ProbeID:      "probe_" + uuid.NewString(),
		RequiredSize: required,
		Statuses:     statuses,
	})
}

// handleExercise performs repeated real alloc/release cycles against
// the pool, the soak path used to watch growth behavior under load.
func (s *Server) handleExercise(c *echo.Context) error {
	e, ok := s.reg.get(c.Param("id"))
	if !ok {
		return writeError(c, http.StatusNotFound, "not_found", "no such context")
	}
	req, err := decodeJSON[exerciseRequest](c.Request().Body)
	if err != nil {
		return writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
	}
	if req.Cycles <= 0 {
		req.Cycles = 1
	}
	if len(req.Sizes) == 0 {
		return writeError(c, http.StatusBadRequest, "invalid_request", "sizes must not be empty")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	for i := 0; i < req.Cycles; i++ {
		mem, err := e.ctx.Malloc(req.Sizes...)
		if err != nil {
			status := http.StatusInsufficientStorage
			if engine.StatusOf(err) != engine.StatusMemoryError {
				status = http.StatusConflict
			}
			return writeError(c, status, "alloc_error", err.Error())
		}
		mem.Release()
	}

	return writeJSON(c, http.StatusOK, exerciseResponse{
		Cycles:   req.Cycles,
		Duration: time.Since(start).String(),
		Memory:   e.ctx.MemoryStats(),
	})
}

func describe(ctx *engine.Context) contextInfo {
	return contextInfo{
		ID:          ctx.ID(),
		Device:      ctx.Device(),
		PointerMode: ctx.PointerMode.String(),
		Managed:     ctx.IsManagingDeviceMemory(),
		Memory:      ctx.MemoryStats(),
	}
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("decode request body: %w", err)
	}
	return out, nil
}

func writeJSON(c *echo.Context, status int, v any) error {
	return c.JSON(status, v)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return writeJSON(c, status, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": msg,
		},
	})
}
