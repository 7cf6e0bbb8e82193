// Package api exposes the manager's contract over HTTP, in the
// handler style of an echo-based sandbox service: typed request/
// response structs, echo.NewHTTPError for failures, c.JSON for
// success.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/modelscope/ms-enclave/internal/manager"
	"github.com/modelscope/ms-enclave/internal/model"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return strings.HasPrefix(origin, "http://localhost") || strings.HasPrefix(origin, "https://localhost")
	},
}

// Server wraps an echo.Echo and a manager.Interface, registering the
// routes of the HTTP wire surface.
type Server struct {
	Echo    *echo.Echo
	manager manager.Interface
}

// New constructs a Server around mgr. Call RegisterRoutes before
// starting the echo instance.
func New(mgr manager.Interface) *Server {
	return &Server{
		Echo:    echo.New(),
		manager: mgr,
	}
}

// RegisterRoutes wires every route this spec's HTTP surface defines.
func (s *Server) RegisterRoutes() {
	e := s.Echo
	e.GET("/health", s.health)
	e.GET("/stats", s.stats)

	e.POST("/sandboxes", s.createSandbox)
	e.GET("/sandboxes", s.listSandboxes)
	e.GET("/sandboxes/:id", s.getSandbox)
	e.POST("/sandboxes/:id/stop", s.stopSandbox)
	e.DELETE("/sandboxes/:id", s.deleteSandbox)
	e.GET("/sandboxes/:id/tools", s.getSandboxTools)
	e.POST("/sandboxes/:id/tools/:name", s.executeTool)
	e.GET("/sandboxes/:id/interact", s.interactSandbox)
	e.POST("/sandboxes/cleanup", s.cleanupAllSandboxes)

	e.POST("/pool/init", s.poolInit)
	e.POST("/pool/tools/:name", s.poolExecuteTool)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) stats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.manager.GetStats(c.Request().Context()))
}

type createSandboxRequest struct {
	Kind   model.SandboxKind `json:"kind"`
	Config any               `json:"config"`
	ID     string            `json:"id,omitempty"`
}

type createSandboxResponse struct {
	ID string `json:"id"`
}

func (s *Server) createSandbox(c echo.Context) error {
	var req createSandboxRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request").SetInternal(err)
	}

	cfg, err := decodeConfig(req.Kind, req.Config)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	id, err := s.manager.CreateSandbox(c.Request().Context(), req.Kind, cfg, req.ID)
	if err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusCreated, createSandboxResponse{ID: id})
}

// decodeConfig re-marshals the generic JSON body into the concrete
// config type a sandbox factory expects for kind, since wire bodies
// arrive as untyped maps but factories assert on a concrete struct.
func decodeConfig(kind model.SandboxKind, raw any) (any, error) {
	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	switch kind {
	case model.KindContainer:
		var cfg model.ContainerSandboxConfig
		if err := json.Unmarshal(encoded, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case model.KindContainerNotebook:
		var cfg model.NotebookSandboxConfig
		if err := json.Unmarshal(encoded, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case model.KindDummy:
		var cfg model.SandboxConfig
		if err := json.Unmarshal(encoded, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("%w: unknown sandbox kind %q", model.ErrConfigError, kind)
	}
}

func (s *Server) listSandboxes(c echo.Context) error {
	var statusFilter *model.SandboxStatus
	if raw := c.QueryParam("status"); raw != "" {
		status := model.SandboxStatus(raw)
		statusFilter = &status
	}
	infos, err := s.manager.ListSandboxes(c.Request().Context(), statusFilter)
	if err != nil {
		return translateError(err)
	}
	if infos == nil {
		infos = []model.SandboxInfo{}
	}
	return c.JSON(http.StatusOK, infos)
}

func (s *Server) getSandbox(c echo.Context) error {
	info, err := s.manager.GetSandboxInfo(c.Request().Context(), c.Param("id"))
	if err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (s *Server) stopSandbox(c echo.Context) error {
	ok, err := s.manager.StopSandbox(c.Request().Context(), c.Param("id"))
	if err != nil {
		return translateError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "sandbox not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) deleteSandbox(c echo.Context) error {
	ok, err := s.manager.DeleteSandbox(c.Request().Context(), c.Param("id"))
	if err != nil {
		return translateError(err)
	}
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "sandbox not found")
	}
	return c.JSON(http.StatusOK, map[string]bool{"deleted": true})
}

func (s *Server) cleanupAllSandboxes(c echo.Context) error {
	errs := s.manager.CleanupAllSandboxes(c.Request().Context())
	if len(errs) > 0 {
		msgs := make([]string, len(errs))
		for i, e := range errs {
			msgs[i] = e.Error()
		}
		return c.JSON(http.StatusOK, map[string]any{"cleaned": true, "errors": msgs})
	}
	return c.JSON(http.StatusOK, map[string]any{"cleaned": true})
}

func (s *Server) getSandboxTools(c echo.Context) error {
	schemas, err := s.manager.GetSandboxTools(c.Request().Context(), c.Param("id"))
	if err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusOK, schemas)
}

type executeToolRequest struct {
	Parameters map[string]any `json:"parameters"`
}

func (s *Server) executeTool(c echo.Context) error {
	var req executeToolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request").SetInternal(err)
	}
	result, err := s.manager.ExecuteTool(c.Request().Context(), c.Param("id"), c.Param("name"), req.Parameters)
	if err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusOK, result)
}

type poolInitRequest struct {
	Size   int                 `json:"size"`
	Kind   model.SandboxKind   `json:"kind"`
	Config model.SandboxConfig `json:"config"`
}

func (s *Server) poolInit(c echo.Context) error {
	var req poolInitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request").SetInternal(err)
	}
	if err := s.manager.InitializePool(c.Request().Context(), req.Size, req.Kind, req.Config); err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"initialized": true})
}

type poolExecuteToolRequest struct {
	Parameters map[string]any `json:"parameters"`
	TimeoutSec float64        `json:"timeout"`
}

func (s *Server) poolExecuteTool(c echo.Context) error {
	var req poolExecuteToolRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request").SetInternal(err)
	}
	timeout := 30 * time.Second
	if req.TimeoutSec > 0 {
		timeout = time.Duration(req.TimeoutSec * float64(time.Second))
	}
	result, err := s.manager.ExecuteToolInPool(c.Request().Context(), c.Param("name"), req.Parameters, timeout)
	if err != nil {
		return translateError(err)
	}
	return c.JSON(http.StatusOK, result)
}

// interactSandbox is a websocket passthrough for interactive use, the
// direct descendant of an agent-connection REPL bridge: each line sent
// by the client is dispatched as a shell_executor call, and its
// combined stdout/stderr is written back as one message.
func (s *Server) interactSandbox(c echo.Context) error {
	id := c.Param("id")

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := c.Request().Context()
	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			return nil
		}

		result, execErr := s.manager.ExecuteTool(ctx, id, "shell_executor", map[string]any{
			"command": string(message),
		})
		if execErr != nil {
			if writeErr := ws.WriteMessage(websocket.TextMessage, []byte(execErr.Error())); writeErr != nil {
				return writeErr
			}
			continue
		}

		output := result.Output
		if result.Error != "" {
			output += result.Error
		}
		if err := ws.WriteMessage(websocket.TextMessage, []byte(output)); err != nil {
			return err
		}
	}
}

// translateError maps the manager's sentinel error taxonomy onto HTTP
// status codes.
func translateError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConfigError):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrImageUnavailable),
		errors.Is(err, model.ErrSandboxStartError),
		errors.Is(err, model.ErrEngineError),
		errors.Is(err, model.ErrPoolInitError):
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	case errors.Is(err, model.ErrTimeout), errors.Is(err, model.ErrPoolExhausted):
		return echo.NewHTTPError(http.StatusGatewayTimeout, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
