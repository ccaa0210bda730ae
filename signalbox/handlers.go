package signalbox

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"nyiyui.ca/hato/interlocking/interlock"
	"nyiyui.ca/hato/interlocking/layout"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

// State is the response of GET /state.
type State struct {
	interlock.Snapshot
	Pending map[interlock.RouteID][]interlock.RouteID `json:"pending"`
	Tasks   []Task                                    `json:"tasks"`
}

// Task is a point command not yet acknowledged.
type Task struct {
	Track    layout.TrackID  `json:"track"`
	Position layout.Position `json:"position"`
	Started  time.Time       `json:"started"`
}

type LeverCommandRequest struct {
	Command *interlock.LeverCommand `json:"command"`
}

type ThrowRequest struct {
	Position layout.Position `json:"position"`
}

func statusOf(err error) int {
	var de *interlock.DanglingReferenceError
	var le *interlock.LockedError
	var ae *layout.AmbiguousJunctionError
	var ce *layout.ConflictError
	switch {
	case errors.Is(err, interlock.ErrNotFound), errors.Is(err, layout.ErrTrackNotFound):
		return http.StatusNotFound
	case errors.As(err, &de):
		return http.StatusGone
	case errors.As(err, &le), errors.As(err, &ae), errors.As(err, &ce),
		errors.Is(err, interlock.ErrNotPending),
		errors.Is(err, interlock.ErrInvalidRoute),
		errors.Is(err, interlock.ErrButtonNotSelectable),
		errors.Is(err, interlock.ErrDuplicate),
		errors.Is(err, interlock.ErrDuplicateRoute):
		return http.StatusConflict
	case errors.Is(err, layout.ErrNotSwitch):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, command string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		zap.S().Errorw("signalbox: command failed", "command", command, "err", err)
	}
	s.metrics.commands.WithLabelValues(command, "error").Inc()
	c.JSON(status, ErrorResponse{Error: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
}

func intParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}

func routeParam(c *gin.Context) (interlock.RouteID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, fmt.Errorf("invalid route id %q: %w", c.Param("id"), err))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) handleLayout(c *gin.Context) {
	c.JSON(http.StatusOK, s.m.Layout().Export())
}

func (s *Server) handleState(c *gin.Context) {
	st := State{
		Snapshot: s.m.Export(),
		Pending:  s.m.Pending(),
		Tasks:    []Task{},
	}
	for _, t := range s.m.PendingTasks() {
		st.Tasks = append(st.Tasks, Task{Track: t.Track, Position: t.Position, Started: t.Started})
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleRequestRoutes(c *gin.Context) {
	id, ok := intParam(c)
	if !ok {
		return
	}
	start := time.Now()
	rs, err := s.m.RequestRoutesFor(c.Request.Context(), interlock.LeverID(id))
	if err != nil {
		s.fail(c, "request-routes", err)
		return
	}
	s.metrics.search.Observe(time.Since(start).Seconds())
	s.metrics.commands.WithLabelValues("request-routes", "ok").Inc()
	c.JSON(http.StatusOK, rs)
}

func (s *Server) handleGenerateRoutes(c *gin.Context) {
	id, ok := intParam(c)
	if !ok {
		return
	}
	start := time.Now()
	ids, err := s.m.GenerateRoutes(c.Request.Context(), interlock.LeverID(id))
	if err != nil {
		s.fail(c, "generate-routes", err)
		return
	}
	s.metrics.search.Observe(time.Since(start).Seconds())
	s.metrics.commands.WithLabelValues("generate-routes", "ok").Inc()
	c.JSON(http.StatusOK, ids)
}

func (s *Server) handleLeverCommand(c *gin.Context) {
	id, ok := intParam(c)
	if !ok {
		return
	}
	var req LeverCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Command == nil {
		badRequest(c, errors.New("command is required"))
		return
	}
	if err := s.m.OnLeverCommand(interlock.LeverID(id), *req.Command); err != nil {
		s.fail(c, "lever", err)
		return
	}
	s.metrics.commands.WithLabelValues("lever", "ok").Inc()
	l, _ := s.m.Lever(interlock.LeverID(id))
	c.JSON(http.StatusOK, l)
}

// respond writes an activation. A pending activation is a conflict the operator has to resolve.
func (s *Server) respond(c *gin.Context, command string, act interlock.Activation, err error) {
	if err != nil {
		s.fail(c, command, err)
		return
	}
	if act.Pending() {
		s.metrics.commands.WithLabelValues(command, "pending").Inc()
		c.JSON(http.StatusConflict, act)
		return
	}
	s.metrics.commands.WithLabelValues(command, "ok").Inc()
	c.JSON(http.StatusOK, act)
}

func (s *Server) handleButtonCommand(c *gin.Context) {
	id, ok := intParam(c)
	if !ok {
		return
	}
	act, err := s.m.OnButtonCommand(interlock.ButtonID(id))
	s.respond(c, "button", act, err)
}

func (s *Server) handleActivate(c *gin.Context) {
	id, ok := routeParam(c)
	if !ok {
		return
	}
	act, err := s.m.Activate(id)
	s.respond(c, "activate", act, err)
}

func (s *Server) handleConfirm(c *gin.Context) {
	id, ok := routeParam(c)
	if !ok {
		return
	}
	act, err := s.m.Confirm(id)
	s.respond(c, "confirm", act, err)
}

func (s *Server) handleCancel(c *gin.Context) {
	id, ok := routeParam(c)
	if !ok {
		return
	}
	if err := s.m.Cancel(id); err != nil {
		s.fail(c, "cancel", err)
		return
	}
	s.metrics.commands.WithLabelValues("cancel", "ok").Inc()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDeactivate(c *gin.Context) {
	id, ok := routeParam(c)
	if !ok {
		return
	}
	if err := s.m.Deactivate(id); err != nil {
		s.fail(c, "deactivate", err)
		return
	}
	s.metrics.commands.WithLabelValues("deactivate", "ok").Inc()
	c.Status(http.StatusNoContent)
}

func (s *Server) handleThrow(c *gin.Context) {
	id, ok := intParam(c)
	if !ok {
		return
	}
	var req ThrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Position == layout.PositionNone {
		badRequest(c, errors.New("position must be normal or reverse"))
		return
	}
	task, err := s.m.ThrowSwitch(layout.TrackID(id), req.Position)
	if err != nil {
		s.fail(c, "throw", err)
		return
	}
	s.metrics.commands.WithLabelValues("throw", "ok").Inc()
	resp := Task{Track: layout.TrackID(id), Position: req.Position}
	if task != nil {
		resp.Started = task.Started
	}
	c.JSON(http.StatusAccepted, resp)
}
