package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"coldcall-platform/internal/audit"
	"coldcall-platform/internal/auth"
	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/rbac"
	"coldcall-platform/internal/session"
	"coldcall-platform/internal/validator"
	"coldcall-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	DefaultLockTTL = 15 * time.Second

	sessionKey = "session"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the session, return JSON.
type Handlers struct {
	Sessions *session.Manager
	Locks    Locker
	LockTTL  time.Duration

	// Audit is optional.
	Audit *audit.Service
}

type startSessionRequest struct {
	ListID string `json:"list_id" validate:"required,nonblank"`
}

type startCallRequest struct {
	ProviderCallID string `json:"provider_call_id" validate:"max=64"`
}

type endCallRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

type outcomeRequest struct {
	Outcome string `json:"outcome" validate:"required,outcome"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

type followUpRequest struct {
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Time string `json:"time" validate:"omitempty,datetime=15:04"`
}

type notesRequest struct {
	Content string `json:"content" validate:"max=20000"`
}

// bind decodes and validates the JSON body. An empty body is allowed for
// requests whose fields are all optional.
func bind(c *gin.Context, dst any) bool {
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "invalid json"})
			return false
		}
	}
	if err := validator.Struct(dst); err != nil {
		writeError(c, err)
		return false
	}
	return true
}

// loadSession resolves :id within the caller's workspace.
func (h Handlers) loadSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := auth.WorkspaceID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "workspace_id required"})
			return
		}
		s, err := h.Sessions.Get(c.Request.Context(), ws, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.Set(sessionKey, s)
		c.Next()
	}
}

func current(c *gin.Context) *session.Session {
	return c.MustGet(sessionKey).(*session.Session)
}

// inFlight rejects a request with 409 while the same action on the same
// session is running. Lock backend errors fail open.
func (h Handlers) inFlight(action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.Locks == nil {
			c.Next()
			return
		}
		ttl := h.LockTTL
		if ttl <= 0 {
			ttl = DefaultLockTTL
		}
		key := "coldcall:lock:" + c.Param("id") + ":" + action
		release, ok, err := h.Locks.Acquire(c.Request.Context(), key, ttl)
		if err != nil {
			logger.FromGin(c).Warn("action lock unavailable", "action", action, "err", err)
			c.Next()
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, errorBody{Error: "busy", Message: "This action is already in progress."})
			return
		}
		defer release()
		c.Next()
	}
}

// record appends an audit event without failing the request.
func (h Handlers) record(c *gin.Context, write func(ctx context.Context, actor audit.Actor) error) {
	if h.Audit == nil {
		return
	}
	id, _ := auth.FromContext(c.Request.Context())
	actor := audit.Actor{UserID: id.UserID, Role: id.Role, IP: c.ClientIP()}
	if err := write(c.Request.Context(), actor); err != nil {
		logger.FromGin(c).Warn("audit append failed", "err", err)
	}
}

func (h Handlers) StartSession(c *gin.Context) {
	var req startSessionRequest
	if !bind(c, &req) {
		return
	}
	id, err := auth.FromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorBody{Error: "identity required"})
		return
	}
	s, err := h.Sessions.Start(c.Request.Context(), session.StartRequest{
		WorkspaceID: id.WorkspaceID,
		UserID:      id.UserID,
		ListID:      req.ListID,
		ReadOnly:    rbac.IsReadOnly(id.Role),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, s.View())
}

func (h Handlers) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).View())
}

func (h Handlers) CloseSession(c *gin.Context) {
	s := current(c)
	if err := h.Sessions.Close(c.Request.Context(), s.WorkspaceID(), s.ID()); err != nil {
		writeError(c, err)
		return
	}
	h.record(c, func(ctx context.Context, actor audit.Actor) error {
		return h.Audit.LogSessionClosed(ctx, s.WorkspaceID(), actor, s.ID())
	})
	c.Status(http.StatusNoContent)
}

func (h Handlers) StartCall(c *gin.Context) {
	var req startCallRequest
	if !bind(c, &req) {
		return
	}
	s := current(c)
	if err := h.Sessions.StartCall(c.Request.Context(), s, req.ProviderCallID); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h Handlers) EndCall(c *gin.Context) {
	var req endCallRequest
	if !bind(c, &req) {
		return
	}
	s := current(c)
	if err := s.EndCall(req.DurationSeconds); err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	c.JSON(http.StatusOK, s.View())
}

// SelectOutcome answers once the outcome write settles. On a failed write the
// selection stays applied locally and the client may retry the same request.
func (h Handlers) SelectOutcome(c *gin.Context) {
	var req outcomeRequest
	if !bind(c, &req) {
		return
	}
	o, _ := calls.ParseOutcome(req.Outcome)
	s := current(c)
	before := s.View()
	view, ack, err := s.SelectOutcome(c.Request.Context(), o)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	if before.Outcome != "" && before.Outcome != o && before.CallID == view.CallID {
		h.record(c, func(ctx context.Context, actor audit.Actor) error {
			return h.Audit.LogOutcomeChanged(ctx, s.WorkspaceID(), actor, s.ID(), view.CallID, before.Outcome, o)
		})
	}
	if err := ack.Wait(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h Handlers) SetNotInterestedReason(c *gin.Context) {
	var req reasonRequest
	if !bind(c, &req) {
		return
	}
	s := current(c)
	ack, err := s.SetNotInterestedReason(c.Request.Context(), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	if err := ack.Wait(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.View())
}

func (h Handlers) SetFollowUp(c *gin.Context) {
	var req followUpRequest
	if !bind(c, &req) {
		return
	}
	snap, err := current(c).SetFollowUp(req.Date, req.Time)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) SaveFollowUp(c *gin.Context) {
	s := current(c)
	snap, err := s.SaveFollowUp(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) AddFollowUpToCalendar(c *gin.Context) {
	snap, err := current(c).AddFollowUpToCalendar(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, snap)
}

func (h Handlers) EditNotes(c *gin.Context) {
	var req notesRequest
	if !bind(c, &req) {
		return
	}
	snap, err := current(c).EditNotes(req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) SaveNotes(c *gin.Context) {
	snap, err := current(c).SaveNotes(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h Handlers) Skip(c *gin.Context) {
	s := current(c)
	if err := s.Skip(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	c.JSON(http.StatusOK, s.View())
}

func (h Handlers) Next(c *gin.Context) {
	s := current(c)
	if err := s.Next(c.Request.Context()); err != nil {
		writeError(c, err)
		return
	}
	h.Sessions.Persist(c.Request.Context(), s)
	c.JSON(http.StatusOK, s.View())
}

func (h Handlers) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, current(c).Stats().Summary())
}
