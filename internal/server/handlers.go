package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/extraction"
	"github.com/fyrsmithlabs/recalld/internal/learning"
	"github.com/fyrsmithlabs/recalld/internal/orchestrator"
	"github.com/fyrsmithlabs/recalld/internal/queue"
	"github.com/fyrsmithlabs/recalld/internal/store"
	"github.com/fyrsmithlabs/recalld/internal/validate"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// handleInject runs the injection state machine for one request.
func (s *Server) handleInject(c echo.Context) error {
	var req orchestrator.InjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}

	res, err := s.orchestrator.InjectLearningContext(c.Request().Context(), req)
	if err != nil {
		s.logger.Error("injection failed",
			zap.String("project_id", req.ProjectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "injection failed")
	}
	return c.JSON(http.StatusOK, res)
}

// FeedbackRequest is the body of POST /v1/feedback.
type FeedbackRequest struct {
	ProjectID   string   `json:"project_id"`
	InjectedIDs []string `json:"injected_ids"`
	Outcome     string   `json:"outcome"`
}

func (s *Server) handleFeedback(c echo.Context) error {
	var req FeedbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}

	outcome := orchestrator.Outcome(req.Outcome)
	switch outcome {
	case orchestrator.OutcomePositive, orchestrator.OutcomeNeutral, orchestrator.OutcomeNegative:
	default:
		return echo.NewHTTPError(http.StatusBadRequest, "outcome must be positive, neutral or negative")
	}

	// Feedback is best-effort by contract; accepted means recorded as
	// far as the engine could.
	s.orchestrator.OnInjection(c.Request().Context(), req.ProjectID, req.InjectedIDs, outcome)
	return c.NoContent(http.StatusAccepted)
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	ProjectID    string `json:"project_id"`
	ResponseText string `json:"response_text"`
}

// ValidateResponse wraps the validation result with its rendered
// summary block.
type ValidateResponse struct {
	validate.Result
	Summary string `json:"summary,omitempty"`
}

func (s *Server) handleValidate(c echo.Context) error {
	var req ValidateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}

	ctx := c.Request().Context()
	invariants, err := s.store.ListLearningsByType(ctx, req.ProjectID, learning.TypeInvariant)
	if err != nil {
		s.logger.Error("invariant lookup failed",
			zap.String("project_id", req.ProjectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "validation failed")
	}

	settings, err := s.store.GetSettings(ctx, req.ProjectID)
	if err != nil {
		settings = learning.DefaultSettings(req.ProjectID)
	}

	res := s.validator.ValidateResponse(req.ResponseText, invariants, settings.CriticalFiles)
	return c.JSON(http.StatusOK, ValidateResponse{Result: res, Summary: validate.Summarize(res)})
}

// EnqueueLearningsRequest is the body of POST /v1/learnings: a
// conversation staged for background extraction.
type EnqueueLearningsRequest struct {
	ProjectID      string `json:"project_id"`
	ConversationID string `json:"conversation_id"`

	// Messages is a JSON array of {role, content} turns.
	Messages []extraction.Message `json:"messages"`
}

// EnqueueLearningsResponse returns the queued item's id.
type EnqueueLearningsResponse struct {
	ItemID string `json:"item_id"`
}

func (s *Server) handleEnqueueLearnings(c echo.Context) error {
	var req EnqueueLearningsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.ProjectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project_id is required")
	}
	if len(req.Messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "messages are required")
	}

	payload, err := json.Marshal(req.Messages)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid messages")
	}

	item, err := learning.NewQueueItem(req.ProjectID, req.ConversationID, string(payload))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.store.EnqueueItem(c.Request().Context(), item); err != nil {
		s.logger.Error("enqueue failed",
			zap.String("project_id", req.ProjectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "enqueue failed")
	}
	return c.JSON(http.StatusAccepted, EnqueueLearningsResponse{ItemID: item.ID})
}

// DrainRequest is the body of POST /v1/queue/drain. An empty
// project_id drains every project's queue.
type DrainRequest struct {
	ProjectID string `json:"project_id"`
}

// handleDrain runs one synchronous drain pass on the learning queue.
// The serve loop drains on a timer; this endpoint exists for hooks
// that want extraction to land before the next conversation turn.
func (s *Server) handleDrain(c echo.Context) error {
	var req DrainRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	stats, err := s.drainer.Drain(c.Request().Context(), req.ProjectID)
	if err != nil {
		s.logger.Error("queue drain failed",
			zap.String("project_id", req.ProjectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "drain failed")
	}
	return c.JSON(http.StatusOK, stats)
}

// PendingResponse is the body of GET /v1/pending/:project.
type PendingResponse struct {
	Pending []*learning.Pending `json:"pending"`
}

func (s *Server) handleListPending(c echo.Context) error {
	projectID := c.Param("project")
	pending, err := s.drainer.ListPending(c.Request().Context(), projectID)
	if err != nil {
		s.logger.Error("pending lookup failed",
			zap.String("project_id", projectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, PendingResponse{Pending: pending})
}

func (s *Server) handleApprovePending(c echo.Context) error {
	id := c.Param("id")
	res, err := s.drainer.ApprovePending(c.Request().Context(), id)
	if err != nil {
		return pendingReviewError(c, s, id, err, "approve")
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleRejectPending(c echo.Context) error {
	id := c.Param("id")
	if err := s.drainer.RejectPending(c.Request().Context(), id); err != nil {
		return pendingReviewError(c, s, id, err, "reject")
	}
	return c.NoContent(http.StatusNoContent)
}

func pendingReviewError(c echo.Context, s *Server, id string, err error, action string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "pending learning not found")
	case errors.Is(err, queue.ErrAlreadyReviewed):
		return echo.NewHTTPError(http.StatusConflict, "pending learning already reviewed")
	}
	s.logger.Error("pending review failed",
		zap.String("pending_id", id),
		zap.String("action", action),
		zap.Error(err))
	return echo.NewHTTPError(http.StatusInternalServerError, "review failed")
}

// ContradictionsResponse is the body of GET /v1/contradictions/:project.
type ContradictionsResponse struct {
	Contradictions []*learning.Contradiction `json:"contradictions"`
}

func (s *Server) handleContradictions(c echo.Context) error {
	projectID := c.Param("project")
	if projectID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "project is required")
	}

	contradictions, err := s.links.Contradictions(c.Request().Context(), projectID)
	if err != nil {
		s.logger.Error("contradiction lookup failed",
			zap.String("project_id", projectID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "lookup failed")
	}
	return c.JSON(http.StatusOK, ContradictionsResponse{Contradictions: contradictions})
}
