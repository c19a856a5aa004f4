package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "studyplan/backend/internal/errors"
	"studyplan/backend/internal/model"
	"studyplan/backend/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

type startRequest struct {
	SubjectID       string `json:"subjectId"`
	SessionType     string `json:"sessionType"`
	DurationMinutes int    `json:"durationMinutes"`
}

type sessionAction func(ctx context.Context, userID string) (*service.SessionView, *apperrors.APIError)

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{sessionService: sessionService}
}

func (h *SessionHandler) Current(c *gin.Context) {
	h.respond(c, h.sessionService.Current)
}

func (h *SessionHandler) Start(c *gin.Context) {
	var req startRequest
	if !bindJSON(c, &req) {
		return
	}

	h.respond(c, func(ctx context.Context, userID string) (*service.SessionView, *apperrors.APIError) {
		return h.sessionService.Start(ctx, userID, service.StartInput{
			SubjectID:       req.SubjectID,
			SessionType:     model.SessionType(req.SessionType),
			DurationMinutes: req.DurationMinutes,
		})
	})
}

func (h *SessionHandler) Pause(c *gin.Context) { h.respond(c, h.sessionService.Pause) }
func (h *SessionHandler) Resume(c *gin.Context) { h.respond(c, h.sessionService.Resume) }
func (h *SessionHandler) End(c *gin.Context) { h.respond(c, h.sessionService.End) }
func (h *SessionHandler) Cancel(c *gin.Context) { h.respond(c, h.sessionService.Cancel) }
func (h *SessionHandler) Reset(c *gin.Context) { h.respond(c, h.sessionService.Reset) }
func (h *SessionHandler) Tick(c *gin.Context) { h.respond(c, h.sessionService.Tick) }

func (h *SessionHandler) GetHistory(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit := 50
	rawLimit := c.Query("limit")
	if rawLimit != "" {
		if parsed, err := strconv.Atoi(rawLimit); err == nil {
			limit = parsed
		}
	}

	sessions, apiErr := h.sessionService.History(c.Request.Context(), userID, limit)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *SessionHandler) GetStatistics(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	items, apiErr := h.sessionService.Statistics(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statistics": items})
}

func (h *SessionHandler) respond(c *gin.Context, action sessionAction) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	view, apiErr := action(c.Request.Context(), userID)
	if apiErr != nil {
		writeError(c, apiErr)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": view})
}
