package http

import (
	"net/http"
	"strconv"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"
	apperrors "qosmon/pkg/errors"
	"qosmon/pkg/validation"

	"github.com/gin-gonic/gin"
)

type QoSHandler struct {
	monitoring ports.MonitoringService
}

func NewQoSHandler(monitoring ports.MonitoringService) *QoSHandler {
	return &QoSHandler{monitoring: monitoring}
}

func (h *QoSHandler) SetupRoutes(router gin.IRouter) {
	api := router.Group("/api/v1")
	{
		api.GET("/thresholds", h.GetThresholds)
		api.GET("/sessions", h.ListSessions)

		session := api.Group("/sessions/:id", h.requireSessionID)
		{
			session.GET("", h.GetSession)
			session.GET("/metrics", h.GetMetricsHistory)
			session.GET("/metrics/average", h.GetAverageMetrics)
			session.GET("/metrics/realtime", h.GetRealtimeMetrics)
			session.GET("/report", h.GetQualityReport)
			session.GET("/alerts", h.GetRecentAlerts)
			session.POST("/stop", h.StopMonitoring)
			session.DELETE("/history", h.ClearHistory)
		}
	}
}

// requireSessionID rejects malformed ids before any handler runs.
func (h *QoSHandler) requireSessionID(c *gin.Context) {
	if err := validation.ValidateSessionID(c.Param("id")); err != nil {
		respondError(c, apperrors.NewInvalidInputError(err.Error()).WithContext("session_id", c.Param("id")))
		return
	}
	c.Next()
}

func sessionID(c *gin.Context) domain.SessionID {
	return domain.SessionID(c.Param("id"))
}

func respondError(c *gin.Context, err error) {
	appErr := apperrors.FromDomainError(err)
	c.Error(err)

	body := gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	}
	if len(appErr.Context) > 0 {
		body["details"] = appErr.Context
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, body)
}

func (h *QoSHandler) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"thresholds": h.monitoring.Thresholds(),
	})
}

func (h *QoSHandler) ListSessions(c *gin.Context) {
	sessions := h.monitoring.ActiveSessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (h *QoSHandler) GetSession(c *gin.Context) {
	id := sessionID(c)
	history := h.monitoring.GetMetricsHistory(id)
	monitoring := h.monitoring.IsMonitoring(id)
	if !monitoring && len(history) == 0 {
		respondError(c, apperrors.NewNotFoundError("session"))
		return
	}

	resp := gin.H{
		"sessionId":   id,
		"monitoring":  monitoring,
		"sampleCount": len(history),
	}
	if len(history) > 0 {
		resp["latest"] = history[len(history)-1]
	}
	c.JSON(http.StatusOK, resp)
}

// GetMetricsHistory returns the retained snapshots, oldest first. ?limit=N
// keeps only the newest N.
func (h *QoSHandler) GetMetricsHistory(c *gin.Context) {
	history := h.monitoring.GetMetricsHistory(sessionID(c))

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			respondError(c, apperrors.NewInvalidInputError("limit must be a positive integer"))
			return
		}
		if limit < len(history) {
			history = history[len(history)-limit:]
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID(c),
		"metrics":   history,
		"count":     len(history),
	})
}

func (h *QoSHandler) GetAverageMetrics(c *gin.Context) {
	avg, ok := h.monitoring.GetAverageMetrics(sessionID(c))
	if !ok {
		respondError(c, domain.ErrNoMetrics)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID(c),
		"average":   avg,
	})
}

func (h *QoSHandler) GetRealtimeMetrics(c *gin.Context) {
	snapshot, err := h.monitoring.GetRealtimeMetrics(c.Request.Context(), sessionID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID(c),
		"metrics":   snapshot,
	})
}

func (h *QoSHandler) GetQualityReport(c *gin.Context) {
	report, ok := h.monitoring.GenerateQualityReport(sessionID(c))
	if !ok {
		respondError(c, domain.ErrNoMetrics)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"report": report,
	})
}

func (h *QoSHandler) GetRecentAlerts(c *gin.Context) {
	alerts := h.monitoring.RecentAlerts(sessionID(c))
	if alerts == nil {
		alerts = []domain.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessionId": sessionID(c),
		"alerts":    alerts,
		"count":     len(alerts),
	})
}

// StopMonitoring is idempotent; stopping an unknown session succeeds.
func (h *QoSHandler) StopMonitoring(c *gin.Context) {
	id := sessionID(c)
	wasMonitoring := h.monitoring.IsMonitoring(id)
	h.monitoring.StopMonitoring(id)

	c.JSON(http.StatusOK, gin.H{
		"sessionId": id,
		"stopped":   wasMonitoring,
	})
}

func (h *QoSHandler) ClearHistory(c *gin.Context) {
	h.monitoring.ClearHistory(sessionID(c))
	c.Status(http.StatusNoContent)
}

var _ ports.HTTPHandler = (*QoSHandler)(nil)
