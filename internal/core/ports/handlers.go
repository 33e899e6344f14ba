package ports

import (
	"net/http"

	"qosmon/internal/core/domain"

	"github.com/gin-gonic/gin"
)

// HTTPHandler is the read-mostly query surface over the monitoring service.
type HTTPHandler interface {
	ListSessions(c *gin.Context)
	GetSession(c *gin.Context)
	GetMetricsHistory(c *gin.Context)
	GetAverageMetrics(c *gin.Context)
	GetRealtimeMetrics(c *gin.Context)
	GetQualityReport(c *gin.Context)
	GetRecentAlerts(c *gin.Context)
	StopMonitoring(c *gin.Context)
	ClearHistory(c *gin.Context)
	GetThresholds(c *gin.Context)
}

// FeedHandler streams the events of one session to a websocket client.
type FeedHandler interface {
	ServeSession(w http.ResponseWriter, r *http.Request, sessionID domain.SessionID)
}
