package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"qosmon/internal/core/domain"
	"qosmon/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockMonitoringService struct {
	mock.Mock
}

func (m *MockMonitoringService) SubscribeMetrics(handler ports.MetricsHandler) func() {
	return func() {}
}

func (m *MockMonitoringService) SubscribeAlerts(handler ports.AlertsHandler) func() {
	return func() {}
}

func (m *MockMonitoringService) StartMonitoring(sessionID domain.SessionID, source ports.StatsSource, intervalMs int) error {
	args := m.Called(sessionID, source, intervalMs)
	return args.Error(0)
}

func (m *MockMonitoringService) StopMonitoring(sessionID domain.SessionID) {
	m.Called(sessionID)
}

func (m *MockMonitoringService) Destroy() {
	m.Called()
}

func (m *MockMonitoringService) Thresholds() domain.QualityThresholds {
	args := m.Called()
	return args.Get(0).(domain.QualityThresholds)
}

func (m *MockMonitoringService) IsMonitoring(sessionID domain.SessionID) bool {
	args := m.Called(sessionID)
	return args.Bool(0)
}

func (m *MockMonitoringService) ActiveSessions() []domain.SessionID {
	args := m.Called()
	return args.Get(0).([]domain.SessionID)
}

func (m *MockMonitoringService) ClearHistory(sessionID domain.SessionID) {
	m.Called(sessionID)
}

func (m *MockMonitoringService) GetMetricsHistory(sessionID domain.SessionID) []*domain.MetricsSnapshot {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]*domain.MetricsSnapshot)
}

func (m *MockMonitoringService) GetAverageMetrics(sessionID domain.SessionID) (*domain.AverageMetrics, bool) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.AverageMetrics), args.Bool(1)
}

func (m *MockMonitoringService) GenerateQualityReport(sessionID domain.SessionID) (*domain.QualityReport, bool) {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil, args.Bool(1)
	}
	return args.Get(0).(*domain.QualityReport), args.Bool(1)
}

func (m *MockMonitoringService) RecentAlerts(sessionID domain.SessionID) []domain.Alert {
	args := m.Called(sessionID)
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]domain.Alert)
}

func (m *MockMonitoringService) GetRealtimeMetrics(ctx context.Context, sessionID domain.SessionID) (*domain.MetricsSnapshot, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.MetricsSnapshot), args.Error(1)
}

func setupRouter(svc ports.MonitoringService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewQoSHandler(svc).SetupRoutes(router)
	return router
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func snapshots(n int) []*domain.MetricsSnapshot {
	out := make([]*domain.MetricsSnapshot, n)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = &domain.MetricsSnapshot{
			SessionID:    "s1",
			Timestamp:    base.Add(time.Duration(i) * time.Second),
			Latency:      float64(40 + i),
			QualityScore: 100,
			QualityLevel: domain.QualityExcellent,
		}
	}
	return out
}

func TestQoSHandler_ListSessions(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("ActiveSessions").Return([]domain.SessionID{"a", "b"})

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/sessions")

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(2), body["count"])
	assert.ElementsMatch(t, []interface{}{"a", "b"}, body["sessions"])
	svc.AssertExpectations(t)
}

func TestQoSHandler_GetSession(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GetMetricsHistory", domain.SessionID("s1")).Return(snapshots(3))
	svc.On("IsMonitoring", domain.SessionID("s1")).Return(true)

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/sessions/s1")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["monitoring"])
	assert.Equal(t, float64(3), body["sampleCount"])
	latest := body["latest"].(map[string]interface{})
	assert.Equal(t, float64(42), latest["latency"])
}

func TestQoSHandler_GetSession_Unknown(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GetMetricsHistory", domain.SessionID("ghost")).Return(nil)
	svc.On("IsMonitoring", domain.SessionID("ghost")).Return(false)

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/sessions/ghost")

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, w)["error"])
}

func TestQoSHandler_InvalidSessionID(t *testing.T) {
	svc := new(MockMonitoringService)

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/sessions/bad%20id/metrics")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode(t, w)["error"])
	svc.AssertNotCalled(t, "GetMetricsHistory", mock.Anything)
}

func TestQoSHandler_GetMetricsHistory(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GetMetricsHistory", domain.SessionID("s1")).Return(snapshots(5))
	router := setupRouter(svc)

	t.Run("all", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/metrics")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(5), decode(t, w)["count"])
	})

	t.Run("limit keeps newest", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/metrics?limit=2")
		require.Equal(t, http.StatusOK, w.Code)
		body := decode(t, w)
		assert.Equal(t, float64(2), body["count"])
		metrics := body["metrics"].([]interface{})
		assert.Equal(t, float64(43), metrics[0].(map[string]interface{})["latency"])
		assert.Equal(t, float64(44), metrics[1].(map[string]interface{})["latency"])
	})

	t.Run("bad limit", func(t *testing.T) {
		w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/metrics?limit=-1")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQoSHandler_GetAverageMetrics(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GetAverageMetrics", domain.SessionID("s1")).Return(&domain.AverageMetrics{Latency: 50, SampleCount: 4}, true)
	svc.On("GetAverageMetrics", domain.SessionID("empty")).Return(nil, false)
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/metrics/average")
	require.Equal(t, http.StatusOK, w.Code)
	avg := decode(t, w)["average"].(map[string]interface{})
	assert.Equal(t, float64(50), avg["latency"])
	assert.Equal(t, float64(4), avg["sampleCount"])

	w = doRequest(router, http.MethodGet, "/api/v1/sessions/empty/metrics/average")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_METRICS", decode(t, w)["error"])
}

func TestQoSHandler_GetRealtimeMetrics(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GetRealtimeMetrics", mock.Anything, domain.SessionID("s1")).Return(snapshots(1)[0], nil)
	svc.On("GetRealtimeMetrics", mock.Anything, domain.SessionID("gone")).Return(nil, domain.ErrNoMetrics)
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/metrics/realtime")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodGet, "/api/v1/sessions/gone/metrics/realtime")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NO_METRICS", decode(t, w)["error"])
}

func TestQoSHandler_GetQualityReport(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("GenerateQualityReport", domain.SessionID("s1")).Return(&domain.QualityReport{
		SessionID:   "s1",
		SampleCount: 10,
		Stability:   90,
		Issues:      []string{},
	}, true)
	svc.On("GenerateQualityReport", domain.SessionID("none")).Return(nil, false)
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/report")
	require.Equal(t, http.StatusOK, w.Code)
	report := decode(t, w)["report"].(map[string]interface{})
	assert.Equal(t, "s1", report["sessionId"])
	assert.Equal(t, float64(90), report["stability"])

	w = doRequest(router, http.MethodGet, "/api/v1/sessions/none/report")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestQoSHandler_GetRecentAlerts(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("RecentAlerts", domain.SessionID("s1")).Return([]domain.Alert{
		{SessionID: "s1", Type: domain.AlertWarning, Metric: domain.MetricLatency, Value: 180},
	})
	svc.On("RecentAlerts", domain.SessionID("quiet")).Return(nil)
	router := setupRouter(svc)

	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s1/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), decode(t, w)["count"])

	w = doRequest(router, http.MethodGet, "/api/v1/sessions/quiet/alerts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []interface{}{}, decode(t, w)["alerts"])
}

func TestQoSHandler_StopMonitoring(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("IsMonitoring", domain.SessionID("s1")).Return(true)
	svc.On("StopMonitoring", domain.SessionID("s1")).Return()

	w := doRequest(setupRouter(svc), http.MethodPost, "/api/v1/sessions/s1/stop")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode(t, w)["stopped"])
	svc.AssertCalled(t, "StopMonitoring", domain.SessionID("s1"))
}

func TestQoSHandler_ClearHistory(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("ClearHistory", domain.SessionID("s1")).Return()

	w := doRequest(setupRouter(svc), http.MethodDelete, "/api/v1/sessions/s1/history")

	assert.Equal(t, http.StatusNoContent, w.Code)
	svc.AssertExpectations(t)
}

func TestQoSHandler_GetThresholds(t *testing.T) {
	svc := new(MockMonitoringService)
	svc.On("Thresholds").Return(domain.DefaultThresholds())

	w := doRequest(setupRouter(svc), http.MethodGet, "/api/v1/thresholds")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w), "thresholds")
}
