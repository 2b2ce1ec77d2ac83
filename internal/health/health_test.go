package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubChecker struct {
	name     string
	status   string
	critical bool
}

func (s *stubChecker) Name() string     { return s.name }
func (s *stubChecker) IsCritical() bool { return s.critical }
func (s *stubChecker) Check(ctx context.Context) ComponentStatus {
	return ComponentStatus{Status: s.status}
}

func TestHealthCheckAggregation(t *testing.T) {
	svc := NewHealthService(zap.NewNop())
	svc.RegisterCheck(&stubChecker{name: "store", status: "up", critical: true})

	resp := svc.Check(context.Background())
	assert.Equal(t, "up", resp.Status)
	assert.Contains(t, resp.Components, "store")

	svc.RegisterCheck(&stubChecker{name: "flaky", status: "degraded"})
	resp = svc.Check(context.Background())
	assert.Equal(t, "degraded", resp.Status)

	svc.RegisterCheck(&stubChecker{name: "broken", status: "down"})
	resp = svc.Check(context.Background())
	assert.Equal(t, "down", resp.Status)
}

func TestReadyHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := NewHealthService(zap.NewNop())
	svc.RegisterCheck(&stubChecker{name: "store", status: "up", critical: true})

	router := gin.New()
	svc.RegisterStandardRoutes(router, "")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	svc.RegisterCheck(&stubChecker{name: "broken", status: "down", critical: true})
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestLiveHandlerAlwaysOK(t *testing.T) {
	gin.SetMode(gin.TestMode)

	svc := NewHealthService(zap.NewNop())
	router := gin.New()
	svc.RegisterStandardRoutes(router, "")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
