package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"clips-service/internal/mocks"
	"clips-service/internal/telemetry"
)

func TestDebugAuditRouteEmitsEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	publisher := new(mocks.PublisherMock)
	publisher.On("Publish", mock.Anything, "audit.clips", mock.MatchedBy(func(event any) bool {
		envelope, ok := event.(telemetry.AuditEnvelope)
		return ok &&
			envelope.RequestID == "req-123" &&
			envelope.UserID != nil && *envelope.UserID == 7 &&
			envelope.Payload.Text == "audit test"
	})).Return(nil).Once()
	emitter := telemetry.NewAuditEmitter(publisher, "audit.clips", "clips-service", "test")

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", 7)
		c.Next()
	})
	RegisterDebugRoutes(router, emitter, true)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	req.Header.Set("X-Request-ID", "req-123")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusOK, recorder.Code)
	publisher.AssertExpectations(t)
}

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	RegisterDebugRoutes(router, nil, false)

	req := httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil)
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}
