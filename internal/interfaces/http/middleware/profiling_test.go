package middleware

import (
	"net/http"
	"net/http/httptest"
	"runtime/pprof"
	"testing"

	"github.com/edubill/backend/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestProfiling_LabelsRequestContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(logger.GinAccountIDKey, "acct-7")
		c.Next()
	})
	r.Use(Profiling())

	got := map[string]string{}
	r.GET("/api/v1/transactions/:id", func(c *gin.Context) {
		for _, key := range []string{"route", "method", "account_id"} {
			got[key], _ = pprof.Label(c.Request.Context(), key)
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/42", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]string{
		"route":      "/api/v1/transactions/:id",
		"method":     http.MethodGet,
		"account_id": "acct-7",
	}, got)
}
