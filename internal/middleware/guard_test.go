package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newGuardedRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GuardEnforcement(nil))
	return router
}

func TestGuardEnforcement(t *testing.T) {
	t.Run("未标记的成功响应改写为500", func(t *testing.T) {
		router := newGuardedRouter()
		router.GET("/leak", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"secret": "exposed"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/leak", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "exposed")
	})

	t.Run("显式公开的路由放行", func(t *testing.T) {
		router := newGuardedRouter()
		router.GET("/open", Public(), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "ok"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "ok")
	})

	t.Run("守卫自身的拒绝响应放行", func(t *testing.T) {
		// 认证中间件拒绝请求时还没有标记，4xx 不泄露数据，不改写
		router := newGuardedRouter()
		router.GET("/denied", func(c *gin.Context) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "access token required"})
			c.Abort()
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/denied", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "access token required")
	})

	t.Run("只设状态码不写响应体也兜底", func(t *testing.T) {
		router := newGuardedRouter()
		router.DELETE("/silent", func(c *gin.Context) {
			c.Status(http.StatusNoContent)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/silent", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
