package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// guardMarkKey 某个认证环节已经对请求表态后写入的标记。
const guardMarkKey = "authGuardMarked"

// MarkGuard 标记请求已通过某个认证环节（闸门、JWT 或显式公开）。
func MarkGuard(c *gin.Context) {
	c.Set(guardMarkKey, true)
}

// Public 显式声明路由为公开访问。
// 公开也是一种决定，必须在路由上写出来，而不是默认放行。
func Public() gin.HandlerFunc {
	return func(c *gin.Context) {
		MarkGuard(c)
		c.Next()
	}
}

// GuardEnforcement 全局护栏，注册在所有路由之前。
// 成功响应的第一个字节写出时必须已有认证环节标记过请求；
// 没有标记说明某条路由忘了挂守卫，此时丢弃处理函数的输出、
// 改写为 500。漏挂守卫的路由因此默认关闭，而不是默认敞开。
// 4xx/5xx 拒绝（限流、超限、认证失败）不泄露数据，放行。
func GuardEnforcement(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		w := &guardedWriter{ResponseWriter: c.Writer, ctx: c, log: log}
		c.Writer = w
		c.Next()

		// 处理函数什么都没写（例如只 c.Status）时也要兜底
		if !w.Written() {
			w.ensureGuarded(w.ResponseWriter.Status())
		}
	}
}

// guardedWriter 在实际写出成功响应前校验守卫标记。
type guardedWriter struct {
	gin.ResponseWriter
	ctx     *gin.Context
	log     *zap.Logger
	blocked bool
}

func (w *guardedWriter) WriteHeader(code int) {
	if w.ensureGuarded(code) {
		w.ResponseWriter.WriteHeader(code)
	}
}

func (w *guardedWriter) WriteHeaderNow() {
	if w.ensureGuarded(w.ResponseWriter.Status()) {
		w.ResponseWriter.WriteHeaderNow()
	}
}

func (w *guardedWriter) Write(b []byte) (int, error) {
	if !w.ensureGuarded(w.ResponseWriter.Status()) {
		// 违规路由的输出整体丢弃
		return len(b), nil
	}
	return w.ResponseWriter.Write(b)
}

func (w *guardedWriter) WriteString(s string) (int, error) {
	if !w.ensureGuarded(w.ResponseWriter.Status()) {
		return len(s), nil
	}
	return w.ResponseWriter.WriteString(s)
}

// ensureGuarded 返回能否继续写出。未标记的成功响应首次写出时改写为 500。
func (w *guardedWriter) ensureGuarded(code int) bool {
	if w.blocked {
		return false
	}
	if code >= http.StatusBadRequest {
		return true
	}
	if w.ctx.GetBool(guardMarkKey) {
		return true
	}

	w.blocked = true
	w.log.Error("route missing auth guard",
		zap.String("method", w.ctx.Request.Method),
		zap.String("path", w.ctx.FullPath()),
	)
	w.ctx.Abort()
	w.ResponseWriter.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.ResponseWriter.WriteHeader(http.StatusInternalServerError)
	_, _ = w.ResponseWriter.Write([]byte(`{"error":"route missing auth guard"}`))
	return false
}
