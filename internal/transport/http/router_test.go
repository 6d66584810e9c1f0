package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/auth"
	jwtpkg "github.com/brunnerh/email-sink/internal/auth/jwt"
	"github.com/brunnerh/email-sink/internal/config"
	"github.com/brunnerh/email-sink/internal/service"
	"github.com/brunnerh/email-sink/internal/storage/memory"
)

type testEnv struct {
	router  *gin.Engine
	sinks   *service.SinkService
	apiKeys *service.APIKeyService
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	jwtManager := jwtpkg.NewManager(
		"this-is-a-test-secret-at-least-32ch",
		"email-sink",
		15*time.Minute,
		7*24*time.Hour,
	)
	authService := auth.NewService(store, jwtManager)

	sinkService := service.NewSinkService(store, nil)
	apiKeyService := service.NewAPIKeyService(sinkService, store)
	authRuleService := service.NewAuthRuleService(sinkService, store)
	ingestService := service.NewIngestService(store, zap.NewNop())
	emailService := service.NewEmailService(store, nil)

	_, err := authService.CreateAdmin(auth.CreateAdminInput{
		Email:    "admin@example.com",
		Username: "admin",
		Password: "test-password-1",
	})
	require.NoError(t, err)

	resp, err := authService.Login("admin@example.com", "test-password-1")
	require.NoError(t, err)

	router := NewRouter(RouterDependencies{
		Config: &config.Config{
			Ingest: config.IngestConfig{MaxRawSize: 10 << 20},
			CORS:   config.CORSConfig{AllowedOrigins: []string{"*"}},
		},
		SinkService:     sinkService,
		IngestService:   ingestService,
		EmailService:    emailService,
		APIKeyService:   apiKeyService,
		AuthRuleService: authRuleService,
		AuthService:     authService,
		JWTManager:      jwtManager,
		Logger:          zap.NewNop(),
	})

	return &testEnv{
		router:  router,
		sinks:   sinkService,
		apiKeys: apiKeyService,
		token:   resp.AccessToken,
	}
}

func (env *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func (env *testEnv) adminReq(method, path string, body interface{}) *http.Request {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+env.token)
	return req
}

func TestAuthLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("正确凭证返回令牌", func(t *testing.T) {
		body := `{"email":"admin@example.com","password":"test-password-1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := env.do(req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.NotEmpty(t, data["accessToken"])
		assert.NotEmpty(t, data["refreshToken"])
	})

	t.Run("错误密码返回401", func(t *testing.T) {
		body := `{"email":"admin@example.com","password":"wrong"}`
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestSinkCRUD(t *testing.T) {
	env := newTestEnv(t)

	t.Run("创建Sink", func(t *testing.T) {
		w := env.do(env.adminReq(http.MethodPost, "/api/sinks", gin.H{
			"name": "CI Reports",
			"slug": "ci-reports",
		}))
		require.Equal(t, http.StatusCreated, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "ci-reports", data["slug"])
	})

	t.Run("重复slug返回409", func(t *testing.T) {
		w := env.do(env.adminReq(http.MethodPost, "/api/sinks", gin.H{
			"name": "Another",
			"slug": "ci-reports",
		}))
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("非法slug返回400", func(t *testing.T) {
		w := env.do(env.adminReq(http.MethodPost, "/api/sinks", gin.H{
			"name": "Bad",
			"slug": "Not Valid!",
		}))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("未认证请求被拒绝", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/sinks", nil)
		w := env.do(req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestIngestGate(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sinks.Create(service.CreateSinkInput{Name: "Open", Slug: "open"})
	require.NoError(t, err)
	locked, err := env.sinks.Create(service.CreateSinkInput{
		Name: "Locked", Slug: "locked", IsAuthEnabled: true,
	})
	require.NoError(t, err)
	plaintext, _, err := env.apiKeys.CreateAPIKey(service.CreateAPIKeyInput{
		SinkID: locked.ID, Name: "ci",
	})
	require.NoError(t, err)

	form := url.Values{}
	form.Set("from", "alice@example.com")
	form.Set("to", "bob@example.com")
	form.Set("text", "hello")

	post := func(slug, token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/"+slug+"/form",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return env.do(req)
	}

	t.Run("未知slug返回404", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, post("missing", "").Code)
	})

	t.Run("未启用鉴权的Sink直接放行", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, post("open", "").Code)
	})

	t.Run("启用鉴权但缺少令牌返回401", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, post("locked", "").Code)
	})

	t.Run("令牌无效返回403", func(t *testing.T) {
		assert.Equal(t, http.StatusForbidden, post("locked", "not-the-key").Code)
	})

	t.Run("令牌正确返回201", func(t *testing.T) {
		assert.Equal(t, http.StatusCreated, post("locked", plaintext).Code)
	})

	t.Run("查询参数不承载令牌", func(t *testing.T) {
		// 查询串会进访问日志，正确的令牌放在这里也必须视同缺失
		req := httptest.NewRequest(http.MethodPost,
			"/api/ingest/locked/form?token="+plaintext,
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		assert.Equal(t, http.StatusUnauthorized, env.do(req).Code)
	})
}

func TestGuardFailClosed(t *testing.T) {
	env := newTestEnv(t)

	// 模拟漏挂守卫的路由：没有任何认证中间件直接挂业务处理函数
	env.router.GET("/naked", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"secret": "should never leak"})
	})

	t.Run("漏挂守卫的路由返回500且不泄露数据", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/naked", nil))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, w.Body.String(), "route missing auth guard")
		assert.NotContains(t, w.Body.String(), "should never leak")
	})

	t.Run("显式公开的路由不受影响", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("未知路径仍是404", func(t *testing.T) {
		w := env.do(httptest.NewRequest(http.MethodGet, "/no/such/path", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestIngestForm(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sinks.Create(service.CreateSinkInput{Name: "Inbox", Slug: "inbox"})
	require.NoError(t, err)

	t.Run("multipart提交附件和自定义头", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("from", "Alice <alice@example.com>"))
		require.NoError(t, mw.WriteField("to", "bob@example.com, carol@example.com"))
		require.NoError(t, mw.WriteField("subject", "build report"))
		require.NoError(t, mw.WriteField("text", "all green"))
		require.NoError(t, mw.WriteField("headers.X-Build-Id", "42"))
		fw, err := mw.CreateFormFile("attachments", "report.txt")
		require.NoError(t, err)
		_, err = fw.Write([]byte("report body"))
		require.NoError(t, err)
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/ingest/inbox/form", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())

		w := env.do(req)
		require.Equal(t, http.StatusCreated, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		data := resp.Data.(map[string]interface{})
		assert.NotEmpty(t, data["emailId"])
		assert.Equal(t, "build report", data["subject"])
	})

	t.Run("缺少from返回400", func(t *testing.T) {
		form := url.Values{}
		form.Set("to", "bob@example.com")
		form.Set("text", "hello")

		req := httptest.NewRequest(http.MethodPost, "/api/ingest/inbox/form",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		w := env.do(req)
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Contains(t, resp.Msg, "from")
	})

	t.Run("JSON载荷同样可用", func(t *testing.T) {
		body := `{"from":"alice@example.com","to":["bob@example.com"],"text":"hi","headers":{"X-Trace":"abc"}}`
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/inbox/form", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")

		w := env.do(req)
		assert.Equal(t, http.StatusCreated, w.Code)
	})
}

func TestIngestRawAndAttachmentDownload(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.sinks.Create(service.CreateSinkInput{Name: "Raw", Slug: "raw-inbox"})
	require.NoError(t, err)
	other, err := env.sinks.Create(service.CreateSinkInput{Name: "Other", Slug: "other"})
	require.NoError(t, err)

	raw := strings.Join([]string{
		"From: sender@example.com",
		"To: raw-inbox@sink.local",
		"Subject: with attachment",
		"MIME-Version: 1.0",
		`Content-Type: multipart/mixed; boundary="frontier"`,
		"",
		"--frontier",
		"Content-Type: text/plain",
		"",
		"see attachment",
		"--frontier",
		`Content-Type: application/octet-stream; name="data.bin"`,
		`Content-Disposition: attachment; filename="data.bin"`,
		"Content-Transfer-Encoding: base64",
		"",
		"aGVsbG8=",
		"--frontier--",
		"",
	}, "\r\n")

	req := httptest.NewRequest(http.MethodPost, "/api/ingest/raw-inbox/raw", strings.NewReader(raw))
	req.Header.Set("Content-Type", "message/rfc822")
	w := env.do(req)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	emailID := resp.Data.(map[string]interface{})["emailId"].(string)

	// 找到 sink 与附件 ID
	sink, err := env.sinks.GetBySlug("raw-inbox")
	require.NoError(t, err)

	listResp := env.do(env.adminReq(http.MethodGet,
		fmt.Sprintf("/api/sinks/%s/emails/%s", sink.ID, emailID), nil))
	require.Equal(t, http.StatusOK, listResp.Code)

	var detail Response
	require.NoError(t, json.Unmarshal(listResp.Body.Bytes(), &detail))
	attachments := detail.Data.(map[string]interface{})["attachments"].([]interface{})
	require.Len(t, attachments, 1)
	attachmentID := attachments[0].(map[string]interface{})["id"].(string)

	t.Run("附件下载返回原始字节", func(t *testing.T) {
		w := env.do(env.adminReq(http.MethodGet,
			fmt.Sprintf("/api/sinks/%s/emails/%s/attachments/%s", sink.ID, emailID, attachmentID), nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "hello", w.Body.String())
		assert.Contains(t, w.Header().Get("Content-Disposition"), "data.bin")
	})

	t.Run("跨Sink访问附件返回404", func(t *testing.T) {
		w := env.do(env.adminReq(http.MethodGet,
			fmt.Sprintf("/api/sinks/%s/emails/%s/attachments/%s", other.ID, emailID, attachmentID), nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("空请求体返回400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/ingest/raw-inbox/raw", strings.NewReader(""))
		w := env.do(req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestEmailListAndDelete(t *testing.T) {
	env := newTestEnv(t)

	sink, err := env.sinks.Create(service.CreateSinkInput{Name: "List", Slug: "list-inbox"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		form := url.Values{}
		form.Set("from", "alice@example.com")
		form.Set("to", "bob@example.com")
		form.Set("subject", fmt.Sprintf("mail %d", i))
		form.Set("text", "body")

		req := httptest.NewRequest(http.MethodPost, "/api/ingest/list-inbox/form",
			strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		require.Equal(t, http.StatusCreated, env.do(req).Code)
	}

	w := env.do(env.adminReq(http.MethodGet, "/api/sinks/"+sink.ID+"/emails", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	require.EqualValues(t, 3, data["count"])

	emailID := data["items"].([]interface{})[0].(map[string]interface{})["id"].(string)

	w = env.do(env.adminReq(http.MethodDelete,
		fmt.Sprintf("/api/sinks/%s/emails/%s", sink.ID, emailID), nil))
	require.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(env.adminReq(http.MethodGet, "/api/sinks/"+sink.ID+"/emails", nil))
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 2, resp.Data.(map[string]interface{})["count"])
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)

	sink, err := env.sinks.Create(service.CreateSinkInput{Name: "Keys", Slug: "keys"})
	require.NoError(t, err)

	w := env.do(env.adminReq(http.MethodPost, "/api/sinks/"+sink.ID+"/keys", gin.H{"name": "ci"}))
	require.Equal(t, http.StatusCreated, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp.Data.(map[string]interface{})
	keyID := data["id"].(string)
	assert.Len(t, data["key"].(string), 64)

	// 列表不包含明文
	w = env.do(env.adminReq(http.MethodGet, "/api/sinks/"+sink.ID+"/keys", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	items := resp.Data.(map[string]interface{})["items"].([]interface{})
	require.Len(t, items, 1)
	_, hasKey := items[0].(map[string]interface{})["key"]
	assert.False(t, hasKey)

	w = env.do(env.adminReq(http.MethodDelete, "/api/sinks/"+sink.ID+"/keys/"+keyID, nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
