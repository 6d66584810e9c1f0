package websocket

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/brunnerh/email-sink/internal/auth/jwt"
	"github.com/brunnerh/email-sink/internal/domain"
)

// MessageType 定义WebSocket消息类型
type MessageType string

const (
	MessageTypeNewEmail    MessageType = "new_email"
	MessageTypePing        MessageType = "ping"
	MessageTypePong        MessageType = "pong"
	MessageTypeSubscribe   MessageType = "subscribe"
	MessageTypeUnsubscribe MessageType = "unsubscribe"
	MessageTypeSubscribed  MessageType = "subscribed"
	MessageTypeError       MessageType = "error"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      MessageType     `json:"type"`
	SinkID    string          `json:"sinkId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// upgraderFactory 创建带有 Origin 验证的 WebSocket 升级器
func upgraderFactory(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			for _, origin := range allowedOrigins {
				if origin == "*" {
					return true
				}
			}

			requestOrigin := r.Header.Get("Origin")
			if requestOrigin == "" {
				// 无 Origin 视为同源请求
				return true
			}

			for _, origin := range allowedOrigins {
				if requestOrigin == origin {
					return true
				}
			}

			return false
		},
	}
}

// Client 代表一个WebSocket客户端连接
type Client struct {
	ID      string
	UserID  string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	sinkIDs map[string]bool // 订阅的 Sink ID
	mu      sync.RWMutex
	log     *zap.Logger
}

// Hub 管理所有 WebSocket 连接，按 Sink 维度分发新邮件通知。
// 订阅需要管理端 JWT：所有 Sink 对管理员可见。
type Hub struct {
	clients        map[string]*Client            // clientID -> Client
	sinks          map[string]map[string]*Client // sinkID -> clientID -> Client
	register       chan *Client
	unregister     chan *Client
	broadcast      chan *BroadcastMessage
	mu             sync.RWMutex
	log            *zap.Logger
	allowedOrigins []string
	jwtManager     *jwt.Manager
}

// BroadcastMessage 广播消息
type BroadcastMessage struct {
	SinkID  string
	Message *Message
}

// NewHub 创建WebSocket Hub
func NewHub(allowedOrigins []string, jwtManager *jwt.Manager, log *zap.Logger) *Hub {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Hub{
		clients:        make(map[string]*Client),
		sinks:          make(map[string]map[string]*Client),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		broadcast:      make(chan *BroadcastMessage, 256),
		log:            log,
		allowedOrigins: allowedOrigins,
		jwtManager:     jwtManager,
	}
}

// Run 启动Hub
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info("websocket hub stopped")
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.log.Info("client registered", zap.String("id", client.ID))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for sinkID := range client.sinkIDs {
					if clients, exists := h.sinks[sinkID]; exists {
						delete(clients, client.ID)
						if len(clients) == 0 {
							delete(h.sinks, sinkID)
						}
					}
				}
				delete(h.clients, client.ID)
				close(client.send)
				h.log.Info("client unregistered", zap.String("id", client.ID))
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.broadcastToSink(msg.SinkID, msg.Message)

		case <-ticker.C:
			h.pingAllClients()
		}
	}
}

// NewEmailData 新邮件通知数据：只发摘要，正文和附件由客户端按需拉取
type NewEmailData struct {
	EmailID    string `json:"emailId"`
	SinkID     string `json:"sinkId"`
	From       string `json:"from,omitempty"`
	Subject    string `json:"subject"`
	Preview    string `json:"preview,omitempty"`
	HasHTML    bool   `json:"hasHtml"`
	HasText    bool   `json:"hasText"`
	ReceivedAt string `json:"receivedAt"`
}

// NotifyNewEmail 通知新邮件入库
func (h *Hub) NotifyNewEmail(sinkID string, email *domain.Email) {
	preview := email.TextContent
	if len(preview) > 100 {
		preview = preview[:100]
	}

	from := ""
	if email.FromAddress != nil {
		from = *email.FromAddress
	}

	newEmailData := NewEmailData{
		EmailID:    email.ID,
		SinkID:     sinkID,
		From:       from,
		Subject:    email.Subject,
		Preview:    preview,
		HasHTML:    email.HTMLContent != "",
		HasText:    email.TextContent != "",
		ReceivedAt: email.ReceivedAt.Format(time.RFC3339),
	}

	data, err := json.Marshal(newEmailData)
	if err != nil {
		h.log.Error("failed to marshal new email data", zap.Error(err))
		return
	}

	msg := &Message{
		Type:      MessageTypeNewEmail,
		SinkID:    sinkID,
		Data:      data,
		Timestamp: time.Now(),
	}

	h.broadcast <- &BroadcastMessage{
		SinkID:  sinkID,
		Message: msg,
	}
}

// broadcastToSink 向订阅特定 Sink 的客户端广播消息
func (h *Hub) broadcastToSink(sinkID string, msg *Message) {
	h.mu.RLock()
	clients := h.sinks[sinkID]
	h.mu.RUnlock()

	if len(clients) == 0 {
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	for _, client := range clients {
		select {
		case client.send <- data:
		default:
			// 客户端阻塞，跳过
			h.log.Warn("client channel blocked, skipping", zap.String("clientID", client.ID))
		}
	}
}

// pingAllClients 向所有客户端发送ping
func (h *Hub) pingAllClients() {
	msg := &Message{
		Type:      MessageTypePing,
		Timestamp: time.Now(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		select {
		case client.send <- data:
		default:
		}
	}
}

// closeAllClients 关闭所有客户端连接
func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	h.sinks = make(map[string]map[string]*Client)
}

// authenticateClient 认证客户端：URL 参数或 Authorization 头里的管理端 JWT
func (h *Hub) authenticateClient(c *gin.Context) (*Client, error) {
	token := c.Query("token")
	if token == "" {
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			token = authHeader[7:]
		}
	}

	if token == "" {
		return nil, jwt.ErrInvalidToken
	}

	claims, err := h.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, err
	}

	return &Client{
		ID:      generateClientID(),
		UserID:  claims.UserID,
		sinkIDs: make(map[string]bool),
		log:     h.log,
	}, nil
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub) gin.HandlerFunc {
	upgrader := upgraderFactory(hub.allowedOrigins)

	return func(c *gin.Context) {
		client, err := hub.authenticateClient(c)
		if err != nil {
			hub.log.Warn("websocket authentication failed",
				zap.Error(err),
				zap.String("remote_addr", c.ClientIP()))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			hub.log.Error("failed to upgrade connection",
				zap.Error(err),
				zap.String("origin", c.Request.Header.Get("Origin")),
				zap.String("remote_addr", c.ClientIP()))
			return
		}

		client.conn = conn
		client.hub = hub
		client.send = make(chan []byte, 256)

		hub.register <- client

		go client.writePump()
		go client.readPump()

		// 路径里的 Sink 直接订阅，客户端无需再发 subscribe 消息
		if sinkID := c.Param("id"); sinkID != "" {
			client.subscribeSink(sinkID)
		}
	}
}

// readPump 处理客户端消息
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var msg Message
		err := c.conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Error("websocket error", zap.Error(err))
			}
			break
		}

		c.handleMessage(&msg)
	}
}

// writePump 发送消息给客户端
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		c.subscribeSink(msg.SinkID)
	case MessageTypeUnsubscribe:
		c.unsubscribeSink(msg.SinkID)
	case MessageTypePong:
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	default:
		c.log.Warn("unknown message type", zap.String("type", string(msg.Type)))
	}
}

// subscribeSink 订阅 Sink 的新邮件通知
func (c *Client) subscribeSink(sinkID string) {
	if sinkID == "" {
		c.sendError("sink ID is required")
		return
	}

	c.mu.Lock()
	c.sinkIDs[sinkID] = true
	c.mu.Unlock()

	c.hub.mu.Lock()
	if c.hub.sinks[sinkID] == nil {
		c.hub.sinks[sinkID] = make(map[string]*Client)
	}
	c.hub.sinks[sinkID][c.ID] = c
	c.hub.mu.Unlock()

	c.log.Info("subscribed to sink",
		zap.String("clientID", c.ID),
		zap.String("sinkID", sinkID),
		zap.String("userID", c.UserID))

	c.sendMessage(&Message{
		Type:      MessageTypeSubscribed,
		SinkID:    sinkID,
		Timestamp: time.Now(),
	})
}

// unsubscribeSink 取消订阅
func (c *Client) unsubscribeSink(sinkID string) {
	c.mu.Lock()
	delete(c.sinkIDs, sinkID)
	c.mu.Unlock()

	c.hub.mu.Lock()
	if clients, exists := c.hub.sinks[sinkID]; exists {
		delete(clients, c.ID)
		if len(clients) == 0 {
			delete(c.hub.sinks, sinkID)
		}
	}
	c.hub.mu.Unlock()
}

// sendError 发送错误消息给客户端
func (c *Client) sendError(errMsg string) {
	c.sendMessage(&Message{
		Type:      MessageTypeError,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// sendMessage 发送消息给客户端
func (c *Client) sendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.log.Error("failed to marshal message", zap.Error(err))
		return
	}

	select {
	case c.send <- data:
	default:
		c.log.Warn("client channel blocked", zap.String("clientID", c.ID))
	}
}

// generateClientID 生成客户端ID
func generateClientID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405")
	}
	return time.Now().Format("20060102150405") + "-" + hex.EncodeToString(b)
}
