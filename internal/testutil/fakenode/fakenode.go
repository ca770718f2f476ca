// Package fakenode 提供测试用的进程内 JSON-RPC 节点
//
// 基于 gin + gorilla/websocket，按方法名返回脚本化的结果，可注入延迟、
// 断开连接与原始响应，用于传输层与客户端测试。
package fakenode

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Request 节点收到的 JSON-RPC 请求
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Error JSON-RPC 错误对象
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Handler 方法处理函数
type Handler func(req Request) (interface{}, *Error)

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Node 测试节点
type Node struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler
	raw      map[string]func(req Request) []byte
	delays   map[string]time.Duration
	drops    map[string]bool
	calls    []Request
	accepted int
	conns    map[*websocket.Conn]struct{}
}

// New 启动测试节点
func New(logger *zap.Logger) *Node {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.TestMode)

	n := &Node{
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		handlers: make(map[string]Handler),
		raw:      make(map[string]func(req Request) []byte),
		delays:   make(map[string]time.Duration),
		drops:    make(map[string]bool),
		conns:    make(map[*websocket.Conn]struct{}),
	}

	engine := gin.New()
	engine.GET("/", n.handleWebSocket)
	n.server = httptest.NewServer(engine)
	return n
}

// URL 节点 WebSocket 地址
func (n *Node) URL() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http") + "/"
}

// HTTPURL 节点 HTTP 地址
func (n *Node) HTTPURL() string {
	return n.server.URL
}

// Handle 注册方法处理函数
func (n *Node) Handle(method string, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[method] = h
}

// HandleResult 注册固定结果
func (n *Node) HandleResult(method string, result interface{}) {
	n.Handle(method, func(Request) (interface{}, *Error) { return result, nil })
}

// HandleJSON 注册固定的原始 JSON 结果
func (n *Node) HandleJSON(method string, result string) {
	n.HandleResult(method, json.RawMessage(result))
}

// HandleError 注册固定错误
func (n *Node) HandleError(method string, code int, message string) {
	n.Handle(method, func(Request) (interface{}, *Error) {
		return nil, &Error{Code: code, Message: message}
	})
}

// HandleRaw 注册原始响应报文（不做任何封装）
func (n *Node) HandleRaw(method string, fn func(req Request) []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.raw[method] = fn
}

// Delay 响应前等待
func (n *Node) Delay(method string, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delays[method] = d
}

// Drop 收到该方法时直接断开连接
func (n *Node) Drop(method string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.drops[method] = true
}

// Calls 已收到的方法名（按顺序）
func (n *Node) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.calls))
	for _, c := range n.calls {
		out = append(out, c.Method)
	}
	return out
}

// Requests 已收到的请求
func (n *Node) Requests() []Request {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Request(nil), n.calls...)
}

// Accepted 已接受的连接数
func (n *Node) Accepted() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.accepted
}

// Close 关闭所有连接并停止服务
func (n *Node) Close() {
	n.mu.Lock()
	for c := range n.conns {
		_ = c.Close()
	}
	n.mu.Unlock()
	n.server.Close()
}

// handleWebSocket 处理 WebSocket 连接
func (n *Node) handleWebSocket(c *gin.Context) {
	conn, err := n.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		n.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	n.mu.Lock()
	n.accepted++
	n.conns[conn] = struct{}{}
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.conns, conn)
		n.mu.Unlock()
		_ = conn.Close()
	}()

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if !n.serve(conn, message) {
			return
		}
	}
}

// serve 处理单条请求，返回 false 表示应断开连接
func (n *Node) serve(conn *websocket.Conn, message []byte) bool {
	var req Request
	if err := json.Unmarshal(message, &req); err != nil {
		return n.write(conn, response{JSONRPC: "2.0", ID: json.RawMessage("null"), Error: &Error{Code: -32700, Message: "Parse error"}})
	}

	n.mu.Lock()
	n.calls = append(n.calls, req)
	handler := n.handlers[req.Method]
	raw := n.raw[req.Method]
	delay := n.delays[req.Method]
	drop := n.drops[req.Method]
	n.mu.Unlock()

	if drop {
		return false
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	if raw != nil {
		return conn.WriteMessage(websocket.TextMessage, raw(req)) == nil
	}
	if handler == nil {
		return n.write(conn, response{JSONRPC: "2.0", ID: req.ID, Error: &Error{Code: -32601, Message: "Method not found"}})
	}

	result, rpcErr := handler(req)
	if rpcErr != nil {
		return n.write(conn, response{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
	}
	if result == nil {
		result = json.RawMessage("null")
	}
	return n.write(conn, response{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (n *Node) write(conn *websocket.Conn, resp response) bool {
	data, err := json.Marshal(resp)
	if err != nil {
		n.logger.Error("Failed to marshal response", zap.Error(err))
		return false
	}
	return conn.WriteMessage(websocket.TextMessage, data) == nil
}
