package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"

	"github.com/codycordova/codychain/pkg/core"
)

// Subscription event types clients can ask for
const (
	SubscribeNewBlocks       = "newBlocks"
	SubscribeNewTransactions = "newTransactions"
)

// RPC error codes follow the JSON-RPC convention
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
)

const (
	readLimit  = 1024
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
	sendBuffer = 256
)

// RPCError carries a structured error to websocket clients
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// NewRPCError creates a new RPC error
func NewRPCError(code int, message string, data interface{}) *RPCError {
	return &RPCError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// WSRequest represents a WebSocket request
type WSRequest struct {
	ID     interface{}   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// WSResponse represents a WebSocket response
type WSResponse struct {
	ID     interface{} `json:"id"`
	Result interface{} `json:"result,omitempty"`
	Error  *RPCError   `json:"error,omitempty"`
}

// WSNotification represents a WebSocket notification (subscription event)
type WSNotification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// SubscriptionEvent is the payload of a notification
type SubscriptionEvent struct {
	Subscription string      `json:"subscription"`
	Result       interface{} `json:"result"`
}

// SubscribeOptions filters the events a subscription receives. An empty
// address matches everything.
type SubscribeOptions struct {
	Address string `mapstructure:"address"`
}

// subscription tracks one client subscription
type subscription struct {
	id        string
	eventType string
	options   SubscribeOptions
	conn      *wsConnection
}

// wsConnection represents one websocket client
type wsConnection struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

// Hub fans ledger events out to websocket subscribers. It implements
// core.EventListener, so it plugs straight into the ledger config.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu            sync.RWMutex
	connections   map[string]*wsConnection
	subscriptions map[string]*subscription
	nextSubID     uint64
}

// NewHub creates a hub with no connections
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:        logger,
		connections:   make(map[string]*wsConnection),
		subscriptions: make(map[string]*subscription),
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	wsConn := &wsConnection{
		id:     uuid.NewString(),
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		logger: h.logger,
		ctx:    ctx,
		cancel: cancel,
	}

	h.mu.Lock()
	h.connections[wsConn.id] = wsConn
	h.mu.Unlock()

	go wsConn.writePump()
	go wsConn.readPump(h)

	h.logger.Info("websocket connected", "conn_id", wsConn.id)
}

// BlockMined implements core.EventListener
func (h *Hub) BlockMined(block *core.Block) {
	h.notify(SubscribeNewBlocks, block, func(sub *subscription) bool {
		return sub.options.Address == "" || blockTouches(block, sub.options.Address)
	})
}

// TransactionAdmitted implements core.EventListener
func (h *Hub) TransactionAdmitted(tx core.Transaction) {
	h.notify(SubscribeNewTransactions, tx, func(sub *subscription) bool {
		return sub.options.Address == "" || txTouches(tx, sub.options.Address)
	})
}

// notify fans one event out to the matching subscriptions
func (h *Hub) notify(eventType string, event interface{}, match func(*subscription) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subscriptions {
		if sub.eventType != eventType || !match(sub) {
			continue
		}

		notification := WSNotification{
			Method: "subscription",
			Params: SubscriptionEvent{
				Subscription: sub.id,
				Result:       event,
			},
		}

		data, err := json.Marshal(notification)
		if err != nil {
			h.logger.Error("marshalling notification failed", "error", err)
			continue
		}

		select {
		case sub.conn.send <- data:
		case <-sub.conn.ctx.Done():
		default:
			// Send buffer full, drop rather than block the ledger
			h.logger.Warn("dropping notification", "sub_id", sub.id)
		}
	}
}

// Close tears down every live connection
func (h *Hub) Close() {
	h.mu.Lock()
	connections := make([]*wsConnection, 0, len(h.connections))
	for _, conn := range h.connections {
		connections = append(connections, conn)
	}
	h.mu.Unlock()

	for _, conn := range connections {
		conn.cancel()
	}
}

// ActiveConnections returns the number of live connections
func (h *Hub) ActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// ActiveSubscriptions returns the number of live subscriptions
func (h *Hub) ActiveSubscriptions() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions)
}

// subscribe registers a subscription and answers with its ID
func (h *Hub) subscribe(conn *wsConnection, req *WSRequest) {
	if len(req.Params) == 0 {
		conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", "subscription type required"))
		return
	}

	eventType, ok := req.Params[0].(string)
	if !ok {
		conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", "subscription type must be a string"))
		return
	}
	if eventType != SubscribeNewBlocks && eventType != SubscribeNewTransactions {
		conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", "unknown subscription type "+eventType))
		return
	}

	var options SubscribeOptions
	if len(req.Params) > 1 {
		if err := mapstructure.Decode(req.Params[1], &options); err != nil {
			conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", err.Error()))
			return
		}
	}

	h.mu.Lock()
	h.nextSubID++
	subID := fmt.Sprintf("0x%x", h.nextSubID)
	h.subscriptions[subID] = &subscription{
		id:        subID,
		eventType: eventType,
		options:   options,
		conn:      conn,
	}
	h.mu.Unlock()

	conn.sendResult(req.ID, subID)
	h.logger.Info("subscription created", "sub_id", subID, "type", eventType, "conn_id", conn.id)
}

// unsubscribe removes a subscription owned by the connection
func (h *Hub) unsubscribe(conn *wsConnection, req *WSRequest) {
	if len(req.Params) == 0 {
		conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", "subscription ID required"))
		return
	}

	subID, ok := req.Params[0].(string)
	if !ok {
		conn.sendError(req.ID, NewRPCError(codeInvalidParams, "Invalid params", "subscription ID must be a string"))
		return
	}

	removed := false
	h.mu.Lock()
	if sub, exists := h.subscriptions[subID]; exists && sub.conn.id == conn.id {
		delete(h.subscriptions, subID)
		removed = true
	}
	h.mu.Unlock()

	conn.sendResult(req.ID, removed)
}

// dropConnection removes a connection and its subscriptions
func (h *Hub) dropConnection(conn *wsConnection) {
	h.mu.Lock()
	delete(h.connections, conn.id)
	for subID, sub := range h.subscriptions {
		if sub.conn.id == conn.id {
			delete(h.subscriptions, subID)
		}
	}
	h.mu.Unlock()

	conn.cancel()
	h.logger.Info("websocket disconnected", "conn_id", conn.id)
}

// readPump handles incoming messages until the connection dies
func (c *wsConnection) readPump(h *Hub) {
	defer func() {
		h.dropConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", "conn_id", c.id, "error", err)
			}
			return
		}

		c.handleMessage(h, message)
	}
}

// writePump handles outgoing messages and keepalive pings
func (c *wsConnection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.ctx.Done():
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("websocket write failed", "conn_id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage dispatches one client request
func (c *wsConnection) handleMessage(h *Hub, message []byte) {
	var req WSRequest
	if err := json.Unmarshal(message, &req); err != nil {
		c.sendError(nil, NewRPCError(codeParseError, "Parse error", nil))
		return
	}

	switch req.Method {
	case "subscribe":
		h.subscribe(c, &req)
	case "unsubscribe":
		h.unsubscribe(c, &req)
	default:
		c.sendError(req.ID, NewRPCError(codeMethodNotFound, "Method not found", req.Method))
	}
}

// sendResult sends a successful result to the client
func (c *wsConnection) sendResult(id interface{}, result interface{}) {
	c.sendResponse(WSResponse{ID: id, Result: result})
}

// sendError sends an error response to the client
func (c *wsConnection) sendError(id interface{}, rpcErr *RPCError) {
	c.sendResponse(WSResponse{ID: id, Error: rpcErr})
}

// sendResponse queues a response for the write pump
func (c *wsConnection) sendResponse(response WSResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		c.logger.Error("marshalling response failed", "error", err)
		return
	}

	select {
	case c.send <- data:
	case <-c.ctx.Done():
	default:
		// Send buffer full, the client is not keeping up
		c.cancel()
	}
}

// blockTouches reports whether any transaction in the block involves the
// address
func blockTouches(block *core.Block, address string) bool {
	for _, tx := range block.Transactions {
		if txTouches(tx, address) {
			return true
		}
	}
	return false
}

// txTouches reports whether the address sent or received the transaction
func txTouches(tx core.Transaction, address string) bool {
	return tx.Sender == address || tx.Receiver == address
}
