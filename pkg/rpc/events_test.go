package rpc

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codycordova/codychain/pkg/core"
)

type wsFrame struct {
	ID     interface{}     `json:"id"`
	Method string          `json:"method"`
	Result interface{}     `json:"result"`
	Error  *RPCError       `json:"error"`
	Params json.RawMessage `json:"params"`
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func writeWS(t *testing.T, conn *websocket.Conn, message interface{}) {
	t.Helper()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteJSON(message); err != nil {
		t.Fatalf("websocket write failed: %v", err)
	}
}

func readWS(t *testing.T, conn *websocket.Conn) wsFrame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("websocket read failed: %v", err)
	}

	var frame wsFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decoding websocket frame failed: %v (%s)", err, data)
	}
	return frame
}

func decodeEvent(t *testing.T, frame wsFrame, result interface{}) string {
	t.Helper()

	if frame.Method != "subscription" {
		t.Fatalf("expected a subscription notification, got %+v", frame)
	}

	var event struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(frame.Params, &event); err != nil {
		t.Fatalf("decoding subscription event failed: %v", err)
	}
	if err := json.Unmarshal(event.Result, result); err != nil {
		t.Fatalf("decoding event result failed: %v", err)
	}
	return event.Subscription
}

func TestSubscribeNewBlocks(t *testing.T) {
	ts, ledger, hub := newTestServer(t)
	conn := dialWS(t, ts)

	writeWS(t, conn, WSRequest{ID: 1, Method: "subscribe", Params: []interface{}{SubscribeNewBlocks}})

	ack := readWS(t, conn)
	subID, ok := ack.Result.(string)
	if !ok || subID == "" {
		t.Fatalf("expected a subscription ID, got %+v", ack)
	}
	if hub.ActiveSubscriptions() != 1 {
		t.Errorf("hub should track one subscription, got %d", hub.ActiveSubscriptions())
	}

	if _, err := ledger.MinePending(context.Background(), "MINR"); err != nil {
		t.Fatalf("mining failed: %v", err)
	}

	var block core.Block
	gotSub := decodeEvent(t, readWS(t, conn), &block)
	if gotSub != subID {
		t.Errorf("notification for subscription %s, want %s", gotSub, subID)
	}
	if block.Index != 1 {
		t.Errorf("notified block index %d, want 1", block.Index)
	}
}

func TestSubscribeNewTransactionsFiltered(t *testing.T) {
	ts, ledger, _ := newTestServer(t)
	conn := dialWS(t, ts)

	writeWS(t, conn, WSRequest{
		ID:     1,
		Method: "subscribe",
		Params: []interface{}{SubscribeNewTransactions, map[string]interface{}{"address": "AB12"}},
	})
	readWS(t, conn)

	if _, err := ledger.AddTransaction(core.Transaction{Sender: "XXXX", Receiver: "YYYY", Amount: 1}); err != nil {
		t.Fatalf("adding transaction failed: %v", err)
	}
	if _, err := ledger.AddTransaction(core.Transaction{Sender: "ZZZZ", Receiver: "AB12", Amount: 2}); err != nil {
		t.Fatalf("adding transaction failed: %v", err)
	}

	// The filtered subscription must only see the matching transaction
	var tx core.Transaction
	decodeEvent(t, readWS(t, conn), &tx)
	if tx.Receiver != "AB12" || tx.Amount != 2 {
		t.Errorf("expected the AB12 transaction, got %+v", tx)
	}
}

func TestUnsubscribe(t *testing.T) {
	ts, _, hub := newTestServer(t)
	conn := dialWS(t, ts)

	writeWS(t, conn, WSRequest{ID: 1, Method: "subscribe", Params: []interface{}{SubscribeNewBlocks}})
	ack := readWS(t, conn)
	subID, _ := ack.Result.(string)

	writeWS(t, conn, WSRequest{ID: 2, Method: "unsubscribe", Params: []interface{}{subID}})
	reply := readWS(t, conn)
	if removed, _ := reply.Result.(bool); !removed {
		t.Errorf("unsubscribe should confirm removal, got %+v", reply)
	}
	if hub.ActiveSubscriptions() != 0 {
		t.Errorf("hub should have no subscriptions left, got %d", hub.ActiveSubscriptions())
	}
}

func TestUnknownMethod(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)

	writeWS(t, conn, WSRequest{ID: 7, Method: "bogus"})

	reply := readWS(t, conn)
	if reply.Error == nil || reply.Error.Code != codeMethodNotFound {
		t.Errorf("expected method not found error, got %+v", reply)
	}
}

func TestUnknownSubscriptionType(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)

	writeWS(t, conn, WSRequest{ID: 3, Method: "subscribe", Params: []interface{}{"newCats"}})

	reply := readWS(t, conn)
	if reply.Error == nil || reply.Error.Code != codeInvalidParams {
		t.Errorf("expected invalid params error, got %+v", reply)
	}
}

func TestParseError(t *testing.T) {
	ts, _, _ := newTestServer(t)
	conn := dialWS(t, ts)

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, []byte("{broken")); err != nil {
		t.Fatalf("websocket write failed: %v", err)
	}

	reply := readWS(t, conn)
	if reply.Error == nil || reply.Error.Code != codeParseError {
		t.Errorf("expected parse error, got %+v", reply)
	}
}
