package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 10 * time.Second

// SignatureNotification is the payload of a signatureNotification message.
type SignatureNotification struct {
	Slot uint64
	Err  *TransactionError
}

type wsMessage struct {
	ID     *uint64         `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
	Method string          `json:"method"`
	Params *struct {
		Result struct {
			Context RPCContext `json:"context"`
			Value   struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
		Subscription uint64 `json:"subscription"`
	} `json:"params"`
}

// SubscribeSignature waits on wsURL for the signatureNotification of sig at
// commitment. The connection is closed when the notification arrives or ctx ends.
func SubscribeSignature(ctx context.Context, wsURL string, sig solana.Signature, commitment string) (*SignatureNotification, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "signatureSubscribe",
		Params:  []any{sig.String(), commitmentConfig{Commitment: commitment}},
	}
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("failed to send signatureSubscribe: %w", err)
	}

	var subscription uint64
	subscribed := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read signature notification: %w", err)
		}

		switch {
		case msg.Error != nil:
			return nil, msg.Error
		case msg.ID != nil && !subscribed:
			if err := json.Unmarshal(msg.Result, &subscription); err != nil {
				return nil, fmt.Errorf("invalid subscription id: %w", err)
			}
			subscribed = true
		case msg.Method == "signatureNotification" && msg.Params != nil:
			if subscribed && msg.Params.Subscription != subscription {
				continue
			}
			return &SignatureNotification{
				Slot: msg.Params.Result.Context.Slot,
				Err:  ParseTransactionError(msg.Params.Result.Value.Err),
			}, nil
		}
	}
}
