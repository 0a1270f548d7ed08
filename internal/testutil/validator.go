// Package testutil provides an in-process fake Solana JSON-RPC node for tests.
package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gorilla/websocket"
)

// Rule makes the fake node fail transactions whose instruction data contains Discriminator.
type Rule struct {
	Discriminator []byte
	// Custom is the program error code returned on failure.
	Custom uint32
	// AfterFirst lets the first matching transaction succeed and fails every later one.
	AfterFirst bool
	// OnChain reports the failure through the signature status instead of preflight.
	OnChain bool
	Logs    []string

	seen int
}

type account struct {
	owner    solana.PublicKey
	lamports uint64
	data     []byte
}

type sigState struct {
	polls int
	slot  uint64
	err   json.RawMessage
}

// Validator is a fake JSON-RPC node backed by httptest.
type Validator struct {
	Server *httptest.Server

	// StatusSteps is how many status polls a signature spends before reaching
	// each of processed, confirmed and finalized.
	StatusSteps int
	// NeverLand keeps every signature unknown, which lets the blockhash expire.
	NeverLand bool

	mu          sync.Mutex
	calls       map[string]int
	rules       []*Rule
	sigs        map[string]*sigState
	accounts    map[string]account
	blockHeight uint64
	slot        uint64
	sent        [][]byte
}

type request struct {
	ID     json.RawMessage   `json:"id"`
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// NewValidator starts a fake node and registers its shutdown with t.
func NewValidator(t *testing.T) *Validator {
	t.Helper()
	v := &Validator{
		StatusSteps: 1,
		calls:       map[string]int{},
		sigs:        map[string]*sigState{},
		accounts:    map[string]account{},
		blockHeight: 1000,
		slot:        5000,
	}
	v.Server = httptest.NewServer(http.HandlerFunc(v.serve))
	t.Cleanup(v.Server.Close)
	return v
}

// URL is the JSON-RPC endpoint.
func (v *Validator) URL() string { return v.Server.URL }

// WSURL is the websocket endpoint served by the same listener.
func (v *Validator) WSURL() string { return "ws" + strings.TrimPrefix(v.Server.URL, "http") }

func (v *Validator) AddRule(r *Rule) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules = append(v.rules, r)
}

func (v *Validator) SetAccount(key, owner solana.PublicKey, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.accounts[key.String()] = account{owner: owner, lamports: 1_000_000, data: data}
}

// Calls returns how many times method was invoked.
func (v *Validator) Calls(method string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[method]
}

// TotalCalls returns the number of requests of any method.
func (v *Validator) TotalCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, c := range v.calls {
		n += c
	}
	return n
}

// Sent returns the raw transactions accepted by sendTransaction.
func (v *Validator) Sent() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([][]byte(nil), v.sent...)
}

func (v *Validator) serve(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		v.serveWS(w, r)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req request
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, rpcErr := v.handle(req)
	resp := map[string]any{"jsonrpc": "2.0", "id": req.ID}
	if rpcErr != nil {
		resp["error"] = rpcErr
	} else {
		resp["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (v *Validator) handle(req request) (any, map[string]any) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[req.Method]++
	ctx := map[string]any{"slot": v.slot}

	switch req.Method {
	case "getHealth":
		return "ok", nil
	case "getLatestBlockhash":
		hash := solana.Hash{byte(v.calls[req.Method]), 7, 7, 7}
		return map[string]any{
			"context": ctx,
			"value": map[string]any{
				"blockhash":            hash.String(),
				"lastValidBlockHeight": v.blockHeight + 150,
			},
		}, nil
	case "getBlockHeight":
		if v.NeverLand {
			v.blockHeight += 100
		}
		return v.blockHeight, nil
	case "sendTransaction":
		return v.send(req.Params)
	case "getSignatureStatuses":
		return v.statuses(req.Params, ctx)
	case "getAccountInfo":
		var key string
		_ = json.Unmarshal(req.Params[0], &key)
		acct, ok := v.accounts[key]
		if !ok {
			return map[string]any{"context": ctx, "value": nil}, nil
		}
		return map[string]any{
			"context": ctx,
			"value": map[string]any{
				"lamports":   acct.lamports,
				"owner":      acct.owner.String(),
				"executable": false,
				"data":       []string{base64.StdEncoding.EncodeToString(acct.data), "base64"},
				"rentEpoch":  0,
			},
		}, nil
	case "getMinimumBalanceForRentExemption":
		var size uint64
		_ = json.Unmarshal(req.Params[0], &size)
		return (size + 128) * 6960, nil
	}
	return nil, map[string]any{"code": -32601, "message": "Method not found"}
}

func (v *Validator) send(params []json.RawMessage) (any, map[string]any) {
	var encoded string
	if len(params) == 0 || json.Unmarshal(params[0], &encoded) != nil {
		return nil, map[string]any{"code": -32602, "message": "invalid params"}
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(raw) < 65 || raw[0] == 0 {
		return nil, map[string]any{"code": -32602, "message": "failed to deserialize transaction"}
	}
	var sig solana.Signature
	copy(sig[:], raw[1:65])

	var onChainErr json.RawMessage
	for _, rule := range v.rules {
		if !bytes.Contains(raw[65:], rule.Discriminator) {
			continue
		}
		rule.seen++
		if rule.AfterFirst && rule.seen == 1 {
			continue
		}
		txErr := json.RawMessage(fmt.Sprintf(`{"InstructionError":[0,{"Custom":%d}]}`, rule.Custom))
		if rule.OnChain {
			onChainErr = txErr
			continue
		}
		logs := append([]string{}, rule.Logs...)
		logs = append(logs, fmt.Sprintf("Program failed: custom program error: %#x", rule.Custom))
		return nil, map[string]any{
			"code":    -32002,
			"message": fmt.Sprintf("Transaction simulation failed: Error processing Instruction 0: custom program error: %#x", rule.Custom),
			"data":    map[string]any{"err": txErr, "logs": logs},
		}
	}

	v.sent = append(v.sent, raw)
	v.slot++
	v.sigs[sig.String()] = &sigState{slot: v.slot, err: onChainErr}
	return sig.String(), nil
}

func (v *Validator) statuses(params []json.RawMessage, ctx map[string]any) (any, map[string]any) {
	var sigs []string
	if len(params) == 0 || json.Unmarshal(params[0], &sigs) != nil {
		return nil, map[string]any{"code": -32602, "message": "invalid params"}
	}
	out := make([]any, len(sigs))
	for i, s := range sigs {
		st, ok := v.sigs[s]
		if !ok || v.NeverLand {
			continue
		}
		st.polls++
		out[i] = map[string]any{
			"slot":               st.slot,
			"confirmations":      nil,
			"err":                st.err,
			"confirmationStatus": v.levelFor(st.polls),
		}
	}
	return map[string]any{"context": ctx, "value": out}, nil
}

func (v *Validator) levelFor(polls int) string {
	steps := v.StatusSteps
	if steps < 1 {
		steps = 1
	}
	switch {
	case polls < steps:
		return "processed"
	case polls < 2*steps:
		return "confirmed"
	default:
		return "finalized"
	}
}

func (v *Validator) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	var req request
	if err := conn.ReadJSON(&req); err != nil {
		return
	}
	v.mu.Lock()
	v.calls[req.Method]++
	var sig string
	if len(req.Params) > 0 {
		_ = json.Unmarshal(req.Params[0], &sig)
	}
	st, ok := v.sigs[sig]
	v.mu.Unlock()

	_ = conn.WriteJSON(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": 42})
	if !ok {
		// Hold the subscription open until the client gives up.
		_, _, _ = conn.ReadMessage()
		return
	}
	_ = conn.WriteJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "signatureNotification",
		"params": map[string]any{
			"result": map[string]any{
				"context": map[string]any{"slot": st.slot},
				"value":   map[string]any{"err": st.err},
			},
			"subscription": 42,
		},
	})
	_, _, _ = conn.ReadMessage()
}
