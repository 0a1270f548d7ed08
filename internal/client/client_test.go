package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/vaultctl/internal/testutil"
)

var initializeDisc = []byte{175, 175, 109, 31, 13, 152, 155, 237}

// rawTx builds a minimal wire payload: one signature followed by a body
// carrying the given instruction data.
func rawTx(sigByte byte, data []byte) []byte {
	raw := []byte{1}
	sig := make([]byte, 64)
	sig[0] = sigByte
	raw = append(raw, sig...)
	raw = append(raw, 1, 0, 1, 2)
	return append(raw, data...)
}

func TestGetHealthAndBlockhash(t *testing.T) {
	v := testutil.NewValidator(t)
	c := NewRPCClient(v.URL(), 0)
	ctx := context.Background()

	require.NoError(t, c.GetHealth(ctx))

	bh, err := c.GetLatestBlockhash(ctx, "finalized")
	require.NoError(t, err)
	assert.False(t, bh.Blockhash.IsZero())
	assert.Equal(t, uint64(1150), bh.LastValidBlockHeight)

	height, err := c.GetBlockHeight(ctx, "finalized")
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), height)
}

func TestSendTransactionAndStatuses(t *testing.T) {
	v := testutil.NewValidator(t)
	c := NewRPCClient(v.URL(), 0)
	ctx := context.Background()

	sig, err := c.SendTransaction(ctx, rawTx(9, initializeDisc), "finalized", false)
	require.NoError(t, err)
	assert.Equal(t, byte(9), sig[0])

	statuses, err := c.GetSignatureStatuses(ctx, false, sig, solana.Signature{1})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	require.NotNil(t, statuses[0])
	assert.Nil(t, statuses[1])
	assert.Equal(t, "confirmed", statuses[0].ConfirmationStatus)
	assert.Nil(t, ParseTransactionError(statuses[0].Err))
}

func TestSendTransactionPreflightFailure(t *testing.T) {
	v := testutil.NewValidator(t)
	v.AddRule(&testutil.Rule{Discriminator: initializeDisc, Custom: 6004, Logs: []string{"Program log: AnchorError"}})
	c := NewRPCClient(v.URL(), 3)

	_, err := c.SendTransaction(context.Background(), rawTx(1, initializeDisc), "finalized", false)
	require.Error(t, err)

	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, CodeTransactionSimulation, rpcErr.Code)
	assert.Contains(t, rpcErr.Logs(), "Program log: AnchorError")

	txErr := rpcErr.TransactionError()
	require.NotNil(t, txErr)
	require.NotNil(t, txErr.Custom)
	assert.Equal(t, uint32(6004), *txErr.Custom)
	assert.Equal(t, 1, v.Calls("sendTransaction"))
}

func TestGetAccountInfo(t *testing.T) {
	v := testutil.NewValidator(t)
	c := NewRPCClient(v.URL(), 0)
	ctx := context.Background()

	key := solana.PublicKey{3}
	info, err := c.GetAccountInfo(ctx, key, "confirmed")
	require.NoError(t, err)
	assert.Nil(t, info)

	owner := solana.PublicKey{4}
	v.SetAccount(key, owner, []byte{1, 2, 3})
	info, err = c.GetAccountInfo(ctx, key, "confirmed")
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, []byte{1, 2, 3}, info.Data)
}

func TestReadsRetryOnServerError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":"ok"}`))
	}))
	defer srv.Close()

	c := NewRPCClient(srv.URL, 3)
	require.NoError(t, c.GetHealth(context.Background()))
	assert.Equal(t, int32(3), hits.Load())
}

func TestSendIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewRPCClient(srv.URL, 5)
	_, err := c.SendTransaction(context.Background(), rawTx(1, nil), "finalized", false)
	assert.ErrorContains(t, err, "sendTransaction request failed")
	assert.Equal(t, int32(1), hits.Load())
}

func TestSubscribeSignature(t *testing.T) {
	v := testutil.NewValidator(t)
	v.AddRule(&testutil.Rule{Discriminator: initializeDisc, Custom: 6000, OnChain: true})
	c := NewRPCClient(v.URL(), 0)
	ctx := context.Background()

	sig, err := c.SendTransaction(ctx, rawTx(5, initializeDisc), "finalized", false)
	require.NoError(t, err)

	note, err := SubscribeSignature(ctx, v.WSURL(), sig, "finalized")
	require.NoError(t, err)
	require.NotNil(t, note.Err)
	require.NotNil(t, note.Err.Custom)
	assert.Equal(t, uint32(6000), *note.Err.Custom)
	assert.Equal(t, 1, v.Calls("signatureSubscribe"))
}

func TestSubscribeSignatureCancelled(t *testing.T) {
	v := testutil.NewValidator(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := SubscribeSignature(ctx, v.WSURL(), solana.Signature{8}, "finalized")
		done <- err
	}()
	require.Eventually(t, func() bool { return v.Calls("signatureSubscribe") == 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
