package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/testutil"
)

var (
	programID = solana.MustPublicKeyFromBase58("9VfuUehi2JnBgWzN8kSYhyi7vTV3YCaKDmNqN6jpLL4F")
	initDisc  = []byte{175, 175, 109, 31, 13, 152, 155, 237}
)

func newTestProvider(t *testing.T, v *testutil.Validator, mutate func(*config.TxConfig)) *Provider {
	t.Helper()
	walletPath, _ := testutil.WriteKeypair(t, t.TempDir())
	txCfg := config.TxConfig{
		Timeout:      5 * time.Second,
		PollInterval: time.Millisecond,
		Confirm:      config.ConfirmPoll,
	}
	if mutate != nil {
		mutate(&txCfg)
	}
	p, err := New(config.ProviderConfig{
		URL:        v.URL(),
		WSURL:      v.WSURL(),
		WalletPath: walletPath,
		Commitment: config.CommitmentFinalized,
	}, txCfg)
	require.NoError(t, err)
	return p
}

func initIx() []solana.Instruction {
	return []solana.Instruction{solana.NewInstruction(programID, solana.AccountMetaSlice{}, initDisc)}
}

func TestSendAndConfirmFinalized(t *testing.T) {
	v := testutil.NewValidator(t)
	p := newTestProvider(t, v, nil)

	rec, err := p.SendAndConfirm(context.Background(), "initialize", programID, initIx())
	require.NoError(t, err)

	assert.NotEmpty(t, rec.Signature)
	assert.Equal(t, models.StatusFinalized, rec.Status)
	assert.True(t, rec.Succeeded())
	assert.Equal(t, programID.String(), rec.Program)
	assert.Equal(t, 1, v.Calls("sendTransaction"))
	assert.Equal(t, 2, v.Calls("getSignatureStatuses"))

	sent := v.Sent()
	require.Len(t, sent, 1)
	var sig solana.Signature
	copy(sig[:], sent[0][1:65])
	assert.Equal(t, sig.String(), rec.Signature)
}

func TestSendAndConfirmPreflightRejection(t *testing.T) {
	v := testutil.NewValidator(t)
	v.AddRule(&testutil.Rule{Discriminator: initDisc, Custom: 0, AfterFirst: true})
	p := newTestProvider(t, v, nil)
	ctx := context.Background()

	_, err := p.SendAndConfirm(ctx, "initialize", programID, initIx())
	require.NoError(t, err)

	rec, err := p.SendAndConfirm(ctx, "initialize", programID, initIx())
	require.Error(t, err)

	var failed *TxFailedError
	require.True(t, errors.As(err, &failed))
	assert.True(t, failed.Signature.IsZero())
	require.NotNil(t, failed.TxErr)
	require.NotNil(t, failed.TxErr.Custom)
	assert.Equal(t, uint32(0), *failed.TxErr.Custom)
	assert.NotEmpty(t, failed.Logs)
	assert.Equal(t, models.StatusRejected, rec.Status)
	assert.Empty(t, rec.Signature)
	assert.Equal(t, 2, v.Calls("sendTransaction"))
}

func TestSendAndConfirmOnChainFailure(t *testing.T) {
	v := testutil.NewValidator(t)
	v.AddRule(&testutil.Rule{Discriminator: initDisc, Custom: 6004, OnChain: true})
	p := newTestProvider(t, v, nil)

	rec, err := p.SendAndConfirm(context.Background(), "initialize", programID, initIx())
	var failed *TxFailedError
	require.True(t, errors.As(err, &failed))
	assert.False(t, failed.Signature.IsZero())
	assert.Equal(t, uint32(6004), *failed.TxErr.Custom)
	assert.Equal(t, models.StatusFailed, rec.Status)
	assert.NotEmpty(t, rec.Signature)
	assert.False(t, rec.Succeeded())
}

func TestSendAndConfirmBlockhashExpiry(t *testing.T) {
	v := testutil.NewValidator(t)
	v.NeverLand = true
	p := newTestProvider(t, v, nil)

	rec, err := p.SendAndConfirm(context.Background(), "initialize", programID, initIx())
	assert.ErrorIs(t, err, ErrBlockhashExpired)
	assert.Equal(t, models.StatusExpired, rec.Status)
}

func TestSendAndConfirmTimeout(t *testing.T) {
	v := testutil.NewValidator(t)
	v.StatusSteps = 1_000_000
	p := newTestProvider(t, v, func(c *config.TxConfig) {
		c.Timeout = 50 * time.Millisecond
		c.PollInterval = 5 * time.Millisecond
	})

	rec, err := p.SendAndConfirm(context.Background(), "initialize", programID, initIx())
	assert.ErrorIs(t, err, ErrConfirmationTimeout)
	assert.Equal(t, models.StatusExpired, rec.Status)
}

func TestSendAndConfirmWebsocket(t *testing.T) {
	v := testutil.NewValidator(t)
	p := newTestProvider(t, v, func(c *config.TxConfig) { c.Confirm = config.ConfirmWebsocket })

	rec, err := p.SendAndConfirm(context.Background(), "initialize", programID, initIx())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFinalized, rec.Status)
	assert.Equal(t, 1, v.Calls("signatureSubscribe"))
	assert.Zero(t, v.Calls("getSignatureStatuses"))
}

func TestSendAndConfirmExtraSigner(t *testing.T) {
	v := testutil.NewValidator(t)
	p := newTestProvider(t, v, nil)

	extra, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	ix := solana.NewInstruction(programID, solana.AccountMetaSlice{
		solana.NewAccountMeta(extra.PublicKey(), true, true),
	}, initDisc)

	_, err = p.SendAndConfirm(context.Background(), "initialize", programID, []solana.Instruction{ix}, extra)
	require.NoError(t, err)
	assert.Equal(t, byte(2), v.Sent()[0][0])
}

func TestNewMissingWallet(t *testing.T) {
	_, err := New(config.ProviderConfig{
		URL:        "http://127.0.0.1:8899",
		WalletPath: filepath.Join(t.TempDir(), "missing.json"),
		Commitment: config.CommitmentFinalized,
	}, config.TxConfig{Timeout: time.Second, PollInterval: time.Millisecond, Confirm: config.ConfirmPoll})
	assert.ErrorIs(t, err, config.ErrProviderNotConfigured)
}

func TestReached(t *testing.T) {
	cases := []struct {
		status, want string
		ok           bool
	}{
		{"processed", "processed", true},
		{"processed", "confirmed", false},
		{"confirmed", "confirmed", true},
		{"finalized", "confirmed", true},
		{"confirmed", "finalized", false},
		{"", "processed", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, Reached(tc.status, tc.want), "%s >= %s", tc.status, tc.want)
	}
}
