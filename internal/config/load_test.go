package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadProviderFromAnchorEnv(t *testing.T) {
	t.Setenv(ProviderURLEnv, "http://127.0.0.1:8899")
	t.Setenv(WalletEnv, "/keys/id.json")

	cfg := LoadProvider(NewViper())

	assert.Equal(t, "http://127.0.0.1:8899", cfg.URL)
	assert.Equal(t, "ws://127.0.0.1:8900", cfg.WSURL)
	assert.Equal(t, "/keys/id.json", cfg.WalletPath)
	assert.Equal(t, CommitmentFinalized, cfg.Commitment)
	assert.NoError(t, cfg.Validate())
}

func TestLoadProviderExpandsCluster(t *testing.T) {
	t.Setenv(ProviderURLEnv, "devnet")
	t.Setenv(WalletEnv, "/keys/id.json")

	cfg := LoadProvider(NewViper())
	assert.Equal(t, "https://api.devnet.solana.com", cfg.URL)
	assert.Equal(t, "wss://api.devnet.solana.com", cfg.WSURL)
}

func TestLoadProviderPrefixedEnv(t *testing.T) {
	t.Setenv(ProviderURLEnv, "")
	t.Setenv(WalletEnv, "")
	t.Setenv("VAULTCTL_URL", "http://10.1.1.1:8899")
	t.Setenv("VAULTCTL_WALLET", "/w.json")
	t.Setenv("VAULTCTL_COMMITMENT", "confirmed")

	cfg := LoadProvider(NewViper())
	assert.Equal(t, "http://10.1.1.1:8899", cfg.URL)
	assert.Equal(t, "/w.json", cfg.WalletPath)
	assert.Equal(t, CommitmentConfirmed, cfg.Commitment)
}

func TestLoadProviderMissing(t *testing.T) {
	t.Setenv(ProviderURLEnv, "")
	t.Setenv(WalletEnv, "")

	cfg := LoadProvider(NewViper())
	assert.ErrorIs(t, cfg.Validate(), ErrProviderNotConfigured)
}

func TestLoadTxDefaults(t *testing.T) {
	cfg := LoadTx(NewViper())
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, uint(3), cfg.MaxRetries)
	assert.Equal(t, ConfirmPoll, cfg.Confirm)
	assert.NoError(t, cfg.Validate())
}
