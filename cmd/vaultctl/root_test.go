package vaultctl

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/output"
	"github.com/manifest-network/vaultctl/internal/provider"
	"github.com/manifest-network/vaultctl/internal/smoke"
	"github.com/manifest-network/vaultctl/internal/testutil"
	"github.com/manifest-network/vaultctl/internal/vault"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestPDACommand(t *testing.T) {
	admin := solana.MustPublicKeyFromBase58("7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU")
	user := solana.PublicKey{9}

	out, err := run(t, "pda", "--admin", admin.String(), "--user", user.String())
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))

	want, err := vault.DeriveAddresses(vault.ProgramID, admin)
	require.NoError(t, err)
	ticket, _, err := vault.WithdrawalTicketPDA(vault.ProgramID, user, want.VaultState)
	require.NoError(t, err)
	assert.Equal(t, want.VaultState.String(), got["vaultState"])
	assert.Equal(t, want.VaultToken.String(), got["vaultToken"])
	assert.Equal(t, ticket.String(), got["withdrawalTicket"])
}

func TestPDACommandRejectsBadKey(t *testing.T) {
	_, err := run(t, "pda", "--admin", "not-a-key")
	assert.ErrorContains(t, err, "invalid --admin")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, "pda", "--admin", solana.PublicKey{1}.String(), "--logLevel", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

func TestSmokeCommand(t *testing.T) {
	v := testutil.NewValidator(t)
	dir := t.TempDir()
	address := vault.ProgramID.String()
	testutil.WriteWorkspace(t, dir, "spl_vault_anchor", address, testutil.ScaffoldIDL(address))
	walletPath, _ := testutil.WriteKeypair(t, t.TempDir())
	t.Setenv(config.ProviderURLEnv, v.URL())
	t.Setenv(config.WalletEnv, walletPath)

	_, err := run(t, "smoke", "--workspace", dir, "--commitment", "confirmed", "--pollInterval", "1ms")
	require.NoError(t, err)
	assert.Equal(t, 1, v.Calls("sendTransaction"))
}

func TestSmokeCommandWithoutProvider(t *testing.T) {
	t.Setenv(config.ProviderURLEnv, "")
	t.Setenv(config.WalletEnv, "")

	_, err := run(t, "smoke", "--workspace", t.TempDir())
	assert.ErrorIs(t, err, smoke.ErrSetup)
	assert.ErrorIs(t, err, config.ErrProviderNotConfigured)
}

func TestVaultDepositAgainstMissingVault(t *testing.T) {
	v := testutil.NewValidator(t)
	walletPath, _ := testutil.WriteKeypair(t, t.TempDir())
	t.Setenv(config.ProviderURLEnv, v.URL())
	t.Setenv(config.WalletEnv, walletPath)

	_, err := run(t, "vault", "deposit", "--amount", "10")
	assert.ErrorIs(t, err, vault.ErrVaultNotFound)
	assert.Zero(t, v.Calls("sendTransaction"))
}

func TestJournalRequiresConnection(t *testing.T) {
	t.Setenv("VAULTCTL_JOURNAL", "")
	_, err := run(t, "journal", "migrate")
	assert.ErrorIs(t, err, errJournalNotConfigured)
}

func TestClaimableAtUsesStoredTicket(t *testing.T) {
	v := testutil.NewValidator(t)
	walletPath, _ := testutil.WriteKeypair(t, t.TempDir())
	p, err := provider.New(config.ProviderConfig{
		URL:        v.URL(),
		WalletPath: walletPath,
		Commitment: config.CommitmentConfirmed,
	}, config.TxConfig{Timeout: 5 * time.Second, PollInterval: time.Millisecond, Confirm: config.ConfirmPoll})
	require.NoError(t, err)
	admin := solana.PublicKey{7, 7}
	s := &vaultSession{client: vault.NewClient(p, vault.ProgramID), admin: admin, out: output.NewLogHandler(nil)}

	_, err = s.claimableAt(context.Background())
	assert.ErrorIs(t, err, vault.ErrNoPendingWithdrawal)

	addrs, err := vault.DeriveAddresses(vault.ProgramID, admin)
	require.NoError(t, err)
	ticketAddr, _, err := vault.WithdrawalTicketPDA(vault.ProgramID, p.PublicKey(), addrs.VaultState)
	require.NoError(t, err)
	requestedAt := int64(1_700_000_000)
	data, err := vault.EncodeWithdrawalTicket(&vault.WithdrawalTicket{User: p.PublicKey(), ReceiptAmount: 40, RequestedAt: requestedAt})
	require.NoError(t, err)
	v.SetAccount(ticketAddr, vault.ProgramID, data)

	got, err := s.claimableAt(context.Background())
	require.NoError(t, err)
	assert.Equal(t, time.Unix(requestedAt+vault.CooldownSeconds, 0).UTC(), got)
}
