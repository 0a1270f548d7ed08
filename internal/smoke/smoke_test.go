package smoke

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manifest-network/vaultctl/internal/config"
	"github.com/manifest-network/vaultctl/internal/models"
	"github.com/manifest-network/vaultctl/internal/output"
	"github.com/manifest-network/vaultctl/internal/provider"
	"github.com/manifest-network/vaultctl/internal/testutil"
	"github.com/manifest-network/vaultctl/internal/workspace"
)

const programAddress = "9VfuUehi2JnBgWzN8kSYhyi7vTV3YCaKDmNqN6jpLL4F"

var initDisc = []byte{175, 175, 109, 31, 13, 152, 155, 237}

type env struct {
	v    *testutil.Validator
	opts Options
	logs *bytes.Buffer
}

func newEnv(t *testing.T) *env {
	t.Helper()
	v := testutil.NewValidator(t)
	dir := t.TempDir()
	testutil.WriteWorkspace(t, dir, "spl_vault_anchor", programAddress, testutil.ScaffoldIDL(programAddress))
	walletPath, _ := testutil.WriteKeypair(t, t.TempDir())

	logs := new(bytes.Buffer)
	return &env{
		v:    v,
		logs: logs,
		opts: Options{
			Provider: config.ProviderConfig{
				URL:        v.URL(),
				WalletPath: walletPath,
				Commitment: config.CommitmentFinalized,
			},
			Tx: config.TxConfig{
				Timeout:      5 * time.Second,
				PollInterval: time.Millisecond,
				Confirm:      config.ConfirmPoll,
			},
			Workspace: dir,
			RunID:     "run-1",
			Output:    output.NewLogHandler(slog.New(slog.NewJSONHandler(logs, nil))),
		},
	}
}

func TestInitializeSucceeds(t *testing.T) {
	e := newEnv(t)

	res, err := Run(context.Background(), e.opts)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Signature)
	assert.Equal(t, models.StatusFinalized, res.Transaction.Status)
	assert.Equal(t, "initialize", res.Transaction.Instruction)
	assert.Equal(t, "run-1", res.Transaction.RunID)
	assert.Equal(t, programAddress, res.Transaction.Program)
	assert.Equal(t, 1, e.v.Calls("sendTransaction"))
	assert.Equal(t, res.Signature, res.Transaction.Signature)
}

func TestInitializeTwiceFails(t *testing.T) {
	e := newEnv(t)
	e.v.AddRule(&testutil.Rule{Discriminator: initDisc, AfterFirst: true, Custom: 0})

	first, err := Run(context.Background(), e.opts)
	require.NoError(t, err)
	require.NotEmpty(t, first.Signature)

	second, err := Run(context.Background(), e.opts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCall)
	assert.NotErrorIs(t, err, ErrSetup)
	var failed *provider.TxFailedError
	require.ErrorAs(t, err, &failed)
	require.NotNil(t, failed.TxErr)
	require.NotNil(t, failed.TxErr.Custom)
	assert.Equal(t, uint32(0), *failed.TxErr.Custom)
	assert.Empty(t, second.Signature)
	assert.Equal(t, 2, e.v.Calls("sendTransaction"), "the failed call is not retried")
}

func TestMissingConfigurationMakesNoCalls(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.ProviderConfig)
	}{
		{name: "no endpoint", mutate: func(c *config.ProviderConfig) { c.URL = "" }},
		{name: "no wallet", mutate: func(c *config.ProviderConfig) { c.WalletPath = "" }},
		{name: "unreadable wallet", mutate: func(c *config.ProviderConfig) { c.WalletPath = "/nonexistent/id.json" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t)
			tc.mutate(&e.opts.Provider)

			_, err := Run(context.Background(), e.opts)
			assert.ErrorIs(t, err, ErrSetup)
			assert.ErrorIs(t, err, config.ErrProviderNotConfigured)
			assert.Zero(t, e.v.TotalCalls())
		})
	}
}

func TestMissingProgramMakesNoCalls(t *testing.T) {
	e := newEnv(t)
	e.opts.Program = "someOtherProgram"

	_, err := Run(context.Background(), e.opts)
	assert.ErrorIs(t, err, ErrSetup)
	assert.ErrorIs(t, err, workspace.ErrProgramNotFound)
	assert.Zero(t, e.v.TotalCalls())
}

func TestMissingWorkspaceMakesNoCalls(t *testing.T) {
	e := newEnv(t)
	e.opts.Workspace = t.TempDir()

	_, err := Run(context.Background(), e.opts)
	assert.ErrorIs(t, err, ErrSetup)
	assert.Zero(t, e.v.TotalCalls())
}

func TestSignatureIsLoggedUntransformed(t *testing.T) {
	e := newEnv(t)

	res, err := Run(context.Background(), e.opts)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(e.logs.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "Your transaction signature "+res.Signature, entry["msg"])
}

func TestProgramNameStyles(t *testing.T) {
	for _, name := range []string{"splVaultAnchor", "spl_vault_anchor", "spl-vault-anchor"} {
		t.Run(name, func(t *testing.T) {
			e := newEnv(t)
			e.opts.Program = name
			_, err := Run(context.Background(), e.opts)
			assert.NoError(t, err)
		})
	}
}
