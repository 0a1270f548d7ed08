package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Viper keys. Flags bind to the same names.
const (
	KeyURL          = "url"
	KeyWSURL        = "wsUrl"
	KeyWallet       = "wallet"
	KeyCommitment   = "commitment"
	KeyTimeout      = "timeout"
	KeyPollInterval = "pollInterval"
	KeyMaxRetries   = "maxRetries"
	KeyConfirm      = "confirm"
	KeyProgress     = "progress"
	KeyJournalDSN   = "journal"
	KeyMetricsAddr  = "metricsAddr"
	KeyWorkspace    = "workspace"
	KeyLogLevel     = "logLevel"
)

const envPrefix = "VAULTCTL"

// NewViper returns a viper instance with defaults and environment bindings.
// ANCHOR_PROVIDER_URL and ANCHOR_WALLET are honoured alongside VAULTCTL_* variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv(KeyURL, ProviderURLEnv, envPrefix+"_URL")
	_ = v.BindEnv(KeyWallet, WalletEnv, envPrefix+"_WALLET")

	v.SetDefault(KeyCommitment, CommitmentFinalized)
	v.SetDefault(KeyTimeout, 90*time.Second)
	v.SetDefault(KeyPollInterval, 500*time.Millisecond)
	v.SetDefault(KeyMaxRetries, 3)
	v.SetDefault(KeyConfirm, ConfirmPoll)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// LoadProvider reads the provider configuration. Cluster monikers in the URL
// are expanded; an empty websocket URL is derived from the RPC URL.
func LoadProvider(v *viper.Viper) ProviderConfig {
	cfg := ProviderConfig{
		URL:        ResolveClusterURL(v.GetString(KeyURL)),
		WSURL:      v.GetString(KeyWSURL),
		WalletPath: v.GetString(KeyWallet),
		Commitment: v.GetString(KeyCommitment),
	}
	if cfg.WSURL == "" && cfg.URL != "" {
		if ws, err := DeriveWSURL(cfg.URL); err == nil {
			cfg.WSURL = ws
		}
	}
	return cfg
}

func LoadTx(v *viper.Viper) TxConfig {
	return TxConfig{
		Timeout:      v.GetDuration(KeyTimeout),
		PollInterval: v.GetDuration(KeyPollInterval),
		MaxRetries:   v.GetUint(KeyMaxRetries),
		Confirm:      v.GetString(KeyConfirm),
		Progress:     v.GetBool(KeyProgress),
	}
}

func LoadJournal(v *viper.Viper) JournalConfig {
	return JournalConfig{ConnString: v.GetString(KeyJournalDSN)}
}

func LoadMetrics(v *viper.Viper) MetricsConfig {
	return MetricsConfig{Addr: v.GetString(KeyMetricsAddr)}
}
