package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderURLEnv = "ANCHOR_PROVIDER_URL"
	WalletEnv      = "ANCHOR_WALLET"
)

// ErrProviderNotConfigured is returned when no RPC endpoint or wallet can be resolved.
var ErrProviderNotConfigured = errors.New("provider not configured")

// Commitment levels understood by the Solana RPC.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

var clusterURLs = map[string]string{
	"localnet":     "http://127.0.0.1:8899",
	"localhost":    "http://127.0.0.1:8899",
	"devnet":       "https://api.devnet.solana.com",
	"testnet":      "https://api.testnet.solana.com",
	"mainnet":      "https://api.mainnet-beta.solana.com",
	"mainnet-beta": "https://api.mainnet-beta.solana.com",
}

// ProviderConfig describes the network endpoint and signer used to submit transactions.
type ProviderConfig struct {
	URL        string
	WSURL      string
	WalletPath string
	Commitment string
}

// TxConfig controls how transactions are sent and confirmed.
type TxConfig struct {
	Timeout      time.Duration
	PollInterval time.Duration
	MaxRetries   uint
	Confirm      string
	Progress     bool
}

// JournalConfig describes the optional PostgreSQL transaction journal.
type JournalConfig struct {
	ConnString string
}

// MetricsConfig describes the optional Prometheus endpoint.
type MetricsConfig struct {
	Addr string
}

// Confirmation strategies.
const (
	ConfirmPoll      = "poll"
	ConfirmWebsocket = "ws"
)

// ResolveClusterURL expands a cluster moniker into an RPC URL.
// Anything that is not a known moniker is returned unchanged.
func ResolveClusterURL(cluster string) string {
	if u, ok := clusterURLs[strings.ToLower(strings.TrimSpace(cluster))]; ok {
		return u
	}
	return cluster
}

// DeriveWSURL derives the websocket endpoint from an RPC URL.
// An explicit port is incremented by one, matching solana-test-validator.
func DeriveWSURL(rpcURL string) (string, error) {
	u, err := url.Parse(rpcURL)
	if err != nil {
		return "", fmt.Errorf("invalid RPC URL %q: %w", rpcURL, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported RPC URL scheme %q", u.Scheme)
	}
	if port := u.Port(); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return "", fmt.Errorf("invalid port in RPC URL %q: %w", rpcURL, err)
		}
		u.Host = fmt.Sprintf("%s:%d", u.Hostname(), p+1)
	}
	return u.String(), nil
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func ValidCommitment(c string) bool {
	switch c {
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return true
	}
	return false
}

// Validate checks the provider configuration. Missing endpoint or wallet
// wrap ErrProviderNotConfigured.
func (c ProviderConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: %s is not set", ErrProviderNotConfigured, ProviderURLEnv)
	}
	if c.WalletPath == "" {
		return fmt.Errorf("%w: %s is not set", ErrProviderNotConfigured, WalletEnv)
	}
	u, err := url.Parse(c.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: invalid RPC URL %q", ErrProviderNotConfigured, c.URL)
	}
	if !ValidCommitment(c.Commitment) {
		return fmt.Errorf("invalid commitment %q, must be one of processed, confirmed, finalized", c.Commitment)
	}
	return nil
}

func (c TxConfig) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be greater than zero")
	}
	if c.PollInterval <= 0 {
		return errors.New("poll interval must be greater than zero")
	}
	if c.Confirm != ConfirmPoll && c.Confirm != ConfirmWebsocket {
		return fmt.Errorf("invalid confirm strategy %q, must be %q or %q", c.Confirm, ConfirmPoll, ConfirmWebsocket)
	}
	return nil
}

func (c JournalConfig) Enabled() bool {
	return c.ConnString != ""
}

func (c MetricsConfig) Enabled() bool {
	return c.Addr != ""
}
