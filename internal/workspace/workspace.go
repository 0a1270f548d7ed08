// Package workspace resolves program handles from an Anchor workspace:
// Anchor.toml for addresses and provider defaults, target/idl for interfaces.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/manifest-network/vaultctl/internal/program"
)

const manifestName = "Anchor.toml"

var (
	ErrWorkspaceNotFound = errors.New("anchor workspace not found")
	ErrProgramNotFound   = errors.New("program not found in workspace")
)

// Workspace is a parsed Anchor workspace.
type Workspace struct {
	Root    string
	Cluster string
	Wallet  string

	programs map[string]string
}

// Find walks up from start until it finds a directory holding Anchor.toml.
func Find(start string) (*Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWorkspaceNotFound, err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, manifestName)); err == nil {
			return Open(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: no %s in %s or any parent", ErrWorkspaceNotFound, manifestName, start)
		}
		dir = parent
	}
}

// Open reads the Anchor.toml in root.
func Open(root string) (*Workspace, error) {
	v := viper.New()
	v.SetConfigFile(filepath.Join(root, manifestName))
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %v", ErrWorkspaceNotFound, manifestName, err)
	}

	cluster := v.GetString("provider.cluster")
	if cluster == "" {
		cluster = "localnet"
	}
	ws := &Workspace{
		Root:     root,
		Cluster:  cluster,
		Wallet:   v.GetString("provider.wallet"),
		programs: map[string]string{},
	}
	for name, addr := range v.GetStringMapString("programs." + clusterSection(cluster)) {
		ws.programs[program.SnakeCase(name)] = addr
	}
	return ws, nil
}

// clusterSection maps a provider cluster value to its [programs.*] table name.
func clusterSection(cluster string) string {
	switch cluster {
	case "mainnet-beta":
		return "mainnet"
	case "localhost":
		return "localnet"
	}
	return cluster
}

// Programs lists the program names registered for the workspace cluster.
func (w *Workspace) Programs() []string {
	names := make([]string, 0, len(w.programs))
	for n := range w.programs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// IDLPath is where anchor build writes the IDL for name.
func (w *Workspace) IDLPath(name string) string {
	return filepath.Join(w.Root, "target", "idl", program.SnakeCase(name)+".json")
}

// Program resolves a handle by name (camelCase, snake_case or kebab-case).
// The IDL address wins over Anchor.toml when both are present.
func (w *Workspace) Program(name string) (*program.Program, error) {
	snake := program.SnakeCase(name)
	idl, err := program.LoadIDL(w.IDLPath(snake))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s (no IDL at %s)", ErrProgramNotFound, name, w.IDLPath(snake))
		}
		return nil, fmt.Errorf("failed to load IDL for %s: %w", name, err)
	}

	addr := idl.Address
	if addr == "" {
		addr = w.programs[snake]
	}
	if addr == "" {
		return nil, fmt.Errorf("%w: %s has no address for cluster %s", ErrProgramNotFound, name, w.Cluster)
	}
	id, err := solana.PublicKeyFromBase58(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q for program %s: %w", addr, name, err)
	}
	return program.New(idl, id), nil
}
