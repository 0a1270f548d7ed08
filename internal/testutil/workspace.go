package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gagliardetto/solana-go"
)

// WriteKeypair writes a fresh solana-keygen style keypair file into dir.
func WriteKeypair(t *testing.T, dir string) (string, solana.PrivateKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	ints := make([]int, len(key))
	for i, b := range key {
		ints[i] = int(b)
	}
	b, err := json.Marshal(ints)
	if err != nil {
		t.Fatalf("marshal keypair: %v", err)
	}
	path := filepath.Join(dir, "id.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatalf("write keypair: %v", err)
	}
	return path, key
}

// ScaffoldIDL is the IDL emitted for the generated program: one instruction
// without accounts or arguments.
func ScaffoldIDL(address string) string {
	return fmt.Sprintf(`{
  "address": %q,
  "metadata": {"name": "spl_vault_anchor", "version": "0.1.0", "spec": "0.1.0"},
  "instructions": [
    {
      "name": "initialize",
      "discriminator": [175, 175, 109, 31, 13, 152, 155, 237],
      "accounts": [],
      "args": []
    }
  ]
}`, address)
}

// WriteWorkspace lays out an Anchor workspace in dir with the given program
// registered for localnet and its IDL under target/idl.
func WriteWorkspace(t *testing.T, dir, snakeName, address, idl string) {
	t.Helper()
	anchorToml := fmt.Sprintf(`[toolchain]

[features]
resolution = true
skip-lint = false

[programs.localnet]
%s = %q

[registry]
url = "https://api.apr.dev"

[provider]
cluster = "localnet"
wallet = "~/.config/solana/id.json"

[scripts]
test = "yarn run ts-mocha -p ./tsconfig.json -t 1000000 tests/**/*.ts"
`, snakeName, address)
	if err := os.WriteFile(filepath.Join(dir, "Anchor.toml"), []byte(anchorToml), 0o644); err != nil {
		t.Fatalf("write Anchor.toml: %v", err)
	}
	if idl == "" {
		return
	}
	idlDir := filepath.Join(dir, "target", "idl")
	if err := os.MkdirAll(idlDir, 0o755); err != nil {
		t.Fatalf("create idl dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(idlDir, snakeName+".json"), []byte(idl), 0o644); err != nil {
		t.Fatalf("write idl: %v", err)
	}
}
