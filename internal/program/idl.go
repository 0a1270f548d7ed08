// Package program builds instructions for an on-chain program from its IDL.
package program

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	bin "github.com/gagliardetto/binary"
)

// IDL is the subset of the Anchor IDL (format 0.1.0) needed to call instructions.
type IDL struct {
	Address      string           `json:"address"`
	Metadata     IDLMetadata      `json:"metadata"`
	Instructions []IDLInstruction `json:"instructions"`
	Accounts     []IDLAccountDef  `json:"accounts"`
	Errors       []IDLError       `json:"errors"`
}

type IDLMetadata struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Spec    string `json:"spec"`
}

type IDLInstruction struct {
	Name          string           `json:"name"`
	Discriminator []int            `json:"discriminator"`
	Accounts      []IDLAccountItem `json:"accounts"`
	Args          []IDLField       `json:"args"`
}

type IDLAccountItem struct {
	Name     string `json:"name"`
	Writable bool   `json:"writable"`
	Signer   bool   `json:"signer"`
	Optional bool   `json:"optional"`
	// Address is set for accounts with a fixed key such as system programs.
	Address string `json:"address"`
}

type IDLField struct {
	Name string          `json:"name"`
	Type json.RawMessage `json:"type"`
}

type IDLAccountDef struct {
	Name          string `json:"name"`
	Discriminator []int  `json:"discriminator"`
}

type IDLError struct {
	Code uint32 `json:"code"`
	Name string `json:"name"`
	Msg  string `json:"msg"`
}

// LoadIDL reads and parses an IDL file.
func LoadIDL(path string) (*IDL, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseIDL(b)
}

func ParseIDL(b []byte) (*IDL, error) {
	var idl IDL
	if err := json.Unmarshal(b, &idl); err != nil {
		return nil, fmt.Errorf("failed to parse IDL: %w", err)
	}
	if idl.Metadata.Name == "" {
		return nil, fmt.Errorf("IDL has no metadata.name")
	}
	for _, ix := range idl.Instructions {
		if len(ix.Discriminator) != 0 {
			if _, err := toDiscriminator(ix.Discriminator); err != nil {
				return nil, fmt.Errorf("instruction %s: %w", ix.Name, err)
			}
		}
	}
	return &idl, nil
}

// Instruction finds an instruction by name in any of camelCase, snake_case or kebab-case.
func (idl *IDL) Instruction(name string) (*IDLInstruction, bool) {
	want := SnakeCase(name)
	for i := range idl.Instructions {
		if SnakeCase(idl.Instructions[i].Name) == want {
			return &idl.Instructions[i], true
		}
	}
	return nil, false
}

// DiscriminatorBytes returns the 8-byte instruction selector, deriving it from the
// name when the IDL predates explicit discriminators.
func (ix *IDLInstruction) DiscriminatorBytes() []byte {
	if len(ix.Discriminator) == 8 {
		d, _ := toDiscriminator(ix.Discriminator)
		return d
	}
	return InstructionDiscriminator(ix.Name)
}

// InstructionDiscriminator is sha256("global:<snake_name>")[:8].
func InstructionDiscriminator(name string) []byte {
	return bin.SighashInstruction(SnakeCase(name))
}

// AccountDiscriminator is sha256("account:<TypeName>")[:8].
func AccountDiscriminator(typeName string) []byte {
	return bin.SighashAccount(typeName)
}

func toDiscriminator(ints []int) ([]byte, error) {
	if len(ints) != 8 {
		return nil, fmt.Errorf("discriminator must be 8 bytes, got %d", len(ints))
	}
	out := make([]byte, 8)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("discriminator byte %d out of range: %d", i, v)
		}
		out[i] = byte(v)
	}
	return out, nil
}

// SnakeCase converts splVaultAnchor, spl-vault-anchor and spl_vault_anchor
// to spl_vault_anchor.
func SnakeCase(s string) string {
	return bin.ToSnakeForSighash(strings.NewReplacer("-", "_", " ", "_").Replace(s))
}
