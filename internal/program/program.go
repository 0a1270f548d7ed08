package program

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/manifest-network/vaultctl/internal/models"
)

// Sender submits instructions and waits for confirmation.
type Sender interface {
	SendAndConfirm(ctx context.Context, label string, program solana.PublicKey, instructions []solana.Instruction, signers ...solana.PrivateKey) (*models.Transaction, error)
}

// Program is a handle to a deployed program described by an IDL.
type Program struct {
	Name string
	ID   solana.PublicKey
	IDL  *IDL
}

func New(idl *IDL, id solana.PublicKey) *Program {
	return &Program{Name: idl.Metadata.Name, ID: id, IDL: idl}
}

// ErrorFor returns the IDL entry for a program error code.
func (p *Program) ErrorFor(code uint32) (IDLError, bool) {
	for _, e := range p.IDL.Errors {
		if e.Code == code {
			return e, true
		}
	}
	return IDLError{}, false
}

// Method starts building a call to the named instruction.
func (p *Program) Method(name string) (*MethodBuilder, error) {
	ix, ok := p.IDL.Instruction(name)
	if !ok {
		return nil, fmt.Errorf("program %s has no instruction %q", p.Name, name)
	}
	return &MethodBuilder{program: p, ix: ix, accounts: map[string]solana.PublicKey{}}, nil
}

// MethodBuilder accumulates arguments, accounts and signers for one instruction.
type MethodBuilder struct {
	program  *Program
	ix       *IDLInstruction
	args     []any
	accounts map[string]solana.PublicKey
	signers  []solana.PrivateKey
}

func (b *MethodBuilder) Args(args ...any) *MethodBuilder {
	b.args = append(b.args, args...)
	return b
}

// Accounts sets accounts by IDL name; camelCase and snake_case are equivalent.
func (b *MethodBuilder) Accounts(accounts map[string]solana.PublicKey) *MethodBuilder {
	for name, key := range accounts {
		b.accounts[SnakeCase(name)] = key
	}
	return b
}

func (b *MethodBuilder) Signers(keys ...solana.PrivateKey) *MethodBuilder {
	b.signers = append(b.signers, keys...)
	return b
}

// Instruction encodes the call. Accounts with a fixed IDL address are filled
// in automatically; every other non-optional account must be supplied.
func (b *MethodBuilder) Instruction() (solana.Instruction, error) {
	if len(b.args) != len(b.ix.Args) {
		return nil, fmt.Errorf("instruction %s takes %d arguments, got %d", b.ix.Name, len(b.ix.Args), len(b.args))
	}

	buf := new(bytes.Buffer)
	buf.Write(b.ix.DiscriminatorBytes())
	enc := bin.NewBorshEncoder(buf)
	for i, field := range b.ix.Args {
		if err := encodeArg(enc, field, b.args[i]); err != nil {
			return nil, fmt.Errorf("instruction %s: %w", b.ix.Name, err)
		}
	}

	metas := make(solana.AccountMetaSlice, 0, len(b.ix.Accounts))
	for _, item := range b.ix.Accounts {
		key, ok := b.accounts[SnakeCase(item.Name)]
		if !ok && item.Address != "" {
			fixed, err := solana.PublicKeyFromBase58(item.Address)
			if err != nil {
				return nil, fmt.Errorf("account %s has invalid fixed address: %w", item.Name, err)
			}
			key, ok = fixed, true
		}
		if !ok {
			if item.Optional {
				// Anchor encodes an absent optional account as the program id.
				metas = append(metas, solana.NewAccountMeta(b.program.ID, false, false))
				continue
			}
			return nil, fmt.Errorf("instruction %s: missing account %q", b.ix.Name, item.Name)
		}
		metas = append(metas, solana.NewAccountMeta(key, item.Writable, item.Signer))
	}

	return solana.NewInstruction(b.program.ID, metas, buf.Bytes()), nil
}

// RPC sends the instruction through s and waits for confirmation.
func (b *MethodBuilder) RPC(ctx context.Context, s Sender) (*models.Transaction, error) {
	ix, err := b.Instruction()
	if err != nil {
		return nil, err
	}
	return s.SendAndConfirm(ctx, SnakeCase(b.ix.Name), b.program.ID, []solana.Instruction{ix}, b.signers...)
}

func encodeArg(enc *bin.Encoder, field IDLField, val any) error {
	var typ string
	if err := json.Unmarshal(field.Type, &typ); err != nil {
		return fmt.Errorf("argument %s: unsupported type %s", field.Name, string(field.Type))
	}

	var v any
	var err error
	switch typ {
	case "bool":
		b, ok := val.(bool)
		if !ok {
			return fmt.Errorf("argument %s: want bool, got %T", field.Name, val)
		}
		v = b
	case "u8":
		v, err = unsigned[uint8](val, math.MaxUint8)
	case "u16":
		v, err = unsigned[uint16](val, math.MaxUint16)
	case "u32":
		v, err = unsigned[uint32](val, math.MaxUint32)
	case "u64":
		v, err = unsigned[uint64](val, math.MaxUint64)
	case "i64":
		switch n := val.(type) {
		case int64:
			v = n
		case int:
			v = int64(n)
		default:
			err = fmt.Errorf("want integer, got %T", val)
		}
	case "pubkey", "publicKey":
		switch k := val.(type) {
		case solana.PublicKey:
			v = k
		case string:
			v, err = solana.PublicKeyFromBase58(k)
		default:
			err = fmt.Errorf("want public key, got %T", val)
		}
	case "string":
		s, ok := val.(string)
		if !ok {
			err = fmt.Errorf("want string, got %T", val)
		}
		v = s
	default:
		return fmt.Errorf("argument %s: unsupported type %q", field.Name, typ)
	}
	if err != nil {
		return fmt.Errorf("argument %s: %w", field.Name, err)
	}
	return enc.Encode(v)
}

type unsignedInt interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

func unsigned[T unsignedInt](val any, limit uint64) (T, error) {
	var n uint64
	switch x := val.(type) {
	case T:
		return x, nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		n = uint64(x)
	case uint:
		n = uint64(x)
	case uint64:
		n = x
	default:
		return 0, fmt.Errorf("want unsigned integer, got %T", val)
	}
	if n > limit {
		return 0, fmt.Errorf("value %d overflows", n)
	}
	return T(n), nil
}
