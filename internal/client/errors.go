package client

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// JSON-RPC error codes returned by Solana validators.
const (
	CodeTransactionSimulation = -32002
	CodeSignatureVerification = -32003
	CodeNodeUnhealthy         = -32005
)

// RPCError is a JSON-RPC error object. Preflight failures carry simulation
// details in Data.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type simulationData struct {
	Err  json.RawMessage `json:"err"`
	Logs []string        `json:"logs"`
}

// Logs returns the program logs attached to a failed simulation, if any.
func (e *RPCError) Logs() []string {
	var d simulationData
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &d) != nil {
		return nil
	}
	return d.Logs
}

// TransactionError returns the decoded transaction error attached to a failed simulation.
func (e *RPCError) TransactionError() *TransactionError {
	var d simulationData
	if len(e.Data) == 0 || json.Unmarshal(e.Data, &d) != nil {
		return nil
	}
	return ParseTransactionError(d.Err)
}

// TransactionError is the decoded form of the "err" field of a transaction
// status, e.g. {"InstructionError":[0,{"Custom":6000}]}.
type TransactionError struct {
	Kind             string
	InstructionIndex int
	// Custom is set when an instruction failed with a program-defined error code.
	Custom *uint32
	Raw    json.RawMessage
}

func (e *TransactionError) Error() string {
	switch {
	case e.Custom != nil:
		return fmt.Sprintf("instruction %d failed: custom program error: %#x", e.InstructionIndex, *e.Custom)
	case e.Kind == "InstructionError":
		return fmt.Sprintf("instruction %d failed: %s", e.InstructionIndex, string(e.Raw))
	default:
		return fmt.Sprintf("transaction failed: %s", e.Kind)
	}
}

// ParseTransactionError decodes a transaction "err" value. It returns nil for
// JSON null or empty input.
func ParseTransactionError(raw json.RawMessage) *TransactionError {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	out := &TransactionError{Raw: raw}

	var kind string
	if err := json.Unmarshal(raw, &kind); err == nil {
		out.Kind = kind
		return out
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || len(obj) != 1 {
		out.Kind = trimmed
		return out
	}
	for k, v := range obj {
		out.Kind = k
		if k != "InstructionError" {
			continue
		}
		var pair []json.RawMessage
		if json.Unmarshal(v, &pair) != nil || len(pair) != 2 {
			continue
		}
		_ = json.Unmarshal(pair[0], &out.InstructionIndex)
		var custom struct {
			Custom *uint32 `json:"Custom"`
		}
		if json.Unmarshal(pair[1], &custom) == nil && custom.Custom != nil {
			out.Custom = custom.Custom
		}
		out.Raw = pair[1]
	}
	return out
}

var customErrorRe = regexp.MustCompile(`custom program error: (0x[0-9a-f]+)`)

// ParseCustomErrorCode extracts a program error code from an error message or
// log line such as "custom program error: 0x1770".
func ParseCustomErrorCode(msg string) (uint32, error) {
	matches := customErrorRe.FindStringSubmatch(strings.ToLower(msg))
	if len(matches) < 2 {
		return 0, errors.New("no custom program error in message")
	}
	code, err := strconv.ParseUint(matches[1], 0, 32)
	if err != nil {
		return 0, errors.WithMessage(err, "error parsing custom program error code")
	}
	return uint32(code), nil
}
