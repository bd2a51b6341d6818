package ethconn

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// Contract is a deployed contract bound to a backend.
type Contract struct {
	address common.Address
	abi     abi.ABI
	bound   *bind.BoundContract
}

// NewContract binds parsed at address.
func NewContract(address common.Address, parsed abi.ABI, backend bind.ContractBackend) *Contract {
	return &Contract{
		address: address,
		abi:     parsed,
		bound:   bind.NewBoundContract(address, parsed, backend, backend, backend),
	}
}

// Address returns the contract address.
func (c *Contract) Address() common.Address {
	return c.address
}

// ABI returns the contract ABI.
func (c *Contract) ABI() abi.ABI {
	return c.abi
}

// Transact signs and sends a call to method.
func (c *Contract) Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error) {
	return c.bound.Transact(opts, method, params...)
}

// ParseArgs converts command line strings into arguments for method.
func (c *Contract) ParseArgs(method string, raw []string) ([]interface{}, error) {
	m, ok := c.abi.Methods[method]
	if !ok {
		return nil, fmt.Errorf("method %q not found in ABI", method)
	}
	if len(raw) != len(m.Inputs) {
		return nil, fmt.Errorf("method %s takes %d arguments, got %d", method, len(m.Inputs), len(raw))
	}
	args := make([]interface{}, len(raw))
	for i, in := range m.Inputs {
		v, err := ParseArg(in.Type, raw[i])
		if err != nil {
			name := in.Name
			if name == "" {
				name = fmt.Sprintf("#%d", i)
			}
			return nil, fmt.Errorf("argument %s: %w", name, err)
		}
		args[i] = v
	}
	return args, nil
}

// LoadABI reads an ABI from path. Both a bare ABI array and a compiler
// artifact with an "abi" field are accepted.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read ABI: %w", err)
	}
	return ParseABI(data)
}

// ParseABI parses ABI JSON, unwrapping a compiler artifact if needed.
func ParseABI(data []byte) (abi.ABI, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var artifact struct {
			ABI json.RawMessage `json:"abi"`
		}
		if err := json.Unmarshal(data, &artifact); err != nil {
			return abi.ABI{}, fmt.Errorf("failed to decode artifact: %w", err)
		}
		if len(artifact.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("artifact has no abi field")
		}
		data = artifact.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse ABI: %w", err)
	}
	return parsed, nil
}
