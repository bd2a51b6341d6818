package ethconn

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArg converts s into the Go value the ABI encoder expects for t.
// Integers accept decimal or 0x hex; slices are comma separated.
func ParseArg(t abi.Type, s string) (interface{}, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		return common.HexToAddress(s), nil

	case abi.BoolTy:
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", s)
		}
		return b, nil

	case abi.StringTy:
		return s, nil

	case abi.IntTy, abi.UintTy:
		return parseInt(t, s)

	case abi.BytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes %q: %w", s, err)
		}
		return b, nil

	case abi.FixedBytesTy:
		b, err := hexutil.Decode(s)
		if err != nil {
			return nil, fmt.Errorf("invalid bytes%d %q: %w", t.Size, s, err)
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("bytes%d needs %d bytes, got %d", t.Size, t.Size, len(b))
		}
		v := reflect.New(t.GetType()).Elem()
		reflect.Copy(v, reflect.ValueOf(b))
		return v.Interface(), nil

	case abi.SliceTy:
		var parts []string
		if s = strings.TrimSpace(s); s != "" {
			parts = strings.Split(s, ",")
		}
		v := reflect.MakeSlice(t.GetType(), len(parts), len(parts))
		for i, p := range parts {
			elem, err := ParseArg(*t.Elem, strings.TrimSpace(p))
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			v.Index(i).Set(reflect.ValueOf(elem))
		}
		return v.Interface(), nil

	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

func parseInt(t abi.Type, s string) (interface{}, error) {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		return nil, fmt.Errorf("invalid %s %q", t.String(), s)
	}
	if t.T == abi.UintTy && n.Sign() < 0 {
		return nil, fmt.Errorf("%s cannot be negative", t.String())
	}
	if n.BitLen() > t.Size {
		return nil, fmt.Errorf("%s overflows %s", s, t.String())
	}
	rt := t.GetType()
	if rt == reflect.TypeOf(n) {
		// sizes without a native Go type are encoded from *big.Int
		return n, nil
	}

	v := reflect.New(rt).Elem()
	if t.T == abi.UintTy {
		v.SetUint(n.Uint64())
	} else {
		if !n.IsInt64() || v.OverflowInt(n.Int64()) {
			return nil, fmt.Errorf("%s overflows %s", s, t.String())
		}
		v.SetInt(n.Int64())
	}
	return v.Interface(), nil
}
