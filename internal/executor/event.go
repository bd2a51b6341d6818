package executor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/altuslabsxyz/txexec/internal/types"
)

// NetworkEvent summarises one execution attempt. Timestamps are unix
// millis and waits are milliseconds; waits that did not happen are omitted.
type NetworkEvent struct {
	TxTo                string               `json:"tx_to"`
	TxType              string               `json:"tx_type"`
	TimeExecCalled      int64                `json:"time_exec_called"`
	AutoGasPriceSetting types.AutoGasSetting `json:"auto_gas_price_setting,omitempty"`
	RPCEndpoint         string               `json:"rpc_endpoint"`
	TxHash              string               `json:"tx_hash,omitempty"`
	UserAddress         string               `json:"user_address"`
	GasPrice            string               `json:"gas_price,omitempty"`
	GasLimit            uint64               `json:"gas_limit,omitempty"`

	WaitSubmit  *int64 `json:"wait_submit,omitempty"`
	WaitConfirm *int64 `json:"wait_confirm,omitempty"`
	WaitError   *int64 `json:"wait_error,omitempty"`

	Error       string `json:"error,omitempty"`
	ParsedError string `json:"parsed_error,omitempty"`
}

// Succeeded reports whether the attempt ended without an error.
func (ev NetworkEvent) Succeeded() bool {
	return ev.Error == ""
}

// attempt collects the timing marks of one execution.
type attempt struct {
	executionCalled time.Time
	called          time.Time
	submitted       time.Time
	confirmed       time.Time
	errored         time.Time

	// lockTaken is set once the nonce lock was held, so a failure knows
	// whether the cached nonce may be wrong.
	lockTaken  bool
	nonceReset bool
	overrides  types.Overrides
}

func (e *Executor) buildEvent(tx *types.Transaction, a *attempt, err error) NetworkEvent {
	ev := NetworkEvent{
		TxTo:                tx.Intent.To().Hex(),
		TxType:              tx.Intent.MethodName,
		TimeExecCalled:      a.executionCalled.UnixMilli(),
		AutoGasPriceSetting: tx.AutoGasPriceSetting(),
		RPCEndpoint:         e.conn.RPCEndpoint(),
		UserAddress:         e.conn.Address().Hex(),
		GasLimit:            a.overrides.GasLimit,
	}
	if h := tx.Hash(); h != (common.Hash{}) {
		ev.TxHash = h.Hex()
	}
	if a.overrides.GasPrice != nil {
		ev.GasPrice = a.overrides.GasPrice.String()
	}
	if !a.called.IsZero() && !a.submitted.IsZero() {
		ev.WaitSubmit = since(a.called, a.submitted)
		if !a.confirmed.IsZero() {
			ev.WaitConfirm = since(a.called, a.confirmed)
		}
	}
	if err != nil {
		ev.Error = err.Error()
		ev.ParsedError = RevertReason(err)
		if !a.errored.IsZero() {
			ev.WaitError = since(a.executionCalled, a.errored)
		}
	}
	return ev
}

func since(from, to time.Time) *int64 {
	ms := to.Sub(from).Milliseconds()
	return &ms
}

// RevertReason extracts a revert reason carried as RPC error data. It
// returns "" when err carries none.
func RevertReason(err error) string {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return ""
	}
	data := dataErr.ErrorData()
	if data == nil {
		return ""
	}
	s, ok := data.(string)
	if !ok {
		return fmt.Sprint(data)
	}
	if !strings.HasPrefix(s, "0x") {
		return s
	}
	raw, decodeErr := hexutil.Decode(s)
	if decodeErr != nil {
		return s
	}
	if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
		return reason
	}
	return s
}
