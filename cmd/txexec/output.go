package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"

	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/store"
	"github.com/altuslabsxyz/txexec/internal/types"
)

var (
	colorOK   = color.New(color.FgGreen)
	colorFail = color.New(color.FgRed)
	colorWait = color.New(color.FgYellow)
	colorInfo = color.New(color.FgCyan)
	colorDim  = color.New(color.Faint)
)

func stateColor(s types.State) *color.Color {
	switch s {
	case types.StateConfirm:
		return colorOK
	case types.StateFail, types.StateCancel:
		return colorFail
	case types.StateSubmit:
		return colorInfo
	default:
		return colorWait
	}
}

// printState writes one status line for tx.
func printState(w io.Writer, tx *types.Transaction, detail string) {
	state := tx.State()
	line := fmt.Sprintf("#%-4d %s %-11s", tx.ID, tx.Intent.MethodName, stateColor(state).Sprint(state))
	if h := tx.Hash(); h != (common.Hash{}) {
		line += " " + h.Hex()
	}
	if detail != "" {
		line += " " + colorDim.Sprint(detail)
	}
	fmt.Fprintln(w, line)
}

// printFailure writes err under a failed transaction, with the decoded
// revert reason when the node returned one.
func printFailure(w io.Writer, tx *types.Transaction, err error) {
	printState(w, tx, "")
	fmt.Fprintf(w, "      %s %v\n", colorFail.Sprint("error:"), err)
	if reason := executor.RevertReason(err); reason != "" {
		fmt.Fprintf(w, "      %s %s\n", colorFail.Sprint("reason:"), reason)
	}
}

func printPending(w io.Writer, recs []*store.PendingTransaction) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No pending transactions.")
		return
	}
	for _, r := range recs {
		fmt.Fprintf(w, "%s  %s  %s.%s(%d args)  %s\n",
			colorInfo.Sprint(r.ID),
			r.Hash.Hex(),
			r.Contract.Hex(),
			r.Method,
			len(r.Args),
			colorDim.Sprint(r.CreatedAt.Format("2006-01-02 15:04:05")))
	}
}
