package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/altuslabsxyz/txexec/internal/executor"
	"github.com/altuslabsxyz/txexec/internal/store"
	"github.com/altuslabsxyz/txexec/internal/types"
)

var errNotConfirmed = errors.New("transaction not confirmed by user")

type sendFlags struct {
	abiPath    string
	gasSetting string
	gasLimit   uint64
	value      string
	repeat     int
	yes        bool
	noWait     bool
}

func newSendCmd() *cobra.Command {
	var f sendFlags

	cmd := &cobra.Command{
		Use:   "send <contract> <method> [args...]",
		Short: "Queue a contract call and wait for its receipt",
		Long: `Queues a call to <method> on <contract> using the ABI given by --abi.

Arguments are parsed according to the method's ABI input types. Slices
are written comma separated. Once submitted, the transaction is recorded
in the pending store until its receipt arrives so that an interrupted
run can be picked up again with "txexec resume".`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, f, args[0], args[1], args[2:])
		},
	}

	cmd.Flags().StringVar(&f.abiPath, "abi", "", "Path to the contract ABI or build artifact (required)")
	cmd.Flags().StringVar(&f.gasSetting, "gas-setting", "", "Slow, Average, Fast or a gas price in gwei (default: from config)")
	cmd.Flags().Uint64Var(&f.gasLimit, "gas-limit", 0, "Gas limit for this call (default: from config)")
	cmd.Flags().StringVar(&f.value, "value", "", "Value to send in wei")
	cmd.Flags().IntVar(&f.repeat, "repeat", 1, "Queue the call this many times")
	cmd.Flags().BoolVarP(&f.yes, "yes", "y", false, "Do not ask for confirmation")
	cmd.Flags().BoolVar(&f.noWait, "no-wait", false, "Exit once submitted; use resume to await receipts")
	_ = cmd.MarkFlagRequired("abi")

	return cmd
}

func runSend(cmd *cobra.Command, f sendFlags, contractAddr, method string, rawArgs []string) error {
	if f.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	overrides, err := f.overrides()
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	gasSetting := types.AutoGasSetting(f.gasSetting)
	if gasSetting != "" {
		if _, err := types.AutoGasPriceGwei(types.DefaultGasPrices, gasSetting); err != nil {
			return err
		}
	}

	abiPath, err := filepath.Abs(f.abiPath)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, cfg, sessionOptions{
		gasSetting:   gasSetting,
		beforeQueued: confirmHook(f.yes, f.repeat),
	})
	if err != nil {
		return err
	}
	defer s.Close()

	contract, err := s.loadContract(contractAddr, abiPath)
	if err != nil {
		return err
	}
	args, err := contract.ParseArgs(method, rawArgs)
	if err != nil {
		return err
	}
	intent := &types.Intent{
		Contract:   contract,
		MethodName: method,
		Args:       types.StaticArgs(args...),
	}

	txs := make([]*types.Transaction, 0, f.repeat)
	for i := 0; i < f.repeat; i++ {
		tx, err := s.exec.QueueTransaction(ctx, intent, overrides)
		if err != nil {
			if errors.Is(err, errNotConfirmed) {
				fmt.Fprintln(out, "Aborted.")
				return nil
			}
			return err
		}
		s.tracker.Track(ctx, tx, store.PendingTransaction{
			Contract:    contract.Address(),
			ABIPath:     abiPath,
			Method:      method,
			Args:        rawArgs,
			RPCEndpoint: cfg.RPC.Endpoint,
		})
		printState(out, tx, "queued")
		txs = append(txs, tx)
	}

	return awaitAll(ctx, out, txs, !f.noWait)
}

func (f sendFlags) overrides() (*types.Overrides, error) {
	o := &types.Overrides{GasLimit: f.gasLimit}
	if f.value != "" {
		v, ok := new(big.Int).SetString(f.value, 0)
		if !ok || v.Sign() < 0 {
			return nil, fmt.Errorf("invalid --value %q", f.value)
		}
		o.Value = v
	}
	return o, nil
}

// confirmHook asks once on a terminal before the first of n copies is
// queued. Without a terminal, --yes is required.
func confirmHook(yes bool, n int) executor.BeforeQueued {
	if yes {
		return nil
	}
	asked := false
	return func(ctx context.Context, id types.TransactionID, intent *types.Intent, _ *types.Overrides) error {
		if asked {
			return nil
		}
		asked = true
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("stdin is not a terminal; pass --yes to send without confirmation")
		}
		label := fmt.Sprintf("Send %s to %s", intent.MethodName, intent.To().Hex())
		if n > 1 {
			label = fmt.Sprintf("%s (%d times)", label, n)
		}
		prompt := promptui.Prompt{Label: label, IsConfirm: true}
		if _, err := prompt.Run(); err != nil {
			return errNotConfirmed
		}
		return nil
	}
}

// awaitAll reports each transaction's submission, and its receipt when
// confirm is set. It returns an error if any transaction failed.
func awaitAll(ctx context.Context, out io.Writer, txs []*types.Transaction, confirm bool) error {
	failed := make(map[*types.Transaction]bool)
	for _, tx := range txs {
		if _, err := tx.Submitted().Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return interrupted(ctx)
			}
			printFailure(out, tx, err)
			failed[tx] = true
			continue
		}
		printState(out, tx, "submitted")
	}
	if confirm {
		for _, tx := range txs {
			if failed[tx] {
				continue
			}
			receipt, err := tx.Confirmed().Wait(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return interrupted(ctx)
				}
				printFailure(out, tx, err)
				failed[tx] = true
				continue
			}
			printState(out, tx, fmt.Sprintf("block %s, gas used %d", receipt.BlockNumber, receipt.GasUsed))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("%d of %d transactions failed", len(failed), len(txs))
	}
	return nil
}

func interrupted(ctx context.Context) error {
	return fmt.Errorf("%w; submitted transactions are kept for txexec resume", context.Cause(ctx))
}
