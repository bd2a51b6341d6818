package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/altuslabsxyz/txexec/internal/store"
	"github.com/altuslabsxyz/txexec/internal/types"
)

func newResumeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Wait for receipts of transactions submitted by an earlier run",
		Args:  cobra.NoArgs,
		RunE:  runResume,
	}
}

func runResume(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	s, err := openSession(ctx, cfg, sessionOptions{})
	if err != nil {
		return err
	}
	defer s.Close()

	recs, err := s.store.List(ctx)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Fprintln(out, "No pending transactions.")
		return nil
	}

	txs := make([]*types.Transaction, 0, len(recs))
	for _, rec := range recs {
		if rec.RPCEndpoint != "" && rec.RPCEndpoint != cfg.RPC.Endpoint {
			s.logger.Warn("pending transaction was sent through another endpoint",
				"record", rec.ID, "sent_via", rec.RPCEndpoint, "rpc", cfg.RPC.Endpoint)
		}
		tx := s.exec.WaitForTransaction(types.PersistedTransaction{
			Intent: s.intentFor(rec),
			Hash:   rec.Hash,
		})
		s.tracker.TrackPersisted(ctx, tx, rec.ID)
		printState(out, tx, "waiting")
		txs = append(txs, tx)
	}

	return awaitAll(ctx, out, txs, true)
}

// intentFor rebuilds the intent of a stored record. The ABI is only needed
// to show the target, so a missing file is not fatal.
func (s *session) intentFor(rec *store.PendingTransaction) *types.Intent {
	intent := &types.Intent{MethodName: rec.Method}
	if rec.ABIPath == "" {
		return intent
	}
	contract, err := s.loadContract(rec.Contract.Hex(), rec.ABIPath)
	if err != nil {
		s.logger.Warn("cannot load contract ABI", "record", rec.ID, "abi", rec.ABIPath, "error", err)
		return intent
	}
	intent.Contract = contract
	if args, err := contract.ParseArgs(rec.Method, rec.Args); err == nil {
		intent.Args = types.StaticArgs(args...)
	}
	return intent
}
