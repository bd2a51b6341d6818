package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/altuslabsxyz/txexec/internal/store"
)

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List transactions awaiting a receipt",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st store.Store) error {
				recs, err := st.List(cmd.Context())
				if err != nil {
					return err
				}
				printPending(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	cmd.AddCommand(newPendingDropCmd())
	return cmd
}

func newPendingDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop <id>...",
		Short: "Forget pending transactions without waiting for them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st store.Store) error {
				for _, id := range args {
					if err := st.Delete(cmd.Context(), id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s\n", id)
				}
				return nil
			})
		},
	}
}

// withStore opens the configured pending store for fn.
func withStore(cmd *cobra.Command, fn func(store.Store) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := store.NewBoltStore(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(st)
}
