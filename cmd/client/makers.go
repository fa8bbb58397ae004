package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/harrylevesque/makerdash/internal/client"
	"github.com/harrylevesque/makerdash/internal/models"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered makers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			makers, err := newClient().ListMakers(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), makers)
			}
			renderMakers(cmd, makers)
			return nil
		},
	}
}

func renderMakers(cmd *cobra.Command, makers []models.MakerSummary) {
	if len(makers) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No makers registered. Add one with `makerctl add`.")
		return
	}
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"ID", "Name", "Port", "Status", "Balance", "Swaps", "Earnings", "Uptime"})
	table.SetBorder(false)
	for _, m := range makers {
		table.Append([]string{
			m.ID, m.Name, strconv.Itoa(m.Port), string(m.Status),
			m.Balance, strconv.Itoa(m.ActiveSwaps), m.Earnings, m.Uptime,
		})
	}
	table.Render()
}

func newShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <maker-id>",
		Short: "Show one maker with balances, config and swaps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			detail, err := newClient().GetMaker(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), detail)
		},
	}
}

func newAddCmd() *cobra.Command {
	var req models.AddMakerRequest
	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register and start a new maker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			ctx, cancel := commandContext(cmd)
			defer cancel()
			m, err := newClient().AddMaker(ctx, req)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), m)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Maker %s added (%s), status %s\n", m.Name, m.ID, m.Status)
			return nil
		},
	}
	f := cmd.Flags()
	f.IntVar(&req.RPCPort, "port", 6103, "maker RPC port")
	f.StringVar(&req.DataDir, "data-dir", "", "maker data directory, e.g. ~/.coinswap/maker1")
	f.StringVar(&req.BitcoinRPC, "rpc", "127.0.0.1:38332", "Bitcoin Core RPC host:port")
	f.StringVar(&req.BitcoinUser, "rpc-user", "", "Bitcoin Core RPC user")
	f.StringVar(&req.BitcoinPassword, "rpc-password", "", "Bitcoin Core RPC password")
	f.StringVar(&req.ZMQ, "zmq", "tcp://127.0.0.1:28332", "Bitcoin Core ZMQ endpoint")
	f.BoolVar(&req.Taproot, "taproot", false, "use taproot swap scripts")
	f.StringVar(&req.Network, "network", "", "bitcoin network (default signet)")
	f.StringVar(&req.WalletName, "wallet", "", "wallet file name")
	f.StringVar(&req.WalletPassword, "wallet-password", "", "wallet encryption password")
	f.StringVar(&req.TorAuth, "tor-auth", "", "tor control password")
	_ = cmd.MarkFlagRequired("data-dir")
	_ = cmd.MarkFlagRequired("rpc-user")
	_ = cmd.MarkFlagRequired("rpc-password")
	return cmd
}

// newLifecycleCmd builds a one-argument command around a client call that
// returns only an error.
func newLifecycleCmd(use, short string, call func(*client.Client) func(context.Context, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <maker-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := call(newClient())(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s: ok\n", use, args[0])
			return nil
		},
	}
}

func newRemoveCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:     "remove <maker-id>",
		Aliases: []string{"rm"},
		Short:   "Stop a maker and delete it from the registry",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("removing %s deletes its registry entry, pass --yes to confirm", args[0])
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			if err := newClient().RemoveMaker(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Maker %s removed\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removal")
	return cmd
}
