package main

import (
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newBalancesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balances <maker-id>",
		Short: "Show wallet balances by category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			b, err := newClient().Balances(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), b)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "regular    %s BTC\n", b.Regular)
			fmt.Fprintf(out, "swap       %s BTC\n", b.Swap)
			fmt.Fprintf(out, "contract   %s BTC\n", b.Contract)
			fmt.Fprintf(out, "fidelity   %s BTC\n", b.Fidelity)
			fmt.Fprintf(out, "spendable  %s BTC\n", b.Spendable)
			return nil
		},
	}
}

func newUTXOsCmd() *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "utxos <maker-id>",
		Short: "List unspent wallet coins",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			utxos, err := newClient().UTXOs(ctx, args[0], kind)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), utxos)
			}
			if len(utxos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No UTXOs.")
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Outpoint", "Amount (BTC)", "Kind", "Confirmations", "Address"})
			table.SetBorder(false)
			for _, u := range utxos {
				table.Append([]string{
					fmt.Sprintf("%s:%d", u.TxID, u.Vout),
					strconv.FormatFloat(btcutil.Amount(u.Amount).ToBTC(), 'f', 8, 64),
					string(u.Kind),
					strconv.FormatInt(u.Confirmations, 10),
					u.Address,
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "coin kind: all, swap, contract or fidelity")
	return cmd
}

func newAddressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "address <maker-id>",
		Short: "Derive a new receive address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			addr, err := newClient().NewAddress(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), addr)
			return nil
		},
	}
}

func newSendCmd() *cobra.Command {
	var feeRate float64
	cmd := &cobra.Command{
		Use:   "send <maker-id> <address> <amount-sats>",
		Short: "Send coins from a maker wallet",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil || amount <= 0 {
				return fmt.Errorf("amount must be a positive number of sats, got %q", args[2])
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			txid, err := newClient().Send(ctx, args[0], args[1], amount, feeRate)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), txid)
			return nil
		},
	}
	cmd.Flags().Float64Var(&feeRate, "feerate", 0, "fee rate in sat/vB (0 uses the server default)")
	return cmd
}

func newFidelityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fidelity <maker-id>",
		Short: "List fidelity bonds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			bonds, err := newClient().Fidelity(ctx, args[0])
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), bonds)
			}
			if len(bonds) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No fidelity bonds.")
				return nil
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"Outpoint", "Amount (BTC)", "Locktime", "Status"})
			table.SetBorder(false)
			for _, b := range bonds {
				table.Append([]string{
					b.OutPoint,
					strconv.FormatFloat(btcutil.Amount(b.Amount).ToBTC(), 'f', 8, 64),
					strconv.FormatInt(b.Locktime, 10),
					b.Status,
				})
			}
			table.Render()
			return nil
		},
	}
}
