package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harrylevesque/makerdash/internal/auth"
)

func newLoginCmd() *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and print an API token",
		Long: `Logs in with the dashboard admin account and prints a token.
Export it as MAKERDASH_TOKEN or pass it with --token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, "Password: ")
			if err != nil {
				return err
			}
			ctx, cancel := commandContext(cmd)
			defer cancel()
			resp, err := newClient().Login(ctx, username, password)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "admin", "dashboard username")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or test the Bitcoin Core settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			view, err := newClient().Settings(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.AddCommand(newSettingsTestCmd(), newZMQConfigCmd())
	return cmd
}

func newSettingsTestCmd() *cobra.Command {
	var (
		host, user, password, network string
		port                          int
	)
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the Bitcoin Core connection",
		Long: `Tests the stored settings against Bitcoin Core. Flags override single
fields for this test only; nothing is saved.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			c := newClient()
			view, err := c.Settings(ctx)
			if err != nil {
				return err
			}
			st := view.Settings
			f := cmd.Flags()
			if f.Changed("rpc-host") {
				st.RPCHost = host
			}
			if f.Changed("rpc-port") {
				st.RPCPort = port
			}
			if f.Changed("rpc-user") {
				st.RPCUser = user
			}
			if f.Changed("rpc-password") {
				st.RPCPassword = password
			}
			if f.Changed("network") {
				st.Network = network
			}
			status, err := c.TestConnection(ctx, &st)
			if err != nil {
				return err
			}
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), status)
			}
			out := cmd.OutOrStdout()
			if !status.Connected {
				fmt.Fprintf(out, "Disconnected: %s\n", status.Error)
				return errors.New("bitcoin core is not reachable")
			}
			fmt.Fprintf(out, "Connected to %s\n", status.Version)
			fmt.Fprintf(out, "network        %s\n", status.Network)
			fmt.Fprintf(out, "block height   %s\n", status.BlockHeight)
			fmt.Fprintf(out, "sync progress  %s\n", status.SyncProgress)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&host, "rpc-host", "", "Bitcoin Core RPC host")
	f.IntVar(&port, "rpc-port", 0, "Bitcoin Core RPC port")
	f.StringVar(&user, "rpc-user", "", "Bitcoin Core RPC user")
	f.StringVar(&password, "rpc-password", "", "Bitcoin Core RPC password")
	f.StringVar(&network, "network", "", "expected network")
	return cmd
}

func newZMQConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "zmq-config",
		Short: "Print the bitcoin.conf lines for the ZMQ endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext(cmd)
			defer cancel()
			conf, err := newClient().ZMQConfig(ctx)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), conf)
			return nil
		},
	}
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for auth.password_hash",
		Long: `Reads a password from the terminal (or stdin when piped) and prints the
bcrypt hash to put in auth.password_hash.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, "New password: ")
			if err != nil {
				return err
			}
			if len(password) < 8 {
				return errors.New("password must be at least 8 characters")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

// readPassword prompts without echo on a terminal and reads one line
// otherwise.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), prompt)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("empty password")
	}
	return line, nil
}
