// Command makerctl drives a running makerdash-server over its HTTP API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/makerdash/internal/client"
)

const defaultServer = "http://localhost:3000"

// Overridden by MAKERDASH_SERVER and MAKERDASH_TOKEN, then by the flags.
var (
	serverURL string
	token     string
	timeout   time.Duration
	jsonOut   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "makerctl",
		Short:         "Manage Coinswap makers through makerdash-server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&serverURL, "server", envOr("MAKERDASH_SERVER", defaultServer), "server base URL")
	pf.StringVar(&token, "token", os.Getenv("MAKERDASH_TOKEN"), "API token from `makerctl login`")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "per-command timeout")
	pf.BoolVar(&jsonOut, "json", false, "print raw JSON")

	root.AddCommand(
		newLoginCmd(),
		newListCmd(),
		newShowCmd(),
		newAddCmd(),
		newLifecycleCmd("start", "Start a maker", func(c *client.Client) func(context.Context, string) error { return c.StartMaker }),
		newLifecycleCmd("stop", "Stop a maker", func(c *client.Client) func(context.Context, string) error { return c.StopMaker }),
		newLifecycleCmd("restart", "Restart a maker", func(c *client.Client) func(context.Context, string) error { return c.RestartMaker }),
		newLifecycleCmd("ping", "Check that a maker answers", func(c *client.Client) func(context.Context, string) error { return c.Ping }),
		newLifecycleCmd("sync", "Sync a maker wallet with the chain", func(c *client.Client) func(context.Context, string) error { return c.SyncWallet }),
		newRemoveCmd(),
		newBalancesCmd(),
		newUTXOsCmd(),
		newAddressCmd(),
		newSendCmd(),
		newFidelityCmd(),
		newSettingsCmd(),
		newHashPasswordCmd(),
	)
	return root
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func newClient() *client.Client {
	return client.New(serverURL, token)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var apiErr *client.APIError
		if errors.As(err, &apiErr) && apiErr.Status == 401 {
			fmt.Fprintln(os.Stderr, "Error: unauthorized, run `makerctl login` and set MAKERDASH_TOKEN")
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
