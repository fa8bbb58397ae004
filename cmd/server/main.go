package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/harrylevesque/makerdash/internal/config"
)

var (
	configPath string
	verbose    bool
)

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "makerdash-server",
		Short: "Coinswap maker dashboard backend",
		Long: `makerdash-server runs the maker pool and serves the dashboard API and
frontend on one port (default :3000).

Settings come from makerdash.toml, overridden by MAKERDASH_* environment
variables, e.g. MAKERDASH_SERVER_ADDR=127.0.0.1:3000.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Log.Level = "debug"
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "config file (default makerdash.toml)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().Bool("demo", false, "seed four demo makers on an empty registry")
	_ = v.BindPFlag("demo", cmd.Flags().Lookup("demo"))
	return cmd
}

func main() {
	if err := newRootCmd(config.New()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
