// Command genmasterkey writes a new random master key for makerdash-server.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harrylevesque/makerdash/internal/files"
	"github.com/harrylevesque/makerdash/internal/utils"
)

func newRootCmd() *cobra.Command {
	var (
		out   string
		force bool
	)
	cmd := &cobra.Command{
		Use:   "genmasterkey",
		Short: "Generate the master key that encrypts stored secrets",
		Long: `Writes 32 random bytes, hex encoded, to the key file (mode 0600).
makerdash-server reads it from security.master_key_file or from the
MAKERDASH_MASTER_KEY environment variable.

Replacing the key makes existing encrypted settings and maker secrets
unreadable.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := utils.ExpandHome(out)
			if _, err := files.WriteMasterKey(path, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Master key written to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", filepath.Join(utils.GetDataRoot(), "master.key"), "key file path")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing key file")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
