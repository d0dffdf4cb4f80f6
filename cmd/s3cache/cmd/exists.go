package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aweris/s3cache"
)

var existsCmd = &cobra.Command{
	Use:   "exists <key>...",
	Short: "Check whether cache entries exist",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runExists,
}

func init() {
	rootCmd.AddCommand(existsCmd)
}

func runExists(cmd *cobra.Command, args []string) (err error) {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	ctx, cancel := a.commandContext(cmd)
	defer cancel()

	for _, k := range args {
		ok, err := a.cache.Contains(ctx, s3cache.Key(k))
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%t\n", a.cache.Path(s3cache.Key(k)), ok)
	}
	return nil
}
