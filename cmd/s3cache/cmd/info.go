package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show the cache configuration",
	Args:  cobra.NoArgs,
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) (err error) {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	a.cache.Describe(&textDescriber{w: cmd.OutOrStdout()})
	return nil
}

// textDescriber prints the cache description as indented lines.
type textDescriber struct {
	w io.Writer
}

func (d *textDescriber) Type(name string) {
	fmt.Fprintf(d.w, "Type: %s\n", name)
}

func (d *textDescriber) Config(name, value string) {
	fmt.Fprintf(d.w, "  %s: %s\n", name, value)
}
