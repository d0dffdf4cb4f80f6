package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aweris/s3cache"
)

var storeCmd = &cobra.Command{
	Use:   "store <key> [file]",
	Short: "Store a cache entry",
	Long:  "Store the contents of file, or of stdin when file is omitted or \"-\", under key.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runStore,
}

func init() {
	rootCmd.AddCommand(storeCmd)
}

func runStore(cmd *cobra.Command, args []string) (err error) {
	key := s3cache.Key(args[0])

	var src io.Reader = cmd.InOrStdin()
	if len(args) > 1 && args[1] != "-" {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}

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

	fmt.Fprintf(os.Stderr, "Storing %s...\n", a.cache.Path(key))

	var n int64
	err = a.cache.Store(ctx, key, func(w io.Writer) error {
		var err error
		n, err = io.Copy(w, src)
		return err
	})
	if err != nil {
		return fmt.Errorf("store failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. %s\n", humanize.Bytes(uint64(n)))
	return nil
}
