package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/aweris/s3cache"
)

const defaultConcurrency = 8

var pullCmd = &cobra.Command{
	Use:   "pull <dir> <key>...",
	Short: "Load several cache entries into a directory",
	Long:  "Load each key into <dir>/<key> in parallel. Misses are reported and skipped.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().Int("concurrency", defaultConcurrency, "number of parallel loads")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) (err error) {
	dir := args[0]
	keys := args[1:]
	for _, k := range keys {
		if !filepath.IsLocal(filepath.FromSlash(k)) {
			return fmt.Errorf("key %q does not map to a path inside %s", k, dir)
		}
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = defaultConcurrency
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

	fmt.Fprintf(os.Stderr, "Pulling %d entries into %s...\n", len(keys), dir)

	var hits, misses, total atomic.Int64
	p := pool.New().WithMaxGoroutines(concurrency).WithContext(ctx).WithCancelOnError()
	for _, k := range keys {
		key := s3cache.Key(k)
		p.Go(func(ctx context.Context) error {
			found, n, err := loadToFile(ctx, a.cache, key, filepath.Join(dir, filepath.FromSlash(k)))
			if err != nil {
				return fmt.Errorf("load %s: %w", key, err)
			}
			if !found {
				misses.Add(1)
				fmt.Fprintf(os.Stderr, "  miss %s\n", key)
				return nil
			}
			hits.Add(1)
			total.Add(n)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return fmt.Errorf("pull failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Done. %d hits, %d misses, %s\n", hits.Load(), misses.Load(), humanize.Bytes(uint64(total.Load())))
	return nil
}
