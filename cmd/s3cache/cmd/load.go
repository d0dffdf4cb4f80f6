package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/aweris/s3cache"
)

var errMiss = errors.New("cache miss")

var loadCmd = &cobra.Command{
	Use:   "load <key> [file]",
	Short: "Load a cache entry",
	Long:  "Write the entry stored under key to file, or to stdout when file is omitted or \"-\". Exits non-zero on a miss.",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)
}

func runLoad(cmd *cobra.Command, args []string) (err error) {
	key := s3cache.Key(args[0])

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

	if len(args) < 2 || args[1] == "-" {
		found, err := a.cache.Load(ctx, key, func(r io.Reader) error {
			_, err := io.Copy(cmd.OutOrStdout(), r)
			return err
		})
		if err != nil {
			return fmt.Errorf("load failed: %w", err)
		}
		if !found {
			return fmt.Errorf("%w: %s", errMiss, key)
		}
		return nil
	}

	found, n, err := loadToFile(ctx, a.cache, key, args[1])
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}
	if !found {
		return fmt.Errorf("%w: %s", errMiss, key)
	}
	fmt.Fprintf(os.Stderr, "Loaded %s to %s (%s)\n", key, args[1], humanize.Bytes(uint64(n)))
	return nil
}

// loadToFile writes the entry to a temporary file next to dst and renames it
// into place only when the whole entry was read.
func loadToFile(ctx context.Context, cache *s3cache.Cache, key s3cache.Key, dst string) (bool, int64, error) {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return false, 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".s3cache-load-*")
	if err != nil {
		return false, 0, err
	}
	defer os.Remove(tmp.Name())

	var n int64
	found, err := cache.Load(ctx, key, func(r io.Reader) error {
		var err error
		n, err = io.Copy(tmp, r)
		return err
	})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil || !found {
		return false, 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return false, 0, err
	}
	return true, n, nil
}
