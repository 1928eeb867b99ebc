package main

import (
	"runtime"

	"github.com/spf13/cobra"
)

// Persistent flag values shared by every subcommand, grounded on
// desync/cmd/desync/root.go's package-level flag variables bound via
// PersistentFlags.
var (
	flagWorkers       int
	flagBufferLen     int
	flagAtomicity     string
	flagPartitionBy   string
	flagIgnoreHeader  bool
	flagIndexCapacity int
	flagKeepArtifacts bool
	flagWorkDir       string
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "csvbulk",
		Short: "Parallel CSV bulk-import engine for a columnar, time-partitioned store.",
	}

	cmd.PersistentFlags().IntVar(&flagWorkers, "workers", runtime.NumCPU(), "number of parallel workers")
	cmd.PersistentFlags().IntVar(&flagBufferLen, "buffer-len", 1<<20, "configured read buffer size in bytes")
	cmd.PersistentFlags().StringVar(&flagAtomicity, "atomicity", "SKIP_ROW", "row-level error handling: SKIP_COLUMN, SKIP_ROW, or SKIP_ALL")
	cmd.PersistentFlags().StringVar(&flagPartitionBy, "partition-by", "DAY", "time partitioning: NONE, HOUR, DAY, MONTH, or YEAR")
	cmd.PersistentFlags().BoolVar(&flagIgnoreHeader, "ignore-header", true, "discard the source file's first record")
	cmd.PersistentFlags().IntVar(&flagIndexCapacity, "index-capacity", 4096, "default posting-list block capacity for indexed columns")
	cmd.PersistentFlags().BoolVar(&flagKeepArtifacts, "keep-artifacts", false, "keep the scratch index/shadow directories after the job finishes")
	cmd.PersistentFlags().StringVar(&flagWorkDir, "work-dir", "", "scratch directory for index/shadow files (default: a temp dir)")

	cmd.AddCommand(newImportCommand())
	cmd.AddCommand(newGenerateCommand())
	return cmd
}
