package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/csvbulk/csvbulk/internal/coordinator"
	"github.com/csvbulk/csvbulk/internal/importjob"
)

func newImportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "import <source.csv> <destTable> <schema.json>",
		Short: "Run one bulk-import job end to end.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(args[0], args[1], args[2])
		},
	}
}

func runImport(sourcePath, destTable, schemaPath string) error {
	columns, timestampIndex, delimiter, err := loadSchema(schemaPath, flagIndexCapacity)
	if err != nil {
		return err
	}

	atomicity, err := importjob.ParseAtomicity(flagAtomicity)
	if err != nil {
		return err
	}
	partitioning, err := importjob.ParsePartitionScheme(flagPartitionBy)
	if err != nil {
		return err
	}

	job := &importjob.Job{
		SourcePath:     sourcePath,
		DestTable:      destTable,
		Schema:         columns,
		TimestampIndex: timestampIndex,
		Partitioning:   partitioning,
		Delimiter:      delimiter,
		IgnoreHeader:   flagIgnoreHeader,
		Atomicity:      atomicity,
		WorkerCount:    flagWorkers,
		ReadBufferSize: flagBufferLen,
		KeepArtifacts:  flagKeepArtifacts,
	}

	workDir := flagWorkDir
	if workDir == "" {
		dir, err := os.MkdirTemp("", "csvbulk-")
		if err != nil {
			return errors.Wrap(err, "create scratch directory")
		}
		workDir = dir
	}

	result := coordinator.Run(context.Background(), job, workDir)

	var totalImported, totalSkipped int64
	for _, n := range result.RowsImported {
		totalImported += n
	}
	for _, n := range result.RowsSkipped {
		totalSkipped += n
	}
	fmt.Printf("status=%s phase=%s partitions=%d imported=%d skipped=%d\n",
		result.Status, result.FailedPhase, len(result.RowsImported), totalImported, totalSkipped)

	if result.Status != coordinator.StatusSuccess {
		if result.Err != nil {
			return errors.Wrapf(result.Err, "import failed in phase %s", result.FailedPhase)
		}
		return errors.Errorf("import failed in phase %s", result.FailedPhase)
	}
	return nil
}
