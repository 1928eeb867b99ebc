// generate.go adapts entreya-csvquery/go/cmd/benchmark/main.go's
// random-row-writing loop into a reusable fixture generator: instead of a
// throwaway main that immediately indexes what it writes, it writes a CSV
// file plus a matching schema.json and leaves running the import to a
// separate "csvbulk import" invocation.
package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newGenerateCommand() *cobra.Command {
	var seed int64
	cmd := &cobra.Command{
		Use:   "generate <sizeMB> <outputDir>",
		Short: "Write a synthetic CSV fixture (and matching schema.json) of approximately the given size.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sizeMB, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrapf(err, "parse sizeMB %q", args[0])
			}
			return generateFixture(sizeMB, args[1], seed)
		},
	}
	cmd.Flags().Int64Var(&seed, "seed", 123, "PRNG seed, for reproducible fixtures")
	return cmd
}

func generateFixture(sizeMB int, outDir string, seed int64) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return errors.Wrapf(err, "create output dir %s", outDir)
	}

	csvPath := filepath.Join(outDir, "bench.csv")
	schemaPath := filepath.Join(outDir, "schema.json")

	f, err := os.Create(csvPath)
	if err != nil {
		return errors.Wrapf(err, "create %s", csvPath)
	}
	defer f.Close()

	w := bufio.NewWriterSize(f, 64*1024)
	w.WriteString("ts,symbol,value,description\n")

	limit := int64(sizeMB) * 1024 * 1024
	rng := rand.New(rand.NewSource(seed))
	base := time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

	var bytesWritten int64
	var rows int
	buf := make([]byte, 0, 256)
	for bytesWritten < limit {
		ts := base.Add(time.Duration(rows) * time.Second).Format("2006-01-02T15:04:05.000000Z")
		buf = buf[:0]
		buf = fmt.Appendf(buf, "%s,US-%d,%d,\"Description for item %d with some padding to make it longer\"\n",
			ts, rng.Intn(1000), rng.Intn(10000), rows)
		n, err := w.Write(buf)
		if err != nil {
			return errors.Wrapf(err, "write %s", csvPath)
		}
		bytesWritten += int64(n)
		rows++
	}
	if err := w.Flush(); err != nil {
		return errors.Wrapf(err, "flush %s", csvPath)
	}

	schema := `{
  "timestampIndex": 0,
  "delimiter": ",",
  "columns": [
    {"name": "ts", "type": "TIMESTAMP"},
    {"name": "symbol", "type": "SYMBOL", "indexed": true, "indexValueBlockCapacity": 4096},
    {"name": "value", "type": "LONG"},
    {"name": "description", "type": "STRING"}
  ]
}
`
	if err := os.WriteFile(schemaPath, []byte(schema), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", schemaPath)
	}

	fmt.Printf("wrote %d rows (%.2f MB) to %s\nschema written to %s\n", rows, float64(bytesWritten)/1024/1024, csvPath, schemaPath)
	return nil
}
