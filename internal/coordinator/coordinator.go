// Package coordinator sequences the six phases of the bulk-import
// pipeline — BOUNDARY_CHECK, INDEXING, PARTITION_IMPORT,
// SYMBOL_TABLE_MERGE, UPDATE_SYMBOL_KEYS, BUILD_INDEX — over a shared
// persistent worker pool, enforcing spec.md §4.7's "first non-OK status
// wins" semantics across every phase's task batch.
//
// Grounded on entreya-csvquery/go/internal/indexer/indexer.go#Run's
// phase-sequenced fan-out/fan-in shape and folbricht-desync's chop.go
// cooperative-cancellation pattern (this package's breaker).
package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"

	"github.com/csvbulk/csvbulk/internal/importjob"
	"github.com/csvbulk/csvbulk/internal/logging"
	"github.com/csvbulk/csvbulk/internal/shadow"
	"github.com/csvbulk/csvbulk/internal/workerpool"
)

// Phase identifies one of the pipeline's six stages, or the sentinel
// values before the first and after the last.
type Phase int

const (
	PhaseInit Phase = iota
	PhaseBoundaryCheck
	PhaseIndexing
	PhasePartitionImport
	PhaseSymbolTableMerge
	PhaseUpdateSymbolKeys
	PhaseBuildIndex
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseInit:
		return "INIT"
	case PhaseBoundaryCheck:
		return "BOUNDARY_CHECK"
	case PhaseIndexing:
		return "INDEXING"
	case PhasePartitionImport:
		return "PARTITION_IMPORT"
	case PhaseSymbolTableMerge:
		return "SYMBOL_TABLE_MERGE"
	case PhaseUpdateSymbolKeys:
		return "UPDATE_SYMBOL_KEYS"
	case PhaseBuildIndex:
		return "BUILD_INDEX"
	case PhaseDone:
		return "DONE"
	default:
		return "UNKNOWN"
	}
}

// Status is the job's terminal outcome, matching spec §4.7's state
// machine: INIT -> RUNNING(phase) -> SUCCESS | FAILED(err) | CANCELLED.
type Status int

const (
	StatusSuccess Status = iota
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// JobResult is the outcome of one Run call.
type JobResult struct {
	Status       Status
	FailedPhase  Phase
	Err          error
	RowsImported map[importjob.PartitionKey]int64
	RowsSkipped  map[importjob.PartitionKey]int64
}

// partitionState tracks one partition's shadow table and row counters
// across phases 3 through 6.
type partitionState struct {
	Key          importjob.PartitionKey
	Table        *shadow.Table
	RowsImported int64
	RowsSkipped  int64
}

// Run executes every phase of job against workRoot, a scratch directory
// this call owns exclusively (it is created if missing and, on success,
// removed unless job.KeepArtifacts is set).
//
// ctx is the job's circuit breaker (spec §4.7: "the coordinator holds a
// circuit breaker shared with all tasks... the caller wires the circuit
// breaker to whatever external deadline it wishes," spec §5). Every
// phase's tasks check it cooperatively at their next opportunity; tripping
// it (cancelling ctx) yields JobResult.Status == StatusCancelled and
// removes the import root unconditionally, per spec §8's "cancellation
// between phases yields CANCELLED and removes the import root."
func Run(ctx context.Context, job *importjob.Job, workRoot string) JobResult {
	if err := job.Validate(); err != nil {
		return JobResult{Status: StatusFailed, FailedPhase: PhaseInit, Err: err}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return JobResult{Status: StatusCancelled, FailedPhase: PhaseInit, Err: err}
	}

	importRoot := filepath.Join(workRoot, "index")
	shadowRoot := filepath.Join(workRoot, "shadow")
	if err := os.MkdirAll(workRoot, 0o755); err != nil {
		return JobResult{Status: StatusFailed, FailedPhase: PhaseInit, Err: errors.Wrap(err, "coordinator: create work root")}
	}

	pool := workerpool.New(job.WorkerCount)
	defer pool.Close()

	logging.Log.WithFields(map[string]interface{}{
		"source":  job.SourcePath,
		"dest":    job.DestTable,
		"workers": job.WorkerCount,
	}).Info("import job starting")

	result, states := runPipeline(ctx, job, pool, workRoot, importRoot, shadowRoot)

	switch result.Status {
	case StatusSuccess:
		if !job.KeepArtifacts {
			os.RemoveAll(workRoot)
		}
	case StatusCancelled:
		rollbackPartitions(states)
		os.RemoveAll(workRoot)
	default: // StatusFailed
		rollbackPartitions(states)
		if !job.KeepArtifacts {
			os.RemoveAll(workRoot)
		}
	}

	logging.Log.WithFields(map[string]interface{}{
		"status": result.Status.String(),
		"phase":  result.FailedPhase.String(),
	}).Info("import job finished")

	return result
}

func runPipeline(ctx context.Context, job *importjob.Job, pool *workerpool.Pool, workRoot, importRoot, shadowRoot string) (JobResult, map[importjob.PartitionKey]*partitionState) {
	resolved, err := runBoundaryCheck(ctx, job, pool)
	if res, done := phaseOutcome(ctx, PhaseBoundaryCheck, err); done {
		return res, nil
	}
	if len(resolved) == 0 {
		return JobResult{Status: StatusSuccess, FailedPhase: PhaseDone,
			RowsImported: map[importjob.PartitionKey]int64{},
			RowsSkipped:  map[importjob.PartitionKey]int64{}}, nil
	}

	idxSummary, err := runIndexing(ctx, job, pool, importRoot, resolved)
	if res, done := phaseOutcome(ctx, PhaseIndexing, err); done {
		return res, nil
	}

	partitions := make([]importjob.PartitionKey, 0, len(idxSummary.Partitions))
	for key := range idxSummary.Partitions {
		partitions = append(partitions, key)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	rowBufSize := job.ReadBufferSize
	if want := 2 * idxSummary.MaxLineLength; want > rowBufSize {
		rowBufSize = want
	}

	states, err := runPartitionImport(ctx, job, pool, importRoot, shadowRoot, partitions, rowBufSize)
	if res, done := phaseOutcome(ctx, PhasePartitionImport, err); done {
		return res, states
	}

	if err := mergeSymbols(ctx, job, workRoot, states); err != nil {
		res, _ := phaseOutcome(ctx, PhaseSymbolTableMerge, err)
		return res, states
	}

	if err := applyKeyRemaps(ctx, job, pool, workRoot, shadowRoot, states); err != nil {
		res, _ := phaseOutcome(ctx, PhaseUpdateSymbolKeys, err)
		return res, states
	}

	if err := buildIndexes(ctx, job, pool, shadowRoot, states); err != nil {
		res, _ := phaseOutcome(ctx, PhaseBuildIndex, err)
		return res, states
	}

	if res, done := phaseOutcome(ctx, PhaseBuildIndex, nil); done {
		return res, states
	}

	imported := make(map[importjob.PartitionKey]int64, len(states))
	skipped := make(map[importjob.PartitionKey]int64, len(states))
	for key, st := range states {
		imported[key] = st.RowsImported
		skipped[key] = st.RowsSkipped
	}

	return JobResult{
		Status:       StatusSuccess,
		FailedPhase:  PhaseDone,
		RowsImported: imported,
		RowsSkipped:  skipped,
	}, states
}

// phaseOutcome decides whether runPipeline must stop after one phase call.
// An externally-tripped breaker (ctx.Err() != nil) always wins over an
// ordinary phase error, since a task that observed cancellation mid-phase
// may return nil having done only partial work rather than surfacing an
// error of its own. done is false only when err == nil and ctx is still
// live, meaning the pipeline should continue to the next phase.
func phaseOutcome(ctx context.Context, phase Phase, err error) (JobResult, bool) {
	if cerr := ctx.Err(); cerr != nil {
		return JobResult{Status: StatusCancelled, FailedPhase: phase, Err: cerr}, true
	}
	if err != nil {
		return JobResult{Status: StatusFailed, FailedPhase: phase, Err: err}, true
	}
	return JobResult{}, false
}

// rollbackPartitions discards every partition's shadow table after a
// failed run, matching spec §4.7's "on FAILED, discard all shadow tables
// for this job."
func rollbackPartitions(states map[importjob.PartitionKey]*partitionState) {
	for _, st := range states {
		if st.Table != nil {
			st.Table.Rollback()
		}
	}
}
