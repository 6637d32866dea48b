// Package engine orchestrates backup runs. A run moves through loading,
// scanning, writing and pruning, and always leaves a finalized history
// record behind, whatever the outcome.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/alphagoones/smartbackup/pkg/archive"
	"github.com/alphagoones/smartbackup/pkg/compress"
	"github.com/alphagoones/smartbackup/pkg/configstore"
	"github.com/alphagoones/smartbackup/pkg/history"
	"github.com/alphagoones/smartbackup/pkg/lockfile"
	"github.com/alphagoones/smartbackup/pkg/paths"
	"github.com/alphagoones/smartbackup/pkg/pathmatch"
	"github.com/alphagoones/smartbackup/pkg/plog"
	"github.com/alphagoones/smartbackup/pkg/preflight"
	"github.com/alphagoones/smartbackup/pkg/retention"
	"github.com/alphagoones/smartbackup/pkg/scan"
)

// ErrAlreadyRunning is returned when a run for the same configuration is
// already in flight, in this process or another one.
var ErrAlreadyRunning = errors.New("a backup for this configuration is already running")

// running guards against concurrent runs of the same configuration within
// one process. Cross-process exclusion is handled by the lock file.
var running sync.Map

// Engine executes backup runs against a state layout.
type Engine struct {
	Configs *configstore.Store
	History *history.Store
	Layout  *paths.Layout
	Workers int

	// Now overrides the artifact timestamp clock, nil means time.Now.
	Now func() time.Time

	state atomic.Int32
}

// New wires an engine from a resolved state layout.
func New(layout *paths.Layout) *Engine {
	return &Engine{
		Configs: configstore.NewStore(layout.ConfigFile),
		History: history.NewStore(layout.HistoryDir, layout.IndexDir),
		Layout:  layout,
	}
}

// State returns the phase of the current or last run.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(s State, configName string) {
	e.state.Store(int32(s))
	plog.Debug("Run state changed", "config", configName, "state", s.String())
}

// Run executes one backup for the named configuration. The returned record
// is non-nil whenever a run actually started, including failed ones. The
// error conveys why a run did not fully succeed, use the record's Outcome
// for the success/partial/failed distinction.
func (e *Engine) Run(ctx context.Context, name string) (*history.Record, error) {
	if _, loaded := running.LoadOrStore(name, struct{}{}); loaded {
		return nil, errors.Wrapf(ErrAlreadyRunning, "%q", name)
	}
	defer running.Delete(name)

	e.setState(Loading, name)

	cfg, err := e.Configs.Get(name)
	if err != nil {
		e.setState(Failed, name)
		return nil, err
	}

	rec := &history.Record{
		ID:         uuid.NewString(),
		ConfigName: name,
		StartedAt:  time.Now().UTC(),
	}
	plog.Info("Backup run started", "config", name, "runID", rec.ID)

	err = e.run(ctx, cfg, rec)

	// A run blocked by another holder never started, so it leaves no record.
	if errors.Is(err, ErrAlreadyRunning) {
		e.setState(Failed, name)
		return nil, err
	}

	rec.CompletedAt = time.Now().UTC()
	if appendErr := e.History.Append(*rec); appendErr != nil {
		plog.Error("Failed to persist run record", "config", name, "error", appendErr)
		if err == nil {
			err = appendErr
		}
	}

	if rec.Outcome == history.Failed {
		e.setState(Failed, name)
	} else {
		e.setState(Done, name)
	}
	plog.Info("Backup run finished",
		"config", name,
		"outcome", rec.Outcome.String(),
		"files", rec.FileCount,
		"bytes", rec.BytesWritten,
		"duration", rec.CompletedAt.Sub(rec.StartedAt).Truncate(time.Millisecond).String(),
	)
	return rec, err
}

// run performs the fallible middle of a backup and fills in the record.
func (e *Engine) run(ctx context.Context, cfg *configstore.Config, rec *history.Record) error {
	fail := func(err error) error {
		rec.Outcome = history.Failed
		rec.ErrorDetail = err.Error()
		return err
	}

	// Source preflight. Individual missing sources are tolerated here, the
	// scanner accounts for them in the run outcome. Only a run with no
	// reachable source at all stops before touching the destination.
	accessible := 0
	for _, src := range cfg.Sources {
		if err := preflight.CheckBackupSourceAccessible(src); err != nil {
			plog.Warn("Backup source is not accessible", "config", cfg.Name, "source", src, "error", err)
			continue
		}
		accessible++
	}
	if accessible == 0 {
		return fail(errors.Wrap(scan.ErrAllSourcesUnavailable, "source preflight"))
	}

	// Destination preflight. A destination on the system disk is allowed
	// but called out, external drives are the common setup.
	if err := preflight.CheckBackupTargetAccessible(cfg.Destination); err != nil {
		if errors.Is(err, preflight.ErrRootFilesystem) {
			plog.Warn("Backup destination is on the system disk", "destination", cfg.Destination)
		} else {
			return fail(errors.Wrap(err, "destination is not accessible"))
		}
	}
	if err := preflight.CheckBackupTargetWritable(cfg.Destination); err != nil {
		return fail(errors.Wrap(err, "destination is not writable"))
	}

	// Cross-process exclusion via a lock file next to the artifacts.
	// Fail fast instead of queueing behind the holder.
	lock, err := lockfile.Acquire(ctx, cfg.Destination, cfg.Name)
	if err != nil {
		var active *lockfile.ErrLockActive
		if errors.As(err, &active) {
			plog.Warn("Skipping run, lock is held", "config", cfg.Name, "holder", active.Error())
			return errors.Wrapf(ErrAlreadyRunning, "%q: %v", cfg.Name, active)
		}
		return fail(err)
	}
	defer lock.Release()

	format, err := compress.ParseFormat(cfg.Format)
	if err != nil {
		return fail(err)
	}

	e.setState(Scanning, cfg.Name)

	var baseline *time.Time
	index := history.FileIndex{}
	latest, err := e.History.LatestSuccess(cfg.Name)
	if err != nil {
		plog.Warn("Could not read run history, performing full backup", "config", cfg.Name, "error", err)
	} else if latest != nil {
		baseline = &latest.CompletedAt
		if idx, idxErr := e.History.LoadIndex(cfg.Name); idxErr != nil {
			plog.Warn("Could not read file index, performing full backup", "config", cfg.Name, "error", idxErr)
			baseline = nil
		} else {
			index = idx
		}
	}
	if baseline == nil {
		plog.Info("No prior successful run, performing full backup", "config", cfg.Name)
	}

	builder := &archive.Builder{
		ConfigName:  cfg.Name,
		Destination: cfg.Destination,
		Scanner: &scan.Scanner{
			Sources:  cfg.Sources,
			Matcher:  pathmatch.New(cfg.Exclusions),
			Baseline: baseline,
			Index:    index,
		},
		Compression: cfg.Compression,
		Format:      format,
		Workers:     e.Workers,
		Now:         e.Now,
	}

	e.setState(Writing, cfg.Name)

	result, err := builder.Build(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(errors.Wrap(ctxErr, "run cancelled"))
		}
		return fail(err)
	}

	rec.ArtifactPath = result.ArtifactPath
	rec.FileCount = result.FilesCopied
	rec.BytesWritten = result.BytesWritten

	// Fold the copied files into the index so the next incremental run sees
	// them. Files that failed to copy keep their old attributes and stay
	// candidates.
	for key, entry := range result.CopiedIndex {
		index[key] = entry
	}
	if err := e.History.SaveIndex(cfg.Name, index); err != nil {
		plog.Warn("Failed to persist file index", "config", cfg.Name, "error", err)
	}

	e.setState(Pruning, cfg.Name)

	// Retention problems never change the outcome of an otherwise good run.
	if pruneResult, pruneErr := retention.Enforce(ctx, cfg.Name, cfg.Destination, cfg.MaxBackups); pruneErr != nil {
		plog.Warn("Retention enforcement failed", "config", cfg.Name, "error", pruneErr)
	} else if pruneResult.Deleted > 0 || pruneResult.Failed > 0 {
		plog.Info("Retention enforced",
			"config", cfg.Name,
			"deleted", pruneResult.Deleted,
			"kept", pruneResult.Kept,
			"failed", pruneResult.Failed,
		)
	}

	return e.classify(result, rec)
}

// classify derives the run outcome from the build result.
func (e *Engine) classify(result *archive.Result, rec *history.Record) error {
	var reasons []string
	if n := len(result.FileErrors); n > 0 {
		reasons = append(reasons, fmt.Sprintf("%d file(s) could not be copied (first: %s: %v)",
			n, result.FileErrors[0].RelPath, result.FileErrors[0].Err))
	}
	if result.CompressErr != nil {
		reasons = append(reasons, fmt.Sprintf("compression failed: %v", result.CompressErr))
	}
	if result.ScanReport != nil {
		for src, err := range result.ScanReport.Unavailable {
			reasons = append(reasons, fmt.Sprintf("source %s unavailable: %v", src, err))
		}
	}

	if len(reasons) == 0 {
		rec.Outcome = history.Success
		return nil
	}
	rec.Outcome = history.Partial
	rec.ErrorDetail = strings.Join(reasons, "; ")
	return nil
}
