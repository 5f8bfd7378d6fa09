// Package dataset runs the outer recording loop: it dispatches one chunk per
// seed, keeps the ledgers, and derives the train/validation split.
package dataset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/ledger"
	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/recorder"
)

// Observer is told about run progress. Calls come from a single goroutine.
type Observer interface {
	RunStarted(total, pending int)
	ChunkDone(res recorder.Result, done, total int)
}

type Orchestrator struct {
	dispatcher Dispatcher
	observer   Observer
	log        *slog.Logger
}

func NewOrchestrator(d Dispatcher, log *slog.Logger) *Orchestrator {
	return &Orchestrator{dispatcher: d, log: logging.OrDiscard(log)}
}

func (o *Orchestrator) SetObserver(obs Observer) { o.observer = obs }

type RunOptions struct {
	Resume    bool
	Overwrite bool
}

type Summary struct {
	Dir      string
	Pending  int
	Recorded []int64
	Split    Split
	Elapsed  time.Duration
}

// RecordDataset records every seed in [StartSeed, StartSeed+Chunks) that
// the seed ledger does not already hold, then writes the key lists.
// Ledger lines are appended as chunks finish, so their order follows
// completion and is not deterministic when more than one worker runs.
// Cancelling ctx stops further dispatch; chunks already running finish and
// are ledgered before RecordDataset returns the cancellation error.
func (o *Orchestrator) RecordDataset(ctx context.Context, cfg *config.Config, opts RunOptions) (*Summary, error) {
	start := time.Now()
	if cfg.TrainRatio < 0 || cfg.TrainRatio > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatio, cfg.TrainRatio)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	dir := cfg.DatasetDir

	state, err := o.prepare(dir, opts)
	if err != nil {
		return nil, err
	}
	if err := config.Save(filepath.Join(dir, config.FileName), cfg); err != nil {
		return nil, fmt.Errorf("save config: %w", err)
	}

	w, err := ledger.Open(dir)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	pending := remainingSeeds(cfg.StartSeed, cfg.Chunks, state)
	o.log.Info("recording dataset",
		"dir", dir, "chunks", cfg.Chunks, "pending", len(pending),
		"frames_per_chunk", cfg.FramesPerChunk, "workers", o.dispatcher.Workers())
	if o.observer != nil {
		o.observer.RunStarted(cfg.Chunks, len(pending))
	}

	keys := append([]string(nil), state.Keys...)
	recorded, err := o.run(ctx, w, cfg, pending, len(state.Seeds), &keys)
	sum := &Summary{Dir: dir, Pending: len(pending), Recorded: recorded, Elapsed: time.Since(start)}
	if err != nil {
		return sum, err
	}

	split, err := ComputeSplit(keys, cfg.TrainRatio)
	if err != nil {
		return sum, err
	}
	if err := WriteSplit(dir, split); err != nil {
		return sum, fmt.Errorf("write split: %w", err)
	}
	sum.Split = split
	sum.Elapsed = time.Since(start)
	o.log.Info("dataset complete",
		"keys", len(split.All), "train", len(split.Train), "val", len(split.Val),
		"elapsed", sum.Elapsed.Round(time.Millisecond))
	return sum, nil
}

// prepare checks the target directory and returns what is already recorded.
func (o *Orchestrator) prepare(dir string, opts RunOptions) (*ledger.State, error) {
	if opts.Resume {
		if !ledger.Exists(dir) {
			return nil, fmt.Errorf("%w: %s", ErrNoLedger, dir)
		}
		return ledger.Read(dir)
	}
	if _, err := os.Stat(dir); err == nil {
		if !opts.Overwrite {
			return nil, fmt.Errorf("%w: %s", ErrDatasetExists, dir)
		}
		o.log.Warn("removing existing dataset", "dir", dir)
		if err := os.RemoveAll(dir); err != nil {
			return nil, err
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &ledger.State{}, nil
}

func remainingSeeds(start int64, count int, done *ledger.State) []int64 {
	seeds := make([]int64, 0, count)
	for s := start; s < start+int64(count); s++ {
		if !done.Done(s) {
			seeds = append(seeds, s)
		}
	}
	sort.Slice(seeds, func(i, j int) bool { return seeds[i] < seeds[j] })
	return seeds
}

// run dispatches pending seeds on a bounded pool. Only this goroutine's
// collector touches the ledger.
func (o *Orchestrator) run(ctx context.Context, w *ledger.Writer, cfg *config.Config, pending []int64, already int, keys *[]string) ([]int64, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(o.dispatcher.Workers())

	results := make(chan recorder.Result)
	var (
		recorded  []int64
		ledgerErr error
	)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		done := already
		for res := range results {
			if ledgerErr != nil {
				continue
			}
			if err := w.Append(res.Seed, res.Keys); err != nil {
				ledgerErr = err
				cancel()
				continue
			}
			*keys = append(*keys, res.Keys...)
			recorded = append(recorded, res.Seed)
			done++
			o.log.Info("chunk done", "seed", res.Seed, "frames", len(res.Keys), "progress", fmt.Sprintf("%d/%d", done, cfg.Chunks))
			if o.observer != nil {
				o.observer.ChunkDone(res, done, cfg.Chunks)
			}
		}
	}()

	for _, seed := range pending {
		if gctx.Err() != nil {
			break
		}
		job := Job{Dir: cfg.DatasetDir, Scene: cfg.Scene, Seed: seed, Frames: cfg.FramesPerChunk}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			res, err := o.dispatcher.Dispatch(context.WithoutCancel(gctx), job)
			if err != nil {
				return fmt.Errorf("seed %d: %w", job.Seed, err)
			}
			results <- res
			return nil
		})
	}
	err := g.Wait()
	close(results)
	<-collected

	switch {
	case err != nil:
		return recorded, err
	case ledgerErr != nil:
		return recorded, fmt.Errorf("ledger: %w", ledgerErr)
	case ctx.Err() != nil:
		return recorded, fmt.Errorf("recording interrupted after %d of %d pending chunks: %w", len(recorded), len(pending), ctx.Err())
	}
	return recorded, nil
}
