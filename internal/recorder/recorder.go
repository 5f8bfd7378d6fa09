// Package recorder produces and persists one seed's chunk of frames.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/ledger"
	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/scene"
)

var ErrInvalidFrameCount = errors.New("frame count must not be negative")

// Result is what a finished chunk reports for ledger bookkeeping.
type Result struct {
	Seed int64    `json:"seed"`
	Keys []string `json:"keys"`
}

type Recorder struct {
	scenes     *scene.Registry
	serializer *frame.Serializer
	log        *slog.Logger
}

func New(scenes *scene.Registry, serializer *frame.Serializer, log *slog.Logger) *Recorder {
	return &Recorder{scenes: scenes, serializer: serializer, log: logging.OrDiscard(log)}
}

// RecordChunk captures frameCount frames for seed and writes each one to
// dumps/{seed}-{i}{ext} under dir, in index order. A failure part way through
// may leave a prefix of the chunk on disk; such files are not ledgered.
func (r *Recorder) RecordChunk(ctx context.Context, dir string, cfg scene.Config, seed int64, frameCount int) (Result, error) {
	if frameCount < 0 {
		return Result{}, fmt.Errorf("%w: %d", ErrInvalidFrameCount, frameCount)
	}
	dumps := filepath.Join(dir, ledger.DumpsDir)
	if err := os.MkdirAll(dumps, 0755); err != nil {
		return Result{}, err
	}

	start := time.Now()
	log := r.log.With("seed", seed)
	records, err := r.capture(ctx, cfg, seed, frameCount, log)
	if err != nil {
		return Result{}, err
	}

	blobs := make([][]byte, len(records))
	for i, rec := range records {
		if blobs[i], err = r.serializer.Encode(rec); err != nil {
			return Result{}, fmt.Errorf("seed %d frame %d: %w", seed, i, err)
		}
	}

	res := Result{Seed: seed, Keys: make([]string, 0, frameCount)}
	for i, blob := range blobs {
		key := ledger.Key(seed, i)
		if err := ledger.WriteFileAtomic(filepath.Join(dumps, key+r.serializer.Ext()), blob); err != nil {
			return Result{}, fmt.Errorf("seed %d: write %s: %w", seed, key, err)
		}
		res.Keys = append(res.Keys, key)
	}

	log.Debug("chunk recorded", "frames", frameCount, "elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// capture holds the scene's session only while frames are produced; it is
// released on every exit path.
func (r *Recorder) capture(ctx context.Context, cfg scene.Config, seed int64, n int, log *slog.Logger) ([]*frame.Record, error) {
	gen, err := r.scenes.New(cfg, seed, log)
	if err != nil {
		return nil, fmt.Errorf("seed %d: %w", seed, err)
	}
	if err := gen.Connect(ctx, true); err != nil {
		return nil, fmt.Errorf("seed %d: connect: %w", seed, err)
	}
	defer func() {
		if derr := gen.Disconnect(); derr != nil {
			log.Warn("scene disconnect failed", "error", derr)
		}
	}()

	records := make([]*frame.Record, 0, n)
	for i := 0; i < n; i++ {
		rec, err := gen.MakeNewScene(ctx)
		if err != nil {
			return nil, fmt.Errorf("seed %d frame %d: %w", seed, i, err)
		}
		records = append(records, rec)
		log.Log(ctx, logging.LevelTrace, "frame captured", "frame", i)
	}
	return records, nil
}
