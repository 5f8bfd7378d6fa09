package dataset

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/frame"
	"github.com/san-kum/posegen/internal/recorder"
	"github.com/san-kum/posegen/internal/scene"
)

// NewRecorder builds a chunk recorder for cfg's frame options.
func NewRecorder(cfg *config.Config, scenes *scene.Registry, log *slog.Logger) (*recorder.Recorder, error) {
	ser, err := frame.NewSerializer(cfg.Frame)
	if err != nil {
		return nil, err
	}
	return recorder.New(scenes, ser, log), nil
}

// NewDispatcher picks sequential in-process recording for a single worker
// and child processes otherwise.
func NewDispatcher(cfg *config.Config, scenes *scene.Registry, globalArgs []string, log *slog.Logger) (Dispatcher, error) {
	if cfg.Workers <= 1 {
		rec, err := NewRecorder(cfg, scenes, log)
		if err != nil {
			return nil, err
		}
		return NewInProcess(rec), nil
	}
	return NewSubprocess(SubprocessOptions{
		Args:    globalArgs,
		Workers: cfg.Workers,
		Devices: cfg.Devices,
		Logger:  log,
	})
}

// RunWorker is the body of the worker command: it loads the dataset's
// config.yaml, records one chunk and replies on w.
func RunWorker(ctx context.Context, w io.Writer, dir string, seed int64, frames int, scenes *scene.Registry, log *slog.Logger) error {
	cfg, err := config.Load(filepath.Join(dir, config.FileName))
	if err != nil {
		return fmt.Errorf("worker config: %w", err)
	}
	if frames < 0 {
		frames = cfg.FramesPerChunk
	}
	rec, err := NewRecorder(cfg, scenes, log)
	if err != nil {
		return err
	}
	return ServeChunk(ctx, w, rec, Job{Dir: dir, Scene: cfg.Scene, Seed: seed, Frames: frames})
}
