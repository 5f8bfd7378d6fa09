package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/san-kum/posegen/internal/config"
	"github.com/san-kum/posegen/internal/dataset"
	"github.com/san-kum/posegen/internal/logging"
	"github.com/san-kum/posegen/internal/viz"
)

func (a *app) recordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "record a dataset, or resume one",
		Args:  cobra.NoArgs,
		RunE:  a.runRecord,
	}
	f := cmd.Flags()
	f.String("dataset", "", "dataset directory")
	f.String("scene", "drop", "scene generator")
	f.String("preset", "default", "preset for the scene generator")
	f.Int("chunks", config.DefaultChunks, "number of chunks (seeds)")
	f.Int("frames", config.DefaultFramesPerChunk, "frames per chunk")
	f.Int64("start-seed", 0, "first seed")
	f.Int("workers", config.DefaultWorkers, "parallel worker processes; 1 records in-process")
	f.Float64("train-ratio", config.DefaultTrainRatio, "fraction of keys in the training split")
	f.Bool("resume", false, "continue the dataset recorded in --dataset")
	f.Bool("overwrite", false, "replace an existing dataset directory")
	f.StringSlice("devices", nil, "GPU ids handed out to workers round-robin")
	f.String("codec", "", "rgb codec (jpeg, png)")
	f.Int("jpeg-quality", 0, "jpeg quality 1-100")
	f.String("compression", "", "artifact compression (none, zstd)")
	f.Bool("gpu", false, "render with the EGL plugin on the visible GPU")
	f.Bool("quiet", false, "silence engine output on connect and disconnect")
	f.Bool("progress", false, "show a live progress view")
	return cmd
}

// resumeFixed are record flags whose value config.yaml pins for a resumed
// run.
var resumeFixed = []string{
	"scene", "preset", "frames", "start-seed", "train-ratio",
	"codec", "jpeg-quality", "compression", "gpu", "quiet",
}

// recordConfig builds the run configuration. A resumed run starts from the
// saved config.yaml and only takes --chunks, --workers and --devices from the
// command line, so scene and recording parameters stay consistent.
func (a *app) recordConfig() (*config.Config, error) {
	v := a.v
	dir, err := requireDataset(v)
	if err != nil {
		return nil, err
	}
	if dir, err = filepath.Abs(dir); err != nil {
		return nil, err
	}

	if v.GetBool("resume") {
		var fixed []string
		for _, name := range resumeFixed {
			if v.IsSet(name) {
				fixed = append(fixed, "--"+name)
			}
		}
		if len(fixed) > 0 {
			return nil, fmt.Errorf("%s cannot change on --resume; config.yaml in %s fixes them", strings.Join(fixed, ", "), dir)
		}
		cfg, err := config.Load(filepath.Join(dir, config.FileName))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", dataset.ErrNoLedger, dir)
			}
			return nil, err
		}
		cfg.DatasetDir = dir
		if v.IsSet("chunks") {
			cfg.Chunks = v.GetInt("chunks")
		}
		if v.IsSet("workers") {
			cfg.Workers = v.GetInt("workers")
		}
		if v.IsSet("devices") {
			cfg.Devices = v.GetStringSlice("devices")
		}
		return cfg, nil
	}

	cfg := config.GetPreset(v.GetString("scene"), v.GetString("preset"))
	if cfg == nil {
		return nil, fmt.Errorf("unknown preset %q for scene %q (available: %v)",
			v.GetString("preset"), v.GetString("scene"), config.ListPresets(v.GetString("scene")))
	}
	cfg.RunID = uuid.NewString()
	cfg.CreatedAt = time.Now().UTC().Truncate(time.Second)
	cfg.DatasetDir = dir
	if v.IsSet("chunks") {
		cfg.Chunks = v.GetInt("chunks")
	}
	if v.IsSet("frames") {
		cfg.FramesPerChunk = v.GetInt("frames")
	}
	if v.IsSet("start-seed") {
		cfg.StartSeed = v.GetInt64("start-seed")
	}
	if v.IsSet("workers") {
		cfg.Workers = v.GetInt("workers")
	}
	if v.IsSet("train-ratio") {
		cfg.TrainRatio = v.GetFloat64("train-ratio")
	}
	if v.IsSet("devices") {
		cfg.Devices = v.GetStringSlice("devices")
	}
	if v.IsSet("codec") {
		cfg.Frame.RGBCodec = v.GetString("codec")
	}
	if v.IsSet("jpeg-quality") {
		cfg.Frame.JPEGQuality = v.GetInt("jpeg-quality")
	}
	if v.IsSet("compression") {
		cfg.Frame.Compression = v.GetString("compression")
	}
	if v.IsSet("gpu") {
		cfg.Scene.GPURenderer = v.GetBool("gpu")
	}
	if v.IsSet("quiet") {
		cfg.Scene.Quiet = v.GetBool("quiet")
	}
	return cfg, nil
}

func (a *app) runRecord(cmd *cobra.Command, _ []string) error {
	cfg, err := a.recordConfig()
	if err != nil {
		return err
	}
	opts := dataset.RunOptions{Resume: a.v.GetBool("resume"), Overwrite: a.v.GetBool("overwrite")}

	log := a.log
	if a.v.GetBool("progress") {
		log = logging.Discard()
	}
	workerArgs := []string{"--log-level", a.v.GetString("log-level")}
	d, err := dataset.NewDispatcher(cfg, a.scenes, workerArgs, log)
	if err != nil {
		return err
	}
	orch := dataset.NewOrchestrator(d, log)

	if !a.v.GetBool("progress") {
		sum, err := orch.RecordDataset(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		fmt.Printf("%d keys (%d train, %d val) in %s\n", len(sum.Split.All), len(sum.Split.Train), len(sum.Split.Val), cfg.DatasetDir)
		return nil
	}
	return a.recordWithProgress(cmd.Context(), orch, cfg, opts)
}

// recordWithProgress runs the recording under a live progress view. Signals
// reach ctx through main, not the program, so the view stays up until the
// in-flight chunks are ledgered. Whatever ends the program, the recording is
// cancelled and awaited before returning.
func (a *app) recordWithProgress(ctx context.Context, orch *dataset.Orchestrator, cfg *config.Config, opts dataset.RunOptions, progOpts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	progOpts = append([]tea.ProgramOption{tea.WithoutSignalHandler()}, progOpts...)
	p := tea.NewProgram(viz.NewProgressModel(cfg.DatasetDir, viz.GetTheme(a.v.GetString("theme")), cancel), progOpts...)
	orch.SetObserver(viz.TeaObserver{P: p})

	var (
		sum    *dataset.Summary
		runErr error
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		sum, runErr = orch.RecordDataset(ctx, cfg, opts)
		p.Send(viz.RunFinishedMsg{Err: runErr})
	}()
	go func() {
		select {
		case <-ctx.Done():
			p.Send(viz.StoppingMsg{})
		case <-done:
		}
	}()

	_, err := p.Run()
	cancel()
	<-done

	if err != nil {
		return errors.Join(fmt.Errorf("progress view: %w", err), runErr)
	}
	if runErr != nil {
		return runErr
	}
	if sum == nil {
		return context.Canceled
	}
	fmt.Printf("%d keys (%d train, %d val) in %s\n", len(sum.Split.All), len(sum.Split.Train), len(sum.Split.Val), cfg.DatasetDir)
	return nil
}

func (a *app) recordChunkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    dataset.WorkerCommand,
		Short:  "record one chunk of a dataset (worker process)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := requireDataset(a.v)
			if err != nil {
				return err
			}
			return dataset.RunWorker(cmd.Context(), cmd.OutOrStdout(), dir,
				a.v.GetInt64("seed"), a.v.GetInt("frames"), a.scenes, a.log)
		},
	}
	cmd.Flags().String("dataset", "", "dataset directory")
	cmd.Flags().Int64("seed", 0, "seed to record")
	cmd.Flags().Int("frames", -1, "frames in the chunk; -1 uses config.yaml")
	return cmd
}
